package dispatch

import (
	"context"
	"fmt"

	"github.com/harishm17/study-buddy/pkg/models"
	"github.com/redis/go-redis/v9"
)

// StreamDispatcher appends job requests to a Redis stream that a Relay
// consumes. The stream entry ID is the task ID.
type StreamDispatcher struct {
	client *redis.Client
	stream string
}

var _ Dispatcher = (*StreamDispatcher)(nil)

func NewStreamDispatcher(client *redis.Client, stream string) *StreamDispatcher {
	return &StreamDispatcher{client: client, stream: stream}
}

func (d *StreamDispatcher) Enqueue(ctx context.Context, endpoint string, req models.JobRequest) (string, error) {
	values, err := message{Endpoint: endpoint, Request: req}.values()
	if err != nil {
		return "", err
	}
	id, err := d.client.XAdd(ctx, &redis.XAddArgs{Stream: d.stream, Values: values}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", d.stream, err)
	}
	return id, nil
}
