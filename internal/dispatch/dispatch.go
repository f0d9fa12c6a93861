// Package dispatch delivers job requests to stage endpoints at least once.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/harishm17/study-buddy/internal/config"
	"github.com/harishm17/study-buddy/internal/store"
	"github.com/harishm17/study-buddy/pkg/models"
	"github.com/redis/go-redis/v9"
)

// Sentinel errors for delivery failures.
var (
	ErrUnreachable = errors.New("job service unreachable")
	ErrTimeout     = errors.New("job delivery timeout")
	ErrRejected    = errors.New("job rejected")
	ErrServer      = errors.New("job service error")
)

// Dispatcher enqueues a job request for an endpoint and returns a task ID.
type Dispatcher interface {
	Enqueue(ctx context.Context, endpoint string, req models.JobRequest) (string, error)
}

// JobFailer records a job as failed. store.Store satisfies it.
type JobFailer interface {
	FailJob(ctx context.Context, id uuid.UUID, failure store.JobFailure, now time.Time) error
}

// Permanent reports whether a delivery error will fail again on retry.
func Permanent(err error) bool {
	return errors.Is(err, ErrRejected)
}

// New builds the dispatcher selected by cfg.Mode. client is only used in
// redis mode. jobs, when set, records background deliveries that are given
// up on in http mode.
func New(cfg config.DispatchConfig, client *redis.Client, jobs JobFailer) (Dispatcher, error) {
	switch cfg.Mode {
	case "http":
		return NewHTTPDispatcher(cfg.ServiceURL, cfg.InternalToken, 0).FailDroppedTo(jobs), nil
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("redis dispatch needs a redis client")
		}
		return NewStreamDispatcher(client, cfg.Stream), nil
	}
	return nil, fmt.Errorf("unknown dispatch mode %q", cfg.Mode)
}

// failDropped marks the job behind an abandoned delivery failed and
// retryable so it stops holding its in-flight slot. Jobs the service has
// already finished are left as they are.
func failDropped(ctx context.Context, jobs JobFailer, req models.JobRequest, cause error, logger *slog.Logger) {
	if jobs == nil {
		return
	}
	failure := store.JobFailure{
		Code:      req.JobType.FailureCode(),
		Message:   "delivery abandoned: " + cause.Error(),
		Retryable: true,
	}
	err := jobs.FailJob(ctx, req.JobID, failure, time.Now().UTC())
	switch {
	case err == nil:
		logger.Warn("abandoned job marked failed", "job_id", req.JobID, "job_type", req.JobType)
	case errors.Is(err, store.ErrInvalidTransition), errors.Is(err, store.ErrNotFound):
		logger.Debug("abandoned job left unchanged", "job_id", req.JobID, "reason", err)
	default:
		logger.Error("mark abandoned job failed", "job_id", req.JobID, "error", err)
	}
}

// message is the stream entry layout shared by StreamDispatcher and Relay.
type message struct {
	Endpoint string
	Request  models.JobRequest
}

const (
	fieldEndpoint = "endpoint"
	fieldPayload  = "payload"
	fieldJobID    = "job_id"
)

func (m message) values() (map[string]any, error) {
	payload, err := json.Marshal(m.Request)
	if err != nil {
		return nil, fmt.Errorf("encode job request: %w", err)
	}
	return map[string]any{
		fieldEndpoint: m.Endpoint,
		fieldPayload:  string(payload),
		fieldJobID:    m.Request.JobID.String(),
	}, nil
}

func decodeMessage(values map[string]any) (message, error) {
	endpoint, _ := values[fieldEndpoint].(string)
	payload, _ := values[fieldPayload].(string)
	if endpoint == "" || payload == "" {
		return message{}, fmt.Errorf("stream entry missing %s or %s", fieldEndpoint, fieldPayload)
	}
	var req models.JobRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return message{}, fmt.Errorf("decode job request: %w", err)
	}
	return message{Endpoint: endpoint, Request: req}, nil
}
