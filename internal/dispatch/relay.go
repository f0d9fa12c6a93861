package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/harishm17/study-buddy/internal/metrics"
	"github.com/harishm17/study-buddy/pkg/models"
	"github.com/redis/go-redis/v9"
)

// Deliverer runs one delivery attempt and waits for the answer.
type Deliverer interface {
	Deliver(ctx context.Context, endpoint string, req models.JobRequest) error
}

// RelayConfig configures a Relay. Zero values take the defaults.
type RelayConfig struct {
	Stream            string
	Group             string
	Consumer          string
	MaxDeliveries     int64
	VisibilityTimeout time.Duration
	Block             time.Duration
	Count             int64
}

func (c RelayConfig) withDefaults() RelayConfig {
	if c.MaxDeliveries <= 0 {
		c.MaxDeliveries = 5
	}
	if c.VisibilityTimeout <= 0 {
		c.VisibilityTimeout = 15 * time.Minute
	}
	if c.Block <= 0 {
		c.Block = 5 * time.Second
	}
	if c.Count <= 0 {
		c.Count = 10
	}
	return c
}

// Relay consumes the dispatch stream as one member of a consumer group and
// hands each entry to a Deliverer. Entries are acknowledged on success and
// on permanent rejection. Failed entries stay pending until another pass
// reclaims them, and are dropped once they reach MaxDeliveries. Dropped and
// rejected jobs are marked failed through jobs when it is set.
type Relay struct {
	client  *redis.Client
	target  Deliverer
	jobs    JobFailer
	cfg     RelayConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewRelay(client *redis.Client, target Deliverer, jobs JobFailer, cfg RelayConfig, m *metrics.Metrics) *Relay {
	cfg = cfg.withDefaults()
	return &Relay{
		client:  client,
		target:  target,
		jobs:    jobs,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "relay", "consumer", cfg.Consumer),
	}
}

// Setup creates the stream and consumer group if they do not exist.
func (r *Relay) Setup(ctx context.Context) error {
	err := r.client.XGroupCreateMkStream(ctx, r.cfg.Stream, r.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

// Run polls until ctx is cancelled. Idle entries are reclaimed every
// VisibilityTimeout/2.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.Setup(ctx); err != nil {
		return err
	}
	r.logger.Info("relay started", "stream", r.cfg.Stream, "group", r.cfg.Group)

	claimEvery := r.cfg.VisibilityTimeout / 2
	var lastClaim time.Time

	for ctx.Err() == nil {
		if time.Since(lastClaim) >= claimEvery {
			if _, err := r.Reclaim(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("reclaim failed", "error", err)
			}
			lastClaim = time.Now()
		}

		if _, err := r.Poll(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("poll failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
	r.logger.Info("relay stopped")
	return nil
}

// Poll reads and handles one batch of new entries.
func (r *Relay) Poll(ctx context.Context) (int, error) {
	streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    r.cfg.Group,
		Consumer: r.cfg.Consumer,
		Streams:  []string{r.cfg.Stream, ">"},
		Count:    r.cfg.Count,
		Block:    r.cfg.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("xreadgroup: %w", err)
	}

	n := 0
	for _, s := range streams {
		for _, msg := range s.Messages {
			r.handle(ctx, msg)
			n++
		}
	}
	return n, nil
}

// Reclaim takes over entries idle longer than the visibility timeout and
// retries them.
func (r *Relay) Reclaim(ctx context.Context) (int, error) {
	start := "0-0"
	n := 0
	for {
		msgs, next, err := r.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   r.cfg.Stream,
			Group:    r.cfg.Group,
			Consumer: r.cfg.Consumer,
			MinIdle:  r.cfg.VisibilityTimeout,
			Start:    start,
			Count:    r.cfg.Count,
		}).Result()
		if err != nil {
			return n, fmt.Errorf("xautoclaim: %w", err)
		}
		for _, msg := range msgs {
			r.handle(ctx, msg)
			n++
		}
		if next == "0-0" || len(msgs) == 0 {
			return n, nil
		}
		start = next
	}
}

func (r *Relay) handle(ctx context.Context, msg redis.XMessage) {
	m, err := decodeMessage(msg.Values)
	if err != nil {
		r.logger.Error("dropping malformed entry", "id", msg.ID, "error", err)
		r.ack(ctx, msg.ID)
		return
	}

	err = r.target.Deliver(ctx, m.Endpoint, m.Request)
	r.metrics.ObserveDispatch(m.Endpoint, err)

	switch {
	case err == nil:
		r.ack(ctx, msg.ID)
	case Permanent(err):
		r.logger.Warn("job rejected, not retrying", "id", msg.ID, "job_id", m.Request.JobID, "error", err)
		failDropped(ctx, r.jobs, m.Request, err, r.logger)
		r.ack(ctx, msg.ID)
	default:
		deliveries := r.deliveries(ctx, msg.ID)
		if deliveries >= r.cfg.MaxDeliveries {
			r.logger.Error("job dropped after max deliveries", "id", msg.ID, "job_id", m.Request.JobID, "deliveries", deliveries, "error", err)
			failDropped(ctx, r.jobs, m.Request, err, r.logger)
			r.ack(ctx, msg.ID)
			return
		}
		r.logger.Warn("job delivery failed, left pending", "id", msg.ID, "job_id", m.Request.JobID, "deliveries", deliveries, "error", err)
	}
}

func (r *Relay) deliveries(ctx context.Context, id string) int64 {
	pending, err := r.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: r.cfg.Stream,
		Group:  r.cfg.Group,
		Start:  id,
		End:    id,
		Count:  1,
	}).Result()
	if err != nil || len(pending) == 0 {
		return 0
	}
	return pending[0].RetryCount
}

func (r *Relay) ack(ctx context.Context, id string) {
	if err := r.client.XAck(ctx, r.cfg.Stream, r.cfg.Group, id).Err(); err != nil {
		r.logger.Error("xack failed", "id", id, "error", err)
	}
}
