package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/harishm17/study-buddy/pkg/models"
)

const defaultDeliveryTimeout = 15 * time.Minute

// HTTPDispatcher posts job requests straight to the job service. Enqueue
// returns at once and delivers in the background, which is how development
// runs without a queue.
type HTTPDispatcher struct {
	baseURL string
	token   string
	client  *http.Client
	jobs    JobFailer
	logger  *slog.Logger
	wg      sync.WaitGroup
}

var _ Dispatcher = (*HTTPDispatcher)(nil)

// NewHTTPDispatcher creates a dispatcher for baseURL. timeout bounds one
// delivery, which includes running the stage; zero uses 15 minutes.
func NewHTTPDispatcher(baseURL, token string, timeout time.Duration) *HTTPDispatcher {
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}
	return &HTTPDispatcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
		logger:  slog.Default().With("component", "dispatch.http"),
	}
}

// FailDroppedTo makes failed background deliveries mark their job failed
// through jobs. A nil jobs only logs them.
func (d *HTTPDispatcher) FailDroppedTo(jobs JobFailer) *HTTPDispatcher {
	d.jobs = jobs
	return d
}

func (d *HTTPDispatcher) Enqueue(ctx context.Context, endpoint string, req models.JobRequest) (string, error) {
	taskID := "dev-task-" + req.JobID.String()
	ctx = context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.Deliver(ctx, endpoint, req); err != nil {
			d.logger.Error("job delivery failed", "endpoint", endpoint, "job_id", req.JobID, "error", err)
			failDropped(ctx, d.jobs, req, err, d.logger)
			return
		}
		d.logger.Info("job delivered", "endpoint", endpoint, "job_id", req.JobID)
	}()
	return taskID, nil
}

// Wait blocks until background deliveries finish or ctx is done.
func (d *HTTPDispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Deliver posts one request and waits for the stage to answer. A 4xx answer
// is ErrRejected; a 5xx answer is ErrServer.
func (d *HTTPDispatcher) Deliver(ctx context.Context, endpoint string, req models.JobRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode job request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if d.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}
	return fmt.Errorf("%w: status %d", ErrServer, resp.StatusCode)
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}
