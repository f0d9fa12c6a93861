package dispatch_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/harishm17/study-buddy/internal/cache"
	"github.com/harishm17/study-buddy/internal/dispatch"
	"github.com/harishm17/study-buddy/internal/metrics"
	"github.com/harishm17/study-buddy/internal/store/storetest"
	"github.com/harishm17/study-buddy/pkg/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	testStream = "studybuddy:jobs:test"
	testGroup  = "relay"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client, err := cache.NewClient("redis://" + host + ":" + port.Port())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// scriptedDeliverer returns the next scripted error per call and records
// delivered requests.
type scriptedDeliverer struct {
	mu        sync.Mutex
	errs      []error
	delivered []models.JobRequest
}

func (d *scriptedDeliverer) Deliver(_ context.Context, _ string, req models.JobRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delivered = append(d.delivered, req)
	if len(d.errs) == 0 {
		return nil
	}
	err := d.errs[0]
	d.errs = d.errs[1:]
	return err
}

func (d *scriptedDeliverer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.delivered)
}

func newRelay(t *testing.T, client *redis.Client, target dispatch.Deliverer, jobs dispatch.JobFailer, m *metrics.Metrics) *dispatch.Relay {
	t.Helper()
	r := dispatch.NewRelay(client, target, jobs, dispatch.RelayConfig{
		Stream:            testStream,
		Group:             testGroup,
		Consumer:          "test-1",
		MaxDeliveries:     3,
		VisibilityTimeout: time.Millisecond,
		Block:             100 * time.Millisecond,
	}, m)
	require.NoError(t, r.Setup(context.Background()))
	require.NoError(t, r.Setup(context.Background()), "setup is idempotent")
	return r
}

func pendingCount(t *testing.T, client *redis.Client) int64 {
	t.Helper()
	p, err := client.XPending(context.Background(), testStream, testGroup).Result()
	require.NoError(t, err)
	return p.Count
}

func TestRelay_DeliversAndAcks(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := setupRedis(t)
	ctx := context.Background()
	target := &scriptedDeliverer{}
	m := metrics.New()
	relay := newRelay(t, client, target, nil, m)

	req := jobRequest()
	id, err := dispatch.NewStreamDispatcher(client, testStream).Enqueue(ctx, "/jobs/chunk-material", req)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	n, err := relay.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Equal(t, 1, target.count())
	assert.Equal(t, req.JobID, target.delivered[0].JobID)
	assert.JSONEq(t, string(req.Data), string(target.delivered[0].Data))
	assert.Zero(t, pendingCount(t, client))

	count, err := testutil.GatherAndCount(m.Registry(), "studybuddy_dispatch_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRelay_PermanentRejectionIsAcked(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := setupRedis(t)
	ctx := context.Background()
	target := &scriptedDeliverer{errs: []error{dispatch.ErrRejected}}
	relay := newRelay(t, client, target, nil, nil)

	_, err := dispatch.NewStreamDispatcher(client, testStream).Enqueue(ctx, "/jobs/x", jobRequest())
	require.NoError(t, err)

	_, err = relay.Poll(ctx)
	require.NoError(t, err)
	assert.Zero(t, pendingCount(t, client))
}

func TestRelay_RetriesThenDrops(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := setupRedis(t)
	ctx := context.Background()
	transient := dispatch.ErrServer
	target := &scriptedDeliverer{errs: []error{transient, transient, transient, transient}}
	relay := newRelay(t, client, target, nil, nil)

	_, err := dispatch.NewStreamDispatcher(client, testStream).Enqueue(ctx, "/jobs/x", jobRequest())
	require.NoError(t, err)

	_, err = relay.Poll(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pendingCount(t, client))

	time.Sleep(5 * time.Millisecond)
	n, err := relay.Reclaim(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.EqualValues(t, 1, pendingCount(t, client))

	time.Sleep(5 * time.Millisecond)
	_, err = relay.Reclaim(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, target.count())
	assert.Zero(t, pendingCount(t, client), "dropped after three deliveries")
}

func TestRelay_DroppedJobIsMarkedFailed(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := setupRedis(t)
	ctx := context.Background()
	jobs := storetest.New()
	req, projectID := pendingJob(t, jobs)
	unreachable := dispatch.ErrUnreachable
	target := &scriptedDeliverer{errs: []error{unreachable, unreachable, unreachable}}
	relay := newRelay(t, client, target, jobs, nil)

	_, err := dispatch.NewStreamDispatcher(client, testStream).Enqueue(ctx, "/jobs/chunk-material", req)
	require.NoError(t, err)

	_, err = relay.Poll(ctx)
	require.NoError(t, err)
	for range 2 {
		time.Sleep(5 * time.Millisecond)
		_, err = relay.Reclaim(ctx)
		require.NoError(t, err)
	}
	require.Equal(t, 3, target.count())
	assert.Zero(t, pendingCount(t, client))

	job, err := jobs.GetJob(ctx, req.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.ErrorCode)
	assert.Equal(t, models.ErrCodeChunkingFailed, *job.ErrorCode)
	assert.True(t, job.Retryable)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "unreachable")

	active, err := jobs.HasActiveJob(ctx, projectID, models.JobTypeChunkMaterial)
	require.NoError(t, err)
	assert.False(t, active, "dropped job no longer holds the in-flight slot")
}

func TestRelay_TransientFailureLeavesJobPending(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := setupRedis(t)
	ctx := context.Background()
	jobs := storetest.New()
	req, _ := pendingJob(t, jobs)
	target := &scriptedDeliverer{errs: []error{dispatch.ErrServer}}
	relay := newRelay(t, client, target, jobs, nil)

	_, err := dispatch.NewStreamDispatcher(client, testStream).Enqueue(ctx, "/jobs/chunk-material", req)
	require.NoError(t, err)
	_, err = relay.Poll(ctx)
	require.NoError(t, err)

	job, err := jobs.GetJob(ctx, req.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.EqualValues(t, 1, pendingCount(t, client))
}

func TestRelay_MalformedEntryIsAcked(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := setupRedis(t)
	ctx := context.Background()
	target := &scriptedDeliverer{}
	relay := newRelay(t, client, target, nil, nil)

	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{Stream: testStream, Values: map[string]any{"endpoint": "/jobs/x"}}).Err())

	_, err := relay.Poll(ctx)
	require.NoError(t, err)
	assert.Zero(t, target.count())
	assert.Zero(t, pendingCount(t, client))
}

func TestRelay_RunStopsOnCancel(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := setupRedis(t)
	target := &scriptedDeliverer{}
	relay := newRelay(t, client, target, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	_, err := dispatch.NewStreamDispatcher(client, testStream).Enqueue(context.Background(), "/jobs/x", jobRequest())
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return target.count() == 1 }, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not stop")
	}
}
