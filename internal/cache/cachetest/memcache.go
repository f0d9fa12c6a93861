// Package cachetest provides an in-memory cache.Cache for unit tests.
package cachetest

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harishm17/study-buddy/internal/cache"
)

// MemCache ignores TTLs. Err, when set, is returned from every call.
type MemCache struct {
	mu   sync.Mutex
	data map[string][]byte
	Err  error
}

func New() *MemCache {
	return &MemCache{data: make(map[string][]byte)}
}

func (c *MemCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.data[key] = append([]byte(nil), value...)
	return nil
}

func (c *MemCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, false, c.Err
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *MemCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	delete(c.data, key)
	return nil
}

func (c *MemCache) Ping(context.Context) error { return c.Err }

func (c *MemCache) SetJobStatus(ctx context.Context, jobID uuid.UUID, status cache.JobStatus, ttl time.Duration) error {
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return c.Set(ctx, cache.JobStatusKey(jobID), data, ttl)
}

func (c *MemCache) GetJobStatus(ctx context.Context, jobID uuid.UUID) (*cache.JobStatus, bool, error) {
	data, ok, err := c.Get(ctx, cache.JobStatusKey(jobID))
	if err != nil || !ok {
		return nil, false, err
	}
	var st cache.JobStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, false, err
	}
	return &st, true, nil
}

// Len returns the number of stored keys.
func (c *MemCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

var _ cache.Cache = (*MemCache)(nil)
