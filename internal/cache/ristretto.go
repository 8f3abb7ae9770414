package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Memory is an in-process L1 cache backed by ristretto.
type Memory struct {
	c *ristretto.Cache[string, []byte]
}

// NewMemory creates a ristretto-backed cache bounded by maxCostBytes of
// cached values.
func NewMemory(maxCostBytes int64) (*Memory, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxCostBytes / 100 * 10, // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Memory{c: c}, nil
}

// Get retrieves a value from the cache.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	val, found := m.c.Get(key)
	if !found {
		return nil, false, nil
	}
	return val, true, nil
}

// Set stores a value with the given TTL. Writes are applied asynchronously;
// call Wait when a subsequent read must observe the write.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.c.SetWithTTL(key, value, int64(len(value)), ttl)
	return nil
}

// Wait blocks until buffered writes have been applied.
func (m *Memory) Wait() {
	m.c.Wait()
}

// Close shuts down the cache and releases resources.
func (m *Memory) Close() error {
	m.c.Close()
	return nil
}
