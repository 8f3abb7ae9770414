package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis is a shared L2 cache so concurrent workers (and restarts) reuse tool
// results across processes.
type Redis struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedis connects to the given address and verifies the connection.
func NewRedis(addr, password string, logger *zap.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{client: client, logger: logger}, nil
}

// NewRedisFromClient wraps an existing client. Used by tests with miniredis.
func NewRedisFromClient(client *redis.Client, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{client: client, logger: logger}
}

// Get retrieves a value; a missing key is not an error.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return data, true, nil
}

// Set stores a value with the given TTL.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Tiered layers an in-process L1 in front of a shared L2. Reads fill the L1
// on L2 hits; writes go to both. L2 errors degrade to L1-only behavior.
type Tiered struct {
	l1     *Memory
	l2     Cache
	logger *zap.Logger
}

// NewTiered combines the two layers. l2 may be nil, in which case the tiered
// cache behaves exactly like the memory cache.
func NewTiered(l1 *Memory, l2 Cache, logger *zap.Logger) *Tiered {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tiered{l1: l1, l2: l2, logger: logger}
}

// Get checks L1 first, then L2.
func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if data, ok, _ := t.l1.Get(ctx, key); ok {
		return data, true, nil
	}
	if t.l2 == nil {
		return nil, false, nil
	}
	data, ok, err := t.l2.Get(ctx, key)
	if err != nil {
		t.logger.Warn("L2 cache read failed", zap.Error(err))
		return nil, false, nil
	}
	if !ok {
		return nil, false, nil
	}
	// Backfill L1 without a TTL authority; the L2 entry expires first.
	_ = t.l1.Set(ctx, key, data, time.Minute)
	return data, true, nil
}

// Set writes through to both layers.
func (t *Tiered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_ = t.l1.Set(ctx, key, value, ttl)
	if t.l2 != nil {
		if err := t.l2.Set(ctx, key, value, ttl); err != nil {
			t.logger.Warn("L2 cache write failed", zap.Error(err))
		}
	}
	return nil
}

// Close closes both layers.
func (t *Tiered) Close() error {
	_ = t.l1.Close()
	if t.l2 != nil {
		return t.l2.Close()
	}
	return nil
}
