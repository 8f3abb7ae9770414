package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestKey_ArgumentOrderIrrelevant(t *testing.T) {
	k1, err := Key("web_search", map[string]any{"query": "X", "limit": 5})
	require.NoError(t, err)
	k2, err := Key("web_search", map[string]any{"limit": 5, "query": "X"})
	require.NoError(t, err)
	require.Equal(t, k1, k2)
}

func TestKey_DistinctPerToolAndArgs(t *testing.T) {
	k1, err := Key("web_search", map[string]any{"query": "X"})
	require.NoError(t, err)
	k2, err := Key("web_fetch", map[string]any{"query": "X"})
	require.NoError(t, err)
	k3, err := Key("web_search", map[string]any{"query": "Y"})
	require.NoError(t, err)
	require.NotEqual(t, k1, k2)
	require.NotEqual(t, k1, k3)
}

func TestMemory_SetGet(t *testing.T) {
	m, err := NewMemory(1 << 20)
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))
	m.Wait()

	data, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), data)

	_, ok, err = m.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, NewRedisFromClient(client, zap.NewNop())
}

func TestRedis_SetGetExpiry(t *testing.T) {
	mr, r := newTestRedis(t)
	defer r.Close()
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "k", []byte("v"), time.Minute))
	data, ok, err := r.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), data)

	mr.FastForward(2 * time.Minute)
	_, ok, err = r.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTiered_L2HitBackfillsL1(t *testing.T) {
	_, r := newTestRedis(t)
	m, err := NewMemory(1 << 20)
	require.NoError(t, err)
	tiered := NewTiered(m, r, zap.NewNop())
	defer tiered.Close()

	ctx := context.Background()
	require.NoError(t, r.Set(ctx, "k", []byte("v"), time.Minute))

	data, ok, err := tiered.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), data)

	m.Wait()
	_, ok, _ = m.Get(ctx, "k")
	require.True(t, ok, "expected L1 backfill after L2 hit")
}

func TestTiered_NilL2(t *testing.T) {
	m, err := NewMemory(1 << 20)
	require.NoError(t, err)
	tiered := NewTiered(m, nil, zap.NewNop())
	defer tiered.Close()

	ctx := context.Background()
	require.NoError(t, tiered.Set(ctx, "k", []byte("v"), time.Minute))
	m.Wait()

	data, ok, err := tiered.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), data)
}
