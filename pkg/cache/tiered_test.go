package cache

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*TieredCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	tc, err := New(Config{
		Prefix:     "cache",
		Capacity:   100,
		DefaultTTL: time.Minute,
		Remote:     RemoteConfig{Host: mr.Host(), Port: port},
	})
	require.NoError(t, err)
	return tc, mr
}

func TestTieredCache_SetThenGet(t *testing.T) {
	tc, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, tc.Set(ctx, "k1", map[string]any{"x": 1}, time.Minute))

	var dest map[string]any
	found, err := tc.Get(ctx, "k1", &dest)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, float64(1), dest["x"])
}

func TestTieredCache_MissReturnsFalse(t *testing.T) {
	tc, _ := newTestCache(t)
	var dest string
	found, err := tc.Get(context.Background(), "missing", &dest)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTieredCache_FallsBackWhenRemoteDown(t *testing.T) {
	tc, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, tc.Set(ctx, "k1", "v1", time.Minute))
	mr.Close()

	// local tier still has it, warmed on Set
	var dest string
	found, err := tc.Get(ctx, "k1", &dest)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v1", dest)
}

func TestTieredCache_DeleteRemovesFromBothTiers(t *testing.T) {
	tc, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, tc.Set(ctx, "k1", "v1", time.Minute))
	require.NoError(t, tc.Delete(ctx, "k1"))

	var dest string
	found, _ := tc.Get(ctx, "k1", &dest)
	assert.False(t, found)
}

func TestTieredCache_DeletePattern(t *testing.T) {
	tc, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, tc.Set(ctx, "user:1:a", "v", time.Minute))
	require.NoError(t, tc.Set(ctx, "user:1:b", "v", time.Minute))
	require.NoError(t, tc.Set(ctx, "user:2:a", "v", time.Minute))

	n, err := tc.DeletePattern(ctx, "user:1:*")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var dest string
	found, _ := tc.Get(ctx, "user:2:a", &dest)
	assert.True(t, found)
}

func TestTieredCache_Metrics(t *testing.T) {
	tc, _ := newTestCache(t)
	ctx := context.Background()

	var dest string
	_, _ = tc.Get(ctx, "miss", &dest) // miss
	require.NoError(t, tc.Set(ctx, "k1", "v1", time.Minute))
	_, _ = tc.Get(ctx, "k1", &dest) // hit

	m := tc.Metrics()
	assert.Equal(t, int64(1), m.Hits)
	assert.Equal(t, int64(1), m.Misses)
	assert.Equal(t, 0.5, m.HitRate)
	assert.Equal(t, "redis", m.BackendLabel)
}

func TestTieredCache_ClearResetsMetricsAndBothTiers(t *testing.T) {
	tc, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, tc.Set(ctx, "k1", "v1", time.Minute))
	var dest string
	_, _ = tc.Get(ctx, "k1", &dest)

	require.NoError(t, tc.Clear(ctx))

	found, _ := tc.Get(ctx, "k1", &dest)
	assert.False(t, found)

	m := tc.Metrics()
	assert.Equal(t, int64(0), m.Hits)
	// Clear's own verification Get above counts as a post-clear miss.
	assert.Equal(t, int64(1), m.Misses)
}
