package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a live server only when OPSMEMORY_REDIS_ADDR is set.
func newRedisTestBackend(t *testing.T) *RedisBackend {
	t.Helper()
	addr := os.Getenv("OPSMEMORY_REDIS_ADDR")
	if addr == "" {
		t.Skip("OPSMEMORY_REDIS_ADDR not set")
	}
	b, err := NewRedisBackend(RedisConfig{Addr: addr, KeyPrefix: "opsmemory-test:" + uuid.NewString()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestRedisBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := newRedisTestBackend(t)
	exerciseBackend(t, ctx, b)
}

func TestBadgerBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	b, err := NewBadgerBackend(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	defer b.Close()
	exerciseBackend(t, ctx, b)
}

func exerciseBackend(t *testing.T, ctx context.Context, b Backend) {
	t.Helper()

	put := func(id string, ts time.Time, unit string) {
		require.NoError(t, b.Put(ctx, CollEvents, Record{
			ID: id, Timestamp: ts, Index: map[string]string{"unit": unit}, Data: []byte(`{"id":"` + id + `"}`),
		}))
	}
	put("a", t0, "BWW")
	put("b", t0.Add(time.Minute), "SONIC")
	put("c", t0.Add(2*time.Minute), "BWW")

	rec, err := b.Get(ctx, CollEvents, "b")
	require.NoError(t, err)
	assert.True(t, rec.Timestamp.Equal(t0.Add(time.Minute)))
	assert.Equal(t, "SONIC", rec.Index["unit"])

	_, err = b.Get(ctx, CollEvents, "zzz")
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := b.Range(ctx, CollEvents, RangeQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "c", all[2].ID)

	since, err := b.Range(ctx, CollEvents, RangeQuery{Since: t0.Add(30 * time.Second)})
	require.NoError(t, err)
	assert.Len(t, since, 2)

	bww, err := b.Range(ctx, CollEvents, RangeQuery{Field: "unit", Value: "BWW", Until: t0.Add(time.Minute)})
	require.NoError(t, err)
	require.Len(t, bww, 1)
	assert.Equal(t, "a", bww[0].ID)

	// moving "a" to another unit must drop it from the old index
	put("a", t0, "ARBYS")
	bww, err = b.Range(ctx, CollEvents, RangeQuery{Field: "unit", Value: "BWW"})
	require.NoError(t, err)
	require.Len(t, bww, 1)
	assert.Equal(t, "c", bww[0].ID)

	n, err := b.Count(ctx, CollEvents)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	removed, err := b.Delete(ctx, CollEvents, []string{"a", "missing"})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	n, err = b.Count(ctx, CollEvents)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
