package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type page struct {
	IDs   []string `json:"ids"`
	Total int      `json:"total"`
}

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Set(ctx, "orders:list:a", page{IDs: []string{"x"}, Total: 1}, time.Minute))

	var got page
	ok, err := m.Get(ctx, "orders:list:a", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, page{IDs: []string{"x"}, Total: 1}, got)

	ok, err = m.Get(ctx, "missing", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "k", 1, 30*time.Second))
	now = now.Add(29 * time.Second)
	var v int
	ok, _ := m.Get(ctx, "k", &v)
	assert.True(t, ok)

	now = now.Add(time.Second)
	ok, _ = m.Get(ctx, "k", &v)
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}

func TestMemoryExpiryKeepsEntrySetDuringGet(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }
	require.NoError(t, m.Set(ctx, "k", 1, 30*time.Second))
	now = now.Add(time.Minute)

	// A writer refreshes the key between Get's read and its eviction.
	refreshed := false
	m.now = func() time.Time {
		if !refreshed {
			refreshed = true
			require.NoError(t, m.Set(ctx, "k", 2, 30*time.Second))
		}
		return now
	}

	var v int
	ok, err := m.Get(ctx, "k", &v)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.Get(ctx, "k", &v)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestMemoryDeletePrefix(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, k := range []string{"orders:list:1", "orders:list:2", "orders:detail:1"} {
		require.NoError(t, m.Set(ctx, k, k, 0))
	}

	require.NoError(t, m.DeletePrefix(ctx, "orders:list:"))
	assert.Equal(t, 1, m.Len())

	require.NoError(t, m.Delete(ctx, "orders:detail:1", "absent"))
	assert.Equal(t, 0, m.Len())
}

func TestNopNeverHits(t *testing.T) {
	var c Cache = Nop{}
	require.NoError(t, c.Set(context.Background(), "k", 1, time.Minute))

	var v int
	ok, err := c.Get(context.Background(), "k", &v)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewRedisRejectsBadURL(t *testing.T) {
	_, err := NewRedis(context.Background(), "not a url", "orderdesk")
	assert.Error(t, err)
}

func TestRedisKeyNamespace(t *testing.T) {
	r := &Redis{namespace: "orderdesk"}
	assert.Equal(t, "orderdesk:orders:list:x", r.key("orders:list:x"))

	r = &Redis{}
	assert.Equal(t, "orders:list:x", r.key("orders:list:x"))
}
