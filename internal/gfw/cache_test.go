package gfw

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maritimeviz/maritimeviz/internal/observability"
)

// --- mock for cache tests ---

type countingAPI struct {
	searchCalls int
	eventCalls  int
	statsCalls  int
	entries     []Entry
	stats       Stats
	err         error
}

func (m *countingAPI) SearchVessel(_ context.Context, _ string) ([]Entry, error) {
	m.searchCalls++
	return m.entries, m.err
}

func (m *countingAPI) FishingEvents(_ context.Context, _, _, _ string, _, _ int) ([]Entry, error) {
	m.eventCalls++
	return m.entries, m.err
}

func (m *countingAPI) FishingStats(_ context.Context, _, _ string) (Stats, error) {
	m.statsCalls++
	return m.stats, m.err
}

// --- CachedClient tests ---

func TestCachedClient_SearchHit(t *testing.T) {
	inner := &countingAPI{entries: []Entry{{"id": "abc"}}}
	metrics := observability.NewMetricsForTesting()
	cached := NewCachedClient(inner, 10, time.Hour, clockwork.NewFakeClock(), metrics)

	for i := 0; i < 3; i++ {
		got, err := cached.SearchVessel(context.Background(), "477553000")
		require.NoError(t, err)
		assert.Equal(t, "abc", got[0]["id"])
	}
	assert.Equal(t, 1, inner.searchCalls, "should only call inner once")
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.GFWCache.WithLabelValues("vessels", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.GFWCache.WithLabelValues("vessels", "miss")))
}

func TestCachedClient_EmptyResultsNotCached(t *testing.T) {
	inner := &countingAPI{}
	cached := NewCachedClient(inner, 10, time.Hour, clockwork.NewFakeClock(), nil)

	_, _ = cached.SearchVessel(context.Background(), "1")
	_, _ = cached.SearchVessel(context.Background(), "1")
	assert.Equal(t, 2, inner.searchCalls)

	_, _ = cached.FishingStats(context.Background(), "2022-01-01", "2022-01-02")
	_, _ = cached.FishingStats(context.Background(), "2022-01-01", "2022-01-02")
	assert.Equal(t, 2, inner.statsCalls)
}

func TestCachedClient_ErrorsNotCached(t *testing.T) {
	inner := &countingAPI{err: errors.New("boom")}
	cached := NewCachedClient(inner, 10, time.Hour, clockwork.NewFakeClock(), nil)

	_, err := cached.FishingEvents(context.Background(), "v", "2022-01-01", "2022-01-02", 10, 0)
	assert.Error(t, err)
	_, err = cached.FishingEvents(context.Background(), "v", "2022-01-01", "2022-01-02", 10, 0)
	assert.Error(t, err)
	assert.Equal(t, 2, inner.eventCalls)
}

func TestCachedClient_EventsKeyedByArguments(t *testing.T) {
	inner := &countingAPI{entries: []Entry{{"id": "e1"}}}
	cached := NewCachedClient(inner, 10, time.Hour, clockwork.NewFakeClock(), nil)
	ctx := context.Background()

	_, _ = cached.FishingEvents(ctx, "v", "2022-01-01", "2022-01-02", 10, 0)
	_, _ = cached.FishingEvents(ctx, "v", "2022-01-01", "2022-01-02", 10, 10)
	_, _ = cached.FishingEvents(ctx, "v", "2022-01-01", "2022-01-02", 10, 0)
	assert.Equal(t, 2, inner.eventCalls)
}

func TestCachedClient_TTLExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	inner := &countingAPI{stats: Stats{"flags": 1.0}}
	cached := NewCachedClient(inner, 10, time.Minute, clock, nil)
	ctx := context.Background()

	_, _ = cached.FishingStats(ctx, "2022-01-01", "2022-01-02")
	clock.Advance(59 * time.Second)
	_, _ = cached.FishingStats(ctx, "2022-01-01", "2022-01-02")
	assert.Equal(t, 1, inner.statsCalls)

	clock.Advance(time.Second)
	_, _ = cached.FishingStats(ctx, "2022-01-01", "2022-01-02")
	assert.Equal(t, 2, inner.statsCalls)
}

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache(2, 0, clockwork.NewFakeClock())
	c.put("a", 1)
	c.put("b", 2)

	// touch a so b becomes least recently used
	_, ok := c.get("a")
	require.True(t, ok)

	c.put("c", 3)
	assert.Equal(t, 2, c.len())

	_, ok = c.get("b")
	assert.False(t, ok, "b should have been evicted")
	v, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	_, ok = c.get("c")
	assert.True(t, ok)
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	c := newLRUCache(2, 0, clockwork.NewFakeClock())
	c.put("a", 1)
	c.put("a", 2)
	assert.Equal(t, 1, c.len())
	v, _ := c.get("a")
	assert.Equal(t, 2, v)
}
