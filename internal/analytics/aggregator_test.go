package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/metrics"
)

func newTestAggregator(cfg AggregatorConfig) *Aggregator {
	a := NewAggregator(cfg)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a.start = start
	a.now = func() time.Time { return start.Add(2 * time.Minute) }
	return a
}

func TestAggregator_Stats(t *testing.T) {
	a := newTestAggregator(AggregatorConfig{TopN: 2})
	a.RecordSearch(SearchEvent{Type: EventSearch, Query: "Shoes", Returned: 3, LatencyMs: 10})
	a.RecordSearch(SearchEvent{Type: EventSearch, Query: "shoes ", Returned: 3, LatencyMs: 20, CacheHit: true})
	a.RecordSearch(SearchEvent{Type: EventSearch, Query: "boots", Returned: 1, LatencyMs: 30, Grouped: true})
	a.RecordSearch(SearchEvent{Type: EventZeroResult, Query: "unicorn", LatencyMs: 40})
	a.RecordIndex(IndexEvent{Type: EventIndexChange, SourceID: "p-1", Outcome: "indexed"})
	a.RecordIndex(IndexEvent{Type: EventIndexChange, SourceID: "p-2", Outcome: "indexed"})
	a.RecordIndex(IndexEvent{Type: EventIndexChange, SourceID: "a-1", Outcome: "deleted"})

	s := a.Stats()
	assert.EqualValues(t, 4, s.Searches)
	assert.EqualValues(t, 1, s.GroupedSearches)
	assert.EqualValues(t, 1, s.ZeroResultSearches)
	assert.InDelta(t, 0.25, s.ZeroResultRate, 1e-9)
	assert.EqualValues(t, 1, s.CacheHits)
	assert.EqualValues(t, 3, s.CacheMisses)
	assert.InDelta(t, 25, s.AvgLatencyMs, 1e-9)
	assert.EqualValues(t, 30, s.P50LatencyMs)
	assert.EqualValues(t, 40, s.P99LatencyMs)
	assert.InDelta(t, 2, s.QueriesPerMinute, 1e-9)
	assert.Equal(t, []QueryCount{{"shoes", 2}, {"boots", 1}}, s.TopQueries)
	assert.Equal(t, []QueryCount{{"unicorn", 1}}, s.ZeroResultQueries)
	assert.Equal(t, map[string]int64{"indexed": 2, "deleted": 1}, s.IndexChanges)
}

func TestAggregator_LatencyWindowIsBounded(t *testing.T) {
	a := newTestAggregator(AggregatorConfig{MaxSamples: 3})
	for _, l := range []int64{100, 100, 100, 1, 2, 3} {
		a.RecordSearch(SearchEvent{Type: EventSearch, Query: "q", Returned: 1, LatencyMs: l})
	}
	s := a.Stats()
	assert.Len(t, a.latencies, 3)
	assert.InDelta(t, 2, s.AvgLatencyMs, 1e-9)
	assert.EqualValues(t, 6, s.Searches)
}

func TestAggregator_EmptyStats(t *testing.T) {
	s := newTestAggregator(AggregatorConfig{}).Stats()
	assert.Zero(t, s.Searches)
	assert.Zero(t, s.ZeroResultRate)
	assert.NotNil(t, s.TopQueries)
	assert.NotNil(t, s.IndexChanges)
}

func TestHandleMessage(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	a := newTestAggregator(AggregatorConfig{Metrics: m})
	handle := HandleMessage(a)
	ctx := context.Background()

	search, _ := json.Marshal(SearchEvent{Type: EventSearch, Query: "shoes", Returned: 2})
	zero, _ := json.Marshal(SearchEvent{Type: EventZeroResult, Query: "nothing"})
	index, _ := json.Marshal(IndexEvent{Type: EventIndexChange, SourceID: "p-1", Outcome: "unindexed"})

	for _, msg := range [][]byte{search, zero, index, []byte("not json"), []byte(`{"type":"mystery"}`)} {
		require.NoError(t, handle(ctx, nil, msg))
	}

	s := a.Stats()
	assert.EqualValues(t, 2, s.Searches)
	assert.EqualValues(t, 1, s.ZeroResultSearches)
	assert.EqualValues(t, 1, s.IndexChanges["unindexed"])
	assert.InDelta(t, 1, testutil.ToFloat64(m.AnalyticsEventsConsumed.WithLabelValues("search")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.AnalyticsEventsConsumed.WithLabelValues("index_change")), 0)
}

type fakeLister struct {
	snaps []Stats
	err   error
	limit int
}

func (f *fakeLister) List(_ context.Context, limit int) ([]Stats, error) {
	f.limit = limit
	return f.snaps, f.err
}

func TestRouter(t *testing.T) {
	a := newTestAggregator(AggregatorConfig{})
	a.RecordSearch(SearchEvent{Type: EventSearch, Query: "shoes", Returned: 1})
	lister := &fakeLister{snaps: []Stats{{Searches: 9}}}
	router := NewRouter(NewHandler(a, lister), health.NewChecker(), nil, nil)

	get := func(target string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		return rec
	}

	rec := get("/api/v1/analytics")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.EqualValues(t, 1, stats.Searches)

	rec = get("/api/v1/analytics/snapshots?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, lister.limit)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	assert.Equal(t, http.StatusBadRequest, get("/api/v1/analytics/snapshots?limit=0").Code)

	lister.err = errors.New("db down")
	assert.Equal(t, http.StatusInternalServerError, get("/api/v1/analytics/snapshots").Code)

	noStore := NewRouter(NewHandler(a, nil), health.NewChecker(), nil, nil)
	rec = httptest.NewRecorder()
	noStore.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/snapshots", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
