package searcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/domain"
	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/indexer/normalizer"
	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/source"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/unified-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/unified-search/pkg/redis"
)

type recordingTracker struct {
	mu     sync.Mutex
	events []analytics.SearchEvent
}

func (r *recordingTracker) Track(event any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev, ok := event.(analytics.SearchEvent); ok {
		r.events = append(r.events, ev)
	}
}

// mapCache is an in-process RankingCache keyed like the Redis one.
type mapCache struct {
	mu      sync.Mutex
	entries map[string]*executor.Ranking
}

func (c *mapCache) GetOrCompute(_ context.Context, query string, settings domain.Settings, fn func() (*executor.Ranking, error)) (*executor.Ranking, bool, error) {
	key := query + "|" + settings.EnabledTypes()[0].String()
	c.mu.Lock()
	defer c.mu.Unlock()
	if res, ok := c.entries[key]; ok {
		return res, true, nil
	}
	res, err := fn()
	if err != nil {
		return nil, false, err
	}
	c.entries[key] = res
	return res, false, nil
}

func newRedisCache(t *testing.T) *cache.QueryCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := pkgredis.NewClient(config.RedisConfig{Addr: mr.Addr(), PoolSize: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return cache.New(client, time.Minute, nil)
}

type env struct {
	svc     *Service
	src     *source.Memory
	engine  *indexer.Engine
	tracker *recordingTracker
	metrics *metrics.Metrics
}

func newEnv(t *testing.T, opts ...Option) *env {
	t.Helper()
	price := 59.99
	src := source.NewMemory(
		&domain.RawItem{ID: "p-1", Type: "product", Status: domain.StatusPublished, Title: "Red Shoes", Content: "Comfortable leather shoes",
			Product: &domain.ProductData{Price: &price, Currency: "USD", InStock: true, Purchasable: true}},
		&domain.RawItem{ID: "p-2", Type: "product", Status: domain.StatusPublished, Title: "Blue Sneakers", Content: "Light running shoes"},
		&domain.RawItem{ID: "a-1", Type: "post", Status: domain.StatusPublished, Title: "Caring for red shoes", Content: "Polish weekly"},
		&domain.RawItem{ID: "a-2", Type: "post", Status: domain.StatusPublished, Title: "Shoe history", Content: "From sandals to red shoes"},
	)
	st := store.NewMemory()
	engine := indexer.NewEngine(st, src, normalizer.New(), domain.DefaultSettings())
	_, err := engine.ReindexAll(context.Background())
	require.NoError(t, err)

	e := &env{src: src, engine: engine, tracker: &recordingTracker{}, metrics: metrics.New(prometheus.NewRegistry())}
	opts = append([]Option{WithEventTracker(e.tracker), WithMetrics(e.metrics)}, opts...)
	e.svc = NewService(executor.New(st, src), domain.DefaultSettings(), opts...)
	return e
}

func resultIDs(results []domain.ScoredResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func TestSearch_DefaultSettings(t *testing.T) {
	e := newEnv(t)

	results, err := e.svc.Search(context.Background(), "Red Shoes", nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "p-1", results[0].ID)
	assert.Equal(t, float64(100), results[0].Score)
	assert.Equal(t, "a-1", results[1].ID)
	assert.Equal(t, float64(80), results[1].Score)
	assert.Equal(t, "$59.99", results[0].Price)

	require.Len(t, e.tracker.events, 1)
	assert.Equal(t, analytics.EventSearch, e.tracker.events[0].Type)
	assert.Equal(t, []string{"Red", "Shoes"}, e.tracker.events[0].Words)
	assert.InDelta(t, 1, testutil.ToFloat64(e.metrics.SearchQueriesTotal.WithLabelValues("ok")), 0)
}

func TestSearch_EmptyCasesAreNotErrors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	results, err := e.svc.Search(ctx, "x", nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = e.svc.Search(ctx, "nonexistentterm", nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, analytics.EventZeroResult, e.tracker.events[len(e.tracker.events)-1].Type)

	none := domain.DefaultSettings()
	none.SearchArticles, none.SearchProducts = false, false
	results, err = e.svc.Search(ctx, "red shoes", &none)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_InvalidSettingsGiveEmptyResult(t *testing.T) {
	e := newEnv(t)
	bad := domain.DefaultSettings()
	bad.MaxResults = 0

	results, err := e.svc.Search(context.Background(), "red shoes", &bad)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
	assert.InDelta(t, 1, testutil.ToFloat64(e.metrics.SearchQueriesTotal.WithLabelValues("invalid_settings")), 0)
}

func TestSearch_ReflectsIndexChanges(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.engine.OnDelete(ctx, "p-1")
	require.NoError(t, err)
	results, err := e.svc.Search(ctx, "red shoes", nil)
	require.NoError(t, err)
	assert.NotContains(t, resultIDs(results), "p-1")

	e.src.SetStatus("a-1", "draft")
	results, err = e.svc.Search(ctx, "red shoes", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a-2", "p-2"}, resultIDs(results), "stale record is dropped at query time")
}

func TestSearchGrouped(t *testing.T) {
	e := newEnv(t)
	settings := domain.DefaultSettings()
	settings.ResultsPerType = 1

	grouped, err := e.svc.SearchGrouped(context.Background(), "shoes", &settings)
	require.NoError(t, err)
	require.Len(t, grouped.Products, 1)
	require.Len(t, grouped.Articles, 1)
	assert.Equal(t, 2, grouped.Total)
	assert.Equal(t, domain.ContentProduct, grouped.Products[0].Type)
	assert.Equal(t, domain.ContentArticle, grouped.Articles[0].Type)
	assert.True(t, e.tracker.events[0].Grouped)
}

func TestSearchGrouped_DisabledType(t *testing.T) {
	e := newEnv(t)
	settings := domain.DefaultSettings()
	settings.SearchArticles = false

	grouped, err := e.svc.SearchGrouped(context.Background(), "shoes", &settings)
	require.NoError(t, err)
	assert.Empty(t, grouped.Articles)
	assert.NotNil(t, grouped.Articles)
	assert.Len(t, grouped.Products, 2)
}

func TestSearch_UsesCache(t *testing.T) {
	c := &mapCache{entries: map[string]*executor.Ranking{}}
	e := newEnv(t, WithCache(c))
	ctx := context.Background()

	_, err := e.svc.Search(ctx, "red shoes", nil)
	require.NoError(t, err)
	_, err = e.svc.Search(ctx, "  RED shoes ", nil)
	require.NoError(t, err)

	require.Len(t, e.tracker.events, 2)
	assert.False(t, e.tracker.events[0].CacheHit)
	assert.True(t, e.tracker.events[1].CacheHit)
	assert.InDelta(t, 2, testutil.ToFloat64(e.metrics.SearchQueriesTotal.WithLabelValues("ok")), 0)
}

func scoreOf(t *testing.T, results []domain.ScoredResult, id string) float64 {
	t.Helper()
	for _, r := range results {
		if r.ID == id {
			return r.Score
		}
	}
	t.Fatalf("%s not in results %v", id, resultIDs(results))
	return 0
}

func TestSearch_RedisCacheKeepsInnerWhitespace(t *testing.T) {
	e := newEnv(t, WithCache(newRedisCache(t)))
	ctx := context.Background()

	results, err := e.svc.Search(ctx, "red shoes", nil)
	require.NoError(t, err)
	assert.Equal(t, float64(100), scoreOf(t, results, "p-1"))

	results, err = e.svc.Search(ctx, "red  shoes", nil)
	require.NoError(t, err)
	assert.Less(t, scoreOf(t, results, "p-1"), float64(100), "double space is not the exact title")
	require.Len(t, e.tracker.events, 2)
	assert.False(t, e.tracker.events[1].CacheHit)

	_, err = e.svc.Search(ctx, "  RED shoes ", nil)
	require.NoError(t, err)
	assert.True(t, e.tracker.events[2].CacheHit)
}

func TestSearch_CachedRankingIsRecheckedLive(t *testing.T) {
	e := newEnv(t, WithCache(newRedisCache(t)))
	ctx := context.Background()

	results, err := e.svc.Search(ctx, "red shoes", nil)
	require.NoError(t, err)
	require.Contains(t, resultIDs(results), "p-1")

	// Unpublished in the CMS with no lifecycle event reaching the indexer.
	e.src.SetStatus("p-1", "draft")
	results, err = e.svc.Search(ctx, "red shoes", nil)
	require.NoError(t, err)
	assert.NotContains(t, resultIDs(results), "p-1")
	require.Len(t, e.tracker.events, 2)
	assert.True(t, e.tracker.events[1].CacheHit)
}

func TestSearch_TwoCharacterExactTitle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.src.Put(&domain.RawItem{ID: "a-3", Type: "post", Status: domain.StatusPublished, Title: "TV", Content: "Screens"})
	_, err := e.engine.OnPublish(ctx, "a-3")
	require.NoError(t, err)

	results, err := e.svc.Search(ctx, "TV", nil)
	require.NoError(t, err)
	require.NotEmpty(t, results, "default MinChars does not raise the core floor")
	assert.Equal(t, "a-3", results[0].ID)
	assert.Equal(t, float64(100), results[0].Score)
}

type failingExecutor struct{}

func (failingExecutor) Rank(context.Context, *parser.QueryPlan, domain.Settings) (*executor.Ranking, error) {
	return nil, apperrors.Storage("query candidates", errors.New("connection reset"))
}

func (failingExecutor) Resolve(context.Context, *executor.Ranking, domain.Settings) (*executor.SearchResult, error) {
	return nil, errors.New("resolve called after failed rank")
}

func TestSearch_StorageErrorSurfaces(t *testing.T) {
	svc := NewService(failingExecutor{}, domain.DefaultSettings())
	_, err := svc.Search(context.Background(), "red shoes", nil)
	assert.ErrorIs(t, err, apperrors.ErrStorage)

	_, err = svc.SearchGrouped(context.Background(), "red shoes", nil)
	assert.ErrorIs(t, err, apperrors.ErrStorage)
}
