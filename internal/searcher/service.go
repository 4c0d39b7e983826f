// Package searcher is the query entry point: it resolves settings, runs the
// executor through the optional result cache and reports search analytics.
package searcher

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/domain"
	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/metrics"
)

// SearchExecutor ranks from the index and resolves rankings against the
// live source; *executor.Executor satisfies it.
type SearchExecutor interface {
	Rank(ctx context.Context, plan *parser.QueryPlan, settings domain.Settings) (*executor.Ranking, error)
	Resolve(ctx context.Context, ranking *executor.Ranking, settings domain.Settings) (*executor.SearchResult, error)
}

// RankingCache is satisfied by *cache.QueryCache.
type RankingCache interface {
	GetOrCompute(ctx context.Context, query string, settings domain.Settings, computeFn func() (*executor.Ranking, error)) (*executor.Ranking, bool, error)
}

type EventTracker interface {
	Track(event any)
}

type Service struct {
	executor SearchExecutor
	cache    RankingCache
	tracker  EventTracker
	defaults atomic.Pointer[domain.Settings]
	metrics  *metrics.Metrics
}

type Option func(*Service)

func WithCache(c RankingCache) Option {
	return func(s *Service) { s.cache = c }
}

func WithEventTracker(t EventTracker) Option {
	return func(s *Service) { s.tracker = t }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService builds a Service whose nil-settings searches use defaults.
func NewService(exec SearchExecutor, defaults domain.Settings, opts ...Option) *Service {
	s := &Service{executor: exec}
	s.SetDefaults(defaults)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Defaults() domain.Settings {
	return *s.defaults.Load()
}

// SetDefaults replaces the settings used by searches that pass none.
func (s *Service) SetDefaults(defaults domain.Settings) {
	s.defaults.Store(&defaults)
}

// Search returns up to MaxResults live results for query. Short queries,
// invalid settings and settings with no enabled content type give an empty
// slice and no error; only storage and source failures are returned.
func (s *Service) Search(ctx context.Context, query string, settings *domain.Settings) ([]domain.ScoredResult, error) {
	start := time.Now()
	plan := parser.Parse(query)
	resolved, ok := s.resolve(ctx, settings)
	if !ok {
		s.observe("invalid_settings", "none", 0, start)
		return []domain.ScoredResult{}, nil
	}

	result, hit, err := s.execute(ctx, plan, resolved)
	if err != nil {
		s.observe("error", cacheStatus(s.cache, hit), 0, start)
		logger.FromContext(ctx).Error("search failed", "query", plan.Query, "error", err)
		return nil, err
	}
	s.finish(ctx, plan, result.Results, false, hit, start)
	return result.Results, nil
}

// SearchGrouped runs one search per enabled content type, each capped at
// ResultsPerType (MaxResults when ResultsPerType is zero), so neither type
// can crowd the other out.
func (s *Service) SearchGrouped(ctx context.Context, query string, settings *domain.Settings) (*domain.GroupedResults, error) {
	start := time.Now()
	plan := parser.Parse(query)
	grouped := &domain.GroupedResults{
		Products: []domain.ScoredResult{},
		Articles: []domain.ScoredResult{},
	}
	resolved, ok := s.resolve(ctx, settings)
	if !ok {
		s.observe("invalid_settings", "none", 0, start)
		return grouped, nil
	}

	types := resolved.EnabledTypes()
	results := make([][]domain.ScoredResult, len(types))
	cached := make([]bool, len(types))

	g, gctx := errgroup.WithContext(ctx)
	for i, ct := range types {
		narrowed := narrow(resolved, ct)
		g.Go(func() error {
			res, hit, err := s.execute(gctx, plan, narrowed)
			if err != nil {
				return err
			}
			results[i], cached[i] = res.Results, hit
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.observe("error", cacheStatus(s.cache, false), 0, start)
		return nil, err
	}

	allHit := len(types) > 0
	for i, ct := range types {
		allHit = allHit && cached[i]
		if ct == domain.ContentProduct {
			grouped.Products = results[i]
		} else {
			grouped.Articles = results[i]
		}
	}
	grouped.Total = len(grouped.Products) + len(grouped.Articles)

	all := append(append([]domain.ScoredResult{}, grouped.Products...), grouped.Articles...)
	s.finish(ctx, plan, all, true, allHit, start)
	return grouped, nil
}

// narrow restricts settings to one content type with the per-type cap.
func narrow(settings domain.Settings, ct domain.ContentType) domain.Settings {
	settings.SearchProducts = ct == domain.ContentProduct
	settings.SearchArticles = ct == domain.ContentArticle
	if settings.ResultsPerType > 0 {
		settings.MaxResults = settings.ResultsPerType
	}
	return settings
}

func (s *Service) resolve(ctx context.Context, settings *domain.Settings) (domain.Settings, bool) {
	if settings == nil {
		return s.Defaults(), true
	}
	if err := config.Validate(settings); err != nil {
		logger.FromContext(ctx).Warn("search settings rejected", "error", err)
		return domain.Settings{}, false
	}
	return *settings, true
}

// execute ranks through the cache when one is configured; resolution
// against the live source always runs.
func (s *Service) execute(ctx context.Context, plan *parser.QueryPlan, settings domain.Settings) (*executor.SearchResult, bool, error) {
	ranking, hit, err := s.rank(ctx, plan, settings)
	if err != nil {
		return nil, hit, err
	}
	result, err := s.executor.Resolve(ctx, ranking, settings)
	return result, hit, err
}

func (s *Service) rank(ctx context.Context, plan *parser.QueryPlan, settings domain.Settings) (*executor.Ranking, bool, error) {
	if s.cache == nil || plan.TooShort(domain.MinQueryLength) || len(settings.EnabledTypes()) == 0 {
		ranking, err := s.executor.Rank(ctx, plan, settings)
		return ranking, false, err
	}
	return s.cache.GetOrCompute(ctx, plan.CacheKey(), settings, func() (*executor.Ranking, error) {
		// Rankings outlive the request that computed them.
		return s.executor.Rank(context.WithoutCancel(ctx), plan, settings)
	})
}

func (s *Service) finish(ctx context.Context, plan *parser.QueryPlan, results []domain.ScoredResult, grouped, hit bool, start time.Time) {
	latency := time.Since(start)
	outcome := "ok"
	eventType := analytics.EventSearch
	if len(results) == 0 {
		outcome = "empty"
		eventType = analytics.EventZeroResult
	}
	s.observe(outcome, cacheStatus(s.cache, hit), len(results), start)

	logger.FromContext(ctx).Info("search completed",
		"query", plan.Query,
		"returned", len(results),
		"grouped", grouped,
		"cache_hit", hit,
		"latency_ms", latency.Milliseconds(),
	)
	if s.tracker != nil && len(plan.Words) > 0 {
		s.tracker.Track(analytics.SearchEvent{
			Type:      eventType,
			Query:     plan.Query,
			Words:     plan.Words,
			Returned:  len(results),
			Grouped:   grouped,
			LatencyMs: latency.Milliseconds(),
			CacheHit:  hit,
			Timestamp: time.Now().UTC(),
			RequestID: logger.RequestIDFrom(ctx),
		})
	}
}

func (s *Service) observe(outcome, status string, returned int, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.SearchQueriesTotal.WithLabelValues(outcome).Inc()
	s.metrics.SearchLatency.WithLabelValues(status).Observe(time.Since(start).Seconds())
	if outcome == "ok" || outcome == "empty" {
		s.metrics.SearchResultsCount.Observe(float64(returned))
	}
}

func cacheStatus(c RankingCache, hit bool) string {
	switch {
	case c == nil:
		return "disabled"
	case hit:
		return "hit"
	default:
		return "miss"
	}
}
