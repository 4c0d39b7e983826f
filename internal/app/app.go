// Package app assembles the indexer and searcher components from
// configuration so every binary wires them the same way.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sony/gobreaker/v2"

	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/domain"
	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/indexer/normalizer"
	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/source"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/unified-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/resilience"
)

type App struct {
	Config   *config.Config
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Health   *health.Checker

	Store  store.Store
	Source source.Source
	Engine *indexer.Engine
	Search *searcher.Service

	// Cache is nil when Redis is disabled or unreachable.
	Cache *cache.QueryCache

	collectors []*analytics.Collector
	closers    []func() error
	logger     *slog.Logger
}

// New builds every component named by cfg. On error, whatever was already
// opened is closed again.
func New(cfg *config.Config) (_ *App, err error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a := &App{
		Config:   cfg,
		Registry: reg,
		Metrics:  metrics.New(reg),
		Health:   health.NewChecker(),
		logger:   logger.WithComponent("app"),
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.Store, err = a.openStore(); err != nil {
		return nil, err
	}
	a.Health.Register("index_store", health.PingCheck(func(ctx context.Context) error {
		_, err := a.Store.Count(ctx)
		return err
	}))

	if a.Source, err = a.openSource(); err != nil {
		return nil, err
	}

	a.openCache()

	engineOpts := []indexer.Option{indexer.WithMetrics(a.Metrics)}
	searchOpts := []searcher.Option{searcher.WithMetrics(a.Metrics)}
	if a.Cache != nil {
		engineOpts = append(engineOpts, indexer.WithCacheInvalidator(a.Cache))
		searchOpts = append(searchOpts, searcher.WithCache(a.Cache))
	}
	if cfg.Kafka.Enabled() {
		engineOpts = append(engineOpts, indexer.WithEventTracker(a.newCollector(cfg.Kafka.Topics.IndexEvents)))
		searchOpts = append(searchOpts, searcher.WithEventTracker(a.newCollector(cfg.Kafka.Topics.AnalyticsEvents)))
	}

	var normOpts []normalizer.Option
	if resolver, ok := a.Source.(normalizer.TermResolver); ok {
		normOpts = append(normOpts, normalizer.WithTermResolver(resolver))
	}
	a.Engine = indexer.NewEngine(a.Store, a.Source, normalizer.New(normOpts...), cfg.Search, engineOpts...)

	exec := executor.New(a.Store, a.Source,
		executor.WithFetchTimeout(cfg.CMS.Timeout),
		executor.WithPlaceholders(cfg.CMS.ProductPlaceholder, cfg.CMS.ArticlePlaceholder),
		executor.WithMetrics(a.Metrics),
	)
	a.Search = searcher.NewService(exec, cfg.Search, searchOpts...)
	return a, nil
}

// ApplySettings validates settings, makes them the indexing policy and the
// search defaults, and rebuilds the index under them.
func (a *App) ApplySettings(ctx context.Context, settings domain.Settings) (int, error) {
	if err := config.Validate(&settings); err != nil {
		return 0, err
	}
	a.Engine.SetPolicy(settings)
	a.Search.SetDefaults(settings)
	a.logger.Info("search settings applied", "types", settings.EnabledTypes(), "max_results", settings.MaxResults)
	return a.Engine.ReindexAll(ctx)
}

// Start launches background publishers. They drain on Close.
func (a *App) Start(ctx context.Context) {
	for _, c := range a.collectors {
		c.Start(ctx)
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for _, c := range a.collectors {
		c.Close()
	}
	a.collectors = nil
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}

func (a *App) openStore() (store.Store, error) {
	switch a.Config.Store.Driver {
	case config.StorePostgres:
		client, err := postgres.New(a.Config.Postgres)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		st := store.NewPostgres(client.DB)
		if a.Config.Store.CreateSchema {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := st.EnsureSchema(ctx); err != nil {
				return nil, err
			}
		}
		a.logger.Info("postgres index store ready", "table", store.TableName)
		return st, nil
	case config.StoreMemory, "":
		a.logger.Info("in-memory index store ready")
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", a.Config.Store.Driver)
	}
}

func (a *App) openSource() (source.Source, error) {
	cms := a.Config.CMS
	if cms.BaseURL == "" {
		if cms.SeedFile == "" {
			a.logger.Warn("no cms configured, using an empty in-memory source")
			return source.NewMemory(), nil
		}
		return source.LoadMemoryFile(cms.SeedFile)
	}

	breaker := resilience.DefaultCircuitBreakerConfig()
	breaker.OnStateChange = func(name string, from, to gobreaker.State) {
		a.Metrics.CircuitBreakerState.WithLabelValues(name).Set(resilience.StateValue(to))
	}
	src, err := source.NewHTTP(source.HTTPConfig{
		BaseURL:       cms.BaseURL,
		Timeout:       cms.Timeout,
		RetryAttempts: cms.RetryAttempts,
		PageSize:      cms.PageSize,
		Breaker:       breaker,
	})
	if err != nil {
		return nil, err
	}
	a.Health.RegisterOptional("cms_breaker", func(context.Context) health.ComponentHealth {
		return breakerHealth(src.BreakerState())
	})
	return src, nil
}

func breakerHealth(state gobreaker.State) health.ComponentHealth {
	switch state {
	case gobreaker.StateOpen:
		return health.ComponentHealth{Status: health.StatusDown, Message: "circuit open"}
	case gobreaker.StateHalfOpen:
		return health.ComponentHealth{Status: health.StatusDegraded, Message: "circuit half-open"}
	default:
		return health.ComponentHealth{Status: health.StatusUp}
	}
}

// openCache leaves a.Cache nil when Redis is off or unreachable; search then
// runs uncached.
func (a *App) openCache() {
	if !a.Config.Redis.Enabled {
		return
	}
	client, err := pkgredis.NewClient(a.Config.Redis)
	if err != nil {
		a.logger.Warn("redis unavailable, search caching disabled", "error", err)
		return
	}
	a.closers = append(a.closers, client.Close)
	a.Cache = cache.New(client, a.Config.Redis.CacheTTL, a.Metrics)
	a.Health.RegisterOptional("redis", health.PingCheck(client.Ping))
	a.logger.Info("search cache enabled", "addr", a.Config.Redis.Addr, "ttl", a.Config.Redis.CacheTTL)
}

func (a *App) newCollector(topic string) *analytics.Collector {
	producer := kafka.NewProducer(a.Config.Kafka, topic)
	a.closers = append(a.closers, producer.Close)
	c := analytics.NewCollector(producer, analytics.CollectorConfig{Metrics: a.Metrics})
	a.collectors = append(a.collectors, c)
	return c
}

// ErrKafkaDisabled is returned by components that need a broker list.
var ErrKafkaDisabled = errors.New("kafka is not configured")
