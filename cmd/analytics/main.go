// Command analytics consumes the search and index event topics, keeps
// running aggregates (top queries, zero-result queries, latency percentiles,
// index churn) and serves them at GET /api/v1/analytics. With the postgres
// store driver it also snapshots the aggregates periodically.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/analytics/snapshot"
	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/app"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if !cfg.Kafka.Enabled() {
		slog.Error("analytics service cannot start", "error", app.ErrKafkaDisabled)
		os.Exit(1)
	}
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	checker := health.NewChecker()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agg := analytics.NewAggregator(analytics.AggregatorConfig{TopN: cfg.Analytics.TopN, Metrics: m})

	var snapshots *snapshot.Store
	if cfg.Store.Driver == config.StorePostgres {
		pg, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		snapshots = snapshot.NewStore(pg.DB)
		if err := snapshots.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare snapshot table", "error", err)
			os.Exit(1)
		}
		checker.Register("postgres", health.PingCheck(pg.Ping))
	}

	kcfg := cfg.Kafka
	kcfg.ConsumerGroup = cfg.Analytics.ConsumerGroup
	topics := []string{kcfg.Topics.AnalyticsEvents, kcfg.Topics.IndexEvents}

	g, gctx := errgroup.WithContext(ctx)
	for _, topic := range topics {
		c := kafka.NewConsumer(kcfg, topic, analytics.HandleMessage(agg))
		defer c.Close()
		g.Go(func() error { return c.Start(gctx) })
	}
	if snapshots != nil {
		g.Go(func() error {
			snapshot.Run(gctx, snapshots, agg.Stats, cfg.Analytics.SnapshotInterval, m)
			return nil
		})
	}

	var lister analytics.SnapshotLister
	if snapshots != nil {
		lister = snapshots
	}
	var gatherer prometheus.Gatherer
	if cfg.Metrics.Enabled {
		gatherer = reg
	}
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      analytics.NewRouter(analytics.NewHandler(agg, lister), checker, m, gatherer),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		slog.Info("analytics service listening", "addr", server.Addr, "topics", topics)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("analytics service error", "error", err)
		os.Exit(1)
	}
	slog.Info("analytics service stopped")
}
