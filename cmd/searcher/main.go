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

	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/app"
	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/ratelimit"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	reindex := flag.Bool("reindex", false, "rebuild the index before serving")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"store", cfg.Store.Driver,
		"cache", cfg.Redis.Enabled,
		"kafka", cfg.Kafka.Enabled(),
	)

	a, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to build application", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	a.Start(ctx)

	if *reindex {
		n, err := a.Engine.ReindexAll(ctx)
		if err != nil {
			slog.Error("initial reindex incomplete", "indexed", n, "error", err)
		} else {
			slog.Info("initial reindex complete", "indexed", n)
		}
	}

	routerCfg := handler.RouterConfig{
		RequestTimeout: cfg.Server.RequestTimeout,
		Metrics:        a.Metrics,
		CORSOrigins:    cfg.Server.CORSOrigins,
	}
	if cfg.Server.RateLimit > 0 {
		limiter := ratelimit.New(cfg.Server.RateLimit, cfg.Server.RateWindow)
		go limiter.Run(ctx, cfg.Server.RateWindow)
		routerCfg.Limiter = limiter
	}
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port == 0 || cfg.Metrics.Port == cfg.Server.Port {
			routerCfg.Gatherer = a.Registry
		} else {
			shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, a.Registry)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				_ = shutdownMetrics(shutdownCtx)
			}()
		}
	}

	go reloadOnHangup(ctx, a, *configPath)

	var cacheAdmin handler.CacheAdmin
	if a.Cache != nil {
		cacheAdmin = a.Cache
	}
	h := handler.New(a.Search, a.Engine, cacheAdmin)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler.NewRouter(h, a.Health, routerCfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		a.Close()
		os.Exit(1)
	}
	// ListenAndServe returns as soon as Shutdown starts; in-flight handlers
	// still hold the collector until Shutdown finishes.
	<-shutdownDone

	slog.Info("search service stopped")
}

// reloadOnHangup re-reads the search settings from the config file on
// SIGHUP and reindexes under them.
func reloadOnHangup(ctx context.Context, a *app.App, configPath string) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			cfg, err := config.Load(configPath)
			if err != nil {
				slog.Error("settings reload failed", "error", err)
				continue
			}
			n, err := a.ApplySettings(ctx, cfg.Search)
			if err != nil {
				slog.Error("reindex after settings reload incomplete", "indexed", n, "error", err)
				continue
			}
			slog.Info("settings reloaded", "indexed", n)
		}
	}
}
