package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/app"
	"github.com/Adithya-Monish-Kumar-K/unified-search/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	reindex := flag.Bool("reindex", false, "rebuild the index before consuming")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if !cfg.Kafka.Enabled() {
		slog.Error("indexer service cannot start", "error", app.ErrKafkaDisabled)
		os.Exit(1)
	}
	slog.Info("starting indexer service", "store", cfg.Store.Driver)

	a, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to build application", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	a.Start(ctx)

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, a.Registry)
		defer func() { _ = shutdownMetrics(context.Background()) }()
	}

	if *reindex {
		n, err := a.Engine.ReindexAll(ctx)
		if err != nil {
			slog.Error("initial reindex incomplete", "indexed", n, "error", err)
		} else {
			slog.Info("initial reindex complete", "indexed", n)
		}
	}

	kafkaConsumer := kafka.NewConsumer(
		cfg.Kafka,
		cfg.Kafka.Topics.ContentLifecycle,
		consumer.HandleMessage(a.Engine),
	)
	indexConsumer := consumer.New(kafkaConsumer)
	defer indexConsumer.Close()

	slog.Info("indexer service ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.ContentLifecycle,
		"group", cfg.Kafka.ConsumerGroup,
	)

	if err := indexConsumer.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	slog.Info("indexer service stopped")
}
