// Command indexer consumes ingest events from Kafka, builds posting records
// for each document and flushes them to segments on disk.
//
// Usage:
//
//	go run ./cmd/indexer [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nylar/kensaku/internal/docstore"
	"github.com/nylar/kensaku/internal/indexer"
	"github.com/nylar/kensaku/internal/indexer/consumer"
	"github.com/nylar/kensaku/internal/lookupcache"
	"github.com/nylar/kensaku/pkg/config"
	"github.com/nylar/kensaku/pkg/kafka"
	"github.com/nylar/kensaku/pkg/logger"
	"github.com/nylar/kensaku/pkg/metrics"
	"github.com/nylar/kensaku/pkg/postgres"
	"github.com/nylar/kensaku/pkg/redis"
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
	slog.Info("starting indexer",
		"data_dir", cfg.Indexer.DataDir,
		"duplicate_policy", cfg.Indexer.DuplicatePolicy,
		"position_unit", cfg.Indexer.PositionUnit,
	)

	m := metrics.New(prometheus.DefaultRegisterer)
	checks := make(map[string]metrics.ReadyCheck)

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	docs := docstore.NewPostgresStore(db)
	if err := docs.EnsureSchema(context.Background()); err != nil {
		slog.Error("failed to prepare document store", "error", err)
		os.Exit(1)
	}
	checks["postgres"] = db.Ping

	engine, err := indexer.NewEngine(cfg.Indexer, m)
	if err != nil {
		slog.Error("failed to create indexing engine", "error", err)
		os.Exit(1)
	}

	// Searchers read postings through the shared Redis cache, so commits
	// must drop the entries they make stale.
	if cfg.Redis.Enabled {
		rdb, err := redis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, lookup cache invalidation disabled", "error", err)
		} else {
			defer rdb.Close()
			checks["redis"] = rdb.Ping
			cache := lookupcache.New(rdb, engine, cfg.Redis.CacheTTL, m)
			engine.OnCommit(func(terms []string) {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				if err := cache.Invalidate(ctx, terms...); err != nil {
					slog.Warn("cache invalidation failed", "terms", len(terms), "error", err)
				}
			})
		}
	}

	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port, checks)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdown(ctx)
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	engine.StartFlushLoop(ctx)

	kafkaConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.IngestTopic, consumer.HandleMessage(engine, docs))
	slog.Info("indexer ready, consuming from kafka",
		"topic", cfg.Kafka.IngestTopic,
		"group", cfg.Kafka.ConsumerGroup,
	)
	if err := kafkaConsumer.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}
	if err := kafkaConsumer.Close(); err != nil {
		slog.Error("closing consumer", "error", err)
	}

	slog.Info("flushing index before shutdown")
	if err := engine.Close(); err != nil {
		slog.Error("final flush failed", "error", err)
	}
	slog.Info("indexer stopped")
}
