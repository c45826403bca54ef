// Copyright (c) 2026 Shortlisted
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Shortlisted — Candidate Ingestion Pipeline
//
// Headless batch entry point. It:
//  1. Loads configuration from config.yaml / environment
//  2. Connects to PostgreSQL and Redis
//  3. Runs one ingestion batch over all active routes
//  4. With POLL_INTERVAL set, keeps running batches on a ticker until
//     SIGTERM/SIGINT
//
// The batch exits 0 with processed/route counts even when individual
// messages or routes failed — per-item problems surface through logs only.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/shortlisted/ingestion/internal/config"
	"github.com/shortlisted/ingestion/internal/dedup"
	"github.com/shortlisted/ingestion/internal/extract"
	"github.com/shortlisted/ingestion/internal/gmail"
	"github.com/shortlisted/ingestion/internal/pipeline"
	"github.com/shortlisted/ingestion/internal/queue"
	"github.com/shortlisted/ingestion/internal/store"
	"github.com/shortlisted/ingestion/internal/token"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting candidate ingestion pipeline")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	if err := pgPool.Ping(ctx); err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to PostgreSQL")

	st, err := store.New(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise store", "error", err)
		os.Exit(1)
	}

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	publisher := queue.NewPublisher(rdb, cfg.CandidatesQueue)
	if err := publisher.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	// --- Wire the pipeline ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	tokens := token.NewManager(token.ManagerConfig{
		ClientID:           cfg.GoogleClientID,
		ClientSecret:       cfg.GoogleClientSecret,
		SharedRefreshToken: cfg.SharedRefreshToken,
		Store:              st,
		HTTPClient:         httpClient,
	})

	runner := pipeline.NewRunner(pipeline.RunnerConfig{
		Store:     st,
		Tokens:    tokens,
		Mailbox:   gmail.NewClient(httpClient, ""),
		Extractor: extract.New(httpClient, "", cfg.AnthropicAPIKey, cfg.AnthropicModel),
		Dedup:     dedup.NewFilter(rdb),
		Publisher: publisher,
		Workers:   cfg.RouteWorkers,
	})

	// --- Graceful Shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// --- Run ---
	if cfg.PollInterval > 0 {
		runLoop(ctx, runner, cfg.PollInterval)
	} else {
		runOnce(ctx, runner)
	}

	slog.Info("ingestion pipeline stopped")
}

// runOnce processes a single batch. Per-item failures are already logged
// and counted; only the inability to start at all is fatal.
func runOnce(ctx context.Context, runner *pipeline.Runner) {
	result, err := runner.Run(ctx)
	if err != nil {
		slog.Error("batch failed to start", "error", err)
		os.Exit(1)
	}
	slog.Info("batch finished", "routes", result.Routes, "processed", result.Processed)
}

// runLoop runs batches at the configured interval until cancelled.
func runLoop(ctx context.Context, runner *pipeline.Runner, interval time.Duration) {
	slog.Info("running in interval mode", "interval", interval)

	// Do an initial batch immediately
	if _, err := runner.Run(ctx); err != nil {
		slog.Error("batch failed to start", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := runner.Run(ctx); err != nil {
				slog.Error("batch failed to start", "error", err)
			}
		}
	}
}
