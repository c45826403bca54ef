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

// Shortlisted — Candidate Backfill Command
//
// Reprocesses a route's recent messages regardless of read state. The
// normal pipeline marks messages read even when the candidate insert
// failed, so a write outage leaves read-but-unrecorded messages behind;
// this command re-lists them and the idempotence key makes re-inserting
// the already-recorded ones a no-op.
//
// Usage:
//
//	go run ./cmd/backfill/ --route careers@school.example [--since 168h]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shortlisted/ingestion/internal/config"
	"github.com/shortlisted/ingestion/internal/extract"
	"github.com/shortlisted/ingestion/internal/gmail"
	"github.com/shortlisted/ingestion/internal/models"
	"github.com/shortlisted/ingestion/internal/pipeline"
	"github.com/shortlisted/ingestion/internal/routecfg"
	"github.com/shortlisted/ingestion/internal/store"
	"github.com/shortlisted/ingestion/internal/token"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	routeFlag := flag.String("route", "", "Source email of the route to backfill (required)")
	sinceFlag := flag.String("since", "168h", "Lookback duration (e.g. 168h for 1 week, 720h for 30 days)")
	flag.Parse()

	if *routeFlag == "" {
		fmt.Fprintf(os.Stderr, "Error: --route is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	sinceDuration, err := time.ParseDuration(*sinceFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid --since duration %q: %v\n", *sinceFlag, err)
		os.Exit(1)
	}

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

	st, err := store.New(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise store", "error", err)
		os.Exit(1)
	}

	// --- Find the route ---
	routes, err := st.ListActiveRoutes(ctx)
	if err != nil {
		slog.Error("failed to list routes", "error", err)
		os.Exit(1)
	}
	var route *models.Route
	for i := range routes {
		if strings.EqualFold(routes[i].SourceEmail, *routeFlag) {
			route = &routes[i]
			break
		}
	}
	if route == nil {
		slog.Error("no active route for mailbox", "mailbox", *routeFlag)
		os.Exit(1)
	}

	// --- Wire the per-message path ---
	// No Redis fast-path here: backfill must re-examine messages the
	// normal pipeline already marked seen, so only the Postgres checks
	// decide what to skip.
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	tokens := token.NewManager(token.ManagerConfig{
		ClientID:           cfg.GoogleClientID,
		ClientSecret:       cfg.GoogleClientSecret,
		SharedRefreshToken: cfg.SharedRefreshToken,
		Store:              st,
		HTTPClient:         httpClient,
	})

	mailbox := gmail.NewClient(httpClient, "")

	runner := pipeline.NewRunner(pipeline.RunnerConfig{
		Store:     st,
		Tokens:    tokens,
		Mailbox:   mailbox,
		Extractor: extract.New(httpClient, "", cfg.AnthropicAPIKey, cfg.AnthropicModel),
	})

	// --- Resolve credential and list the window ---
	resolved := routecfg.Resolve(*route)

	src := token.Source{Kind: token.KindShared}
	if route.CredentialID != nil && *route.CredentialID != "" {
		cred, err := st.GetCredential(ctx, *route.CredentialID)
		if err != nil || cred == nil {
			slog.Error("failed to load route credential", "error", err)
			os.Exit(1)
		}
		src = token.Source{Kind: token.KindTenant, Credential: cred}
	}

	accessToken, err := tokens.AccessToken(ctx, src)
	if err != nil {
		slog.Error("credential refresh failed", "error", err)
		os.Exit(1)
	}

	days := int(sinceDuration.Hours() / 24)
	refs, err := mailbox.ListSince(ctx, accessToken, route.SourceEmail, days)
	if err != nil {
		slog.Error("failed to list messages", "error", err)
		os.Exit(1)
	}

	slog.Info("starting backfill",
		"mailbox", route.SourceEmail,
		"since", sinceDuration,
		"messages", len(refs),
	)

	start := time.Now()
	processed := 0
	for _, ref := range refs {
		if ctx.Err() != nil {
			break
		}
		if runner.ProcessMessage(ctx, accessToken, *route, resolved, ref) {
			processed++
		}
	}

	slog.Info("backfill complete",
		"mailbox", route.SourceEmail,
		"messages", len(refs),
		"processed", processed,
		"elapsed", time.Since(start),
	)
}
