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

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the ingestion pipeline.
type Config struct {
	// Postgres
	DatabaseURL string

	// Redis
	RedisURL        string
	CandidatesQueue string

	// Google OAuth client used for every mailbox refresh exchange
	GoogleClientID     string
	GoogleClientSecret string

	// Legacy single-tenant fallback: a shared refresh token used by routes
	// that have no credential of their own.
	SharedRefreshToken string

	// AI extraction backend
	AnthropicAPIKey string
	AnthropicModel  string

	// Batch behaviour
	RouteWorkers int
	HTTPTimeout  time.Duration
	PollInterval time.Duration // 0 = run a single batch and exit
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Candidates string `yaml:"candidates"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	Google struct {
		ClientID           string `yaml:"client_id"`
		ClientSecret       string `yaml:"client_secret"`
		SharedRefreshToken string `yaml:"shared_refresh_token"`
	} `yaml:"google"`
	Anthropic struct {
		APIKey string `yaml:"api_key"`
		Model  string `yaml:"model"`
	} `yaml:"anthropic"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables. The YAML file is optional; every setting has an
// environment fallback. Missing mandatory settings are a batch-fatal error —
// nothing can proceed without them.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "config.yaml")

	var raw rawConfig
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	case os.IsNotExist(err):
		// Env-only mode
	default:
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	cfg := &Config{
		DatabaseURL:        firstNonEmpty(raw.Database.URL, os.Getenv("DATABASE_URL")),
		RedisURL:           firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		CandidatesQueue:    firstNonEmpty(raw.Redis.Queues.Candidates, envOrDefault("CANDIDATES_QUEUE", "candidates")),
		GoogleClientID:     firstNonEmpty(raw.Google.ClientID, os.Getenv("GMAIL_CLIENT_ID")),
		GoogleClientSecret: firstNonEmpty(raw.Google.ClientSecret, os.Getenv("GMAIL_CLIENT_SECRET")),
		SharedRefreshToken: firstNonEmpty(raw.Google.SharedRefreshToken, os.Getenv("GMAIL_REFRESH_TOKEN")),
		AnthropicAPIKey:    firstNonEmpty(raw.Anthropic.APIKey, os.Getenv("ANTHROPIC_API_KEY")),
		AnthropicModel:     firstNonEmpty(raw.Anthropic.Model, envOrDefault("ANTHROPIC_MODEL", "claude-sonnet-4-5")),
		RouteWorkers:       envOrDefaultInt("ROUTE_WORKERS", 4),
		HTTPTimeout:        envOrDefaultDuration("HTTP_TIMEOUT", 60*time.Second),
		PollInterval:       envOrDefaultDuration("POLL_INTERVAL", 0),
	}

	var missing []string
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if cfg.GoogleClientID == "" {
		missing = append(missing, "GMAIL_CLIENT_ID")
	}
	if cfg.GoogleClientSecret == "" {
		missing = append(missing, "GMAIL_CLIENT_SECRET")
	}
	if cfg.AnthropicAPIKey == "" {
		missing = append(missing, "ANTHROPIC_API_KEY")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if cfg.RouteWorkers < 1 {
		cfg.RouteWorkers = 1
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
