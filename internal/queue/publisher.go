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

// Package queue publishes candidate-processed events to a Redis list for
// downstream consumers (dashboards, notifiers). Publishing is best-effort;
// the candidate record in Postgres is the source of truth.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// CandidateEvent announces one persisted candidate record.
type CandidateEvent struct {
	EventID        string `json:"event_id"`
	GmailMessageID string `json:"gmail_message_id"`
	OrganizationID string `json:"organization_id"`
	SourceEmail    string `json:"source_email"`
	Vertical       string `json:"vertical"`
	CandidateName  string `json:"candidate_name"`
	GateAction     string `json:"gate_action"`
	CanonicalDay   string `json:"canonical_day"`
	ProcessedAt    string `json:"processed_at"`
}

// Publisher sends candidate events to Redis.
type Publisher struct {
	rdb       *redis.Client
	queueName string
}

// NewPublisher creates a publisher targeting the specified queue.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
	}
}

// PublishCandidate serialises the event and pushes it onto the queue.
func (p *Publisher) PublishCandidate(ctx context.Context, event CandidateEvent) error {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.ProcessedAt == "" {
		event.ProcessedAt = time.Now().UTC().Format(time.RFC3339)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal candidate event: %w", err)
	}

	if err := p.rdb.LPush(ctx, p.queueName, payload).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Info("published candidate event",
		"event_id", event.EventID,
		"message_id", event.GmailMessageID,
		"org", event.OrganizationID,
		"action", event.GateAction,
		"queue", p.queueName,
	)

	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
