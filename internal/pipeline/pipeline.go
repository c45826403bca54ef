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

// Package pipeline is the top-level ingestion control loop. Each batch
// processes every active route: resolve configuration and credential, list
// unread messages, and for each message run dedupe → extract → gate →
// persist → mark read. Failures are isolated per message and per route; a
// batch always completes with counts.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/shortlisted/ingestion/internal/gate"
	"github.com/shortlisted/ingestion/internal/gmail"
	"github.com/shortlisted/ingestion/internal/models"
	"github.com/shortlisted/ingestion/internal/queue"
	"github.com/shortlisted/ingestion/internal/routecfg"
	"github.com/shortlisted/ingestion/internal/store"
	"github.com/shortlisted/ingestion/internal/token"
)

// defaultTZ buckets days for routes that never set a timezone.
const defaultTZ = "Africa/Johannesburg"

// Store is the persistence contract the pipeline needs. Implemented by
// store.Store.
type Store interface {
	ListActiveRoutes(ctx context.Context) ([]models.Route, error)
	GetCredential(ctx context.Context, credentialID string) (*models.Credential, error)
	CandidateExists(ctx context.Context, messageID string) (bool, error)
	InsertCandidate(ctx context.Context, rec *models.CandidateRecord) error
}

// TokenResolver resolves a valid access token for a credential source.
// Implemented by token.Manager.
type TokenResolver interface {
	AccessToken(ctx context.Context, src token.Source) (string, error)
}

// Mailbox is the message transport contract. Implemented by gmail.Client.
type Mailbox interface {
	ListUnread(ctx context.Context, accessToken, address string) ([]gmail.MessageRef, error)
	FetchMessage(ctx context.Context, accessToken, messageID string) (*gmail.Message, error)
	MarkRead(ctx context.Context, accessToken, messageID string) error
}

// Extractor is the AI extraction contract. Implemented by extract.Extractor.
type Extractor interface {
	Extract(ctx context.Context, body, prompt, schema string) (models.Extraction, error)
}

// SeenFilter is the optional Redis fast-path dedupe. Implemented by
// dedup.Filter.
type SeenFilter interface {
	IsNew(ctx context.Context, messageID string) (bool, error)
}

// Publisher is the optional downstream event sink. Implemented by
// queue.Publisher.
type Publisher interface {
	PublishCandidate(ctx context.Context, event queue.CandidateEvent) error
}

// Result summarises one completed batch.
type Result struct {
	Routes    int
	Processed int
}

// Runner executes ingestion batches.
type Runner struct {
	store     Store
	tokens    TokenResolver
	mailbox   Mailbox
	extractor Extractor
	dedup     SeenFilter // may be nil
	publisher Publisher  // may be nil
	workers   int
	now       func() time.Time
}

// RunnerConfig holds the dependencies for a Runner.
type RunnerConfig struct {
	Store     Store
	Tokens    TokenResolver
	Mailbox   Mailbox
	Extractor Extractor
	Dedup     SeenFilter // optional
	Publisher Publisher  // optional
	Workers   int        // bounded route concurrency; defaults to 4
}

// NewRunner creates a batch runner.
func NewRunner(cfg RunnerConfig) *Runner {
	workers := cfg.Workers
	if workers < 1 {
		workers = 4
	}
	return &Runner{
		store:     cfg.Store,
		tokens:    cfg.Tokens,
		mailbox:   cfg.Mailbox,
		extractor: cfg.Extractor,
		dedup:     cfg.Dedup,
		publisher: cfg.Publisher,
		workers:   workers,
		now:       time.Now,
	}
}

// Run processes one batch to completion. Routes run concurrently up to the
// worker bound; messages within a route run in order. Per-item failures
// never fail the batch — the only error path is being unable to list routes
// at all.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	start := r.now()

	routes, err := r.store.ListActiveRoutes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active routes: %w", err)
	}

	if len(routes) == 0 {
		slog.Info("no active routes")
		return &Result{}, nil
	}

	var (
		g         errgroup.Group
		mu        sync.Mutex
		processed int
	)
	g.SetLimit(r.workers)

	for _, route := range routes {
		route := route
		g.Go(func() error {
			n := r.processRoute(ctx, route)
			mu.Lock()
			processed += n
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	result := &Result{Routes: len(routes), Processed: processed}
	slog.Info("batch complete",
		"routes", result.Routes,
		"processed", result.Processed,
		"elapsed", time.Since(start),
	)
	return result, nil
}

// processRoute handles one route and returns how many candidates it
// persisted. Route-level failures are logged and swallowed so sibling
// routes keep going.
func (r *Runner) processRoute(ctx context.Context, route models.Route) int {
	if ctx.Err() != nil {
		return 0
	}

	resolved := routecfg.Resolve(route)
	log := slog.With("route", route.ID, "mailbox", route.SourceEmail, "vertical", resolved.Vertical)
	log.Info("processing route")

	src, err := r.credentialSource(ctx, route)
	if err != nil {
		log.Error("failed to resolve credential, skipping route", "error", err)
		return 0
	}

	accessToken, err := r.tokens.AccessToken(ctx, src)
	if err != nil {
		log.Error("credential refresh failed, skipping route", "error", err)
		return 0
	}

	refs, err := r.mailbox.ListUnread(ctx, accessToken, route.SourceEmail)
	if err != nil {
		log.Error("failed to list unread messages, skipping route", "error", err)
		return 0
	}
	log.Info("unread messages", "count", len(refs))

	processed := 0
	for _, ref := range refs {
		if ctx.Err() != nil {
			break
		}
		if r.ProcessMessage(ctx, accessToken, route, resolved, ref) {
			processed++
		}
	}
	return processed
}

// credentialSource resolves the route's credential variant: its own stored
// credential when one is referenced, else the shared legacy secret.
func (r *Runner) credentialSource(ctx context.Context, route models.Route) (token.Source, error) {
	if route.CredentialID == nil || *route.CredentialID == "" {
		return token.Source{Kind: token.KindShared}, nil
	}
	cred, err := r.store.GetCredential(ctx, *route.CredentialID)
	if err != nil {
		return token.Source{}, err
	}
	if cred == nil {
		return token.Source{}, fmt.Errorf("credential %s not found", *route.CredentialID)
	}
	return token.Source{Kind: token.KindTenant, Credential: cred}, nil
}

// ProcessMessage runs the full per-message path and reports whether a new
// candidate record was persisted. Exported for the backfill command, which
// feeds it refs from a wider listing than the unread query.
func (r *Runner) ProcessMessage(ctx context.Context, accessToken string, route models.Route, resolved routecfg.Resolved, ref gmail.MessageRef) bool {
	log := slog.With("route", route.ID, "message_id", ref.ID)

	msg, err := r.mailbox.FetchMessage(ctx, accessToken, ref.ID)
	if err != nil {
		// Left unread so the next batch retries the fetch
		log.Error("fetch failed, skipping message", "error", err)
		return false
	}

	body := gmail.ExtractBody(msg)
	if strings.TrimSpace(body) == "" {
		log.Info("empty body, marking read")
		r.markRead(ctx, accessToken, ref.ID, log)
		return false
	}

	// Fast-path dedupe hint; Redis trouble falls through to the Postgres
	// check, which stays the correctness guarantee
	seen := false
	if r.dedup != nil {
		isNew, err := r.dedup.IsNew(ctx, ref.ID)
		if err != nil {
			log.Warn("dedup check failed", "error", err)
		} else {
			seen = !isNew
		}
	}

	exists, err := r.store.CandidateExists(ctx, ref.ID)
	if err != nil {
		log.Error("existence check failed, skipping message", "error", err)
		return false
	}
	if exists {
		log.Info("already processed, marking read")
		r.markRead(ctx, accessToken, ref.ID, log)
		return false
	}
	if seen {
		// The seen key was set but no record exists: a prior attempt died
		// between the SETNX and the insert. Reprocess rather than retire.
		log.Info("seen key without record, reprocessing")
	}

	extraction, err := r.extractor.Extract(ctx, body, resolved.Prompt, resolved.Schema)
	if err != nil {
		// Marked read, not retried: a second billed call against the same
		// content will not parse any better
		log.Error("extraction failed, marking read", "error", err)
		r.markRead(ctx, accessToken, ref.ID, log)
		return false
	}

	gateResult := gate.Apply(extraction, resolved.Rules)
	log.Info("gate decided", "action", gateResult.Action, "reason", gateResult.Reason)

	if ctx.Err() != nil {
		// Cancelled mid-message: leave unread, persist nothing
		return false
	}

	rec := r.buildRecord(route, resolved, msg, extraction, gateResult)

	processed := false
	switch insertErr := r.store.InsertCandidate(ctx, rec); {
	case insertErr == nil:
		processed = true
		log.Info("candidate persisted", "candidate", rec.CandidateName, "action", gateResult.Action)
		r.publish(ctx, rec, log)
	case errors.Is(insertErr, store.ErrDuplicate):
		log.Info("record already present for message")
	default:
		// Accepted data-loss risk: the message is still marked read below,
		// so this gap is only recoverable via backfill
		log.Error("insert failed, retained gap", "error", insertErr)
	}

	r.markRead(ctx, accessToken, ref.ID, log)
	return processed
}

// buildRecord assembles the candidate row from the extraction, gate
// outcome, and message provenance.
func (r *Runner) buildRecord(route models.Route, resolved routecfg.Resolved, msg *gmail.Message, extraction models.Extraction, gateResult models.GateResult) *models.CandidateRecord {
	u := extraction.Universal()
	now := r.now()

	rec := &models.CandidateRecord{
		ID:                 uuid.New().String(),
		CandidateName:      u.CandidateName,
		EmailAddress:       u.EmailAddress,
		ContactNumber:      u.ContactNumber,
		CurrentLocationRaw: u.CurrentLocationRaw,
		CountriesRaw:       u.CountriesRaw,
		RawAIScore:         u.RawAIScore,
		AINotes:            u.AINotes,
		RawExtraction:      extraction,
		Vertical:           resolved.Vertical,
		Gate:               gateResult,
		OrganizationID:     route.OrganizationID,
		UserID:             route.UserID,
		SourceEmail:        route.SourceEmail,
		CanonicalDay:       canonicalDay(route.InboxTZ, now),
		DateReceived:       now.UTC(),
		GmailMessageID:     msg.ID,
		GmailThreadID:      msg.ThreadID,
		EmailSubject:       msg.Header("Subject"),
		EmailFrom:          msg.Header("From"),
	}

	if resolved.Vertical == routecfg.DefaultVertical {
		rec.Teaching = teachingFields(extraction, u)
	}
	return rec
}

// teachingFields maps the extraction onto the legacy teaching columns.
// years_teaching_experience falls back to the universal years_experience
// when the model returned the latter.
func teachingFields(e models.Extraction, u models.Universal) *models.TeachingFields {
	years := u.YearsExperience
	if n, ok := e.Number("years_teaching_experience"); ok {
		years = n
	}
	return &models.TeachingFields{
		YearsTeachingExperience:  years,
		QualificationType:        e.String("qualification_type"),
		SubjectSpecialisation:    e.String("subject_specialisation"),
		UniversityAttended:       e.String("university_attended"),
		HasSACERegistration:      e.Bool("has_sace_registration"),
		HasEducationDegree:       e.Bool("has_education_degree"),
		HasRequiredQualification: e.HasRequiredQualification(),
	}
}

func (r *Runner) markRead(ctx context.Context, accessToken, messageID string, log *slog.Logger) {
	if err := r.mailbox.MarkRead(ctx, accessToken, messageID); err != nil {
		log.Warn("failed to mark message read", "error", err)
	}
}

func (r *Runner) publish(ctx context.Context, rec *models.CandidateRecord, log *slog.Logger) {
	if r.publisher == nil {
		return
	}
	event := queue.CandidateEvent{
		GmailMessageID: rec.GmailMessageID,
		OrganizationID: rec.OrganizationID,
		SourceEmail:    rec.SourceEmail,
		Vertical:       rec.Vertical,
		CandidateName:  rec.CandidateName,
		GateAction:     rec.Gate.Action,
		CanonicalDay:   rec.CanonicalDay,
	}
	if err := r.publisher.PublishCandidate(ctx, event); err != nil {
		log.Warn("failed to publish candidate event", "error", err)
	}
}

// canonicalDay buckets the receipt instant into the route's local calendar
// day.
func canonicalDay(tzID string, t time.Time) string {
	if tzID == "" {
		tzID = defaultTZ
	}
	loc, err := time.LoadLocation(tzID)
	if err != nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02")
}
