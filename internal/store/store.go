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

// Package store is the Postgres-backed persistence layer: active routes
// with their joined tenant/template configuration, mailbox credentials,
// and candidate records.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shortlisted/ingestion/internal/models"
)

// ErrDuplicate is returned by InsertCandidate when a record for the same
// message already exists. Benign: the idempotence key did its job.
var ErrDuplicate = errors.New("candidate already recorded for message")

// uniqueViolation is the Postgres error code for unique constraint hits.
const uniqueViolation = "23505"

// Store provides the pipeline's read/write contracts against Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a store backed by the given pool and ensures the candidates
// table (and its idempotence constraint) exists.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	slog.Info("candidate store initialised")
	return s, nil
}

// ensureSchema creates the tables this service writes to. The onboarding
// app owns organizations and vertical_templates; they are created here too
// so a fresh development database works end to end.
func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS vertical_templates (
			id                   TEXT PRIMARY KEY,
			name                 TEXT NOT NULL,
			ai_system_prompt     TEXT,
			ai_extraction_schema TEXT,
			gate_rules           JSONB
		);
		CREATE TABLE IF NOT EXISTS organizations (
			id                   TEXT PRIMARY KEY,
			vertical_id          TEXT REFERENCES vertical_templates(id),
			ai_prompt_override   TEXT,
			ai_schema_override   TEXT,
			gate_rules_override  JSONB
		);
		CREATE TABLE IF NOT EXISTS org_gmail_tokens (
			id               TEXT PRIMARY KEY,
			refresh_token    TEXT NOT NULL,
			access_token     TEXT,
			token_expires_at TIMESTAMPTZ,
			updated_at       TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS inbound_email_routes (
			id              TEXT PRIMARY KEY,
			source_email    TEXT NOT NULL,
			user_id         TEXT NOT NULL,
			organization_id TEXT NOT NULL,
			inbox_tz_id     TEXT DEFAULT '',
			gmail_token_id  TEXT REFERENCES org_gmail_tokens(id),
			is_active       BOOLEAN DEFAULT TRUE,
			created_at      TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_routes_active_email
			ON inbound_email_routes(source_email) WHERE is_active;
		CREATE TABLE IF NOT EXISTS candidates (
			id                         TEXT PRIMARY KEY,
			candidate_name             TEXT NOT NULL,
			email_address              TEXT,
			contact_number             TEXT,
			current_location_raw       TEXT,
			countries_raw              TEXT[],
			raw_ai_score               DOUBLE PRECISION DEFAULT 0,
			ai_notes                   TEXT,
			raw_extraction             JSONB NOT NULL,
			vertical                   TEXT NOT NULL,
			qualification_gate_pass    BOOLEAN NOT NULL,
			qualification_gate_action  TEXT NOT NULL,
			qualification_gate_reason  TEXT NOT NULL,
			qualification_gate_flags   TEXT[],
			organization_id            TEXT NOT NULL,
			user_id                    TEXT NOT NULL,
			source_email               TEXT NOT NULL,
			canonical_day              TEXT NOT NULL,
			date_received              TIMESTAMPTZ NOT NULL,
			gmail_message_id           TEXT NOT NULL UNIQUE,
			gmail_thread_id            TEXT,
			email_subject              TEXT,
			email_from                 TEXT,
			years_teaching_experience  DOUBLE PRECISION,
			qualification_type         TEXT,
			subject_specialisation     TEXT,
			university_attended        TEXT,
			has_sace_registration      BOOLEAN,
			has_education_degree       BOOLEAN,
			has_required_qualification BOOLEAN,
			created_at                 TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_candidates_org ON candidates(organization_id);
		CREATE INDEX IF NOT EXISTS idx_candidates_day ON candidates(canonical_day);
	`)
	return err
}

// ListActiveRoutes returns every active route with its joined organization
// and vertical-template configuration.
func (s *Store) ListActiveRoutes(ctx context.Context) ([]models.Route, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.id, r.source_email, r.user_id, r.organization_id,
		       r.inbox_tz_id, r.gmail_token_id,
		       vt.name, vt.ai_system_prompt, vt.ai_extraction_schema, vt.gate_rules,
		       o.ai_prompt_override, o.ai_schema_override, o.gate_rules_override
		FROM inbound_email_routes r
		LEFT JOIN organizations o ON o.id = r.organization_id
		LEFT JOIN vertical_templates vt ON vt.id = o.vertical_id
		WHERE r.is_active = TRUE
		ORDER BY r.source_email
	`)
	if err != nil {
		return nil, fmt.Errorf("list active routes: %w", err)
	}
	defer rows.Close()

	var routes []models.Route
	for rows.Next() {
		var (
			r                        models.Route
			templateRules, overrides []byte
		)
		if err := rows.Scan(
			&r.ID, &r.SourceEmail, &r.UserID, &r.OrganizationID,
			&r.InboxTZ, &r.CredentialID,
			&r.VerticalName, &r.TemplatePrompt, &r.TemplateSchema, &templateRules,
			&r.PromptOverride, &r.SchemaOverride, &overrides,
		); err != nil {
			return nil, fmt.Errorf("scan route: %w", err)
		}
		if r.TemplateRules, err = decodeRules(templateRules); err != nil {
			return nil, fmt.Errorf("route %s template gate_rules: %w", r.ID, err)
		}
		if r.RulesOverride, err = decodeRules(overrides); err != nil {
			return nil, fmt.Errorf("route %s gate_rules_override: %w", r.ID, err)
		}
		routes = append(routes, r)
	}
	return routes, rows.Err()
}

// decodeRules unmarshals a nullable JSONB column into gate rules.
func decodeRules(raw []byte) (*models.GateRules, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var rules models.GateRules
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, err
	}
	return &rules, nil
}

// GetCredential loads a stored mailbox credential.
func (s *Store) GetCredential(ctx context.Context, credentialID string) (*models.Credential, error) {
	var c models.Credential
	err := s.pool.QueryRow(ctx, `
		SELECT id, refresh_token, access_token, token_expires_at
		FROM org_gmail_tokens
		WHERE id = $1
	`, credentialID).Scan(&c.ID, &c.RefreshToken, &c.AccessToken, &c.TokenExpiresAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential %s: %w", credentialID, err)
	}
	return &c, nil
}

// UpdateCredentialToken persists a refreshed access token and expiry. The
// refresh token column is never touched.
func (s *Store) UpdateCredentialToken(ctx context.Context, credentialID, accessToken string, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE org_gmail_tokens
		SET access_token = $1, token_expires_at = $2, updated_at = NOW()
		WHERE id = $3
	`, accessToken, expiresAt, credentialID)
	return err
}

// CandidateExists reports whether a candidate record already exists for the
// given message.
func (s *Store) CandidateExists(ctx context.Context, messageID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM candidates WHERE gmail_message_id = $1)
	`, messageID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("candidate exists check: %w", err)
	}
	return exists, nil
}

// InsertCandidate persists a candidate record. A unique violation on the
// message ID returns ErrDuplicate.
func (s *Store) InsertCandidate(ctx context.Context, rec *models.CandidateRecord) error {
	rawExtraction, err := json.Marshal(rec.RawExtraction)
	if err != nil {
		return fmt.Errorf("marshal raw extraction: %w", err)
	}

	var (
		yearsTeaching                 *float64
		qualType, subject, university *string
		sace, eduDegree, requiredQual *bool
	)
	if t := rec.Teaching; t != nil {
		yearsTeaching = &t.YearsTeachingExperience
		qualType = &t.QualificationType
		subject = &t.SubjectSpecialisation
		university = &t.UniversityAttended
		sace = &t.HasSACERegistration
		eduDegree = &t.HasEducationDegree
		requiredQual = &t.HasRequiredQualification
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO candidates (
			id, candidate_name, email_address, contact_number,
			current_location_raw, countries_raw, raw_ai_score, ai_notes,
			raw_extraction, vertical,
			qualification_gate_pass, qualification_gate_action,
			qualification_gate_reason, qualification_gate_flags,
			organization_id, user_id, source_email,
			canonical_day, date_received,
			gmail_message_id, gmail_thread_id, email_subject, email_from,
			years_teaching_experience, qualification_type,
			subject_specialisation, university_attended,
			has_sace_registration, has_education_degree,
			has_required_qualification
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
			$21, $22, $23, $24, $25, $26, $27, $28, $29, $30
		)
	`,
		rec.ID, rec.CandidateName, rec.EmailAddress, rec.ContactNumber,
		rec.CurrentLocationRaw, rec.CountriesRaw, rec.RawAIScore, rec.AINotes,
		rawExtraction, rec.Vertical,
		rec.Gate.Pass, rec.Gate.Action, rec.Gate.Reason, rec.Gate.Flags,
		rec.OrganizationID, rec.UserID, rec.SourceEmail,
		rec.CanonicalDay, rec.DateReceived,
		rec.GmailMessageID, rec.GmailThreadID, rec.EmailSubject, rec.EmailFrom,
		yearsTeaching, qualType, subject, university,
		sace, eduDegree, requiredQual,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicate
		}
		return fmt.Errorf("insert candidate: %w", err)
	}
	return nil
}
