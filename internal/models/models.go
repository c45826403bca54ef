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

// Package models defines the data structures shared across the ingestion
// pipeline: routes, credentials, gate rules, and candidate records.
package models

import "time"

// Route is a configured mailbox-to-tenant binding. It carries the raw joined
// columns from organizations and vertical_templates; routecfg flattens them
// into an effective configuration.
type Route struct {
	ID             string
	SourceEmail    string
	UserID         string
	OrganizationID string
	InboxTZ        string
	CredentialID   *string

	// From vertical_templates (via the organizations join)
	VerticalName   *string
	TemplatePrompt *string
	TemplateSchema *string
	TemplateRules  *GateRules

	// Org-level overrides
	PromptOverride *string
	SchemaOverride *string
	RulesOverride  *GateRules
}

// Credential is a per-org OAuth token pair. RefreshToken is immutable once
// issued; AccessToken and TokenExpiresAt are rotated by the token manager.
type Credential struct {
	ID             string
	RefreshToken   string
	AccessToken    *string
	TokenExpiresAt *time.Time
}

// GateRule is a declarative condition evaluated against an extraction field.
type GateRule struct {
	Field  string `json:"field"`
	Op     string `json:"op"` // eq, ne, lt, lte, gt, gte
	Value  any    `json:"value"`
	Reason string `json:"reason"`
}

// GateRules partitions rules into hard (failing one rejects) and soft
// (matching one flags).
type GateRules struct {
	Hard []GateRule `json:"hard,omitempty"`
	Soft []GateRule `json:"soft,omitempty"`
}

// Gate actions.
const (
	ActionPass   = "pass"
	ActionFlag   = "flag"
	ActionReject = "reject"
)

// GateResult is the gate engine's decision for one extraction.
type GateResult struct {
	Pass   bool     `json:"pass"`
	Action string   `json:"action"`
	Reason string   `json:"reason"`
	Flags  []string `json:"flags"`
}

// TeachingFields are the legacy teaching-vertical columns, populated only
// when the resolved vertical is "teaching".
type TeachingFields struct {
	YearsTeachingExperience  float64
	QualificationType        string
	SubjectSpecialisation    string
	UniversityAttended       string
	HasSACERegistration      bool
	HasEducationDegree       bool
	HasRequiredQualification bool
}

// CandidateRecord is the persisted outcome for one inbound message.
// GmailMessageID is the system-wide idempotence key.
type CandidateRecord struct {
	ID string

	// Universal extracted fields
	CandidateName      string
	EmailAddress       string
	ContactNumber      string
	CurrentLocationRaw string
	CountriesRaw       []string
	RawAIScore         float64
	AINotes            string

	// Full extraction for audit/debugging
	RawExtraction Extraction

	Vertical string
	Gate     GateResult

	// Tenant linkage
	OrganizationID string
	UserID         string
	SourceEmail    string

	// Message provenance
	CanonicalDay   string
	DateReceived   time.Time
	GmailMessageID string
	GmailThreadID  string
	EmailSubject   string
	EmailFrom      string

	// Vertical-specific legacy columns (nil outside teaching)
	Teaching *TeachingFields
}
