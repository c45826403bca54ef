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

package routecfg

import "github.com/shortlisted/ingestion/internal/models"

// Built-in defaults for the teaching vertical, the original single-tenant
// configuration. Used when neither an org override nor a vertical template
// supplies a value.

const DefaultVertical = "teaching"

const DefaultSystemPrompt = `You are an expert SA educator recruiter. Extract candidate details from this CV/email. The candidate has_required_qualification if they have a relevant teaching degree (BEd, PGCE, or equivalent) and are registered or eligible for SACE registration. Return valid JSON only.`

const DefaultExtractionSchema = `{
  "candidate_name": "string",
  "email_address": "string",
  "contact_number": "string",
  "current_location_raw": "string",
  "countries_raw": ["array of strings"],
  "has_required_qualification": "boolean",
  "years_teaching_experience": "integer",
  "qualification_type": "string",
  "subject_specialisation": "string",
  "university_attended": "string",
  "has_sace_registration": "boolean",
  "has_education_degree": "boolean",
  "raw_ai_score": "integer 0-100",
  "ai_notes": "string"
}`

// DefaultGateRules returns a fresh copy so callers can't mutate the shared
// default.
func DefaultGateRules() models.GateRules {
	return models.GateRules{
		Hard: []models.GateRule{
			{Field: "has_required_qualification", Op: "eq", Value: true, Reason: "Must have teaching qualification"},
		},
		Soft: []models.GateRule{
			{Field: "years_experience", Op: "lt", Value: float64(2), Reason: "Less than 2 years experience"},
		},
	}
}
