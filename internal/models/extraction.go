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

package models

import "github.com/mitchellh/mapstructure"

// Extraction is the AI backend's structured answer for one message: the
// universal fields plus any vertical-specific fields, keyed by name.
// It is untrusted input — every accessor defaults safely when a field is
// absent or has an unexpected type.
type Extraction map[string]any

// String returns the named field as a string, or "" if absent or non-string.
func (e Extraction) String(key string) string {
	if s, ok := e[key].(string); ok {
		return s
	}
	return ""
}

// Bool returns the named field as a bool, or false if absent or non-bool.
func (e Extraction) Bool(key string) bool {
	if b, ok := e[key].(bool); ok {
		return b
	}
	return false
}

// Number returns the named field as a float64 and whether it was numeric.
func (e Extraction) Number(key string) (float64, bool) {
	return AsNumber(e[key])
}

// StringList returns the named field as a string slice, tolerating the
// []any shape produced by encoding/json.
func (e Extraction) StringList(key string) []string {
	switch v := e[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// HasRequiredQualification reports the universal qualification floor flag.
func (e Extraction) HasRequiredQualification() bool {
	return e.Bool("has_required_qualification")
}

// AsNumber converts a JSON-decoded value to float64 if it is numeric.
// Strings are deliberately not coerced.
func AsNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// Universal is the fixed set of fields every vertical's extraction must
// carry.
type Universal struct {
	CandidateName            string   `mapstructure:"candidate_name"`
	EmailAddress             string   `mapstructure:"email_address"`
	ContactNumber            string   `mapstructure:"contact_number"`
	CurrentLocationRaw       string   `mapstructure:"current_location_raw"`
	CountriesRaw             []string `mapstructure:"countries_raw"`
	HasRequiredQualification bool     `mapstructure:"has_required_qualification"`
	YearsExperience          float64  `mapstructure:"years_experience"`
	RawAIScore               float64  `mapstructure:"raw_ai_score"`
	AINotes                  string   `mapstructure:"ai_notes"`
}

// Universal decodes the universal fields out of the extraction map. Weak
// typing tolerates the model returning "3" where 3 was asked for; decode
// problems leave the affected field at its zero value rather than failing.
func (e Extraction) Universal() Universal {
	var u Universal
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &u,
	})
	if err == nil {
		_ = dec.Decode(map[string]any(e))
	}
	if u.CandidateName == "" {
		u.CandidateName = "Unknown"
	}
	return u
}
