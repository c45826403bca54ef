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

// Package gate evaluates a tenant's qualification rules against an
// extraction. It is pure computation over already-fetched data — no I/O,
// no retries.
//
// Rule semantics are asymmetric on purpose: a hard rule describes the
// REQUIRED condition and rejects when it is not met; a soft rule describes
// a DISQUALIFYING condition and flags when it is met. Rule-set authors own
// this convention.
package gate

import (
	"reflect"
	"strings"

	"github.com/shortlisted/ingestion/internal/models"
)

const qualificationField = "has_required_qualification"

// Evaluate applies a single rule to the extraction. eq/ne compare by
// structural equality regardless of type; a field absent from the
// extraction equals nothing, not even an explicit null rule value. The
// ordering operators evaluate true only when both the extracted value and
// the rule value are numeric; a type mismatch degrades to false rather
// than erroring, so a misconfigured rule reads as "condition not met".
func Evaluate(extraction models.Extraction, rule models.GateRule) bool {
	fieldValue, present := extraction[rule.Field]

	switch rule.Op {
	case "eq":
		return present && equal(fieldValue, rule.Value)
	case "ne":
		return !present || !equal(fieldValue, rule.Value)
	case "lt", "lte", "gt", "gte":
		a, aok := models.AsNumber(fieldValue)
		b, bok := models.AsNumber(rule.Value)
		if !aok || !bok {
			return false
		}
		switch rule.Op {
		case "lt":
			return a < b
		case "lte":
			return a <= b
		case "gt":
			return a > b
		default:
			return a >= b
		}
	default:
		return false
	}
}

// Apply runs the full gate over one extraction:
//
//  1. the universal qualification floor — has_required_qualification must
//     be true, regardless of rule content;
//  2. hard rules in order, stopping at the first one whose condition is
//     not met;
//  3. soft rules, each match accumulating a flag.
func Apply(extraction models.Extraction, rules models.GateRules) models.GateResult {
	if !extraction.HasRequiredQualification() {
		return models.GateResult{
			Pass:   false,
			Action: models.ActionReject,
			Reason: "does not meet vertical qualification requirement",
			Flags:  []string{},
		}
	}

	for _, hard := range rules.Hard {
		// The qualification floor is already enforced above
		if hard.Field == qualificationField {
			continue
		}
		if !Evaluate(extraction, hard) {
			return models.GateResult{
				Pass:   false,
				Action: models.ActionReject,
				Reason: hard.Reason,
				Flags:  []string{},
			}
		}
	}

	flags := []string{}
	for _, soft := range rules.Soft {
		if Evaluate(extraction, soft) {
			flags = append(flags, soft.Reason)
		}
	}

	result := models.GateResult{
		Pass:   true,
		Action: models.ActionPass,
		Reason: "passed all gates",
		Flags:  flags,
	}
	if len(flags) > 0 {
		result.Action = models.ActionFlag
		result.Reason = "flagged: " + strings.Join(flags, "; ")
	}
	return result
}

// equal compares two JSON-decoded values, normalising numerics so that an
// int rule value matches a float64 extraction value.
func equal(a, b any) bool {
	if an, aok := models.AsNumber(a); aok {
		if bn, bok := models.AsNumber(b); bok {
			return an == bn
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}
