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

// Package routecfg flattens a route's joined tenant and vertical-template
// columns into the effective extraction prompt, schema, and gate rules.
//
// Each field cascades independently: org override if set, else the
// vertical template's value, else a built-in teaching default. There is no
// error path — the pipeline never fails solely because configuration is
// missing.
package routecfg

import "github.com/shortlisted/ingestion/internal/models"

// Resolved is the effective configuration for one route.
type Resolved struct {
	Vertical string
	Prompt   string
	Schema   string
	Rules    models.GateRules
}

// Resolve flattens the route's configuration. Pure function of the joined
// row — it performs no fetching.
func Resolve(route models.Route) Resolved {
	return Resolved{
		Vertical: cascade(DefaultVertical, route.VerticalName),
		Prompt:   cascade(DefaultSystemPrompt, route.PromptOverride, route.TemplatePrompt),
		Schema:   cascade(DefaultExtractionSchema, route.SchemaOverride, route.TemplateSchema),
		Rules:    cascadeRules(route.RulesOverride, route.TemplateRules),
	}
}

// cascade returns the first non-nil non-empty source, else the fallback.
func cascade(fallback string, sources ...*string) string {
	for _, s := range sources {
		if s != nil && *s != "" {
			return *s
		}
	}
	return fallback
}

func cascadeRules(sources ...*models.GateRules) models.GateRules {
	for _, r := range sources {
		if r != nil {
			return *r
		}
	}
	return DefaultGateRules()
}
