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

// Package extract sends message bodies to the AI extraction backend and
// parses its structured-JSON answers, tolerating markdown fence noise.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shortlisted/ingestion/internal/models"
)

// DefaultBaseURL is the root of the extraction backend's API.
const DefaultBaseURL = "https://api.anthropic.com"

const (
	apiVersion = "2023-06-01"

	// maxBodyChars bounds the body sent per message — cost and latency cap.
	maxBodyChars = 15000

	// maxExcerpt bounds raw-response excerpts carried in parse errors.
	maxExcerpt = 500

	maxTokens = 1024
)

// ParseError indicates the backend's response was not valid JSON after
// fence stripping. Message-fatal, never retried: the content will not parse
// any better on a second billed call.
type ParseError struct {
	Excerpt string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse extraction response: %v (raw: %s)", e.Err, e.Excerpt)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Extractor calls the AI extraction backend.
type Extractor struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// New creates an extractor. baseURL defaults to DefaultBaseURL.
func New(httpClient *http.Client, baseURL, apiKey, model string) *Extractor {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Extractor{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
	}
}

// messagesRequest is the backend's chat-completion request shape.
type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// messagesResponse carries the single text block we expect back.
type messagesResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// Extract sends the message body, prompt, and schema to the backend and
// parses the returned JSON into an extraction map. The body is truncated to
// maxBodyChars first.
func (e *Extractor) Extract(ctx context.Context, body, prompt, schema string) (models.Extraction, error) {
	userMessage := fmt.Sprintf(`Here is the candidate email / CV content to analyse:

---
%s
---

Extract the candidate information and return valid JSON matching this schema:
%s

Return ONLY a valid JSON object. Do not include any prose, markdown, or code fences.`,
		truncateRunes(body, maxBodyChars), schema)

	reqBody, err := json.Marshal(messagesRequest{
		Model:     e.model,
		MaxTokens: maxTokens,
		System:    prompt,
		Messages:  []message{{Role: "user", Content: userMessage}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal extraction request: %w", err)
	}

	u := e.baseURL + "/v1/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("build extraction request: %w", err)
	}
	req.Header.Set("x-api-key", e.apiKey)
	req.Header.Set("anthropic-version", apiVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call extraction backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("extraction backend returned HTTP %d: %s",
			resp.StatusCode, truncateRunes(string(errBody), maxExcerpt))
	}

	var parsed messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode extraction response: %w", err)
	}

	var raw string
	if len(parsed.Content) > 0 {
		raw = parsed.Content[0].Text
	}

	cleaned := stripFences(raw)

	var extraction models.Extraction
	if err := json.Unmarshal([]byte(cleaned), &extraction); err != nil {
		return nil, &ParseError{Excerpt: truncateRunes(raw, maxExcerpt), Err: err}
	}
	return extraction, nil
}

// stripFences removes accidental markdown code-fence wrapping from a model
// response.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "```json") {
		s = s[len("```json"):]
	} else if strings.HasPrefix(s, "```") {
		s = s[len("```"):]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
