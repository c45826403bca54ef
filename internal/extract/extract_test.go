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

package extract

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakeBackend returns a server that answers every request with the given
// text block.
func fakeBackend(t *testing.T, text string, capture *messagesRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") == "" {
			t.Error("missing x-api-key header")
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Error("missing anthropic-version header")
		}
		if capture != nil {
			if err := json.NewDecoder(r.Body).Decode(capture); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": text}},
		})
	}))
}

func TestExtract(t *testing.T) {
	var req messagesRequest
	server := fakeBackend(t, `{"candidate_name": "Jane", "has_required_qualification": true}`, &req)
	defer server.Close()

	e := New(server.Client(), server.URL, "key", "model-x")
	extraction, err := e.Extract(context.Background(), "cv body", "system prompt", `{"schema": true}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if extraction.String("candidate_name") != "Jane" {
		t.Errorf("extraction = %v", extraction)
	}
	if req.Model != "model-x" || req.System != "system prompt" {
		t.Errorf("request = %+v", req)
	}
	if len(req.Messages) != 1 || !strings.Contains(req.Messages[0].Content, "cv body") {
		t.Errorf("user message = %+v", req.Messages)
	}
	if !strings.Contains(req.Messages[0].Content, `{"schema": true}`) {
		t.Error("schema missing from user message")
	}
}

// TestExtract_StripsFences covers the fenced-response scenario: the model
// wraps its JSON in ```json fences despite instructions.
func TestExtract_StripsFences(t *testing.T) {
	server := fakeBackend(t, "```json\n{\"candidate_name\": \"Jane\"}\n```", nil)
	defer server.Close()

	e := New(server.Client(), server.URL, "key", "m")
	extraction, err := e.Extract(context.Background(), "body", "p", "s")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if extraction.String("candidate_name") != "Jane" {
		t.Errorf("extraction = %v", extraction)
	}
}

func TestExtract_StripsBareFences(t *testing.T) {
	server := fakeBackend(t, "```\n{\"x\": 1}\n```", nil)
	defer server.Close()

	e := New(server.Client(), server.URL, "key", "m")
	if _, err := e.Extract(context.Background(), "body", "p", "s"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestExtract_TruncatesBody verifies the 15,000-character cap on what we
// send.
func TestExtract_TruncatesBody(t *testing.T) {
	var req messagesRequest
	server := fakeBackend(t, `{}`, &req)
	defer server.Close()

	e := New(server.Client(), server.URL, "key", "m")
	longBody := strings.Repeat("x", maxBodyChars+5000)
	if _, err := e.Extract(context.Background(), longBody, "p", "s"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if strings.Contains(req.Messages[0].Content, strings.Repeat("x", maxBodyChars+1)) {
		t.Error("body was not truncated")
	}
	if !strings.Contains(req.Messages[0].Content, strings.Repeat("x", maxBodyChars)) {
		t.Error("truncated body missing from request")
	}
}

func TestExtract_ParseErrorCarriesExcerpt(t *testing.T) {
	server := fakeBackend(t, "I'm sorry, I can't produce JSON for this.", nil)
	defer server.Close()

	e := New(server.Client(), server.URL, "key", "m")
	_, err := e.Extract(context.Background(), "body", "p", "s")

	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %T: %v", err, err)
	}
	if !strings.Contains(parseErr.Excerpt, "I'm sorry") {
		t.Errorf("excerpt = %q", parseErr.Excerpt)
	}
}

func TestExtract_ExcerptIsBounded(t *testing.T) {
	server := fakeBackend(t, strings.Repeat("y", 2000), nil)
	defer server.Close()

	e := New(server.Client(), server.URL, "key", "m")
	_, err := e.Extract(context.Background(), "body", "p", "s")

	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if len(parseErr.Excerpt) > maxExcerpt {
		t.Errorf("excerpt length = %d, want <= %d", len(parseErr.Excerpt), maxExcerpt)
	}
}

func TestExtract_BackendErrorIsNotParseError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer server.Close()

	e := New(server.Client(), server.URL, "key", "m")
	_, err := e.Extract(context.Background(), "body", "p", "s")
	if err == nil {
		t.Fatal("expected error")
	}

	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		t.Error("HTTP failure must not be a ParseError")
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"{\"a\":1}", "{\"a\":1}"},
		{"```json\n{\"a\":1}\n```", "{\"a\":1}"},
		{"```JSON\n{\"a\":1}\n```", "{\"a\":1}"},
		{"```\n{\"a\":1}\n```", "{\"a\":1}"},
		{"  {\"a\":1}  ", "{\"a\":1}"},
	}
	for _, tt := range tests {
		if got := stripFences(tt.in); got != tt.want {
			t.Errorf("stripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
