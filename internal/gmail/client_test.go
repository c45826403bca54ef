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

package gmail

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestListUnread(t *testing.T) {
	var gotQuery, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]string{
				{"id": "m1", "threadId": "t1"},
				{"id": "m2", "threadId": "t2"},
			},
		})
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL)
	refs, err := c.ListUnread(context.Background(), "tok-123", "careers@school.example")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotQuery != "to:careers@school.example is:unread" {
		t.Errorf("query = %q", gotQuery)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("auth = %q", gotAuth)
	}
	if len(refs) != 2 || refs[0].ID != "m1" || refs[1].ThreadID != "t2" {
		t.Errorf("refs = %+v", refs)
	}
}

func TestListUnread_EmptyMailbox(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Gmail omits "messages" entirely when there are none
		w.Write([]byte(`{"resultSizeEstimate": 0}`))
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL)
	refs, err := c.ListUnread(context.Background(), "tok", "a@b.c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("refs = %+v, want none", refs)
	}
}

func TestListUnread_ErrorIsTyped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL)
	_, err := c.ListUnread(context.Background(), "tok", "a@b.c")

	var listErr *ListError
	if !errors.As(err, &listErr) {
		t.Fatalf("expected ListError, got %T: %v", err, err)
	}
	if listErr.Address != "a@b.c" {
		t.Errorf("address = %q", listErr.Address)
	}
}

func TestFetchMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") != "full" {
			t.Errorf("format = %q, want full", r.URL.Query().Get("format"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":       "m1",
			"threadId": "t1",
			"payload": map[string]any{
				"headers": []map[string]string{{"name": "Subject", "value": "hello"}},
			},
		})
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL)
	msg, err := c.FetchMessage(context.Background(), "tok", "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.ID != "m1" || msg.Header("Subject") != "hello" {
		t.Errorf("msg = %+v", msg)
	}
}

func TestFetchMessage_ErrorIsTyped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL)
	_, err := c.FetchMessage(context.Background(), "tok", "m404")

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %T: %v", err, err)
	}
	if fetchErr.MessageID != "m404" {
		t.Errorf("message id = %q", fetchErr.MessageID)
	}
}

func TestMarkRead(t *testing.T) {
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = string(buf)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL)
	if err := c.MarkRead(context.Background(), "tok", "m1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotBody != `{"removeLabelIds":["UNREAD"]}` {
		t.Errorf("body = %q", gotBody)
	}
}
