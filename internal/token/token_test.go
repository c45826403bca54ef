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

package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shortlisted/ingestion/internal/models"
)

type mockCredentialStore struct {
	updatedID    string
	updatedToken string
	updatedAt    time.Time
	updateErr    error
	calls        int
}

func (m *mockCredentialStore) UpdateCredentialToken(_ context.Context, credentialID, accessToken string, expiresAt time.Time) error {
	m.calls++
	m.updatedID = credentialID
	m.updatedToken = accessToken
	m.updatedAt = expiresAt
	return m.updateErr
}

// tokenEndpoint fakes the OAuth2 refresh exchange. expiresIn <= 0 omits the
// expiry hint.
func tokenEndpoint(t *testing.T, accessToken string, expiresIn int, hits *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hits++
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		if expiresIn > 0 {
			fmt.Fprintf(w, `{"access_token": %q, "token_type": "Bearer", "expires_in": %d}`, accessToken, expiresIn)
		} else {
			fmt.Fprintf(w, `{"access_token": %q, "token_type": "Bearer"}`, accessToken)
		}
	}))
}

func newTestManager(store CredentialStore, tokenURL string, client *http.Client, shared string) *Manager {
	return NewManager(ManagerConfig{
		ClientID:           "client-id",
		ClientSecret:       "client-secret",
		SharedRefreshToken: shared,
		Store:              store,
		TokenURL:           tokenURL,
		HTTPClient:         client,
	})
}

func TestAccessToken_CachedTokenAvoidsNetwork(t *testing.T) {
	hits := 0
	server := tokenEndpoint(t, "fresh", 3600, &hits)
	defer server.Close()

	store := &mockCredentialStore{}
	m := newTestManager(store, server.URL, server.Client(), "")

	cached := "cached-token"
	expiry := time.Now().Add(30 * time.Minute)
	src := Source{Kind: KindTenant, Credential: &models.Credential{
		ID:             "cred-1",
		RefreshToken:   "refresh-1",
		AccessToken:    &cached,
		TokenExpiresAt: &expiry,
	}}

	got, err := m.AccessToken(context.Background(), src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "cached-token" {
		t.Errorf("token = %q, want cached-token", got)
	}
	if hits != 0 {
		t.Errorf("token endpoint hit %d times, want 0", hits)
	}
	if store.calls != 0 {
		t.Errorf("store called %d times, want 0", store.calls)
	}
}

func TestAccessToken_NearExpiryTriggersRefresh(t *testing.T) {
	hits := 0
	server := tokenEndpoint(t, "fresh-token", 3600, &hits)
	defer server.Close()

	store := &mockCredentialStore{}
	m := newTestManager(store, server.URL, server.Client(), "")

	stale := "stale-token"
	expiry := time.Now().Add(2 * time.Minute) // inside the 5-minute buffer
	cred := &models.Credential{
		ID:             "cred-1",
		RefreshToken:   "refresh-1",
		AccessToken:    &stale,
		TokenExpiresAt: &expiry,
	}

	got, err := m.AccessToken(context.Background(), Source{Kind: KindTenant, Credential: cred})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "fresh-token" {
		t.Errorf("token = %q, want fresh-token", got)
	}
	if hits != 1 {
		t.Errorf("token endpoint hit %d times, want 1", hits)
	}
	if store.updatedID != "cred-1" || store.updatedToken != "fresh-token" {
		t.Errorf("store update = (%q, %q)", store.updatedID, store.updatedToken)
	}
	if store.updatedAt.Before(time.Now().Add(50 * time.Minute)) {
		t.Errorf("persisted expiry %v does not honour expires_in hint", store.updatedAt)
	}
	// The credential is updated in place so later routes sharing it get the
	// cached token.
	if cred.AccessToken == nil || *cred.AccessToken != "fresh-token" {
		t.Error("credential not updated in place")
	}
}

func TestAccessToken_MissingExpiryHintDefaultsToAnHour(t *testing.T) {
	hits := 0
	server := tokenEndpoint(t, "fresh-token", 0, &hits)
	defer server.Close()

	store := &mockCredentialStore{}
	m := newTestManager(store, server.URL, server.Client(), "")

	src := Source{Kind: KindTenant, Credential: &models.Credential{ID: "c", RefreshToken: "r"}}
	if _, err := m.AccessToken(context.Background(), src); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	remaining := time.Until(store.updatedAt)
	if remaining < 55*time.Minute || remaining > 65*time.Minute {
		t.Errorf("default lifetime = %v, want about an hour", remaining)
	}
}

func TestAccessToken_PersistFailureStillReturnsToken(t *testing.T) {
	hits := 0
	server := tokenEndpoint(t, "fresh-token", 3600, &hits)
	defer server.Close()

	store := &mockCredentialStore{updateErr: errors.New("connection reset")}
	m := newTestManager(store, server.URL, server.Client(), "")

	src := Source{Kind: KindTenant, Credential: &models.Credential{ID: "c", RefreshToken: "r"}}
	got, err := m.AccessToken(context.Background(), src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "fresh-token" {
		t.Errorf("token = %q, want fresh-token", got)
	}
}

func TestAccessToken_RefreshFailureIsRefreshError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "invalid_grant"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	store := &mockCredentialStore{}
	m := newTestManager(store, server.URL, server.Client(), "")

	src := Source{Kind: KindTenant, Credential: &models.Credential{ID: "c", RefreshToken: "revoked"}}
	_, err := m.AccessToken(context.Background(), src)

	var refreshErr *RefreshError
	if !errors.As(err, &refreshErr) {
		t.Fatalf("expected RefreshError, got %T: %v", err, err)
	}
	if store.calls != 0 {
		t.Error("store must not be updated after a failed refresh")
	}
}

func TestAccessToken_SharedFallback(t *testing.T) {
	hits := 0
	server := tokenEndpoint(t, "shared-token", 3600, &hits)
	defer server.Close()

	store := &mockCredentialStore{}
	m := newTestManager(store, server.URL, server.Client(), "shared-refresh")

	got, err := m.AccessToken(context.Background(), Source{Kind: KindShared})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "shared-token" {
		t.Errorf("token = %q, want shared-token", got)
	}
	// Shared tokens are never persisted; there is no credential row for them.
	if store.calls != 0 {
		t.Errorf("store called %d times, want 0", store.calls)
	}
}

func TestAccessToken_SharedWithoutSecretFails(t *testing.T) {
	m := newTestManager(&mockCredentialStore{}, "http://unused.invalid", nil, "")

	_, err := m.AccessToken(context.Background(), Source{Kind: KindShared})
	var refreshErr *RefreshError
	if !errors.As(err, &refreshErr) {
		t.Fatalf("expected RefreshError, got %v", err)
	}
}
