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

// Package token resolves a valid mailbox access token for a route,
// refreshing and persisting it when expired. The refresh secret itself is
// never rotated here.
package token

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/shortlisted/ingestion/internal/models"
)

// ExpiryBuffer is the minimum remaining validity before a cached access
// token is considered expired. Guards against clock skew and in-flight
// request latency.
const ExpiryBuffer = 5 * time.Minute

// DefaultTokenURL is Google's OAuth2 token endpoint.
const DefaultTokenURL = "https://oauth2.googleapis.com/token"

// defaultLifetime applies when the refresh endpoint gives no expiry hint.
const defaultLifetime = time.Hour

// Kind discriminates the two credential sources a route can resolve to.
type Kind int

const (
	// KindTenant uses the route's own stored credential.
	KindTenant Kind = iota
	// KindShared uses the globally configured legacy refresh secret.
	KindShared
)

// Source is a route's credential source, resolved once per route.
// Credential is set only for KindTenant.
type Source struct {
	Kind       Kind
	Credential *models.Credential
}

// RefreshError indicates the refresh exchange failed. Fatal for the route
// it belongs to; sibling routes continue.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("credential refresh failed: %v", e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

// CredentialStore persists rotated access tokens. Implemented by
// store.Store.
type CredentialStore interface {
	UpdateCredentialToken(ctx context.Context, credentialID, accessToken string, expiresAt time.Time) error
}

// Manager resolves access tokens for credential sources.
type Manager struct {
	clientID     string
	clientSecret string
	sharedSecret string
	store        CredentialStore
	tokenURL     string
	httpClient   *http.Client
	now          func() time.Time
}

// ManagerConfig holds the dependencies for a Manager.
type ManagerConfig struct {
	ClientID           string
	ClientSecret       string
	SharedRefreshToken string // legacy fallback; may be empty
	Store              CredentialStore
	TokenURL           string       // defaults to DefaultTokenURL
	HTTPClient         *http.Client // used for the refresh exchange
}

// NewManager creates a token manager.
func NewManager(cfg ManagerConfig) *Manager {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	return &Manager{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		sharedSecret: cfg.SharedRefreshToken,
		store:        cfg.Store,
		tokenURL:     tokenURL,
		httpClient:   cfg.HTTPClient,
		now:          time.Now,
	}
}

// AccessToken returns a bearer token valid for at least ExpiryBuffer.
// A cached token with enough validity left is returned without any network
// call. Otherwise the refresh secret is exchanged for a new token, which is
// persisted (for stored credentials) before being returned.
func (m *Manager) AccessToken(ctx context.Context, src Source) (string, error) {
	if src.Kind == KindTenant {
		cred := src.Credential
		if cred == nil {
			return "", &RefreshError{Err: fmt.Errorf("source has no credential")}
		}
		if cred.AccessToken != nil && cred.TokenExpiresAt != nil &&
			cred.TokenExpiresAt.Sub(m.now()) >= ExpiryBuffer {
			return *cred.AccessToken, nil
		}
		return m.refresh(ctx, src)
	}

	if m.sharedSecret == "" {
		return "", &RefreshError{Err: fmt.Errorf("no shared refresh token configured")}
	}
	return m.refresh(ctx, src)
}

// refresh exchanges the source's refresh secret for a new access token.
func (m *Manager) refresh(ctx context.Context, src Source) (string, error) {
	refreshToken := m.sharedSecret
	if src.Kind == KindTenant {
		refreshToken = src.Credential.RefreshToken
	}

	conf := &oauth2.Config{
		ClientID:     m.clientID,
		ClientSecret: m.clientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: m.tokenURL},
	}
	if m.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	}

	tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return "", &RefreshError{Err: err}
	}

	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		expiresAt = m.now().Add(defaultLifetime)
	}

	if src.Kind == KindTenant {
		cred := src.Credential
		if err := m.store.UpdateCredentialToken(ctx, cred.ID, tok.AccessToken, expiresAt); err != nil {
			// The token itself is good; losing the write only costs an
			// extra refresh next batch.
			slog.Error("failed to persist refreshed access token",
				"credential_id", cred.ID,
				"error", err,
			)
		}
		cred.AccessToken = &tok.AccessToken
		cred.TokenExpiresAt = &expiresAt
	}

	return tok.AccessToken, nil
}
