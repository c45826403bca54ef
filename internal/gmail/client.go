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

// Package gmail is a thin client for the Gmail REST API: listing unread
// messages for an address, fetching full message content, and clearing the
// UNREAD label.
package gmail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// DefaultBaseURL is the root of the Gmail REST API.
const DefaultBaseURL = "https://gmail.googleapis.com/gmail/v1"

// listMax caps how many unread messages one batch picks up per route.
const listMax = 50

// ListError indicates the unread listing failed — fatal for the route.
type ListError struct {
	Address string
	Err     error
}

func (e *ListError) Error() string {
	return fmt.Sprintf("gmail list for %s failed: %v", e.Address, e.Err)
}

func (e *ListError) Unwrap() error { return e.Err }

// FetchError indicates a single message fetch failed — fatal for that
// message only.
type FetchError struct {
	MessageID string
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("gmail fetch of message %s failed: %v", e.MessageID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// MessageRef identifies a message in a list response.
type MessageRef struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

// Header is a single MIME header on a message payload.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Part is a node of the (possibly nested) MIME tree.
type Part struct {
	MimeType string `json:"mimeType"`
	Body     struct {
		Data string `json:"data"`
	} `json:"body"`
	Parts []Part `json:"parts"`
}

// Message is a full-format Gmail message.
type Message struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
	Payload  struct {
		MimeType string   `json:"mimeType"`
		Headers  []Header `json:"headers"`
		Body     struct {
			Data string `json:"data"`
		} `json:"body"`
		Parts []Part `json:"parts"`
	} `json:"payload"`
}

// Header returns the named payload header, case-insensitively, or "".
func (m *Message) Header(name string) string {
	for _, h := range m.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// Client talks to the Gmail API with per-call bearer tokens.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a Gmail client. The httpClient should carry the batch
// timeout; authentication is per call via access tokens.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
	}
}

// ListUnread returns refs for unread messages addressed to the given
// mailbox, at most listMax per call.
func (c *Client) ListUnread(ctx context.Context, accessToken, address string) ([]MessageRef, error) {
	query := fmt.Sprintf("to:%s is:unread", address)
	refs, err := c.list(ctx, accessToken, query)
	if err != nil {
		return nil, &ListError{Address: address, Err: err}
	}
	return refs, nil
}

// ListSince returns refs for all messages addressed to the mailbox within
// the lookback window, regardless of read state. Used by backfill.
func (c *Client) ListSince(ctx context.Context, accessToken, address string, days int) ([]MessageRef, error) {
	if days < 1 {
		days = 1
	}
	query := fmt.Sprintf("to:%s newer_than:%dd", address, days)
	refs, err := c.list(ctx, accessToken, query)
	if err != nil {
		return nil, &ListError{Address: address, Err: err}
	}
	return refs, nil
}

func (c *Client) list(ctx context.Context, accessToken, query string) ([]MessageRef, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("maxResults", fmt.Sprintf("%d", listMax))
	u := fmt.Sprintf("%s/users/me/messages?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gmail API returned HTTP %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var result struct {
		Messages []MessageRef `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}
	return result.Messages, nil
}

// FetchMessage retrieves a message in full format.
func (c *Client) FetchMessage(ctx context.Context, accessToken, messageID string) (*Message, error) {
	u := fmt.Sprintf("%s/users/me/messages/%s?format=full", c.baseURL, messageID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &FetchError{MessageID: messageID, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{MessageID: messageID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &FetchError{
			MessageID: messageID,
			Err:       fmt.Errorf("gmail API returned HTTP %d: %s", resp.StatusCode, truncate(string(body), 200)),
		}
	}

	var msg Message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return nil, &FetchError{MessageID: messageID, Err: fmt.Errorf("decode message: %w", err)}
	}
	return &msg, nil
}

// MarkRead clears the UNREAD label on a message.
func (c *Client) MarkRead(ctx context.Context, accessToken, messageID string) error {
	u := fmt.Sprintf("%s/users/me/messages/%s/modify", c.baseURL, messageID)
	payload := []byte(`{"removeLabelIds":["UNREAD"]}`)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mark read %s: %w", messageID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mark read %s: gmail API returned HTTP %d", messageID, resp.StatusCode)
	}
	return nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
