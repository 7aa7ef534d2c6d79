// Package api is the REST client for the messaging backend. It covers
// exactly the consumed surface: message pages (offset or cursor form),
// read receipts, save/unsave, saved listings, block checks, and sends.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultTimeout = 15 * time.Second

// StatusError is a non-2xx response. Validation errors (4xx on a cursor
// request) drive the loader's offset fallback; everything else is
// treated as transient.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api: status %d: %s", e.Code, e.Body)
}

// IsValidation reports whether err is a client/validation rejection.
func IsValidation(err error) bool {
	se, ok := err.(*StatusError)
	return ok && (se.Code == http.StatusBadRequest || se.Code == http.StatusUnprocessableEntity)
}

// Client talks to the messaging backend.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client. Test hook.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// NewClient creates a backend client for the given base URL and bearer token.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// PageRequest selects a message page. When Before or BeforeID is set the
// cursor form is used; otherwise the offset form.
type PageRequest struct {
	ConversationID string
	Offset         int
	Limit          int
	Before         int64  // unix ms cursor
	BeforeID       string // id cursor
}

// Cursor reports whether the request uses cursor pagination.
func (r PageRequest) Cursor() bool {
	return r.Before > 0 || r.BeforeID != ""
}

// OffsetForm returns the same request downgraded to offset pagination.
func (r PageRequest) OffsetForm() PageRequest {
	r.Before = 0
	r.BeforeID = ""
	return r
}

// FetchMessages retrieves one page of a conversation's messages.
func (c *Client) FetchMessages(ctx context.Context, req PageRequest) (*PageResponse, error) {
	q := url.Values{}
	q.Set("conversation_id", req.ConversationID)
	q.Set("limit", strconv.Itoa(req.Limit))
	if req.Cursor() {
		if req.Before > 0 {
			q.Set("before", strconv.FormatInt(req.Before, 10))
		}
		if req.BeforeID != "" {
			q.Set("before_id", req.BeforeID)
		}
	} else {
		q.Set("offset", strconv.Itoa(req.Offset))
	}

	var resp PageResponse
	if err := c.do(ctx, http.MethodGet, "/api/messages?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendMessage posts a new message and returns the server's copy.
func (c *Client) SendMessage(ctx context.Context, clientID, conversationID, receiverID, content, replyToID string) (*Message, error) {
	body := map[string]string{
		"client_id":       clientID,
		"conversation_id": conversationID,
		"receiver_id":     receiverID,
		"content":         content,
	}
	if replyToID != "" {
		body["reply_to_id"] = replyToID
	}
	var resp ackResponse
	if err := c.do(ctx, http.MethodPost, "/api/messages", body, &resp); err != nil {
		return nil, err
	}
	return resp.Message, nil
}

// MarkRead marks a single message as read.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodPost, "/api/messages/"+url.PathEscape(messageID)+"/read", nil, nil)
}

// MarkConversationRead marks every message in a conversation as read.
func (c *Client) MarkConversationRead(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodPost, "/api/conversations/"+url.PathEscape(conversationID)+"/read", nil, nil)
}

// SaveMessage flags a message as saved on the remote store.
func (c *Client) SaveMessage(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodPost, "/api/messages/"+url.PathEscape(messageID)+"/save", nil, nil)
}

// UnsaveMessage clears a message's saved flag on the remote store.
func (c *Client) UnsaveMessage(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodDelete, "/api/messages/"+url.PathEscape(messageID)+"/save", nil, nil)
}

// ListSaved returns the user's saved messages, optionally scoped to one
// conversation.
func (c *Client) ListSaved(ctx context.Context, userID, conversationID string) ([]Message, error) {
	q := url.Values{}
	q.Set("user_id", userID)
	if conversationID != "" {
		q.Set("conversation_id", conversationID)
	}
	var resp SavedResponse
	if err := c.do(ctx, http.MethodGet, "/api/saved?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Blocked checks whether a block relationship exists between two users
// in either direction.
func (c *Client) Blocked(ctx context.Context, userID, partnerID string) (bool, error) {
	q := url.Values{}
	q.Set("user_id", userID)
	q.Set("partner_id", partnerID)
	var resp blockResponse
	if err := c.do(ctx, http.MethodGet, "/api/blocks?"+q.Encode(), nil, &resp); err != nil {
		return false, err
	}
	return resp.Blocked, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
