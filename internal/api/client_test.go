package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchMessagesOffsetForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("conversation_id") != "c1" || q.Get("offset") != "10" || q.Get("limit") != "10" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		if q.Get("before") != "" || q.Get("before_id") != "" {
			t.Error("offset request must not carry cursor params")
		}
		total := 42
		_ = json.NewEncoder(w).Encode(PageResponse{
			Success:    true,
			Messages:   []Message{{ID: "m1", SenderID: "u2", ReceiverID: "u1", Content: "hi", Timestamp: 1000}},
			TotalCount: &total,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	resp, err := c.FetchMessages(context.Background(), PageRequest{ConversationID: "c1", Offset: 10, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].ID != "m1" {
		t.Errorf("messages = %+v", resp.Messages)
	}
	if resp.TotalCount == nil || *resp.TotalCount != 42 {
		t.Errorf("total = %v, want 42", resp.TotalCount)
	}
}

func TestFetchMessagesCursorForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("before") != "5000" || q.Get("before_id") != "m5" {
			t.Errorf("cursor params missing: %s", r.URL.RawQuery)
		}
		if q.Get("offset") != "" {
			t.Error("cursor request must not carry offset")
		}
		_ = json.NewEncoder(w).Encode(PageResponse{Success: true})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.FetchMessages(context.Background(), PageRequest{ConversationID: "c1", Limit: 10, Before: 5000, BeforeID: "m5"})
	if err != nil {
		t.Fatal(err)
	}
}

func TestValidationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"cursor pagination not supported"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.FetchMessages(context.Background(), PageRequest{ConversationID: "c1", Limit: 10, Before: 5000})
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsValidation(err) {
		t.Errorf("IsValidation(%v) = false, want true", err)
	}
}

func TestTransientErrorIsNotValidation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.FetchMessages(context.Background(), PageRequest{ConversationID: "c1", Limit: 10})
	if err == nil {
		t.Fatal("expected error")
	}
	if IsValidation(err) {
		t.Error("500 classified as validation error")
	}
}

func TestAuthHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		_ = json.NewEncoder(w).Encode(blockResponse{Blocked: true})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	blocked, err := c.Blocked(context.Background(), "u1", "u2")
	if err != nil {
		t.Fatal(err)
	}
	if !blocked {
		t.Error("blocked = false, want true")
	}
}

func TestToStoreDefaultsRecall(t *testing.T) {
	m := Message{ID: "m1", ReplyToID: "m0"}
	sm := m.ToStore()
	if sm.RecallType != "none" {
		t.Errorf("RecallType = %q, want none", sm.RecallType)
	}
	if sm.ReplyTo == nil || sm.ReplyTo.MessageID != "m0" {
		t.Errorf("ReplyTo = %+v", sm.ReplyTo)
	}
}
