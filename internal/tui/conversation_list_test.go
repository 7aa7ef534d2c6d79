package tui

import (
	"testing"
	"time"

	"github.com/rmarinho/convo/internal/store"
)

func sampleConvs() []*store.Conversation {
	return []*store.Conversation{
		{ID: "c1", PartnerID: "u2", Name: "Alice", Unread: 2},
		{ID: "c2", PartnerID: "u3", Name: "Bob"},
		{ID: "c3", PartnerID: "u4", Name: "Alan"},
	}
}

func TestConversationListFilter(t *testing.T) {
	cl := NewConversationList()
	cl.Update(sampleConvs())

	cl.SetFilter("al")
	got := cl.visible()
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got))
	}
	if got[0].ID != "c1" || got[1].ID != "c3" {
		t.Errorf("unexpected matches %q %q", got[0].ID, got[1].ID)
	}

	// Row 0 is the header.
	if id := cl.conversationAt(1); id != "c1" {
		t.Errorf("row 1 = %q, want c1", id)
	}
	if id := cl.conversationAt(3); id != "" {
		t.Errorf("out-of-range row resolved to %q", id)
	}

	cl.SetFilter("")
	if len(cl.visible()) != 3 {
		t.Error("clearing the filter should restore all conversations")
	}
}

func TestFormatTimestamp(t *testing.T) {
	if got := formatTimestamp(0); got != "" {
		t.Errorf("zero timestamp rendered %q", got)
	}
	today := time.Now().Add(-time.Minute)
	if got := formatTimestamp(today.UnixMilli()); got != today.Format("15:04") {
		t.Errorf("same-day timestamp = %q, want %q", got, today.Format("15:04"))
	}
	old := time.Date(2026, 3, 9, 10, 0, 0, 0, time.Local)
	if got := formatTimestamp(old.UnixMilli()); got != "03/09" {
		t.Errorf("older timestamp = %q, want 03/09", got)
	}
}

func TestSanitizeForTerminal(t *testing.T) {
	in := "thumbs \U0001F44D\U0001F3FD up‍️"
	got := sanitizeForTerminal(in)
	want := "thumbs \U0001F44D up"
	if got != want {
		t.Errorf("sanitize = %q, want %q", got, want)
	}
	if got := sanitizeForTerminal("plain text"); got != "plain text" {
		t.Errorf("plain text changed to %q", got)
	}
}
