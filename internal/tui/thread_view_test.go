package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/rmarinho/convo/internal/render"
	"github.com/rmarinho/convo/internal/store"
)

func newTestThreadView() *ThreadView {
	thread := render.NewThread(nil, 3, 100*time.Millisecond)
	return NewThreadView(thread)
}

func TestMeasureMessage(t *testing.T) {
	v := newTestThreadView()
	v.width = 40

	m := &store.Message{ID: "m1", Content: "short"}
	if got := v.MeasureMessage(m); got != 3 {
		t.Errorf("short message height = %d, want 3 (header, content, separator)", got)
	}

	m.Content = strings.Repeat("x", 100) // wraps over 3 rows at width 40
	if got := v.MeasureMessage(m); got != 5 {
		t.Errorf("wrapped message height = %d, want 5", got)
	}

	m.ReplyTo = &store.ReplyRef{MessageID: "m0", Preview: "earlier"}
	if got := v.MeasureMessage(m); got != 6 {
		t.Errorf("reply adds a row: height = %d, want 6", got)
	}

	m.Attachments = []store.Attachment{{Kind: "image"}, {Kind: "image"}}
	if got := v.MeasureMessage(m); got != 8 {
		t.Errorf("attachments add rows: height = %d, want 8", got)
	}

	empty := &store.Message{ID: "m2"}
	if got := v.MeasureMessage(empty); got != 3 {
		t.Errorf("empty content still occupies a row: height = %d, want 3", got)
	}
}

func TestThreadViewSelection(t *testing.T) {
	v := newTestThreadView()
	v.thread.Open("c1")
	v.thread.Render("c1", []*store.Message{
		{ID: "m1", Content: "one", Timestamp: 1},
		{ID: "m2", Content: "two", Timestamp: 2},
		{ID: "m3", Content: "three", Timestamp: 3},
	}, render.Options{ReplaceAll: true})

	if v.Selected() != nil {
		t.Fatal("no selection expected initially")
	}

	// First move starts at the newest message.
	v.moveSelection(-1)
	if m := v.Selected(); m == nil || m.ID != "m3" {
		t.Fatalf("selection did not start at newest")
	}
	v.moveSelection(-1)
	v.moveSelection(-1)
	v.moveSelection(-1) // clamped at the oldest
	if m := v.Selected(); m == nil || m.ID != "m1" {
		t.Fatalf("selection did not clamp at oldest")
	}

	v.ClearSelection()
	if v.Selected() != nil {
		t.Error("selection not cleared")
	}
}
