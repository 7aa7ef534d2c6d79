package tui

import (
	"testing"

	"github.com/gdamore/tcell/v2"

	"github.com/rmarinho/convo/internal/store"
)

func savedFixture() []*store.Message {
	return []*store.Message{
		{ID: "m1", SenderID: "them", Content: "keep this", Timestamp: 1000},
		{ID: "m2", SenderID: "me", Content: "and this", Timestamp: 2000},
	}
}

func TestSavedViewShow(t *testing.T) {
	v := NewSavedView()
	v.Show(savedFixture(), "me", "Them")

	if got := v.GetTitle(); got != " Saved (2) " {
		t.Fatalf("title = %q, want count of 2", got)
	}
	if n := len(v.Shown()); n != 2 {
		t.Fatalf("shown = %d, want 2", n)
	}
	if cell := v.GetCell(1, 0); cell.Text != " You" {
		t.Fatalf("own message sender = %q, want You", cell.Text)
	}
}

func TestSavedViewEmptyState(t *testing.T) {
	v := NewSavedView()
	v.Show(savedFixture(), "me", "Them")

	// the last saved message was removed: the panel says so explicitly
	v.Show(nil, "me", "Them")
	if got := v.GetTitle(); got != " Saved (0) " {
		t.Fatalf("title = %q, want zero count", got)
	}
	if cell := v.GetCell(0, 0); cell.Text != " No saved messages in this conversation." {
		t.Fatalf("placeholder = %q", cell.Text)
	}
}

func TestSavedViewUnsaveSelected(t *testing.T) {
	v := NewSavedView()
	var unsaved []string
	v.SetOnUnsave(func(id string) { unsaved = append(unsaved, id) })
	v.Show(savedFixture(), "me", "Them")

	v.Select(1, 0)
	capture := v.GetInputCapture()
	capture(tcell.NewEventKey(tcell.KeyRune, 'u', tcell.ModNone))

	if len(unsaved) != 1 || unsaved[0] != "m2" {
		t.Fatalf("unsaved = %v, want [m2]", unsaved)
	}
}
