package tui

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/rmarinho/convo/internal/store"
)

// SavedView lists the saved messages of the open conversation. Unsaving
// from here re-fetches the remaining ones so the list never goes stale.
type SavedView struct {
	*tview.Table

	onOpen   func(msgID string)
	onUnsave func(msgID string)

	shown []*store.Message
}

// NewSavedView creates the saved-messages panel.
func NewSavedView() *SavedView {
	v := &SavedView{Table: tview.NewTable()}
	v.SetSelectable(true, false)
	v.SetBorder(true)
	v.SetTitle(" Saved ")
	v.SetSelectedStyle(tcell.StyleDefault.Reverse(true))
	v.SetSelectedFunc(func(row, col int) {
		if v.onOpen != nil && row >= 0 && row < len(v.shown) {
			v.onOpen(v.shown[row].ID)
		}
	})
	v.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyRune && event.Rune() == 'u' {
			if v.onUnsave != nil {
				if row, _ := v.GetSelection(); row >= 0 && row < len(v.shown) {
					v.onUnsave(v.shown[row].ID)
				}
			}
			return nil
		}
		return event
	})
	return v
}

// SetOnOpen registers the jump-to-message callback.
func (v *SavedView) SetOnOpen(fn func(msgID string)) { v.onOpen = fn }

// SetOnUnsave registers the unsave callback for the selected row.
func (v *SavedView) SetOnUnsave(fn func(msgID string)) { v.onUnsave = fn }

// Shown returns the messages currently listed, in display order.
func (v *SavedView) Shown() []*store.Message { return v.shown }

// Show replaces the list. An empty slice renders an explicit
// placeholder row rather than a blank panel.
func (v *SavedView) Show(msgs []*store.Message, userID, partnerName string) {
	v.Clear()
	v.shown = msgs
	v.SetTitle(fmt.Sprintf(" Saved (%d) ", len(msgs)))

	if len(msgs) == 0 {
		v.SetCell(0, 0, tview.NewTableCell(" No saved messages in this conversation.").
			SetSelectable(false).
			SetExpansion(1))
		return
	}
	for row, m := range msgs {
		sender := partnerName
		if m.SenderID == userID {
			sender = "You"
		}
		when := time.UnixMilli(m.Timestamp).Format("2006-01-02 15:04")
		v.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(sender))))
		v.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(m.Content))).SetExpansion(1))
		v.SetCell(row, 2, tview.NewTableCell(when).SetAlign(tview.AlignRight))
	}
}
