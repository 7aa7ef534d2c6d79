package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/rmarinho/convo/internal/store"
)

// ConversationList is the home view: every conversation sorted by
// latest activity, with unread and saved badges and a presence dot.
type ConversationList struct {
	*tview.Table
	convs        []*store.Conversation
	filter       string
	showPresence bool
	selectedFunc func(convID string)
}

// NewConversationList creates the list table.
func NewConversationList() *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetTitle(" Conversations ")
	table.SetSelectedStyle(tcell.StyleDefault.Reverse(true))

	cl := &ConversationList{Table: table, showPresence: true}
	table.SetSelectedFunc(func(row, col int) {
		if cl.selectedFunc == nil {
			return
		}
		if id := cl.conversationAt(row); id != "" {
			cl.selectedFunc(id)
		}
	})
	return cl
}

// SetSelectedFunc registers the open-conversation callback.
func (cl *ConversationList) SetSelectedFunc(fn func(convID string)) {
	cl.selectedFunc = fn
}

// SetShowPresence toggles the presence column.
func (cl *ConversationList) SetShowPresence(on bool) {
	cl.showPresence = on
	cl.render()
}

// SetFilter narrows the list to names matching the text.
func (cl *ConversationList) SetFilter(filter string) {
	cl.filter = filter
	cl.render()
}

// Update refreshes the list with new data.
func (cl *ConversationList) Update(convs []*store.Conversation) {
	cl.convs = convs
	cl.render()
}

func (cl *ConversationList) visible() []*store.Conversation {
	if cl.filter == "" {
		return cl.convs
	}
	q := strings.ToLower(cl.filter)
	out := make([]*store.Conversation, 0, len(cl.convs))
	for _, c := range cl.convs {
		if strings.Contains(strings.ToLower(c.Name), q) {
			out = append(out, c)
		}
	}
	return out
}

func (cl *ConversationList) render() {
	cl.Clear()

	for col, h := range []string{" NAME", " LAST MESSAGE", " TIME", " SAVED"} {
		cell := tview.NewTableCell(h).
			SetSelectable(false).
			SetAttributes(tcell.AttrBold)
		if col == 1 {
			cell.SetExpansion(2)
		} else if col == 0 {
			cell.SetExpansion(1)
		}
		cl.SetCell(0, col, cell)
	}

	visible := cl.visible()
	for i, c := range visible {
		row := i + 1
		name := c.Name
		if name == "" {
			name = c.PartnerID
		}
		if c.Unread > 0 {
			name = fmt.Sprintf("(%d) %s", c.Unread, name)
		}
		if cl.showPresence && c.Status == store.PresenceOnline {
			name = "● " + name
		}

		preview, ts := lastMessage(c)
		savedBadge := ""
		if c.SavedCount > 0 {
			savedBadge = fmt.Sprintf("★%d", c.SavedCount)
		}

		cl.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(name))).SetExpansion(1))
		cl.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(preview))).SetExpansion(2))
		cl.SetCell(row, 2, tview.NewTableCell(formatTimestamp(ts)).SetAlign(tview.AlignRight))
		cl.SetCell(row, 3, tview.NewTableCell(savedBadge).SetAlign(tview.AlignRight))
	}

	if cl.filter != "" {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d/%d) filter: %s ", len(visible), len(cl.convs), cl.filter))
	} else {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d) ", len(cl.convs)))
	}
}

// conversationAt maps a table row back to a conversation id.
func (cl *ConversationList) conversationAt(row int) string {
	idx := row - 1
	visible := cl.visible()
	if idx < 0 || idx >= len(visible) {
		return ""
	}
	return visible[idx].ID
}

// Selected returns the id of the highlighted conversation, or "".
func (cl *ConversationList) Selected() string {
	row, _ := cl.GetSelection()
	return cl.conversationAt(row)
}

func lastMessage(c *store.Conversation) (string, int64) {
	if n := len(c.Messages); n > 0 {
		m := c.Messages[n-1]
		return m.Content, m.Timestamp
	}
	return "", 0
}

func formatTimestamp(ms int64) string {
	if ms == 0 {
		return ""
	}
	t := time.UnixMilli(ms)
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
