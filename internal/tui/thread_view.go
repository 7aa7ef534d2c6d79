package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/rmarinho/convo/internal/outbox"
	"github.com/rmarinho/convo/internal/render"
	"github.com/rmarinho/convo/internal/store"
)

// ThreadView projects the thread model onto the terminal. The model
// owns item heights and the scroll offset; this view only draws the
// buffer, applies the offset, and feeds key events back.
type ThreadView struct {
	*tview.TextView
	thread      *render.Thread
	userID      string
	partnerName string
	savedFunc   func(msgID string) bool
	width       int
	selID       string
}

// NewThreadView creates the view over a thread model.
func NewThreadView(thread *render.Thread) *ThreadView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true).
		SetWordWrap(true)
	tv.SetBorder(true)

	v := &ThreadView{TextView: tv, thread: thread, width: 80}
	thread.SetHeightFunc(v.MeasureMessage)

	tv.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyRune {
			switch event.Rune() {
			case 'k':
				v.moveSelection(-1)
				return nil
			case 'j':
				v.moveSelection(1)
				return nil
			}
			return event
		}
		switch event.Key() {
		case tcell.KeyUp:
			thread.ScrollBy(-1)
			return nil
		case tcell.KeyDown:
			thread.ScrollBy(1)
			return nil
		case tcell.KeyPgUp:
			thread.ScrollBy(-v.pageSize())
			return nil
		case tcell.KeyPgDn:
			thread.ScrollBy(v.pageSize())
			return nil
		case tcell.KeyEnd:
			thread.ScrollToBottom()
			return nil
		}
		return event
	})
	return v
}

// SetUserID tells the view which sender renders as "You".
func (v *ThreadView) SetUserID(id string) { v.userID = id }

// SetPartnerName sets the header and sender label for the partner.
func (v *ThreadView) SetPartnerName(name string) {
	v.partnerName = name
	v.SetTitle(fmt.Sprintf(" %s ", tview.Escape(sanitizeForTerminal(name))))
}

// SetSavedFunc wires the saved-state probe for the star marker.
func (v *ThreadView) SetSavedFunc(fn func(msgID string) bool) { v.savedFunc = fn }

// Selected returns the highlighted message, or nil.
func (v *ThreadView) Selected() *store.Message {
	if v.selID == "" {
		return nil
	}
	for _, m := range v.thread.Messages() {
		if m.ID == v.selID {
			return m
		}
	}
	return nil
}

// SelectMessage highlights the given message id if it is rendered.
func (v *ThreadView) SelectMessage(id string) {
	v.selID = id
	v.Redraw()
}

// ClearSelection drops the highlight.
func (v *ThreadView) ClearSelection() {
	v.selID = ""
}

// moveSelection steps the highlight through the rendered messages,
// starting from the newest when nothing is selected.
func (v *ThreadView) moveSelection(step int) {
	msgs := v.thread.Messages()
	if len(msgs) == 0 {
		return
	}
	idx := -1
	for i, m := range msgs {
		if m.ID == v.selID {
			idx = i
			break
		}
	}
	if idx < 0 {
		idx = len(msgs) - 1
	} else {
		idx += step
		if idx < 0 {
			idx = 0
		}
		if idx >= len(msgs) {
			idx = len(msgs) - 1
		}
	}
	v.selID = msgs[idx].ID
	v.thread.ScrollBy(step)
	v.Redraw()
}

// pageSize is the scroll step for PgUp/PgDn.
func (v *ThreadView) pageSize() int {
	_, _, _, h := v.GetInnerRect()
	if h < 1 {
		return 10
	}
	return h
}

// MeasureMessage is the height function handed to the thread model:
// one header row, the wrapped content rows, any reply or attachment
// rows, and a blank separator.
func (v *ThreadView) MeasureMessage(m *store.Message) int {
	width := v.width
	if width < 10 {
		width = 10
	}
	rows := 1 // header
	if m.ReplyTo != nil {
		rows++
	}
	content := sanitizeForTerminal(m.Content)
	if content == "" {
		rows++
	} else {
		rows += (len(content) + width - 1) / width
	}
	rows += len(m.Attachments)
	return rows + 1 // separator
}

// Redraw rebuilds the text buffer from the thread model and applies
// the model's scroll offset. Runs on the UI goroutine.
func (v *ThreadView) Redraw() {
	_, _, w, h := v.GetInnerRect()
	if w > 0 {
		v.width = w
	}
	v.Clear()

	var b strings.Builder
	for _, m := range v.thread.Messages() {
		v.writeMessage(&b, m)
	}
	_, _ = fmt.Fprint(v, b.String())

	v.thread.LayoutSettled(h)
	v.ScrollTo(v.thread.ScrollTop(), 0)
}

func (v *ThreadView) writeMessage(b *strings.Builder, m *store.Message) {
	sender := v.partnerName
	if m.SenderID == v.userID {
		sender = "You"
	}
	marker := ""
	if v.savedFunc != nil && v.savedFunc(m.ID) {
		marker = " [yellow]★[-]"
	}
	switch m.Status {
	case outbox.StatusSending:
		marker += " [::d]sending…[-:-:-]"
	case outbox.StatusFailed:
		marker += " [red]failed[-]"
	}
	if m.UploadPercent > 0 && m.UploadPercent < 100 {
		marker += fmt.Sprintf(" [::d]uploading %d%%[-:-:-]", m.UploadPercent)
	}

	cursor := ""
	if m.ID == v.selID {
		cursor = "[::r]›[-:-:-] "
	}
	ts := time.UnixMilli(m.Timestamp).Format("15:04")
	fmt.Fprintf(b, "%s[::b]%s[-:-:-] [::d]%s[-:-:-]%s\n",
		cursor, tview.Escape(sanitizeForTerminal(sender)), ts, marker)

	if m.ReplyTo != nil && m.ReplyTo.Preview != "" {
		fmt.Fprintf(b, "[::d]┃ %s[-:-:-]\n", tview.Escape(sanitizeForTerminal(m.ReplyTo.Preview)))
	}

	if m.Recalled() {
		fmt.Fprintf(b, "[::di]%s[-:-:-]\n", tview.Escape(m.Content))
	} else if m.Content != "" {
		fmt.Fprintf(b, "%s\n", tview.Escape(sanitizeForTerminal(m.Content)))
	} else {
		b.WriteString("\n")
	}

	for _, a := range m.Attachments {
		name := a.Name
		if name == "" {
			name = a.Kind
		}
		fmt.Fprintf(b, "[::d][%s][-:-:-]\n", tview.Escape(name))
	}
	b.WriteString("\n")
}
