package tui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Composer is the text input for sending messages. A pending reply
// target shows in the label until sent or cancelled.
type Composer struct {
	*tview.InputField
	onSend  func(text, replyToID string)
	replyTo string
}

// NewComposer creates the message composer.
func NewComposer() *Composer {
	input := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)

	c := &Composer{InputField: input}

	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && c.onSend != nil {
			text := c.GetText()
			if text != "" {
				c.onSend(text, c.replyTo)
				c.SetText("")
				c.ClearReply()
			}
		}
	})

	return c
}

// SetOnSend sets the send callback.
func (c *Composer) SetOnSend(fn func(text, replyToID string)) {
	c.onSend = fn
}

// SetReply arms a reply to the given message.
func (c *Composer) SetReply(msgID, preview string) {
	c.replyTo = msgID
	if len(preview) > 24 {
		preview = preview[:24] + "…"
	}
	c.SetLabel(" ↩ " + preview + " > ")
}

// ClearReply drops the pending reply target.
func (c *Composer) ClearReply() {
	c.replyTo = ""
	c.SetLabel(" > ")
}
