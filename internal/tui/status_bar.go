package tui

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
)

// StatusBar shows the profile, connection state, the active partner's
// presence, and transient flash messages.
type StatusBar struct {
	*tview.TextView
	profile   string
	connected bool
	partner   string
	presence  string
	typing    bool
	flash     string
}

// NewStatusBar creates the status bar.
func NewStatusBar() *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)
	return &StatusBar{TextView: tv}
}

// SetProfile updates the profile name display.
func (sb *StatusBar) SetProfile(name string) {
	sb.profile = name
	sb.render()
}

// SetConnected updates the push-channel indicator.
func (sb *StatusBar) SetConnected(on bool) {
	sb.connected = on
	sb.render()
}

// SetPresence shows the open conversation's partner state. Empty
// partner clears the segment.
func (sb *StatusBar) SetPresence(partner, presence string) {
	sb.partner = partner
	sb.presence = presence
	sb.render()
}

// SetTyping toggles the typing indicator for the open conversation.
func (sb *StatusBar) SetTyping(on bool) {
	sb.typing = on
	sb.render()
}

// SetFlash sets a temporary message.
func (sb *StatusBar) SetFlash(msg string) {
	sb.flash = msg
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()

	conn := "[red]offline[-]"
	if sb.connected {
		conn = "[green]live[-]"
	}
	line := fmt.Sprintf(" [::b]%s[-:-:-] | %s | %s", sb.profile, conn, time.Now().Format("15:04"))
	if sb.partner != "" {
		seg := sb.presence
		if sb.typing {
			seg = "typing..."
		}
		if seg != "" {
			line += fmt.Sprintf(" | %s: %s", tview.Escape(sanitizeForTerminal(sb.partner)), seg)
		}
	}
	if sb.flash != "" {
		line += fmt.Sprintf(" | [yellow]%s[-]", tview.Escape(sb.flash))
	}
	_, _ = fmt.Fprint(sb, line)
}
