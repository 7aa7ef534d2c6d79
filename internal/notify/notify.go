// Package notify surfaces user-facing feedback as toast events on the
// bus. The TUI status bar subscribes and flashes them.
package notify

import (
	"time"

	"github.com/rmarinho/convo/internal/bus"
	"go.uber.org/zap"
)

// Level classifies a toast.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Toast is the payload published under bus.KindToast.
type Toast struct {
	Level Level
	Text  string
}

// Notifier is the feedback surface handed to controllers.
type Notifier interface {
	Info(text string)
	Success(text string)
	Error(text string)
}

// BusNotifier publishes toasts on the event bus and mirrors them to the
// log so feedback survives past the flash window.
type BusNotifier struct {
	bus *bus.Bus
	log *zap.Logger
}

// New creates a bus-backed notifier.
func New(b *bus.Bus, log *zap.Logger) *BusNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &BusNotifier{bus: b, log: log}
}

func (n *BusNotifier) Info(text string)    { n.publish(LevelInfo, text) }
func (n *BusNotifier) Success(text string) { n.publish(LevelSuccess, text) }

func (n *BusNotifier) Error(text string) {
	n.log.Warn("user-facing error", zap.String("text", text))
	n.publish(LevelError, text)
}

func (n *BusNotifier) publish(level Level, text string) {
	if n.bus == nil {
		return
	}
	n.bus.Publish(bus.Event{
		Kind:      bus.KindToast,
		Timestamp: time.Now(),
		Payload:   Toast{Level: level, Text: text},
	})
}
