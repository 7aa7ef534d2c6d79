// Package saved manages the user's saved-message list: optimistic local
// toggles backed by the REST API, with the durable mirror keeping the
// list across restarts.
package saved

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/rmarinho/convo/internal/api"
	"github.com/rmarinho/convo/internal/history"
	"github.com/rmarinho/convo/internal/notify"
	"github.com/rmarinho/convo/internal/store"
)

// SaveAPI is the slice of the REST client the manager needs.
type SaveAPI interface {
	SaveMessage(ctx context.Context, messageID string) error
	UnsaveMessage(ctx context.Context, messageID string) error
	ListSaved(ctx context.Context, userID, conversationID string) ([]api.Message, error)
}

// Manager tracks which messages the user has saved.
type Manager struct {
	mu    sync.Mutex
	saved map[string]string // msgID -> convID

	store    *store.Store
	client   SaveAPI
	hist     *history.DB
	notifier notify.Notifier
	log      *zap.Logger
}

// NewManager creates a manager. hist and notifier may be nil.
func NewManager(st *store.Store, client SaveAPI, hist *history.DB, n notify.Notifier, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		saved:    make(map[string]string),
		store:    st,
		client:   client,
		hist:     hist,
		notifier: n,
		log:      log,
	}
}

// Restore loads the saved set from the durable mirror.
func (m *Manager) Restore() error {
	if m.hist == nil {
		return nil
	}
	ids, err := m.hist.SavedIDs(m.store.UserID())
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.saved = ids
	m.mu.Unlock()
	counts := make(map[string]int, len(ids))
	for _, convID := range ids {
		counts[convID]++
	}
	for convID, n := range counts {
		m.store.SetSavedCount(convID, n)
	}
	return nil
}

// Saved reports whether the message is in the saved list.
func (m *Manager) Saved(msgID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.saved[msgID]
	return ok
}

// Save adds a message to the saved list. Recalled messages and repeat
// saves are rejected up front; the local state flips immediately and
// reverts if the server refuses.
func (m *Manager) Save(ctx context.Context, convID, msgID string) {
	msg := m.store.Message(convID, msgID)
	if msg == nil {
		return
	}
	if msg.Recalled() {
		m.info("Recalled messages can't be saved.")
		return
	}
	if m.Saved(msgID) {
		m.info("Message is already saved.")
		return
	}

	m.apply(convID, msgID, true)
	if err := m.client.SaveMessage(ctx, msgID); err != nil {
		m.log.Warn("save failed", zap.String("msg", msgID), zap.Error(err))
		m.apply(convID, msgID, false)
		if m.notifier != nil {
			m.notifier.Error("Couldn't save the message.")
		}
		return
	}
	if m.notifier != nil {
		m.notifier.Success("Message saved.")
	}
}

// Unsave removes a message from the saved list. Unknown ids are a
// silent no-op.
func (m *Manager) Unsave(ctx context.Context, msgID string) {
	m.mu.Lock()
	convID, ok := m.saved[msgID]
	m.mu.Unlock()
	if !ok {
		return
	}

	m.apply(convID, msgID, false)
	if err := m.client.UnsaveMessage(ctx, msgID); err != nil {
		m.log.Warn("unsave failed", zap.String("msg", msgID), zap.Error(err))
		m.apply(convID, msgID, true)
		if m.notifier != nil {
			m.notifier.Error("Couldn't remove the saved message.")
		}
	}
}

// SavedMessages returns the saved messages for a conversation, newest
// first as the server reports them. When the API is unreachable the
// durable mirror answers with whatever it holds locally.
func (m *Manager) SavedMessages(ctx context.Context, convID string) ([]*store.Message, error) {
	wire, err := m.client.ListSaved(ctx, m.store.UserID(), convID)
	if err == nil {
		out := make([]*store.Message, 0, len(wire))
		for i := range wire {
			out = append(out, wire[i].ToStore())
		}
		return out, nil
	}
	m.log.Warn("saved list fetch failed, serving local mirror", zap.Error(err))

	m.mu.Lock()
	var ids []string
	for id, cid := range m.saved {
		if cid == convID {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	var out []*store.Message
	for _, id := range ids {
		if msg := m.store.Message(convID, id); msg != nil {
			out = append(out, msg)
		}
	}
	return out, nil
}

// apply flips the local saved state and keeps the counter and the
// mirror in step.
func (m *Manager) apply(convID, msgID string, on bool) {
	m.mu.Lock()
	if on {
		m.saved[msgID] = convID
	} else {
		delete(m.saved, msgID)
	}
	n := 0
	for _, cid := range m.saved {
		if cid == convID {
			n++
		}
	}
	m.mu.Unlock()
	m.store.SetSavedCount(convID, n)

	if m.hist == nil {
		return
	}
	userID := m.store.UserID()
	var err error
	if on {
		err = m.hist.SaveMessage(userID, msgID, convID)
	} else {
		err = m.hist.UnsaveMessage(userID, msgID)
	}
	if err != nil {
		m.log.Warn("saved mirror update failed", zap.String("msg", msgID), zap.Error(err))
	}
}

func (m *Manager) info(text string) {
	if m.notifier != nil {
		m.notifier.Info(text)
	}
}
