// Package presence tracks partner online state with offline hysteresis:
// online signals apply immediately, offline signals that arrive shortly
// after an online signal are held for a grace window before taking
// effect. Server push streams often emit an offline burst right before
// the matching online event; the hold window absorbs that flapping.
package presence

import (
	"sync"
	"time"

	"github.com/rmarinho/convo/internal/bus"
	"github.com/rmarinho/convo/internal/store"
)

// Change is the payload published on presence transitions.
type Change struct {
	UserID string
	Status store.Presence
}

type record struct {
	status       store.Presence
	lastOnlineAt time.Time
	pending      *time.Timer
	generation   uint64
}

// Manager applies presence signals per user.
type Manager struct {
	mu      sync.Mutex
	records map[string]*record
	hold    time.Duration
	store   *store.Store
	bus     *bus.Bus
	enabled bool
	stopped bool
	now     func() time.Time
}

// NewManager creates a presence manager. hold is the offline grace
// window; recent online activity is anything within three hold windows.
func NewManager(st *store.Store, b *bus.Bus, hold time.Duration, enabled bool) *Manager {
	return &Manager{
		records: make(map[string]*record),
		hold:    hold,
		store:   st,
		bus:     b,
		enabled: enabled,
		now:     time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// Enabled reports whether presence indicators are shown at all.
func (m *Manager) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// SetEnabled toggles presence indicators. Disabling hides them
// immediately without waiting out any hold window.
func (m *Manager) SetEnabled(on bool) {
	m.mu.Lock()
	m.enabled = on
	m.mu.Unlock()
	if m.bus != nil {
		m.bus.Publish(bus.Event{Kind: bus.KindConversationsRefresh, Timestamp: time.Now()})
	}
}

// Status returns the tracked presence for a user. Unknown users and
// disabled indicators both read as offline.
func (m *Manager) Status(userID string) store.Presence {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled {
		return store.PresenceOffline
	}
	if r, ok := m.records[userID]; ok {
		return r.status
	}
	return store.PresenceOffline
}

// SetOnline applies an online signal immediately and cancels any held
// offline transition for the user.
func (m *Manager) SetOnline(userID string) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	r := m.record(userID)
	r.generation++
	if r.pending != nil {
		r.pending.Stop()
		r.pending = nil
	}
	r.lastOnlineAt = m.now()
	changed := r.status != store.PresenceOnline
	r.status = store.PresenceOnline
	m.mu.Unlock()
	if changed {
		m.apply(userID, store.PresenceOnline)
	}
}

// SetOffline applies an offline signal. If the user showed online
// activity within three hold windows, the transition is deferred by one
// hold window; a newer signal in the meantime wins. Otherwise it takes
// effect immediately.
func (m *Manager) SetOffline(userID string) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	r := m.record(userID)
	r.generation++
	gen := r.generation
	if r.pending != nil {
		r.pending.Stop()
		r.pending = nil
	}
	recent := !r.lastOnlineAt.IsZero() && m.now().Sub(r.lastOnlineAt) <= 3*m.hold
	if !recent || r.status != store.PresenceOnline {
		changed := r.status != store.PresenceOffline
		r.status = store.PresenceOffline
		m.mu.Unlock()
		if changed {
			m.apply(userID, store.PresenceOffline)
		}
		return
	}
	r.pending = time.AfterFunc(m.hold, func() {
		m.mu.Lock()
		r, ok := m.records[userID]
		if !ok || r.generation != gen || m.stopped {
			m.mu.Unlock()
			return
		}
		r.pending = nil
		r.status = store.PresenceOffline
		m.mu.Unlock()
		m.apply(userID, store.PresenceOffline)
	})
	m.mu.Unlock()
}

// Stop cancels all held transitions.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	for _, r := range m.records {
		if r.pending != nil {
			r.pending.Stop()
			r.pending = nil
		}
	}
}

func (m *Manager) record(userID string) *record {
	r, ok := m.records[userID]
	if !ok {
		r = &record{status: store.PresenceOffline}
		m.records[userID] = r
	}
	return r
}

func (m *Manager) apply(userID string, p store.Presence) {
	if m.store != nil {
		if c := m.store.ByPartner(userID); c != nil {
			m.store.SetStatus(c.ID, p)
		}
	}
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      bus.KindPresenceChanged,
			Timestamp: time.Now(),
			Payload:   Change{UserID: userID, Status: p},
		})
	}
}
