package render

import "time"

// Sentinel guards the lazy-load trigger at the top of the thread. It
// fires at most once per cooldown window, never while a load is in
// flight, never while the viewport sits near the bottom, and never
// after it has been invalidated by a conversation switch.
type Sentinel struct {
	cooldown  time.Duration
	connected bool
	stale     bool
	lastFire  time.Time
	now       func() time.Time
}

// NewSentinel creates a disconnected sentinel. Connect it once the
// initial render has settled at the bottom.
func NewSentinel(cooldown time.Duration) *Sentinel {
	return &Sentinel{cooldown: cooldown, now: time.Now}
}

// SetClock overrides the time source. Test hook.
func (s *Sentinel) SetClock(now func() time.Time) { s.now = now }

// Connect arms the sentinel.
func (s *Sentinel) Connect() {
	if s.stale {
		return
	}
	s.connected = true
}

// Disconnect disarms the sentinel without invalidating it.
func (s *Sentinel) Disconnect() { s.connected = false }

// Connected reports whether the sentinel is armed.
func (s *Sentinel) Connected() bool { return s.connected && !s.stale }

// Invalidate permanently retires the sentinel. Used on conversation
// switch so a stale observer can never fire for the old thread.
func (s *Sentinel) Invalidate() {
	s.stale = true
	s.connected = false
}

// Observe evaluates the trigger conditions after a scroll or layout
// change and reports whether an older-page load should start now.
func (s *Sentinel) Observe(topVisible, nearBottom, inFlight, hasMore bool) bool {
	if !s.Connected() || !topVisible || nearBottom || inFlight || !hasMore {
		return false
	}
	now := s.now()
	if !s.lastFire.IsZero() && now.Sub(s.lastFire) < s.cooldown {
		return false
	}
	s.lastFire = now
	return true
}
