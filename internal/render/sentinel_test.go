package render

import (
	"testing"
	"time"
)

func TestSentinelCooldown(t *testing.T) {
	s := NewSentinel(400 * time.Millisecond)
	now := time.Unix(0, 0)
	s.SetClock(func() time.Time { return now })
	s.Connect()

	if !s.Observe(true, false, false, true) {
		t.Fatal("first observe should fire")
	}
	now = now.Add(100 * time.Millisecond)
	if s.Observe(true, false, false, true) {
		t.Fatal("fired inside cooldown window")
	}
	now = now.Add(350 * time.Millisecond)
	if !s.Observe(true, false, false, true) {
		t.Fatal("should fire after cooldown elapsed")
	}
}

func TestSentinelGuards(t *testing.T) {
	s := NewSentinel(0)
	s.Connect()
	if s.Observe(false, false, false, true) {
		t.Fatal("fired with sentinel not visible")
	}
	if s.Observe(true, true, false, true) {
		t.Fatal("fired while near bottom")
	}
	if s.Observe(true, false, true, true) {
		t.Fatal("fired with a load in flight")
	}
	if s.Observe(true, false, false, false) {
		t.Fatal("fired with no more history")
	}
	if !s.Observe(true, false, false, true) {
		t.Fatal("should fire with all conditions met")
	}
}

func TestSentinelDisconnected(t *testing.T) {
	s := NewSentinel(0)
	if s.Observe(true, false, false, true) {
		t.Fatal("fired before Connect")
	}
	s.Connect()
	s.Disconnect()
	if s.Observe(true, false, false, true) {
		t.Fatal("fired after Disconnect")
	}
	s.Connect()
	if !s.Observe(true, false, false, true) {
		t.Fatal("reconnect should re-arm")
	}
}

func TestSentinelInvalidateIsPermanent(t *testing.T) {
	s := NewSentinel(0)
	s.Connect()
	s.Invalidate()
	if s.Connected() {
		t.Fatal("still connected after Invalidate")
	}
	s.Connect()
	if s.Connected() || s.Observe(true, false, false, true) {
		t.Fatal("stale sentinel must never re-arm")
	}
}
