package presence

import (
	"testing"
	"time"

	"github.com/rmarinho/convo/internal/bus"
	"github.com/rmarinho/convo/internal/store"
)

const hold = 40 * time.Millisecond

func TestOnlineAppliesImmediately(t *testing.T) {
	m := NewManager(nil, nil, hold, true)
	m.SetOnline("u1")
	if got := m.Status("u1"); got != store.PresenceOnline {
		t.Fatalf("status = %s, want Online", got)
	}
}

func TestOfflineHeldAfterRecentOnline(t *testing.T) {
	m := NewManager(nil, nil, hold, true)
	m.SetOnline("u1")
	m.SetOffline("u1")

	if got := m.Status("u1"); got != store.PresenceOnline {
		t.Fatalf("status flipped immediately, want hold window")
	}
	time.Sleep(2 * hold)
	if got := m.Status("u1"); got != store.PresenceOffline {
		t.Fatalf("status = %s after hold window, want Offline", got)
	}
}

func TestOnlineCancelsHeldOffline(t *testing.T) {
	m := NewManager(nil, nil, hold, true)
	m.SetOnline("u1")
	m.SetOffline("u1")
	m.SetOnline("u1")

	time.Sleep(2 * hold)
	if got := m.Status("u1"); got != store.PresenceOnline {
		t.Fatalf("status = %s, want Online (held offline was superseded)", got)
	}
}

func TestOfflineImmediateWithoutRecentOnline(t *testing.T) {
	m := NewManager(nil, nil, hold, true)
	now := time.Unix(1000, 0)
	m.SetClock(func() time.Time { return now })

	m.SetOnline("u1")
	now = now.Add(4 * hold) // beyond the recent-activity horizon
	m.SetOffline("u1")
	if got := m.Status("u1"); got != store.PresenceOffline {
		t.Fatalf("status = %s, want Offline immediately", got)
	}
}

func TestOfflineForUnknownUserIsImmediate(t *testing.T) {
	m := NewManager(nil, nil, hold, true)
	m.SetOffline("stranger")
	if got := m.Status("stranger"); got != store.PresenceOffline {
		t.Fatalf("status = %s, want Offline", got)
	}
}

func TestDisabledHidesPresence(t *testing.T) {
	m := NewManager(nil, nil, hold, true)
	m.SetOnline("u1")
	m.SetEnabled(false)
	if got := m.Status("u1"); got != store.PresenceOffline {
		t.Fatalf("status = %s with indicators disabled, want Offline", got)
	}
	if m.Enabled() {
		t.Fatal("Enabled() = true after disable")
	}
}

func TestPresenceChangePublishedAndStoreUpdated(t *testing.T) {
	st := store.New(time.Minute)
	st.SetUserID("me")
	st.Put(&store.Conversation{ID: "c1", PartnerID: "u1", Name: "U One"})

	b := bus.New()
	ch, unsub := b.Subscribe("presence.", 4)
	defer unsub()

	m := NewManager(st, b, hold, true)
	m.SetOnline("u1")

	select {
	case ev := <-ch:
		change, ok := ev.Payload.(Change)
		if !ok || change.UserID != "u1" || change.Status != store.PresenceOnline {
			t.Fatalf("payload = %+v", ev.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no presence event published")
	}
	if c := st.Conversation("c1"); c.Status != store.PresenceOnline {
		t.Fatalf("store status = %s, want Online", c.Status)
	}
}

func TestStopCancelsHeldTransitions(t *testing.T) {
	m := NewManager(nil, nil, hold, true)
	m.SetOnline("u1")
	m.SetOffline("u1")
	m.Stop()

	time.Sleep(2 * hold)
	if got := m.Status("u1"); got != store.PresenceOnline {
		t.Fatalf("status = %s, want Online (held transition cancelled)", got)
	}
}
