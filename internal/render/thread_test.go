package render

import (
	"fmt"
	"testing"
	"time"

	"github.com/rmarinho/convo/internal/store"
)

func msg(id string, ts int64, content string) *store.Message {
	return &store.Message{ID: id, SenderID: "me", ReceiverID: "them", Content: content, Timestamp: ts}
}

func fixedHeight(h int) HeightFunc {
	return func(*store.Message) int { return h }
}

func newTestThread(t *testing.T) *Thread {
	t.Helper()
	th := NewThread(fixedHeight(2), 3, 0)
	th.Open("conv1")
	return th
}

func settle(th *Thread, viewHeight int) {
	for i := 0; i < settleAttempts; i++ {
		th.LayoutSettled(viewHeight)
	}
}

func firstPage(th *Thread, n int) {
	msgs := make([]*store.Message, n)
	for i := 0; i < n; i++ {
		msgs[i] = msg(fmt.Sprintf("m%d", i), int64(i*1000), fmt.Sprintf("message %d", i))
	}
	th.Render("conv1", msgs, Options{ReplaceAll: true, FirstPage: true})
	settle(th, 6)
}

func TestThreadFirstPageSettlesAtBottom(t *testing.T) {
	th := newTestThread(t)
	firstPage(th, 10) // 20 rows, view 6

	if got := th.ScrollTop(); got != 14 {
		t.Fatalf("scrollTop = %d, want 14 (bottom)", got)
	}
	if th.SentinelConnected() {
		t.Fatal("sentinel should stay disarmed while near bottom")
	}
}

func TestThreadSentinelFiresAtTopOnce(t *testing.T) {
	th := NewThread(fixedHeight(2), 3, time.Minute)
	th.Open("conv1")
	var fired []string
	th.SetLoadOlder(func(convID string) { fired = append(fired, convID) })
	firstPage(th, 10)

	th.ScrollBy(-8) // away from bottom, not yet at top
	if len(fired) != 0 {
		t.Fatalf("fired %d times before reaching top", len(fired))
	}
	th.ScrollBy(-6) // top
	if len(fired) != 1 || fired[0] != "conv1" {
		t.Fatalf("fired = %v, want one trigger for conv1", fired)
	}
	th.ScrollBy(-1) // still top, inside cooldown
	if len(fired) != 1 {
		t.Fatalf("cooldown violated, fired %d times", len(fired))
	}
}

func TestThreadSentinelRespectsInFlight(t *testing.T) {
	th := newTestThread(t)
	loading := true
	fired := 0
	th.SetInFlight(func(string) bool { return loading })
	th.SetLoadOlder(func(string) { fired++ })
	firstPage(th, 10)

	th.ScrollBy(-14)
	if fired != 0 {
		t.Fatal("fired while a load was in flight")
	}
	loading = false
	th.ScrollBy(0)
	if fired != 1 {
		t.Fatalf("fired = %d after load settled, want 1", fired)
	}
}

func TestThreadSentinelRespectsHasMore(t *testing.T) {
	th := newTestThread(t)
	fired := 0
	th.SetHasMore(func(string) bool { return false })
	th.SetLoadOlder(func(string) { fired++ })
	firstPage(th, 10)

	th.ScrollBy(-14)
	if fired != 0 {
		t.Fatal("fired with history exhausted")
	}
}

func TestThreadPrependPreservesAnchor(t *testing.T) {
	th := newTestThread(t)
	firstPage(th, 10)
	th.ScrollBy(-10)
	anchorBefore := th.ScrollTop()

	older := []*store.Message{
		msg("old1", -2000, "older one"),
		msg("old2", -1000, "older two"),
	}
	th.Render("conv1", older, Options{Prepend: true})
	if got := th.ScrollTop(); got != anchorBefore+4 {
		t.Fatalf("scrollTop = %d, want %d (anchor + inserted height)", got, anchorBefore+4)
	}
}

func TestThreadPrependDuplicateIds(t *testing.T) {
	th := newTestThread(t)
	firstPage(th, 4)
	th.Render("conv1", []*store.Message{
		msg("m0", 0, "message 0"), // already rendered
		msg("old", -1000, "fresh"),
	}, Options{Prepend: true})

	got := th.Messages()
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}
	if got[0].ID != "old" || got[1].ID != "m0" {
		t.Fatalf("order = [%s %s ...], want [old m0 ...]", got[0].ID, got[1].ID)
	}
}

func TestThreadStaleConversationDropped(t *testing.T) {
	th := newTestThread(t)
	firstPage(th, 3)
	th.Open("conv2")

	// late completion for the old conversation
	th.Render("conv1", []*store.Message{msg("late", 9000, "late")}, Options{})
	if n := len(th.Messages()); n != 0 {
		t.Fatalf("stale render leaked %d messages into conv2", n)
	}
}

func TestThreadSwitchInvalidatesSentinel(t *testing.T) {
	th := newTestThread(t)
	fired := 0
	th.SetLoadOlder(func(string) { fired++ })
	firstPage(th, 10)

	old := th.sentinel
	th.Open("conv2")
	old.Connect()
	if old.Observe(true, false, false, true) {
		t.Fatal("invalidated sentinel fired")
	}
	if fired != 0 {
		t.Fatalf("fired = %d, want 0", fired)
	}
}

func TestThreadAppendFollowsWhenNearBottom(t *testing.T) {
	th := newTestThread(t)
	firstPage(th, 10)

	th.Render("conv1", []*store.Message{msg("new", 99000, "incoming")}, Options{})
	if !th.vp.NearBottom(0) {
		t.Fatal("append near bottom should keep the view pinned to bottom")
	}

	th.ScrollBy(-12)
	before := th.ScrollTop()
	th.Render("conv1", []*store.Message{msg("new2", 99500, "incoming 2")}, Options{})
	if th.ScrollTop() != before {
		t.Fatal("append while reading history moved the view")
	}

	th.Render("conv1", []*store.Message{msg("mine", 99900, "sent by me")}, Options{FocusLatest: true})
	if !th.vp.NearBottom(0) {
		t.Fatal("focusLatest should snap to bottom")
	}
}

func TestThreadRemoveMessage(t *testing.T) {
	th := newTestThread(t)
	firstPage(th, 5)
	th.RemoveMessage("conv1", "m2")
	for _, m := range th.Messages() {
		if m.ID == "m2" {
			t.Fatal("removed message still rendered")
		}
	}
	if n := len(th.Messages()); n != 4 {
		t.Fatalf("len = %d, want 4", n)
	}
}

func TestThreadUpdateMessageInPlace(t *testing.T) {
	th := newTestThread(t)
	firstPage(th, 3)
	upd := msg("m1", 1000, "edited")
	upd.RecallType = store.RecallSoft
	upd.Content = store.RecalledText
	th.UpdateMessage("conv1", upd)

	got := th.Messages()
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3 (update must not append)", len(got))
	}
	if got[1].Content != store.RecalledText {
		t.Fatalf("content = %q, want recall placeholder", got[1].Content)
	}
}

func TestThreadFilterRefinesRenderedOnly(t *testing.T) {
	th := newTestThread(t)
	th.Render("conv1", []*store.Message{
		msg("a", 0, "lunch plans"),
		msg("b", 1000, "see you at the Park"),
		msg("c", 2000, "park again"),
	}, Options{ReplaceAll: true, FirstPage: true})
	settle(th, 6)

	th.SetFilter("park")
	got := th.Messages()
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "c" {
		t.Fatalf("filtered = %v, want [b c]", ids(got))
	}

	th.SetFilter("")
	if len(th.Messages()) != 3 {
		t.Fatal("clearing the filter must restore all messages")
	}
}

func ids(msgs []*store.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}
