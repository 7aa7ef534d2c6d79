package render

import (
	"strings"
	"sync"
	"time"

	"github.com/rmarinho/convo/internal/store"
)

// Options directs a single Render call.
type Options struct {
	// ReplaceAll discards the current item list before rendering.
	ReplaceAll bool
	// Prepend inserts the batch above the existing items, preserving
	// the scroll anchor.
	Prepend bool
	// FocusLatest scrolls to the newest message regardless of the
	// current position. Used for the user's own sends.
	FocusLatest bool
	// FirstPage marks the initial page of a conversation; the view
	// settles at the bottom before the lazy-load sentinel arms.
	FirstPage bool
}

// Renderer is the surface the loader and event router draw through.
type Renderer interface {
	Render(convID string, msgs []*store.Message, opts Options)
	UpdateMessage(convID string, m *store.Message)
	RemoveMessage(convID, msgID string)
}

// HeightFunc measures a message in terminal rows.
type HeightFunc func(*store.Message) int

// bottom-settle passes before the sentinel arms; the first layouts after
// a conversation switch can reflow as widths stabilise
const settleAttempts = 3

// Thread renders one open conversation. Calls that name another
// conversation are dropped, which makes stale async completions after a
// switch harmless.
type Thread struct {
	mu sync.Mutex

	convID   string
	vp       *Viewport
	sentinel *Sentinel

	order  []string
	msgs   map[string]*store.Message
	filter string

	heightOf       HeightFunc
	nearBottomRows int
	cooldown       time.Duration
	settleLeft     int

	loadOlder func(convID string)
	inFlight  func(convID string) bool
	hasMore   func(convID string) bool
	redraw    func()
}

// NewThread creates a renderer with no open conversation.
func NewThread(heightOf HeightFunc, nearBottomRows int, cooldown time.Duration) *Thread {
	return &Thread{
		vp:             NewViewport(0),
		sentinel:       NewSentinel(cooldown),
		msgs:           make(map[string]*store.Message),
		heightOf:       heightOf,
		nearBottomRows: nearBottomRows,
		cooldown:       cooldown,
	}
}

// SetHeightFunc wires the measuring function. The drawing layer binds
// this once it knows how to wrap content for the terminal width.
func (t *Thread) SetHeightFunc(fn HeightFunc) { t.heightOf = fn }

// SetLoadOlder wires the callback fired when the top sentinel triggers.
func (t *Thread) SetLoadOlder(fn func(convID string)) { t.loadOlder = fn }

// SetInFlight wires the loading probe for the open conversation.
func (t *Thread) SetInFlight(fn func(convID string) bool) { t.inFlight = fn }

// SetHasMore wires the probe for whether older pages remain.
func (t *Thread) SetHasMore(fn func(convID string) bool) { t.hasMore = fn }

// SetRedraw wires the terminal repaint hook.
func (t *Thread) SetRedraw(fn func()) { t.redraw = fn }

// Open switches the renderer to a conversation. The previous sentinel
// is invalidated synchronously so no stale trigger can fire, and the
// item list is cleared until the loader renders the first page.
func (t *Thread) Open(convID string) {
	t.mu.Lock()
	t.sentinel.Invalidate()
	t.sentinel = NewSentinel(t.cooldown)
	t.convID = convID
	t.order = nil
	t.msgs = make(map[string]*store.Message)
	t.filter = ""
	t.settleLeft = 0
	t.vp.Replace(nil)
	t.mu.Unlock()
	t.repaint()
}

// OpenID returns the id of the open conversation, or "".
func (t *Thread) OpenID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.convID
}

// Render implements Renderer.
func (t *Thread) Render(convID string, msgs []*store.Message, opts Options) {
	t.mu.Lock()
	if convID == "" || convID != t.convID {
		t.mu.Unlock()
		return
	}
	switch {
	case opts.ReplaceAll:
		t.order = t.order[:0]
		t.msgs = make(map[string]*store.Message, len(msgs))
		for _, m := range msgs {
			t.order = append(t.order, m.ID)
			t.msgs[m.ID] = m
		}
		t.vp.Replace(t.visibleItems())
		if opts.FirstPage || opts.FocusLatest {
			t.vp.ScrollToBottom()
			t.settleLeft = settleAttempts
			t.sentinel.Disconnect()
		} else {
			t.sentinel.Connect()
		}
	case opts.Prepend:
		var fresh []string
		for _, m := range msgs {
			if _, dup := t.msgs[m.ID]; dup {
				continue
			}
			fresh = append(fresh, m.ID)
			t.msgs[m.ID] = m
		}
		t.order = append(fresh, t.order...)
		items := make([]Item, 0, len(fresh))
		for _, id := range fresh {
			if t.visible(t.msgs[id]) {
				items = append(items, Item{ID: id, Height: t.measure(t.msgs[id])})
			}
		}
		t.vp.Prepend(items)
	default:
		for _, m := range msgs {
			t.appendLocked(m, opts.FocusLatest)
		}
	}
	t.mu.Unlock()
	t.repaint()
}

func (t *Thread) appendLocked(m *store.Message, focusLatest bool) {
	if _, dup := t.msgs[m.ID]; dup {
		t.msgs[m.ID] = m
		t.vp.SetHeight(m.ID, t.measure(m))
		return
	}
	t.order = append(t.order, m.ID)
	t.msgs[m.ID] = m
	if !t.visible(m) {
		return
	}
	t.vp.Append(Item{ID: m.ID, Height: t.measure(m)}, focusLatest, t.nearBottomRows)
}

// UpdateMessage re-renders a single message in place, e.g. after a
// recall or a read receipt.
func (t *Thread) UpdateMessage(convID string, m *store.Message) {
	t.mu.Lock()
	if convID != t.convID {
		t.mu.Unlock()
		return
	}
	if _, ok := t.msgs[m.ID]; !ok {
		t.mu.Unlock()
		return
	}
	t.msgs[m.ID] = m
	if !t.vp.SetHeight(m.ID, t.measure(m)) && t.visible(m) {
		// item was filtered out before the update; rebuild
		t.vp.Replace(t.visibleItems())
		t.vp.ScrollToBottom()
	}
	t.mu.Unlock()
	t.repaint()
}

// RemoveMessage drops a message from the view.
func (t *Thread) RemoveMessage(convID, msgID string) {
	t.mu.Lock()
	if convID != t.convID {
		t.mu.Unlock()
		return
	}
	delete(t.msgs, msgID)
	for i, id := range t.order {
		if id == msgID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	t.vp.Remove(msgID)
	t.mu.Unlock()
	t.repaint()
}

// SetFilter hides rendered messages whose content does not contain the
// query, case-insensitive. An empty query shows everything. The refine
// pass never fetches; it works over what is already rendered.
func (t *Thread) SetFilter(query string) {
	t.mu.Lock()
	t.filter = strings.ToLower(strings.TrimSpace(query))
	t.vp.Replace(t.visibleItems())
	t.vp.ScrollToBottom()
	t.mu.Unlock()
	t.repaint()
}

func (t *Thread) measure(m *store.Message) int {
	if t.heightOf == nil {
		return 1
	}
	return t.heightOf(m)
}

func (t *Thread) visible(m *store.Message) bool {
	if t.filter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(m.Content), t.filter)
}

func (t *Thread) visibleItems() []Item {
	items := make([]Item, 0, len(t.order))
	for _, id := range t.order {
		m := t.msgs[id]
		if m == nil || !t.visible(m) {
			continue
		}
		items = append(items, Item{ID: id, Height: t.measure(m)})
	}
	return items
}

// Messages returns the currently visible messages in display order.
func (t *Thread) Messages() []*store.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*store.Message, 0, len(t.order))
	for _, id := range t.order {
		m := t.msgs[id]
		if m != nil && t.visible(m) {
			out = append(out, m)
		}
	}
	return out
}

// ScrollTop returns the viewport scroll offset for the drawing layer.
func (t *Thread) ScrollTop() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.vp.ScrollTop()
}

// LayoutSettled is called by the drawing layer after each paint with
// the final viewport height. While a first-page settle is pending it
// re-snaps to the bottom; the sentinel arms only once settling is done.
func (t *Thread) LayoutSettled(viewHeight int) {
	t.mu.Lock()
	t.vp.SetViewHeight(viewHeight)
	if t.settleLeft > 0 {
		t.vp.ScrollToBottom()
		t.settleLeft--
		if t.settleLeft == 0 && !t.vp.NearBottom(t.nearBottomRows) {
			t.sentinel.Connect()
		}
	}
	t.mu.Unlock()
}

// ScrollBy moves the viewport and re-evaluates the lazy-load sentinel.
func (t *Thread) ScrollBy(delta int) {
	t.mu.Lock()
	t.vp.ScrollBy(delta)
	t.mu.Unlock()
	t.AfterScroll()
	t.repaint()
}

// ScrollToBottom jumps to the newest message.
func (t *Thread) ScrollToBottom() {
	t.mu.Lock()
	t.vp.ScrollToBottom()
	t.mu.Unlock()
	t.AfterScroll()
	t.repaint()
}

// AfterScroll re-arms or disarms the sentinel for the new position and
// fires the older-page load when the trigger conditions hold.
func (t *Thread) AfterScroll() {
	t.mu.Lock()
	convID := t.convID
	if convID == "" || t.settleLeft > 0 {
		t.mu.Unlock()
		return
	}
	near := t.vp.NearBottom(t.nearBottomRows)
	if near {
		t.sentinel.Disconnect()
	} else {
		t.sentinel.Connect()
	}
	inFlight := t.inFlight != nil && t.inFlight(convID)
	hasMore := t.hasMore == nil || t.hasMore(convID)
	fire := t.sentinel.Observe(t.vp.AtTop(), near, inFlight, hasMore)
	loadOlder := t.loadOlder
	t.mu.Unlock()
	if fire && loadOlder != nil {
		loadOlder(convID)
	}
}

// SentinelConnected reports whether the lazy-load sentinel is armed.
func (t *Thread) SentinelConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sentinel.Connected()
}

func (t *Thread) repaint() {
	if t.redraw != nil {
		t.redraw()
	}
}
