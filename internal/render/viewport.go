// Package render models the message view: an item list with pixel-free
// row heights, a scroll viewport, and the lazy-load sentinel. The tview
// layer projects this model onto the terminal; keeping the geometry here
// makes the scroll-anchor and lazy-load invariants testable.
package render

// Item is one rendered message block.
type Item struct {
	ID     string
	Height int // rows
}

// Viewport tracks scroll state over a vertical list of items.
type Viewport struct {
	items      []Item
	scrollTop  int
	viewHeight int
}

// NewViewport creates an empty viewport with the given visible height.
func NewViewport(viewHeight int) *Viewport {
	return &Viewport{viewHeight: viewHeight}
}

// SetViewHeight updates the visible height, clamping the scroll offset.
func (v *Viewport) SetViewHeight(h int) {
	if h < 0 {
		h = 0
	}
	v.viewHeight = h
	v.clamp()
}

// ViewHeight returns the visible height in rows.
func (v *Viewport) ViewHeight() int { return v.viewHeight }

// ContentHeight returns the total height of all items.
func (v *Viewport) ContentHeight() int {
	h := 0
	for _, it := range v.items {
		h += it.Height
	}
	return h
}

// ScrollTop returns the current scroll offset from the content top.
func (v *Viewport) ScrollTop() int { return v.scrollTop }

// Len returns the number of items.
func (v *Viewport) Len() int { return len(v.items) }

// Items returns the item list. Callers must not mutate it.
func (v *Viewport) Items() []Item { return v.items }

func (v *Viewport) maxScroll() int {
	m := v.ContentHeight() - v.viewHeight
	if m < 0 {
		m = 0
	}
	return m
}

func (v *Viewport) clamp() {
	if v.scrollTop > v.maxScroll() {
		v.scrollTop = v.maxScroll()
	}
	if v.scrollTop < 0 {
		v.scrollTop = 0
	}
}

// ScrollBy moves the viewport by delta rows, clamped to content bounds.
func (v *Viewport) ScrollBy(delta int) {
	v.scrollTop += delta
	v.clamp()
}

// ScrollToBottom snaps the viewport to the newest content.
func (v *Viewport) ScrollToBottom() {
	v.scrollTop = v.maxScroll()
}

// AtTop reports whether the first content row is visible, i.e. the
// lazy-load sentinel at the head of the list is inside the viewport.
func (v *Viewport) AtTop() bool {
	return v.scrollTop == 0
}

// NearBottom reports whether the viewport is within threshold rows of
// the newest content.
func (v *Viewport) NearBottom(threshold int) bool {
	return v.maxScroll()-v.scrollTop <= threshold
}

// Replace swaps the whole item list. Scroll position resets to top;
// callers decide whether to snap to bottom afterwards.
func (v *Viewport) Replace(items []Item) {
	v.items = append([]Item(nil), items...)
	v.scrollTop = 0
	v.clamp()
}

// Prepend inserts older items before the current head, skipping ids
// already present, and shifts the scroll offset by exactly the height
// introduced so the visible content stays stationary. Returns that
// height delta.
func (v *Viewport) Prepend(items []Item) int {
	seen := make(map[string]struct{}, len(v.items))
	for _, it := range v.items {
		seen[it.ID] = struct{}{}
	}
	var fresh []Item
	delta := 0
	for _, it := range items {
		if _, dup := seen[it.ID]; dup {
			continue
		}
		seen[it.ID] = struct{}{}
		fresh = append(fresh, it)
		delta += it.Height
	}
	if delta == 0 {
		return 0
	}
	v.items = append(fresh, v.items...)
	v.scrollTop += delta
	v.clamp()
	return delta
}

// Append adds a new item at the bottom. If the viewport was already near
// the bottom (within threshold) or focusLatest is set, it auto-scrolls to
// the new bottom; otherwise the scroll offset is left undisturbed.
// Returns whether it auto-scrolled.
func (v *Viewport) Append(item Item, focusLatest bool, threshold int) bool {
	for _, it := range v.items {
		if it.ID == item.ID {
			return false
		}
	}
	wasNear := v.NearBottom(threshold)
	v.items = append(v.items, item)
	if wasNear || focusLatest {
		v.ScrollToBottom()
		return true
	}
	return false
}

// Remove deletes an item by id. If the item sat entirely above the
// viewport, the scroll offset shrinks by its height so the visible
// content does not jump.
func (v *Viewport) Remove(id string) bool {
	offset := 0
	for i, it := range v.items {
		if it.ID == id {
			if offset+it.Height <= v.scrollTop {
				v.scrollTop -= it.Height
			}
			v.items = append(v.items[:i], v.items[i+1:]...)
			v.clamp()
			return true
		}
		offset += it.Height
	}
	return false
}

// SetHeight updates an item's height in place, preserving the visual
// anchor when the item is above the viewport.
func (v *Viewport) SetHeight(id string, h int) bool {
	offset := 0
	for i, it := range v.items {
		if it.ID == id {
			if offset+it.Height <= v.scrollTop {
				v.scrollTop += h - it.Height
			}
			v.items[i].Height = h
			v.clamp()
			return true
		}
		offset += it.Height
	}
	return false
}

// OffsetOf returns the row offset of the item with the given id, or -1.
func (v *Viewport) OffsetOf(id string) int {
	offset := 0
	for _, it := range v.items {
		if it.ID == id {
			return offset
		}
		offset += it.Height
	}
	return -1
}
