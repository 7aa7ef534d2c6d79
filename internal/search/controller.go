// Package search runs in-conversation message search: a debounced
// query, sender and date filters, a short-lived result cache, and an
// offline fallback to the local full-text index.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rmarinho/convo/internal/history"
	"github.com/rmarinho/convo/internal/loader"
	"github.com/rmarinho/convo/internal/store"
)

// Sender filter values.
const (
	SenderAll     = "all"
	SenderMe      = "me"
	SenderPartner = "partner"
)

const (
	// full-history fetch size when the loaded thread is incomplete
	searchFetchLimit = 1000
	maxCacheEntries  = 50
	resultPageSize   = 20
)

// PageLoader is the slice of the loader the controller needs.
type PageLoader interface {
	Load(ctx context.Context, convID string, opts loader.Options) error
}

// Results is one executed search.
type Results struct {
	Query   string
	Matches []*store.Message // newest first
	Offline bool             // served from the local index
}

type cacheEntry struct {
	matches []*store.Message
	offline bool
	at      time.Time
}

// Controller owns the search state for the open conversation.
type Controller struct {
	mu sync.Mutex

	store  *store.Store
	loader PageLoader
	hist   *history.DB
	log    *zap.Logger

	debounce time.Duration
	cacheTTL time.Duration

	query  string
	sender string
	from   time.Time
	to     time.Time

	timer     *time.Timer
	gen       uint64
	onResults func(Results)

	current Results
	pageEnd int

	cache      map[string]*cacheEntry
	cacheOrder []string

	now func() time.Time
}

// NewController creates a search controller. hist may be nil; without it
// there is no offline fallback.
func NewController(st *store.Store, l PageLoader, hist *history.DB, log *zap.Logger, debounce, cacheTTL time.Duration) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		store:    st,
		loader:   l,
		hist:     hist,
		log:      log,
		debounce: debounce,
		cacheTTL: cacheTTL,
		sender:   SenderAll,
		cache:    make(map[string]*cacheEntry),
		now:      time.Now,
	}
}

// SetClock overrides the time source for cache aging. Test hook.
func (c *Controller) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// OnResults registers the delivery callback for debounced runs.
func (c *Controller) OnResults(fn func(Results)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onResults = fn
}

// SetQuery updates the query and schedules a run one debounce window
// after the last keystroke. Superseded runs never fire.
func (c *Controller) SetQuery(query string) {
	c.mu.Lock()
	c.query = query
	c.gen++
	gen := c.gen
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.debounce, func() { c.fire(gen) })
	c.mu.Unlock()
}

// SetSender sets the sender filter and schedules a run like a keystroke.
func (c *Controller) SetSender(sender string) {
	c.mu.Lock()
	c.sender = sender
	c.mu.Unlock()
	c.SetQuery(c.Query())
}

// SetDateRange bounds results to local calendar days, inclusive on both
// ends. Zero times leave the corresponding end open.
func (c *Controller) SetDateRange(from, to time.Time) {
	c.mu.Lock()
	c.from = from
	c.to = to
	c.mu.Unlock()
	c.SetQuery(c.Query())
}

// Query returns the current query text.
func (c *Controller) Query() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query
}

// Cancel stops any pending debounced run.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) fire(gen uint64) {
	c.mu.Lock()
	stale := gen != c.gen
	cb := c.onResults
	c.mu.Unlock()
	if stale {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	res := c.Run(ctx)
	c.mu.Lock()
	stale = gen != c.gen
	c.mu.Unlock()
	if stale || cb == nil {
		return
	}
	cb(res)
}

// Run executes the search synchronously against the open conversation.
func (c *Controller) Run(ctx context.Context) Results {
	conv := c.store.Active()
	c.mu.Lock()
	query := strings.TrimSpace(c.query)
	sender := c.sender
	from, to := c.from, c.to
	c.mu.Unlock()

	res := Results{Query: query}
	if conv == nil || query == "" {
		c.setCurrent(res)
		return res
	}

	key := c.cacheKey(conv.ID, query, sender, from, to)
	if hit := c.cached(key); hit != nil {
		res.Matches = hit.matches
		res.Offline = hit.offline
		c.setCurrent(res)
		return res
	}

	source, offline := c.source(ctx, conv)
	matches := filter(source, c.store.UserID(), conv.PartnerID, query, sender, from, to)
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Timestamp > matches[j].Timestamp
	})

	res.Matches = matches
	res.Offline = offline
	c.putCache(key, &cacheEntry{matches: matches, offline: offline, at: c.now()})
	c.setCurrent(res)
	return res
}

// NextPage returns the next window of the current results without
// re-running the query. The second return is false when exhausted.
func (c *Controller) NextPage() ([]*store.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pageEnd >= len(c.current.Matches) {
		return nil, false
	}
	end := c.pageEnd + resultPageSize
	if end > len(c.current.Matches) {
		end = len(c.current.Matches)
	}
	page := c.current.Matches[c.pageEnd:end]
	c.pageEnd = end
	return page, true
}

// source returns the message set to search over. When the loaded thread
// is incomplete the full history is fetched into the side list first;
// if that fetch fails the local index answers instead.
func (c *Controller) source(ctx context.Context, conv *store.Conversation) ([]*store.Message, bool) {
	complete := conv.TotalCount != nil && len(conv.Messages) >= *conv.TotalCount
	if complete {
		return c.store.Snapshot(conv.ID), false
	}
	err := c.loader.Load(ctx, conv.ID, loader.Options{ForSearch: true, Limit: searchFetchLimit})
	if err == nil {
		if fresh := c.store.Conversation(conv.ID); fresh != nil && len(fresh.SearchMessages) > 0 {
			return fresh.SearchMessages, false
		}
		return c.store.Snapshot(conv.ID), false
	}
	c.log.Warn("search fetch failed, falling back to local index",
		zap.String("conversation", conv.ID), zap.Error(err))
	return c.offline(conv.ID), true
}

func (c *Controller) offline(convID string) []*store.Message {
	if c.hist == nil {
		return nil
	}
	c.mu.Lock()
	query := c.query
	c.mu.Unlock()
	rows, err := c.hist.SearchMessages(query, convID, searchFetchLimit)
	if err != nil {
		c.log.Warn("local index search failed", zap.Error(err))
		return nil
	}
	out := make([]*store.Message, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].Message.ToStore())
	}
	return out
}

func (c *Controller) setCurrent(res Results) {
	c.mu.Lock()
	c.current = res
	c.pageEnd = 0
	c.mu.Unlock()
}

func (c *Controller) cacheKey(convID, query, sender string, from, to time.Time) string {
	f, t := "", ""
	if !from.IsZero() {
		f = from.Format("2006-01-02")
	}
	if !to.IsZero() {
		t = to.Format("2006-01-02")
	}
	return fmt.Sprintf("%s|%s|%s|%s|%s", convID, strings.ToLower(query), sender, f, t)
}

func (c *Controller) cached(key string) *cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.cache[key]
	if !ok {
		return nil
	}
	if c.now().Sub(e.at) > c.cacheTTL {
		c.evict(key)
		return nil
	}
	return e
}

func (c *Controller) putCache(key string, e *cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.cache[key]; !exists {
		c.cacheOrder = append(c.cacheOrder, key)
	}
	c.cache[key] = e
	for len(c.cache) > maxCacheEntries {
		oldest := c.cacheOrder[0]
		c.evict(oldest)
	}
}

// evict requires c.mu held.
func (c *Controller) evict(key string) {
	delete(c.cache, key)
	for i, k := range c.cacheOrder {
		if k == key {
			c.cacheOrder = append(c.cacheOrder[:i], c.cacheOrder[i+1:]...)
			break
		}
	}
}

// SweepCache drops expired result entries and returns how many went.
func (c *Controller) SweepCache() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.cache {
		if c.now().Sub(e.at) > c.cacheTTL {
			c.evict(k)
			n++
		}
	}
	return n
}

// filter applies the query and the sender/date filters. Recalled
// messages never match.
func filter(msgs []*store.Message, userID, partnerID, query, sender string, from, to time.Time) []*store.Message {
	q := strings.ToLower(query)
	var out []*store.Message
	for _, m := range msgs {
		if m.Recalled() {
			continue
		}
		if !strings.Contains(strings.ToLower(m.Content), q) {
			continue
		}
		switch sender {
		case SenderMe:
			if m.SenderID != userID {
				continue
			}
		case SenderPartner:
			if m.SenderID != partnerID {
				continue
			}
		}
		if !inDateRange(m.Timestamp, from, to) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// inDateRange compares at local calendar day granularity, inclusive.
func inDateRange(tsMillis int64, from, to time.Time) bool {
	ts := time.UnixMilli(tsMillis).Local()
	day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.Local)
	if !from.IsZero() {
		f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.Local)
		if day.Before(f) {
			return false
		}
	}
	if !to.IsZero() {
		t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.Local)
		if day.After(t) {
			return false
		}
	}
	return true
}
