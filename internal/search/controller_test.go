package search

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rmarinho/convo/internal/history"
	"github.com/rmarinho/convo/internal/loader"
	"github.com/rmarinho/convo/internal/store"
)

type fakeLoader struct {
	store *store.Store
	msgs  []*store.Message
	err   error
	calls int
	opts  []loader.Options
}

func (f *fakeLoader) Load(_ context.Context, convID string, opts loader.Options) error {
	f.calls++
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return f.err
	}
	if opts.ForSearch {
		f.store.SetSearchMessages(convID, f.msgs)
	}
	return nil
}

func newFixture(total int, msgs ...*store.Message) (*Controller, *store.Store, *fakeLoader) {
	st := store.New(time.Minute)
	st.SetUserID("me")
	st.Put(&store.Conversation{ID: "c1", PartnerID: "them", Name: "Them"})
	st.SetActive("c1")
	st.ReplaceMessages("c1", msgs)
	if total >= 0 {
		st.SetTotalCount("c1", total)
	}
	fl := &fakeLoader{store: st}
	c := NewController(st, fl, nil, nil, 10*time.Millisecond, 30*time.Second)
	return c, st, fl
}

func m(id, sender, content string, ts int64) *store.Message {
	recv := "me"
	if sender == "me" {
		recv = "them"
	}
	return &store.Message{ID: id, SenderID: sender, ReceiverID: recv, Content: content, Timestamp: ts}
}

func TestRunFiltersAndSortsNewestFirst(t *testing.T) {
	c, _, _ := newFixture(3,
		m("m1", "me", "lunch at noon", 1000),
		m("m2", "them", "Lunch sounds good", 2000),
		m("m3", "them", "unrelated", 3000),
	)
	c.SetQuery("lunch")
	res := c.Run(context.Background())
	if len(res.Matches) != 2 {
		t.Fatalf("matches = %d, want 2", len(res.Matches))
	}
	if res.Matches[0].ID != "m2" || res.Matches[1].ID != "m1" {
		t.Fatalf("order = [%s %s], want newest first", res.Matches[0].ID, res.Matches[1].ID)
	}
}

func TestRunSenderFilter(t *testing.T) {
	c, _, _ := newFixture(2,
		m("m1", "me", "hello there", 1000),
		m("m2", "them", "hello back", 2000),
	)
	c.SetQuery("hello")
	c.Cancel()

	c.sender = SenderMe
	res := c.Run(context.Background())
	if len(res.Matches) != 1 || res.Matches[0].ID != "m1" {
		t.Fatalf("me filter: %v", idsOf(res.Matches))
	}

	c.sender = SenderPartner
	res = c.Run(context.Background())
	if len(res.Matches) != 1 || res.Matches[0].ID != "m2" {
		t.Fatalf("partner filter: %v", idsOf(res.Matches))
	}
}

func TestRunDateRangeInclusive(t *testing.T) {
	day := func(d int) time.Time {
		return time.Date(2026, 3, d, 13, 45, 0, 0, time.Local)
	}
	tsOf := func(d int) int64 { return day(d).UnixMilli() }

	c, _, _ := newFixture(3,
		m("m1", "them", "report v1", tsOf(10)),
		m("m2", "them", "report v2", tsOf(12)),
		m("m3", "them", "report v3", tsOf(14)),
	)
	c.query = "report"
	c.from = day(10)
	c.to = day(12)
	res := c.Run(context.Background())
	if len(res.Matches) != 2 {
		t.Fatalf("matches = %v, boundary days must be included", idsOf(res.Matches))
	}
	for _, got := range res.Matches {
		if got.ID == "m3" {
			t.Fatal("m3 is outside the range")
		}
	}
}

func TestRunExcludesRecalled(t *testing.T) {
	recalled := m("m2", "them", "secret plans", 2000)
	recalled.RecallType = store.RecallSoft
	recalled.Content = store.RecalledText
	c, _, _ := newFixture(2,
		m("m1", "them", "plans for tonight", 1000),
		recalled,
	)
	c.query = "plans"
	res := c.Run(context.Background())
	if len(res.Matches) != 1 || res.Matches[0].ID != "m1" {
		t.Fatalf("matches = %v, recalled must not match", idsOf(res.Matches))
	}
}

func TestRunCompleteThreadSkipsFetch(t *testing.T) {
	c, _, fl := newFixture(1, m("m1", "them", "cached thread", 1000))
	c.query = "cached"
	c.Run(context.Background())
	if fl.calls != 0 {
		t.Fatalf("loader calls = %d, complete thread needs no fetch", fl.calls)
	}
}

func TestRunIncompleteThreadFetchesFullHistory(t *testing.T) {
	c, _, fl := newFixture(5, m("m5", "them", "newest page only", 5000))
	fl.msgs = []*store.Message{
		m("m1", "them", "deep history hit", 1000),
		m("m5", "them", "newest page only", 5000),
	}
	c.query = "deep history"
	res := c.Run(context.Background())
	if fl.calls != 1 || !fl.opts[0].ForSearch {
		t.Fatalf("loader calls = %d opts = %+v, want one ForSearch load", fl.calls, fl.opts)
	}
	if len(res.Matches) != 1 || res.Matches[0].ID != "m1" {
		t.Fatalf("matches = %v, want the deep-history hit", idsOf(res.Matches))
	}
}

func TestRunResultsCached(t *testing.T) {
	c, _, fl := newFixture(5, m("m5", "them", "needle", 5000))
	fl.msgs = []*store.Message{m("m5", "them", "needle", 5000)}
	c.query = "needle"

	c.Run(context.Background())
	c.Run(context.Background())
	if fl.calls != 1 {
		t.Fatalf("loader calls = %d, second run must hit the cache", fl.calls)
	}
}

func TestRunCacheExpires(t *testing.T) {
	c, _, fl := newFixture(5, m("m5", "them", "needle", 5000))
	fl.msgs = []*store.Message{m("m5", "them", "needle", 5000)}
	now := time.Unix(0, 0)
	c.SetClock(func() time.Time { return now })
	c.query = "needle"

	c.Run(context.Background())
	now = now.Add(31 * time.Second)
	c.Run(context.Background())
	if fl.calls != 2 {
		t.Fatalf("loader calls = %d, expired cache must refetch", fl.calls)
	}
}

func TestCacheCapEvictsOldest(t *testing.T) {
	c, _, _ := newFixture(1, m("m1", "them", "q0 q1 q2", 1000))
	for i := 0; i < maxCacheEntries+5; i++ {
		c.query = fmt.Sprintf("q%d", i)
		c.Run(context.Background())
	}
	c.mu.Lock()
	size := len(c.cache)
	_, oldest := c.cache["c1|q0|all||"]
	c.mu.Unlock()
	if size != maxCacheEntries {
		t.Fatalf("cache size = %d, want %d", size, maxCacheEntries)
	}
	if oldest {
		t.Fatal("oldest entry survived past the cap")
	}
}

func TestDebounceOnlyLastQueryFires(t *testing.T) {
	c, _, _ := newFixture(1, m("m1", "them", "alpha beta gamma", 1000))
	got := make(chan Results, 8)
	c.OnResults(func(r Results) { got <- r })

	c.SetQuery("alpha")
	c.SetQuery("alpha b")
	c.SetQuery("beta")

	select {
	case r := <-got:
		if r.Query != "beta" {
			t.Fatalf("fired query = %q, want the last one", r.Query)
		}
	case <-time.After(time.Second):
		t.Fatal("debounced run never fired")
	}
	select {
	case r := <-got:
		t.Fatalf("superseded query fired: %q", r.Query)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNextPageWalksWithoutRequery(t *testing.T) {
	msgs := make([]*store.Message, 0, 45)
	for i := 0; i < 45; i++ {
		msgs = append(msgs, m(fmt.Sprintf("m%d", i), "them", "bulk match", int64(i*1000)))
	}
	c, _, fl := newFixture(45, msgs...)
	c.query = "bulk"
	c.Run(context.Background())

	total := 0
	pages := 0
	for {
		page, ok := c.NextPage()
		if !ok {
			break
		}
		total += len(page)
		pages++
	}
	if total != 45 || pages != 3 {
		t.Fatalf("pages = %d total = %d, want 3 pages covering 45", pages, total)
	}
	if fl.calls != 0 {
		t.Fatal("paging re-queried the loader")
	}
}

func TestOfflineFallbackUsesLocalIndex(t *testing.T) {
	db, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	row := history.FromStore("c1", m("m1", "them", "archived needle", 1000))
	if err := db.UpsertMessage(row); err != nil {
		t.Fatal(err)
	}

	st := store.New(time.Minute)
	st.SetUserID("me")
	st.Put(&store.Conversation{ID: "c1", PartnerID: "them"})
	st.SetActive("c1")
	fl := &fakeLoader{store: st, err: errors.New("network down")}
	c := NewController(st, fl, db, nil, 10*time.Millisecond, 30*time.Second)

	c.query = "needle"
	res := c.Run(context.Background())
	if !res.Offline {
		t.Fatal("result not marked offline")
	}
	if len(res.Matches) != 1 || res.Matches[0].ID != "m1" {
		t.Fatalf("matches = %v, want the indexed message", idsOf(res.Matches))
	}
}

func idsOf(msgs []*store.Message) []string {
	out := make([]string, len(msgs))
	for i, mm := range msgs {
		out[i] = mm.ID
	}
	return out
}
