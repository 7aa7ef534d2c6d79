// Package store holds the client's session-lifetime conversation state:
// the conversation map, the active conversation, the page cache, and the
// loading-states set. It is pure data plus accessors; all I/O lives in
// the loader, the push router, and the history mirror.
package store

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Store is the process-wide conversation state. All access is through
// methods; the internal mutex makes every operation atomic with respect
// to the interleaved loader/router/UI callers.
type Store struct {
	mu sync.RWMutex

	userID   string
	activeID string
	convs    map[string]*Conversation

	pages    map[string]*pageEntry
	cacheTTL time.Duration

	loading map[string]struct{}

	// convID -> ids removed by a hard recall; a late duplicate frame
	// must never bring such a message back
	tombstones map[string]map[string]struct{}

	now func() time.Time
}

type pageEntry struct {
	messages  []*Message
	fetchedAt time.Time
}

// New creates an empty store with the given page cache TTL.
func New(cacheTTL time.Duration) *Store {
	return &Store{
		convs:      make(map[string]*Conversation),
		pages:      make(map[string]*pageEntry),
		loading:    make(map[string]struct{}),
		tombstones: make(map[string]map[string]struct{}),
		cacheTTL:   cacheTTL,
		now:        time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetUserID records the authenticated user for this session.
func (s *Store) SetUserID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = id
}

// UserID returns the current user id, empty until authenticated.
func (s *Store) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// Put inserts or replaces a conversation record.
func (s *Store) Put(c *Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.Status == "" {
		c.Status = PresenceOffline
	}
	s.convs[c.ID] = c
}

// Conversation returns the conversation with the given id, or nil.
func (s *Store) Conversation(id string) *Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.convs[id]
}

// ByPartner returns the conversation whose partner is the given user, or nil.
func (s *Store) ByPartner(partnerID string) *Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.convs {
		if c.PartnerID == partnerID {
			return c
		}
	}
	return nil
}

// Conversations returns all conversations sorted by latest message desc.
func (s *Store) Conversations() []*Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Conversation, 0, len(s.convs))
	for _, c := range s.convs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return latestTimestamp(out[i]) > latestTimestamp(out[j])
	})
	return out
}

func latestTimestamp(c *Conversation) int64 {
	if n := len(c.Messages); n > 0 {
		return c.Messages[n-1].Timestamp
	}
	return 0
}

// SetActive marks the open conversation. Empty id means none open.
func (s *Store) SetActive(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeID = id
}

// ActiveID returns the id of the open conversation, or empty.
func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// Active returns the open conversation, or nil.
func (s *Store) Active() *Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.activeID == "" {
		return nil
	}
	return s.convs[s.activeID]
}

// PageKey builds the cache/loading key for a user/partner pair.
func PageKey(userID, partnerID string) string {
	return fmt.Sprintf("%s_%s", userID, partnerID)
}

// BeginLoad marks a fetch in flight for the key. Returns false if one is
// already outstanding; the second load must be dropped, not queued.
func (s *Store) BeginLoad(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.loading[key]; busy {
		return false
	}
	s.loading[key] = struct{}{}
	return true
}

// EndLoad clears the in-flight marker. Must run on every exit path of a
// load, including failures, so the set is never poisoned.
func (s *Store) EndLoad(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.loading, key)
}

// Loading reports whether a fetch is in flight for the key.
func (s *Store) Loading(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, busy := s.loading[key]
	return busy
}

// CachePage stores the first page of a conversation. Only offset-zero
// pages are ever cached; pagination pages must reflect server state.
func (s *Store) CachePage(key string, msgs []*Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[key] = &pageEntry{
		messages:  append([]*Message(nil), msgs...),
		fetchedAt: s.now(),
	}
}

// CachedPage returns the cached first page for the key if it is younger
// than the TTL. A stale entry is evicted and reported as a miss.
func (s *Store) CachedPage(key string) ([]*Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.pages[key]
	if !ok {
		return nil, false
	}
	if s.now().Sub(e.fetchedAt) > s.cacheTTL {
		delete(s.pages, key)
		return nil, false
	}
	return append([]*Message(nil), e.messages...), true
}

// EvictPage removes any cached entry for the key.
func (s *Store) EvictPage(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pages, key)
}

// SweepCache drops all expired page entries and returns how many went.
func (s *Store) SweepCache() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.pages {
		if s.now().Sub(e.fetchedAt) > s.cacheTTL {
			delete(s.pages, k)
			n++
		}
	}
	return n
}
