package store

import "sort"

// ReplaceMessages swaps a conversation's message list wholesale, used for
// page navigation and initial loads. Input is deduplicated by id and
// sorted chronologically ascending.
func (s *Store) ReplaceMessages(convID string, msgs []*Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.convs[convID]
	if c == nil {
		return
	}
	c.Messages = s.dropTombstoned(convID, normalize(msgs))
}

// PrependMessages inserts an older page before the existing messages,
// filtering out any id already present. Returns the messages actually
// inserted, in ascending order.
func (s *Store) PrependMessages(convID string, msgs []*Message) []*Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.convs[convID]
	if c == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(c.Messages))
	for _, m := range c.Messages {
		seen[m.ID] = struct{}{}
	}
	var fresh []*Message
	for _, m := range msgs {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		if s.tombstoned(convID, m.ID) {
			continue
		}
		seen[m.ID] = struct{}{}
		fresh = append(fresh, m)
	}
	if len(fresh) == 0 {
		return nil
	}
	fresh = normalize(fresh)
	c.Messages = append(fresh, c.Messages...)
	return fresh
}

// UpsertMessage merges a single message by id: updates in place when the
// id exists (timestamp, content, attachments, read state), otherwise
// appends in timestamp order. Returns true when the message was added.
func (s *Store) UpsertMessage(convID string, msg *Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.convs[convID]
	if c == nil {
		return false
	}
	if s.tombstoned(convID, msg.ID) {
		return false
	}
	for i, m := range c.Messages {
		if m.ID == msg.ID {
			updated := *msg
			// A recall never regresses through an upsert.
			if rank(m.RecallType) > rank(msg.RecallType) {
				updated.RecallType = m.RecallType
				updated.Content = m.Content
			}
			c.Messages[i] = &updated
			return false
		}
	}
	c.Messages = append(c.Messages, msg)
	// Pushed messages normally arrive in order; sort only when not.
	if n := len(c.Messages); n > 1 && c.Messages[n-2].Timestamp > msg.Timestamp {
		sortMessages(c.Messages)
	}
	return true
}

// Message returns the message with the given id in the conversation, or nil.
func (s *Store) Message(convID, msgID string) *Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.convs[convID]
	if c == nil {
		return nil
	}
	for _, m := range c.Messages {
		if m.ID == msgID {
			return m
		}
	}
	return nil
}

// RemoveMessage deletes a message by id. Returns true if it was present.
func (s *Store) RemoveMessage(convID, msgID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.convs[convID]
	if c == nil {
		return false
	}
	for i, m := range c.Messages {
		if m.ID == msgID {
			c.Messages = append(c.Messages[:i], c.Messages[i+1:]...)
			return true
		}
	}
	return false
}

// ApplyRecall advances a message's recall state. Transitions are
// monotonic; a backward transition is ignored and reported false.
// A hard recall removes the message from the list entirely.
func (s *Store) ApplyRecall(convID, msgID string, rt RecallType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.convs[convID]
	if c == nil {
		return false
	}
	for i, m := range c.Messages {
		if m.ID != msgID {
			continue
		}
		if rank(rt) <= rank(m.RecallType) {
			return false
		}
		if rt == RecallHard {
			c.Messages = append(c.Messages[:i], c.Messages[i+1:]...)
			if s.tombstones[convID] == nil {
				s.tombstones[convID] = make(map[string]struct{})
			}
			s.tombstones[convID][msgID] = struct{}{}
			return true
		}
		m.RecallType = rt
		m.Content = RecalledText
		return true
	}
	return false
}

// SetSearchMessages routes a search-only fetch into the side list,
// leaving the main message list untouched.
func (s *Store) SetSearchMessages(convID string, msgs []*Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.convs[convID]; c != nil {
		c.SearchMessages = normalize(msgs)
	}
}

// SetTotalCount records the server-reported total message count.
func (s *Store) SetTotalCount(convID string, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.convs[convID]; c != nil {
		c.TotalCount = &total
	}
}

// SetUnread sets a conversation's unread counter.
func (s *Store) SetUnread(convID string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.convs[convID]; c != nil {
		c.Unread = n
	}
}

// SetSavedCount sets a conversation's saved-message counter.
func (s *Store) SetSavedCount(convID string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.convs[convID]; c != nil {
		c.SavedCount = n
	}
}

// SetStatus sets the partner's displayed presence.
func (s *Store) SetStatus(convID string, p Presence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.convs[convID]; c != nil {
		c.Status = p
	}
}

// Snapshot returns a read-only copy of the conversation's message list.
func (s *Store) Snapshot(convID string) []*Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.convs[convID]
	if c == nil {
		return nil
	}
	return append([]*Message(nil), c.Messages...)
}

func (s *Store) tombstoned(convID, msgID string) bool {
	_, gone := s.tombstones[convID][msgID]
	return gone
}

func (s *Store) dropTombstoned(convID string, msgs []*Message) []*Message {
	if len(s.tombstones[convID]) == 0 {
		return msgs
	}
	out := msgs[:0]
	for _, m := range msgs {
		if !s.tombstoned(convID, m.ID) {
			out = append(out, m)
		}
	}
	return out
}

func rank(rt RecallType) int {
	switch rt {
	case RecallSoft:
		return 1
	case RecallHard:
		return 2
	default:
		return 0
	}
}

// normalize dedups by id (first occurrence wins) and sorts ascending.
func normalize(msgs []*Message) []*Message {
	seen := make(map[string]struct{}, len(msgs))
	out := make([]*Message, 0, len(msgs))
	for _, m := range msgs {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	sortMessages(out)
	return out
}

func sortMessages(msgs []*Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp < msgs[j].Timestamp
	})
}
