package history

import (
	"encoding/json"

	"github.com/rmarinho/convo/internal/store"
)

// ConversationRow is a persisted conversation summary.
type ConversationRow struct {
	ID            string
	PartnerID     string
	Name          string
	UnreadCount   int
	SavedCount    int
	Deleted       bool
	LastMessageAt int64
}

// MessageRow is a persisted message.
type MessageRow struct {
	RowID          int64
	ConversationID string
	MsgID          string
	SenderID       string
	ReceiverID     string
	Content        string
	Timestamp      int64
	IsRead         bool
	RecallType     string
	ReplyToID      string
	Attachments    string // JSON array
	Status         string
}

// OutboxEntry is a pending outgoing message.
type OutboxEntry struct {
	ID             int64
	ClientMsgID    string
	ConversationID string
	ReceiverID     string
	Content        string
	ReplyToID      string
	Status         string // queued, sending, sent, failed
	ErrorMessage   string
	ServerMsgID    string
}

// SearchResult holds a message row with a match snippet.
type SearchResult struct {
	Message MessageRow
	Snippet string
}

// FromStore converts an in-memory message for persistence.
func FromStore(convID string, m *store.Message) *MessageRow {
	att := "[]"
	if len(m.Attachments) > 0 {
		if data, err := json.Marshal(m.Attachments); err == nil {
			att = string(data)
		}
	}
	replyID := ""
	if m.ReplyTo != nil {
		replyID = m.ReplyTo.MessageID
	}
	return &MessageRow{
		ConversationID: convID,
		MsgID:          m.ID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		Content:        m.Content,
		Timestamp:      m.Timestamp,
		IsRead:         m.IsRead,
		RecallType:     string(m.RecallType),
		ReplyToID:      replyID,
		Attachments:    att,
		Status:         m.Status,
	}
}

// ToStore converts a persisted row back to the in-memory shape.
func (r *MessageRow) ToStore() *store.Message {
	var atts []store.Attachment
	_ = json.Unmarshal([]byte(r.Attachments), &atts)
	rt := store.RecallType(r.RecallType)
	if rt == "" {
		rt = store.RecallNone
	}
	var reply *store.ReplyRef
	if r.ReplyToID != "" {
		reply = &store.ReplyRef{MessageID: r.ReplyToID}
	}
	return &store.Message{
		ID:          r.MsgID,
		SenderID:    r.SenderID,
		ReceiverID:  r.ReceiverID,
		Content:     r.Content,
		Timestamp:   r.Timestamp,
		IsRead:      r.IsRead,
		Attachments: atts,
		RecallType:  rt,
		ReplyTo:     reply,
		Status:      r.Status,
	}
}
