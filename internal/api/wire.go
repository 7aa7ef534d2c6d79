package api

import "github.com/rmarinho/convo/internal/store"

// Message is the wire representation of a message as the backend and the
// push channel ship it.
type Message struct {
	ID             string             `json:"id"`
	ConversationID string             `json:"conversation_id,omitempty"`
	SenderID       string             `json:"sender_id"`
	ReceiverID     string             `json:"receiver_id"`
	Content        string             `json:"content"`
	Timestamp      int64              `json:"timestamp"`
	IsRead         bool               `json:"is_read"`
	Attachments    []store.Attachment `json:"attachments,omitempty"`
	RecallType     string             `json:"recall_type,omitempty"`
	ReplyToID      string             `json:"reply_to_id,omitempty"`
	SenderDeleted  bool               `json:"is_sender_deleted,omitempty"`
}

// ToStore converts a wire message into the in-memory representation.
// The reply reference carries only the id here; the loader reconciles
// the preview and attachments against loaded state.
func (m *Message) ToStore() *store.Message {
	rt := store.RecallType(m.RecallType)
	if rt == "" {
		rt = store.RecallNone
	}
	var reply *store.ReplyRef
	if m.ReplyToID != "" {
		reply = &store.ReplyRef{MessageID: m.ReplyToID}
	}
	return &store.Message{
		ID:            m.ID,
		SenderID:      m.SenderID,
		ReceiverID:    m.ReceiverID,
		Content:       m.Content,
		Timestamp:     m.Timestamp,
		IsRead:        m.IsRead,
		Attachments:   m.Attachments,
		RecallType:    rt,
		ReplyTo:       reply,
		SenderDeleted: m.SenderDeleted,
	}
}

// PageResponse is the envelope of a message page fetch.
type PageResponse struct {
	Success    bool      `json:"success"`
	Messages   []Message `json:"messages"`
	TotalCount *int      `json:"total_count,omitempty"`
}

// SavedResponse is the envelope of a saved-message listing.
type SavedResponse struct {
	Success  bool      `json:"success"`
	Messages []Message `json:"messages"`
}

// blockResponse is the envelope of a block-status check.
type blockResponse struct {
	Blocked bool `json:"blocked"`
}

type ackResponse struct {
	Success bool     `json:"success"`
	Message *Message `json:"message,omitempty"`
}
