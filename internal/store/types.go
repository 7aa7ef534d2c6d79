package store

// RecallType describes how far a message withdrawal has progressed.
// Transitions are monotonic: none → soft → hard, or none → hard.
type RecallType string

const (
	RecallNone RecallType = "none"
	RecallSoft RecallType = "soft"
	RecallHard RecallType = "hard"
)

// RecalledText is the placeholder content shown for a soft-recalled
// message on the recalling sender's own client.
const RecalledText = "This message was recalled"

// Presence is the displayed availability of a conversation partner.
type Presence string

const (
	PresenceOnline  Presence = "Online"
	PresenceOffline Presence = "Offline"
)

// Attachment is a file attached to a message.
type Attachment struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	Kind string `json:"kind"` // image, video, file
	Name string `json:"name,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// ReplyRef is a lightweight summary of the message being replied to.
// The backend ships only the id; the loader fills in the preview and any
// image attachments from already-loaded state.
type ReplyRef struct {
	MessageID   string
	SenderID    string
	Preview     string
	Attachments []Attachment
}

// Message is a single direct message. ID is unique within a conversation.
type Message struct {
	ID            string
	SenderID      string
	ReceiverID    string
	Content       string
	Timestamp     int64 // unix milliseconds
	IsRead        bool
	Attachments   []Attachment
	RecallType    RecallType
	ReplyTo       *ReplyRef
	SenderDeleted bool
	Status        string // "" for server messages; sending/sent/failed for optimistic echoes
	UploadPercent int    // nonzero while an own image upload is still processing
}

// Recalled reports whether the message has been withdrawn in any form.
func (m *Message) Recalled() bool {
	return m.RecallType == RecallSoft || m.RecallType == RecallHard || m.Content == RecalledText
}

// Conversation is the local view of one two-party thread. Messages are
// kept in chronological ascending order and mutated only through Store
// methods, never through a reference held elsewhere.
type Conversation struct {
	ID             string
	PartnerID      string
	Name           string
	Messages       []*Message
	Unread         int
	SavedCount     int
	Deleted        bool
	Status         Presence
	TotalCount     *int
	SearchMessages []*Message
}

// Clone returns a shallow copy safe to hand to readers. Message pointers
// are shared; callers must treat them as immutable.
func (c *Conversation) Clone() *Conversation {
	cp := *c
	cp.Messages = append([]*Message(nil), c.Messages...)
	if c.SearchMessages != nil {
		cp.SearchMessages = append([]*Message(nil), c.SearchMessages...)
	}
	return &cp
}
