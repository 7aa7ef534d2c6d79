// Package push maintains the websocket connection to the realtime
// gateway, translates wire frames into bus events, and routes them into
// the store and the rendered view.
package push

import (
	"encoding/json"
	"fmt"

	"github.com/rmarinho/convo/internal/api"
	"github.com/rmarinho/convo/internal/bus"
	"github.com/rmarinho/convo/internal/store"
)

// envelope is the discriminator every push frame carries.
type envelope struct {
	Type string `json:"type"`
}

// NewMessage is the payload of a new_message frame.
type NewMessage struct {
	Message api.Message `json:"message"`
}

// Recalled is the payload of a message_recalled frame.
type Recalled struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	RecalledBy     string `json:"recalled_by"`
	RecallType     string `json:"recall_type"`
}

// Typing is the payload of a user_typing frame.
type Typing struct {
	UserID string `json:"user_id"`
	Typing bool   `json:"is_typing"`
}

// UserStatus is the payload of the presence frames. The bare
// user_online/user_offline frames carry only the user id; the
// combined user_status_change form adds the flag.
type UserStatus struct {
	UserID   string `json:"user_id"`
	IsOnline bool   `json:"is_online,omitempty"`
}

// UploadComplete is the payload of an image_upload_complete frame.
type UploadComplete struct {
	MessageID   string             `json:"message_id"`
	SenderID    string             `json:"sender_id"`
	Attachments []store.Attachment `json:"attachments"`
}

// UploadProgress is the payload of an image_upload_progress frame.
type UploadProgress struct {
	MessageID string `json:"message_id"`
	SenderID  string `json:"sender_id"`
	Percent   int    `json:"percent"`
}

// wireKinds maps frame discriminators to bus event kinds.
var wireKinds = map[string]string{
	"new_message":           bus.KindPushNewMessage,
	"message_recalled":      bus.KindPushRecalled,
	"user_typing":           bus.KindPushTyping,
	"user_online":           bus.KindPushOnline,
	"user_offline":          bus.KindPushOffline,
	"user_status_change":    bus.KindPushStatusChange,
	"image_upload_complete": bus.KindPushUploadComplete,
	"image_upload_progress": bus.KindPushUploadProgress,
}

// ParseFrame decodes a raw websocket frame into a bus event kind and a
// typed payload. Unknown frame types return an error and are skipped by
// the listener.
func ParseFrame(data []byte) (string, any, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("decode frame envelope: %w", err)
	}
	kind, ok := wireKinds[env.Type]
	if !ok {
		return "", nil, fmt.Errorf("unknown frame type %q", env.Type)
	}

	var payload any
	switch kind {
	case bus.KindPushNewMessage:
		payload = &NewMessage{}
	case bus.KindPushRecalled:
		payload = &Recalled{}
	case bus.KindPushTyping:
		payload = &Typing{}
	case bus.KindPushOnline, bus.KindPushOffline, bus.KindPushStatusChange:
		payload = &UserStatus{}
	case bus.KindPushUploadComplete:
		payload = &UploadComplete{}
	case bus.KindPushUploadProgress:
		payload = &UploadProgress{}
	}
	if err := json.Unmarshal(data, payload); err != nil {
		return "", nil, fmt.Errorf("decode %s frame: %w", env.Type, err)
	}
	return kind, payload, nil
}
