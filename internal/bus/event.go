package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds. Subscribers filter by namespace prefix, e.g. "push."
// receives every inbound push-channel event.
const (
	// Inbound push-channel events, published by the push listener.
	KindPushNewMessage     = "push.new_message"
	KindPushRecalled       = "push.message_recalled"
	KindPushTyping         = "push.user_typing"
	KindPushOnline         = "push.user_online"
	KindPushOffline        = "push.user_offline"
	KindPushStatusChange   = "push.user_status_change"
	KindPushUploadComplete = "push.image_upload_complete"
	KindPushUploadProgress = "push.image_upload_progress"
	KindPushConnected      = "push.connected"
	KindPushDisconnected   = "push.disconnected"

	// Local state change notifications.
	KindMessageUpserted = "message.upserted"
	KindMessageRemoved  = "message.removed"
	KindSendAck         = "message.send_ack"
	KindSendFailed      = "message.send_failed"

	// UI-facing signals.
	KindConversationsRefresh = "conversations.refresh"
	KindPresenceChanged      = "presence.changed"
	KindTypingIndicator      = "ui.typing"
	KindToast                = "ui.toast"
)
