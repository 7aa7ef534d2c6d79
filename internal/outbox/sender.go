// Package outbox drains queued outgoing messages. Sends are optimistic:
// the message shows in the thread immediately with a pending status and
// is reconciled with the server copy on the acknowledgement.
package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rmarinho/convo/internal/api"
	"github.com/rmarinho/convo/internal/bus"
	"github.com/rmarinho/convo/internal/history"
	"github.com/rmarinho/convo/internal/render"
	"github.com/rmarinho/convo/internal/store"
)

// Send statuses carried on the optimistic message.
const (
	StatusSending = "sending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

const pollInterval = 500 * time.Millisecond

// MessageSender is the API surface for the actual send.
type MessageSender interface {
	SendMessage(ctx context.Context, clientID, conversationID, receiverID, content, replyToID string) (*api.Message, error)
}

// Ack is the payload published on send acknowledgements and failures.
type Ack struct {
	ClientMsgID    string
	ServerMsgID    string
	ConversationID string
	Error          string
}

// Sender owns the outbox queue and its drain loop.
type Sender struct {
	db       *history.DB
	client   MessageSender
	store    *store.Store
	renderer render.Renderer
	bus      *bus.Bus
	log      *zap.Logger
	cancel   context.CancelFunc
	poke     chan struct{}
}

// NewSender creates an outbox sender.
func NewSender(db *history.DB, client MessageSender, st *store.Store, r render.Renderer, b *bus.Bus, log *zap.Logger) *Sender {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sender{
		db:       db,
		client:   client,
		store:    st,
		renderer: r,
		bus:      b,
		log:      log,
		poke:     make(chan struct{}, 1),
	}
}

// Send queues an outgoing message and shows it in the thread right
// away. The drain loop performs the actual network send.
func (s *Sender) Send(convID, receiverID, content, replyToID string) (string, error) {
	clientMsgID := "local-" + uuid.NewString()
	if err := s.db.QueueOutbox(clientMsgID, convID, receiverID, content, replyToID); err != nil {
		return "", err
	}

	optimistic := &store.Message{
		ID:         clientMsgID,
		SenderID:   s.store.UserID(),
		ReceiverID: receiverID,
		Content:    content,
		Timestamp:  time.Now().UnixMilli(),
		Status:     StatusSending,
	}
	if replyToID != "" {
		optimistic.ReplyTo = &store.ReplyRef{MessageID: replyToID}
		if src := s.store.Message(convID, replyToID); src != nil {
			optimistic.ReplyTo.SenderID = src.SenderID
			optimistic.ReplyTo.Preview = src.Content
		}
	}
	s.store.UpsertMessage(convID, optimistic)
	s.renderer.Render(convID, []*store.Message{optimistic}, render.Options{FocusLatest: true})

	select {
	case s.poke <- struct{}{}:
	default:
	}
	return clientMsgID, nil
}

// Start begins draining the queue, retrying anything left over from a
// previous run first.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

// Stop stops the drain loop.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Sender) loop(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processPending(ctx)
		case <-s.poke:
			s.processPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) processPending(ctx context.Context) {
	pending, err := s.db.PendingOutbox()
	if err != nil {
		s.log.Error("outbox read failed", zap.Error(err))
		return
	}

	for _, entry := range pending {
		if err := s.db.MarkOutboxSending(entry.ClientMsgID); err != nil {
			s.log.Error("mark sending failed", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
			continue
		}

		sent, err := s.client.SendMessage(ctx, entry.ClientMsgID, entry.ConversationID, entry.ReceiverID, entry.Content, entry.ReplyToID)
		if err != nil {
			s.fail(entry, err)
			continue
		}
		s.ack(entry, sent)
	}
}

// ack swaps the optimistic message for the server copy.
func (s *Sender) ack(entry history.OutboxEntry, sent *api.Message) {
	if err := s.db.MarkOutboxSent(entry.ClientMsgID, sent.ID); err != nil {
		s.log.Error("mark sent failed", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
	}

	convID := entry.ConversationID
	msg := sent.ToStore()
	msg.Status = StatusSent
	if old := s.store.Message(convID, entry.ClientMsgID); old != nil && old.ReplyTo != nil {
		msg.ReplyTo = old.ReplyTo
	}
	s.store.RemoveMessage(convID, entry.ClientMsgID)
	s.store.UpsertMessage(convID, msg)
	if convID == s.store.ActiveID() {
		s.renderer.RemoveMessage(convID, entry.ClientMsgID)
		s.renderer.Render(convID, []*store.Message{msg}, render.Options{FocusLatest: true})
	}

	if err := s.db.UpsertMessage(history.FromStore(convID, msg)); err != nil {
		s.log.Warn("history upsert failed", zap.Error(err))
	}

	s.log.Info("message sent",
		zap.String("client_msg_id", entry.ClientMsgID),
		zap.String("server_msg_id", sent.ID))
	s.publish(bus.KindSendAck, Ack{
		ClientMsgID:    entry.ClientMsgID,
		ServerMsgID:    sent.ID,
		ConversationID: convID,
	})
}

// fail leaves the optimistic message visible with a failed status so
// the user can retry.
func (s *Sender) fail(entry history.OutboxEntry, sendErr error) {
	s.log.Error("send failed", zap.Error(sendErr), zap.String("client_msg_id", entry.ClientMsgID))
	if err := s.db.MarkOutboxFailed(entry.ClientMsgID, sendErr.Error()); err != nil {
		s.log.Error("mark failed failed", zap.Error(err))
	}

	convID := entry.ConversationID
	if m := s.store.Message(convID, entry.ClientMsgID); m != nil {
		m.Status = StatusFailed
		s.store.UpsertMessage(convID, m)
		if convID == s.store.ActiveID() {
			s.renderer.UpdateMessage(convID, m)
		}
	}
	s.publish(bus.KindSendFailed, Ack{
		ClientMsgID:    entry.ClientMsgID,
		ConversationID: convID,
		Error:          sendErr.Error(),
	})
}

func (s *Sender) publish(kind string, payload Ack) {
	s.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}
