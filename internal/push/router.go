package push

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rmarinho/convo/internal/bus"
	"github.com/rmarinho/convo/internal/history"
	"github.com/rmarinho/convo/internal/notify"
	"github.com/rmarinho/convo/internal/presence"
	"github.com/rmarinho/convo/internal/render"
	"github.com/rmarinho/convo/internal/store"
)

// Router is the single entry point for realtime events. It subscribes
// to the "push." namespace and applies each event to the store, the
// rendered view, and presence, in that order. Handlers never block on
// network calls.
type Router struct {
	store    *store.Store
	renderer render.Renderer
	presence *presence.Manager
	hist     *history.DB
	bus      *bus.Bus
	notifier notify.Notifier
	log      *zap.Logger
	cancel   context.CancelFunc

	mu       sync.Mutex
	notified map[string]struct{}
}

// NewRouter creates a router. hist and notifier may be nil.
func NewRouter(st *store.Store, r render.Renderer, pm *presence.Manager, hist *history.DB, b *bus.Bus, n notify.Notifier, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		store:    st,
		renderer: r,
		presence: pm,
		hist:     hist,
		bus:      b,
		notifier: n,
		log:      log,
		notified: make(map[string]struct{}),
	}
}

// Start subscribes to inbound push events on the bus.
func (r *Router) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	ch, unsub := r.bus.Subscribe("push.", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				r.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the router.
func (r *Router) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Router) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case bus.KindPushNewMessage:
		if p, ok := evt.Payload.(*NewMessage); ok {
			r.handleNewMessage(p)
		}
	case bus.KindPushRecalled:
		if p, ok := evt.Payload.(*Recalled); ok {
			r.handleRecalled(p)
		}
	case bus.KindPushTyping:
		if p, ok := evt.Payload.(*Typing); ok {
			r.handleTyping(p)
		}
	case bus.KindPushOnline:
		if p, ok := evt.Payload.(*UserStatus); ok {
			r.presence.SetOnline(p.UserID)
		}
	case bus.KindPushOffline:
		if p, ok := evt.Payload.(*UserStatus); ok {
			r.presence.SetOffline(p.UserID)
		}
	case bus.KindPushStatusChange:
		if p, ok := evt.Payload.(*UserStatus); ok {
			r.handleStatusChange(p)
		}
	case bus.KindPushUploadProgress:
		if p, ok := evt.Payload.(*UploadProgress); ok {
			r.handleUploadProgress(p)
		}
	case bus.KindPushUploadComplete:
		if p, ok := evt.Payload.(*UploadComplete); ok {
			r.handleUploadComplete(p)
		}
	case bus.KindPushDisconnected:
		r.log.Warn("push channel disconnected")
	case bus.KindPushConnected:
		r.log.Info("push channel connected")
		r.refresh()
	}
}

// handleNewMessage applies an inbound message to the matching
// conversation. The conversation matches when the frame's sender and
// receiver are exactly the local user and the partner, in either
// direction; messages for other pairs are ignored.
func (r *Router) handleNewMessage(p *NewMessage) {
	userID := r.store.UserID()
	if userID == "" {
		return
	}
	msg := p.Message.ToStore()
	var partnerID string
	switch {
	case msg.SenderID == userID:
		partnerID = msg.ReceiverID
	case msg.ReceiverID == userID:
		partnerID = msg.SenderID
	default:
		return
	}
	conv := r.store.ByPartner(partnerID)
	if conv == nil {
		if p.Message.ConversationID == "" {
			return
		}
		conv = &store.Conversation{
			ID:        p.Message.ConversationID,
			PartnerID: partnerID,
			Name:      partnerID,
		}
		r.store.Put(conv)
	}

	added := r.store.UpsertMessage(conv.ID, msg)
	if conv.ID == r.store.ActiveID() {
		if added {
			r.renderer.Render(conv.ID, []*store.Message{msg}, render.Options{})
		} else {
			r.renderer.UpdateMessage(conv.ID, msg)
		}
	}

	received := msg.SenderID != userID
	if received && conv.ID != r.store.ActiveID() {
		r.store.SetUnread(conv.ID, conv.Unread+1)
	}
	if received && added && r.firstNotice(msg.ID) && r.notifier != nil {
		r.notifier.Info("New message from " + conv.Name)
	}

	if r.hist != nil {
		if err := r.hist.UpsertMessage(history.FromStore(conv.ID, msg)); err != nil {
			r.log.Warn("history upsert failed", zap.String("msg", msg.ID), zap.Error(err))
		}
	}
	r.refresh()
}

// handleRecalled applies a recall. A soft recall is the sender hiding
// the message on their own side, so it only takes effect when the local
// user sent it; a hard recall removes the message for both parties.
func (r *Router) handleRecalled(p *Recalled) {
	rt := store.RecallType(p.RecallType)
	if rt != store.RecallSoft && rt != store.RecallHard {
		return
	}
	if rt == store.RecallSoft && p.RecalledBy != r.store.UserID() {
		return
	}
	convID := p.ConversationID
	if convID == "" {
		return
	}
	if !r.store.ApplyRecall(convID, p.MessageID, rt) {
		return
	}
	if convID == r.store.ActiveID() {
		if rt == store.RecallHard {
			r.renderer.RemoveMessage(convID, p.MessageID)
		} else if m := r.store.Message(convID, p.MessageID); m != nil {
			r.renderer.UpdateMessage(convID, m)
		}
	}
	if rt == store.RecallHard && p.RecalledBy != r.store.UserID() && r.notifier != nil {
		name := p.RecalledBy
		if conv := r.store.ByPartner(p.RecalledBy); conv != nil {
			name = conv.Name
		}
		r.notifier.Info(name + " recalled a message")
	}
	if r.hist != nil {
		if rt == store.RecallHard {
			if err := r.hist.DeleteMessage(convID, p.MessageID); err != nil {
				r.log.Warn("history delete failed", zap.Error(err))
			}
		} else if m := r.store.Message(convID, p.MessageID); m != nil {
			if err := r.hist.UpsertMessage(history.FromStore(convID, m)); err != nil {
				r.log.Warn("history upsert failed", zap.Error(err))
			}
		}
	}
	r.refresh()
}

// handleTyping forwards typing indicators for known partners.
func (r *Router) handleTyping(p *Typing) {
	if r.store.ByPartner(p.UserID) == nil {
		return
	}
	r.bus.Publish(bus.Event{
		Kind:      bus.KindTypingIndicator,
		Timestamp: time.Now(),
		Payload:   p,
	})
}

func (r *Router) handleStatusChange(p *UserStatus) {
	if p.IsOnline {
		r.presence.SetOnline(p.UserID)
	} else {
		r.presence.SetOffline(p.UserID)
	}
}

// handleUploadComplete swaps the uploading placeholder for the final
// attachments once the server has finished processing. Frames for other
// users' uploads are ignored; their message arrives complete via
// new_message.
func (r *Router) handleUploadComplete(p *UploadComplete) {
	if p.SenderID != r.store.UserID() {
		return
	}
	convID := r.store.ActiveID()
	if convID == "" {
		return
	}
	m := r.store.Message(convID, p.MessageID)
	if m == nil {
		return
	}
	m.Attachments = p.Attachments
	m.UploadPercent = 0
	r.store.UpsertMessage(convID, m)
	r.renderer.UpdateMessage(convID, m)
}

// handleUploadProgress paints the processing percentage onto the local
// user's uploading placeholder. Other users' progress is noise here.
func (r *Router) handleUploadProgress(p *UploadProgress) {
	if p.SenderID != r.store.UserID() {
		return
	}
	convID := r.store.ActiveID()
	if convID == "" {
		return
	}
	m := r.store.Message(convID, p.MessageID)
	if m == nil {
		return
	}
	m.UploadPercent = p.Percent
	r.store.UpsertMessage(convID, m)
	r.renderer.UpdateMessage(convID, m)
}

// firstNotice reports whether this is the first notification for the
// message id. Duplicate push frames must not re-alert.
func (r *Router) firstNotice(msgID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, seen := r.notified[msgID]; seen {
		return false
	}
	if len(r.notified) > 4096 {
		r.notified = make(map[string]struct{})
	}
	r.notified[msgID] = struct{}{}
	return true
}

func (r *Router) refresh() {
	r.bus.Publish(bus.Event{Kind: bus.KindConversationsRefresh, Timestamp: time.Now()})
}
