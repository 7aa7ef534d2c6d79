// Package loader fetches conversation pages from the REST API and
// merges them into the store and the rendered view. It owns the page
// cache policy, the per-conversation load gate, and the cursor to
// offset pagination fallback.
package loader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rmarinho/convo/internal/api"
	"github.com/rmarinho/convo/internal/history"
	"github.com/rmarinho/convo/internal/notify"
	"github.com/rmarinho/convo/internal/render"
	"github.com/rmarinho/convo/internal/store"
)

// PageFetcher is the API surface the loader needs.
type PageFetcher interface {
	FetchMessages(ctx context.Context, req api.PageRequest) (*api.PageResponse, error)
	MarkConversationRead(ctx context.Context, conversationID string) error
}

// BlockChecker answers whether a partner has blocked the user.
type BlockChecker interface {
	Blocked(ctx context.Context, userID, partnerID string) (bool, error)
}

// Options directs a single Load call.
type Options struct {
	// ForceRefresh bypasses the page cache for the first page.
	ForceRefresh bool
	// Offset selects the offset-form page to fetch. Zero means the
	// newest page.
	Offset int
	// Limit overrides the configured page size when positive.
	Limit int
	// Prepend merges the batch above the existing messages instead of
	// replacing them. Used for older-history loads.
	Prepend bool
	// Before and BeforeID form the keyset cursor for older pages. When
	// set the request goes out in cursor form first.
	Before   int64
	BeforeID string
	// ForSearch routes the batch into the conversation's search
	// snapshot without touching the displayed thread.
	ForSearch bool
}

// Loader coordinates page fetches for open conversations.
type Loader struct {
	store    *store.Store
	fetcher  PageFetcher
	blocker  BlockChecker
	renderer render.Renderer
	hist     *history.DB
	notifier notify.Notifier
	log      *zap.Logger
	pageSize int

	// conversations whose older history is known to be exhausted
	mu        sync.Mutex
	exhausted map[string]bool
}

// New creates a loader. hist and blocker may be nil.
func New(st *store.Store, fetcher PageFetcher, blocker BlockChecker, r render.Renderer, hist *history.DB, n notify.Notifier, log *zap.Logger, pageSize int) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{
		store:     st,
		fetcher:   fetcher,
		blocker:   blocker,
		renderer:  r,
		hist:      hist,
		notifier:  n,
		log:       log,
		pageSize:  pageSize,
		exhausted: make(map[string]bool),
	}
}

// Load fetches a page for the conversation and merges it. Calls with no
// open conversation or no authenticated user are silent no-ops, as is a
// call that arrives while another load for the same page key is still
// in flight.
func (l *Loader) Load(ctx context.Context, convID string, opts Options) error {
	conv := l.store.Conversation(convID)
	userID := l.store.UserID()
	if conv == nil || userID == "" {
		return nil
	}
	if l.blocked(ctx, userID, conv.PartnerID) {
		l.renderer.Render(convID, nil, render.Options{ReplaceAll: true})
		return nil
	}

	key := store.PageKey(userID, conv.PartnerID)
	if !l.store.BeginLoad(key) {
		return nil
	}
	defer l.store.EndLoad(key)

	limit := opts.Limit
	if limit <= 0 {
		limit = l.pageSize
	}

	// only the newest page is cacheable; deeper offsets are fetched
	// fresh and any stale entry for the key is dropped first
	if opts.Offset == 0 && !opts.Prepend && !opts.ForSearch && !opts.ForceRefresh {
		if cached, ok := l.store.CachedPage(key); ok {
			l.merge(convID, cached, opts)
			return nil
		}
	}
	if opts.Offset > 0 {
		l.store.EvictPage(key)
	}

	resp, err := l.fetch(ctx, convID, limit, opts)
	if err != nil {
		l.log.Warn("page load failed",
			zap.String("conversation", convID),
			zap.Error(err))
		if l.notifier != nil {
			l.notifier.Error("Couldn't load messages. Check your connection.")
		}
		return fmt.Errorf("load page: %w", err)
	}

	batch := make([]*store.Message, 0, len(resp.Messages))
	for i := range resp.Messages {
		batch = append(batch, resp.Messages[i].ToStore())
	}
	l.resolveReplies(conv, batch)

	if opts.Prepend && len(batch) < limit {
		l.mu.Lock()
		l.exhausted[convID] = true
		l.mu.Unlock()
	}
	if resp.TotalCount != nil {
		l.store.SetTotalCount(convID, *resp.TotalCount)
	}
	l.merge(convID, batch, opts)

	if opts.Offset == 0 && !opts.Prepend && !opts.ForSearch {
		l.store.CachePage(key, l.store.Snapshot(convID))
		l.markRead(ctx, conv)
	}
	l.mirror(convID, batch)
	return nil
}

// LoadOlder fetches the page above the oldest displayed message. The
// lazy-load sentinel calls this when it triggers.
func (l *Loader) LoadOlder(convID string) {
	snap := l.store.Snapshot(convID)
	if len(snap) == 0 {
		return
	}
	oldest := snap[0]
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = l.Load(ctx, convID, Options{
		Prepend:  true,
		Before:   oldest.Timestamp,
		BeforeID: oldest.ID,
	})
}

// HasMore reports whether older pages remain for the conversation.
func (l *Loader) HasMore(convID string) bool {
	l.mu.Lock()
	done := l.exhausted[convID]
	l.mu.Unlock()
	if done {
		return false
	}
	conv := l.store.Conversation(convID)
	if conv == nil {
		return false
	}
	if conv.TotalCount != nil {
		return len(conv.Messages) < *conv.TotalCount
	}
	return true
}

// Loading reports whether a load is in flight for the conversation.
func (l *Loader) Loading(convID string) bool {
	conv := l.store.Conversation(convID)
	if conv == nil {
		return false
	}
	return l.store.Loading(store.PageKey(l.store.UserID(), conv.PartnerID))
}

func (l *Loader) blocked(ctx context.Context, userID, partnerID string) bool {
	if l.blocker == nil {
		return false
	}
	blocked, err := l.blocker.Blocked(ctx, userID, partnerID)
	if err != nil {
		// fail open: a block-check outage must not hide history
		l.log.Warn("block check failed", zap.String("partner", partnerID), zap.Error(err))
		return false
	}
	return blocked
}

// fetch issues the request in cursor form when a cursor is present and
// falls back to offset form if the server rejects the cursor params.
func (l *Loader) fetch(ctx context.Context, convID string, limit int, opts Options) (*api.PageResponse, error) {
	req := api.PageRequest{
		ConversationID: convID,
		Offset:         opts.Offset,
		Limit:          limit,
		Before:         opts.Before,
		BeforeID:       opts.BeforeID,
	}
	resp, err := l.fetcher.FetchMessages(ctx, req)
	if err != nil && req.Cursor() && api.IsValidation(err) {
		l.log.Info("cursor pagination rejected, retrying offset form",
			zap.String("conversation", convID))
		fallback := req.OffsetForm()
		fallback.Offset = len(l.store.Snapshot(convID))
		return l.fetcher.FetchMessages(ctx, fallback)
	}
	return resp, err
}

func (l *Loader) merge(convID string, batch []*store.Message, opts Options) {
	switch {
	case opts.ForSearch:
		l.store.SetSearchMessages(convID, batch)
	case opts.Prepend:
		inserted := l.store.PrependMessages(convID, batch)
		if len(inserted) > 0 {
			l.renderer.Render(convID, inserted, render.Options{Prepend: true})
		}
	default:
		l.store.ReplaceMessages(convID, batch)
		l.renderer.Render(convID, l.store.Snapshot(convID), render.Options{
			ReplaceAll: true,
			FirstPage:  opts.Offset == 0,
		})
	}
}

// resolveReplies fills in reply previews for messages that arrive with
// only the replied-to id, looking first inside the batch and then in
// the already loaded conversation.
func (l *Loader) resolveReplies(conv *store.Conversation, batch []*store.Message) {
	byID := make(map[string]*store.Message, len(batch))
	for _, m := range batch {
		byID[m.ID] = m
	}
	for _, m := range batch {
		if m.ReplyTo == nil || m.ReplyTo.Preview != "" {
			continue
		}
		src := byID[m.ReplyTo.MessageID]
		if src == nil {
			src = l.store.Message(conv.ID, m.ReplyTo.MessageID)
		}
		if src == nil {
			continue
		}
		m.ReplyTo.SenderID = src.SenderID
		m.ReplyTo.Preview = src.Content
		for _, a := range src.Attachments {
			if a.Kind == "image" {
				m.ReplyTo.Attachments = append(m.ReplyTo.Attachments, a)
			}
		}
	}
}

func (l *Loader) markRead(ctx context.Context, conv *store.Conversation) {
	if conv.Unread == 0 {
		return
	}
	if err := l.fetcher.MarkConversationRead(ctx, conv.ID); err != nil {
		l.log.Warn("mark read failed", zap.String("conversation", conv.ID), zap.Error(err))
		return
	}
	l.store.SetUnread(conv.ID, 0)
	if l.hist != nil {
		if err := l.hist.MarkConversationRead(conv.ID); err != nil {
			l.log.Warn("history mark read failed", zap.Error(err))
		}
	}
}

func (l *Loader) mirror(convID string, batch []*store.Message) {
	if l.hist == nil || len(batch) == 0 {
		return
	}
	rows := make([]*history.MessageRow, 0, len(batch))
	for _, m := range batch {
		rows = append(rows, history.FromStore(convID, m))
	}
	if err := l.hist.UpsertBatch(rows); err != nil {
		l.log.Warn("history mirror failed", zap.String("conversation", convID), zap.Error(err))
	}
}
