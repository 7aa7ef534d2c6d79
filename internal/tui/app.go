package tui

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"

	"github.com/rmarinho/convo/internal/bus"
	"github.com/rmarinho/convo/internal/loader"
	"github.com/rmarinho/convo/internal/notify"
	"github.com/rmarinho/convo/internal/outbox"
	"github.com/rmarinho/convo/internal/presence"
	"github.com/rmarinho/convo/internal/push"
	"github.com/rmarinho/convo/internal/render"
	"github.com/rmarinho/convo/internal/saved"
	"github.com/rmarinho/convo/internal/search"
	"github.com/rmarinho/convo/internal/store"
)

const (
	flashDuration   = 5 * time.Second
	refreshInterval = 5 * time.Second
	typingLinger    = 3 * time.Second
)

// Deps are the collaborators the shell draws from and drives.
type Deps struct {
	Profile      string
	ShowPresence bool

	Store    *store.Store
	Thread   *render.Thread
	Loader   *loader.Loader
	Outbox   *outbox.Sender
	Saved    *saved.Manager
	Search   *search.Controller
	Presence *presence.Manager
	Bus      *bus.Bus
	Log      *zap.Logger
}

// App is the terminal application shell. It owns the tview event loop;
// every mutation of a widget happens on that loop, either directly from
// an input handler or through QueueUpdateDraw.
type App struct {
	app   *tview.Application
	pages *tview.Pages

	statusBar   *StatusBar
	convList    *ConversationList
	threadView  *ThreadView
	composer    *Composer
	searchView  *SearchView
	savedView   *SavedView
	filterInput *tview.InputField
	chatFlex    *tview.Flex

	d     Deps
	flash flash

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp builds the shell and wires all view callbacks.
func NewApp(d Deps) *App {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:        tview.NewApplication(),
		pages:      tview.NewPages(),
		statusBar:  NewStatusBar(),
		convList:   NewConversationList(),
		threadView: NewThreadView(d.Thread),
		composer:   NewComposer(),
		searchView: NewSearchView(),
		savedView:  NewSavedView(),
		d:          d,
		ctx:        ctx,
		cancel:     cancel,
	}

	a.statusBar.SetProfile(d.Profile)
	a.convList.SetShowPresence(d.ShowPresence)
	a.threadView.SetSavedFunc(d.Saved.Saved)

	d.Thread.SetRedraw(func() {
		go a.app.QueueUpdateDraw(a.threadView.Redraw)
	})
	d.Thread.SetLoadOlder(func(convID string) {
		go a.d.Loader.LoadOlder(convID)
	})
	d.Thread.SetInFlight(d.Loader.Loading)
	d.Thread.SetHasMore(d.Loader.HasMore)

	a.setupCallbacks()
	a.setupLayout()
	return a
}

func (a *App) setupCallbacks() {
	a.convList.SetSelectedFunc(func(convID string) {
		a.openConversation(convID)
	})

	a.composer.SetOnSend(func(text, replyToID string) {
		conv := a.d.Store.Active()
		if conv == nil {
			return
		}
		go func() {
			if _, err := a.d.Outbox.Send(conv.ID, conv.PartnerID, text, replyToID); err != nil {
				a.setFlash("Send failed: " + err.Error())
			}
		}()
	})

	a.searchView.SetOnQuery(a.d.Search.SetQuery)
	a.searchView.SetOnSender(a.d.Search.SetSender)
	a.searchView.SetOnDates(a.d.Search.SetDateRange)
	a.searchView.SetOnMore(func() {
		page, ok := a.d.Search.NextPage()
		if !ok {
			return
		}
		conv := a.d.Store.Active()
		if conv == nil {
			return
		}
		a.searchView.Append(page, a.d.Store.UserID(), conv.Name)
	})
	a.searchView.SetOnOpen(func(msgID string) {
		a.pages.SwitchToPage("chat")
		a.app.SetFocus(a.threadView)
		a.threadView.SelectMessage(msgID)
	})

	a.savedView.SetOnOpen(func(msgID string) {
		a.pages.SwitchToPage("chat")
		a.app.SetFocus(a.threadView)
		a.threadView.SelectMessage(msgID)
	})
	a.savedView.SetOnUnsave(func(msgID string) {
		conv := a.d.Store.Active()
		if conv == nil {
			return
		}
		convID := conv.ID
		go func() {
			a.d.Saved.Unsave(a.ctx, msgID)
			a.refreshSaved(convID)
		}()
	})

	a.d.Search.OnResults(func(res search.Results) {
		conv := a.d.Store.Active()
		if conv == nil {
			return
		}
		userID, name := a.d.Store.UserID(), conv.Name
		a.app.QueueUpdateDraw(func() {
			a.searchView.Show(res, userID, name)
		})
	})
}

func (a *App) setupLayout() {
	a.filterInput = tview.NewInputField().
		SetLabel(" filter: ").
		SetFieldWidth(0)
	a.filterInput.SetChangedFunc(func(text string) {
		a.d.Thread.SetFilter(text)
	})
	a.filterInput.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEscape {
			a.filterInput.SetText("")
			a.d.Thread.SetFilter("")
		}
		a.hideFilter()
	})

	a.chatFlex = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.threadView, 0, 1, true).
		AddItem(a.filterInput, 0, 0, false).
		AddItem(a.composer, 1, 0, false)

	a.pages.AddPage("conversations", a.convList, true, true)
	a.pages.AddPage("chat", a.chatFlex, true, false)
	a.pages.AddPage("search", a.searchView, true, false)
	a.pages.AddPage("saved", a.savedView, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)
	a.app.SetInputCapture(a.handleKey)
}

func (a *App) handleKey(event *tcell.EventKey) *tcell.EventKey {
	page, _ := a.pages.GetFrontPage()

	focused := a.app.GetFocus()

	if event.Key() == tcell.KeyEscape {
		switch page {
		case "chat":
			switch focused {
			case a.composer.InputField:
				a.app.SetFocus(a.threadView)
				return nil
			case a.filterInput:
				// The field's done func clears and hides itself.
				return event
			}
			a.closeConversation()
			return nil
		case "search":
			a.d.Search.Cancel()
			a.pages.SwitchToPage("chat")
			a.app.SetFocus(a.threadView)
			return nil
		case "saved":
			a.pages.SwitchToPage("chat")
			a.app.SetFocus(a.threadView)
			return nil
		}
		return event
	}

	// Text inputs consume their own keys.
	if _, ok := focused.(*tview.InputField); ok {
		return event
	}

	if event.Key() != tcell.KeyRune {
		return event
	}
	switch event.Rune() {
	case 'q':
		if page == "conversations" {
			a.Stop()
			return nil
		}
	case 'i':
		if page == "chat" {
			a.app.SetFocus(a.composer.InputField)
			return nil
		}
	case 's':
		if page == "chat" {
			a.showSearch()
			return nil
		}
	case 'r':
		if page == "chat" {
			a.replySelected()
			return nil
		}
	case 'm':
		if page == "chat" {
			a.toggleSaveSelected()
			return nil
		}
	case 'v':
		if page == "chat" {
			a.showSaved()
			return nil
		}
	case '/':
		if page == "chat" {
			a.showFilter()
			return nil
		}
	}
	return event
}

// showFilter opens the inline refine input. It narrows what is already
// rendered without fetching anything.
func (a *App) showFilter() {
	a.chatFlex.ResizeItem(a.filterInput, 1, 0)
	a.app.SetFocus(a.filterInput)
}

func (a *App) hideFilter() {
	a.chatFlex.ResizeItem(a.filterInput, 0, 0)
	a.app.SetFocus(a.threadView)
}

func (a *App) openConversation(convID string) {
	conv := a.d.Store.Conversation(convID)
	if conv == nil {
		return
	}
	a.d.Store.SetActive(convID)
	a.d.Thread.Open(convID)
	a.threadView.ClearSelection()
	a.threadView.SetUserID(a.d.Store.UserID())
	a.threadView.SetPartnerName(conv.Name)
	a.composer.ClearReply()
	a.filterInput.SetText("")
	a.chatFlex.ResizeItem(a.filterInput, 0, 0)
	a.statusBar.SetPresence(conv.Name, a.presenceLabel(conv))

	a.pages.SwitchToPage("chat")
	a.app.SetFocus(a.threadView)

	go func() {
		if err := a.d.Loader.Load(a.ctx, convID, loader.Options{}); err != nil {
			a.d.Log.Warn("initial page load failed", zap.String("conversation", convID), zap.Error(err))
		}
	}()
}

func (a *App) closeConversation() {
	a.d.Store.SetActive("")
	a.d.Thread.Open("")
	a.threadView.ClearSelection()
	a.statusBar.SetPresence("", "")
	a.statusBar.SetTyping(false)
	a.pages.SwitchToPage("conversations")
	a.app.SetFocus(a.convList)
	a.convList.Update(a.d.Store.Conversations())
}

func (a *App) showSearch() {
	a.searchView.Reset()
	a.pages.SwitchToPage("search")
	a.app.SetFocus(a.searchView.Input())
}

func (a *App) showSaved() {
	conv := a.d.Store.Active()
	if conv == nil {
		return
	}
	convID := conv.ID
	a.savedView.Show(nil, a.d.Store.UserID(), conv.Name)
	a.pages.SwitchToPage("saved")
	a.app.SetFocus(a.savedView)
	go a.refreshSaved(convID)
}

// refreshSaved re-fetches the saved list for the conversation and
// repaints the panel. Runs off the UI loop.
func (a *App) refreshSaved(convID string) {
	msgs, err := a.d.Saved.SavedMessages(a.ctx, convID)
	if err != nil {
		a.d.Log.Warn("saved list load failed", zap.String("conversation", convID), zap.Error(err))
		a.setFlash("Couldn't load saved messages.")
		return
	}
	conv := a.d.Store.Conversation(convID)
	name := ""
	if conv != nil {
		name = conv.Name
	}
	userID := a.d.Store.UserID()
	a.app.QueueUpdateDraw(func() {
		a.savedView.Show(msgs, userID, name)
	})
}

func (a *App) replySelected() {
	m := a.threadView.Selected()
	if m == nil || m.Recalled() {
		return
	}
	preview := m.Content
	if len(preview) > 40 {
		preview = preview[:40] + "…"
	}
	a.composer.SetReply(m.ID, preview)
	a.app.SetFocus(a.composer.InputField)
}

func (a *App) toggleSaveSelected() {
	m := a.threadView.Selected()
	conv := a.d.Store.Active()
	if m == nil || conv == nil {
		return
	}
	msgID, convID := m.ID, conv.ID
	go func() {
		if a.d.Saved.Saved(msgID) {
			a.d.Saved.Unsave(a.ctx, msgID)
		} else {
			a.d.Saved.Save(a.ctx, convID, msgID)
		}
		a.app.QueueUpdateDraw(a.threadView.Redraw)
	}()
}

func (a *App) presenceLabel(conv *store.Conversation) string {
	if !a.d.ShowPresence || conv == nil {
		return ""
	}
	return string(conv.Status)
}

func (a *App) setFlash(msg string) {
	a.flash.Set(msg, flashDuration)
	a.app.QueueUpdateDraw(func() {
		a.statusBar.SetFlash(a.flash.Get())
	})
}

// Run starts the event loop and blocks until Stop or a UI error.
func (a *App) Run() error {
	a.convList.Update(a.d.Store.Conversations())
	go a.eventLoop()
	go a.refreshLoop()
	return a.app.Run()
}

// Stop tears down the event loop.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

// eventLoop applies bus events to the widgets. The router has already
// reduced push frames into the store by the time the matching UI signal
// arrives here.
func (a *App) eventLoop() {
	convCh, unsubConv := a.d.Bus.Subscribe("conversations.", 64)
	presCh, unsubPres := a.d.Bus.Subscribe("presence.", 64)
	uiCh, unsubUI := a.d.Bus.Subscribe("ui.", 64)
	msgCh, unsubMsg := a.d.Bus.Subscribe("message.", 64)
	pushCh, unsubPush := a.d.Bus.Subscribe("push.", 64)
	defer unsubConv()
	defer unsubPres()
	defer unsubUI()
	defer unsubMsg()
	defer unsubPush()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-convCh:
			a.app.QueueUpdateDraw(func() {
				a.convList.Update(a.d.Store.Conversations())
			})
		case evt := <-presCh:
			change, ok := evt.Payload.(presence.Change)
			if !ok {
				continue
			}
			a.app.QueueUpdateDraw(func() {
				a.convList.Update(a.d.Store.Conversations())
				if conv := a.d.Store.Active(); conv != nil && conv.PartnerID == change.UserID {
					a.statusBar.SetPresence(conv.Name, a.presenceLabel(conv))
				}
			})
		case evt := <-uiCh:
			a.handleUIEvent(evt)
		case evt := <-msgCh:
			switch evt.Kind {
			case bus.KindSendFailed:
				if ack, ok := evt.Payload.(outbox.Ack); ok && ack.Error != "" {
					a.setFlash("Send failed: " + ack.Error)
				}
			case bus.KindSendAck:
				a.app.QueueUpdateDraw(func() {
					a.convList.Update(a.d.Store.Conversations())
				})
			}
		case evt := <-pushCh:
			switch evt.Kind {
			case bus.KindPushConnected:
				a.app.QueueUpdateDraw(func() { a.statusBar.SetConnected(true) })
			case bus.KindPushDisconnected:
				a.app.QueueUpdateDraw(func() { a.statusBar.SetConnected(false) })
			}
		}
	}
}

func (a *App) handleUIEvent(evt bus.Event) {
	switch evt.Kind {
	case bus.KindToast:
		if toast, ok := evt.Payload.(notify.Toast); ok {
			a.setFlash(toast.Text)
		}
	case bus.KindTypingIndicator:
		p, ok := evt.Payload.(*push.Typing)
		if !ok {
			return
		}
		conv := a.d.Store.Active()
		if conv == nil || conv.PartnerID != p.UserID {
			return
		}
		on := p.Typing
		a.app.QueueUpdateDraw(func() { a.statusBar.SetTyping(on) })
		if on {
			time.AfterFunc(typingLinger, func() {
				a.app.QueueUpdateDraw(func() { a.statusBar.SetTyping(false) })
			})
		}
	}
}

// refreshLoop is the fallback repaint tick: conversation ordering,
// unread badges, and flash expiry do not all have dedicated events.
func (a *App) refreshLoop() {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.app.QueueUpdateDraw(func() {
				if page, _ := a.pages.GetFrontPage(); page == "conversations" {
					a.convList.Update(a.d.Store.Conversations())
				}
				a.statusBar.SetFlash(a.flash.Get())
			})
		case <-a.ctx.Done():
			return
		}
	}
}
