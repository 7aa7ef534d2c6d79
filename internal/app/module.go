package app

import (
	"context"
	"os"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/rmarinho/convo/internal/api"
	"github.com/rmarinho/convo/internal/bus"
	"github.com/rmarinho/convo/internal/config"
	"github.com/rmarinho/convo/internal/history"
	"github.com/rmarinho/convo/internal/loader"
	"github.com/rmarinho/convo/internal/logging"
	"github.com/rmarinho/convo/internal/notify"
	"github.com/rmarinho/convo/internal/outbox"
	"github.com/rmarinho/convo/internal/presence"
	"github.com/rmarinho/convo/internal/push"
	"github.com/rmarinho/convo/internal/render"
	"github.com/rmarinho/convo/internal/saved"
	"github.com/rmarinho/convo/internal/search"
	"github.com/rmarinho/convo/internal/session"
	"github.com/rmarinho/convo/internal/store"
	"github.com/rmarinho/convo/internal/tui"
)

const sweepInterval = 30 * time.Second

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile string
}

// Module composes all providers and lifecycle hooks for the client.
func Module(p Params) fx.Option {
	return fx.Module("convo",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideConfig,
			provideLock,
			provideHistory,
			provideStore,
			provideClient,
			provideNotifier,
			provideThread,
			provideLoader,
			providePresence,
			provideSearch,
			provideSaved,
			provideOutbox,
			provideListener,
			provideRouter,
			provideUI,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.Profile), p.Profile)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideConfig(logger *zap.Logger) (*config.Config, error) {
	path := session.ConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		logger.Info("no config found, writing defaults", zap.String("path", path))
		cfg = config.Default()
		if err := config.Save(path, cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func provideLock(p Params, logger *zap.Logger) (*session.Lock, error) {
	if err := session.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := session.AcquireLock(session.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideHistory(p Params, logger *zap.Logger) (*history.DB, error) {
	dbPath := session.HistoryDBPath(p.Profile)
	db, err := history.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("history initialized", zap.String("path", dbPath))
	return db, nil
}

func provideStore(cfg *config.Config) *store.Store {
	st := store.New(cfg.Tunables.CacheTTLDuration())
	st.SetUserID(cfg.Server.UserID)
	return st
}

func provideClient(cfg *config.Config) *api.Client {
	return api.NewClient(cfg.Server.BaseURL, cfg.Server.Token)
}

func provideNotifier(b *bus.Bus, logger *zap.Logger) *notify.BusNotifier {
	return notify.New(b, logger)
}

func provideThread(cfg *config.Config) *render.Thread {
	// The drawing layer binds the height function once it exists.
	return render.NewThread(nil, cfg.Tunables.NearBottomRows, cfg.Tunables.LazyLoadCooldownDuration())
}

func provideLoader(st *store.Store, client *api.Client, thread *render.Thread, hist *history.DB, n *notify.BusNotifier, logger *zap.Logger, cfg *config.Config) *loader.Loader {
	return loader.New(st, client, client, thread, hist, n, logger, cfg.Tunables.PageSize)
}

func providePresence(st *store.Store, b *bus.Bus, cfg *config.Config) *presence.Manager {
	return presence.NewManager(st, b, cfg.Tunables.PresenceHoldDuration(), cfg.Tunables.PresenceIndicators)
}

func provideSearch(st *store.Store, l *loader.Loader, hist *history.DB, logger *zap.Logger, cfg *config.Config) *search.Controller {
	return search.NewController(st, l, hist, logger,
		cfg.Tunables.SearchDebounceDuration(), cfg.Tunables.SearchCacheTTLDuration())
}

func provideSaved(st *store.Store, client *api.Client, hist *history.DB, n *notify.BusNotifier, logger *zap.Logger) *saved.Manager {
	return saved.NewManager(st, client, hist, n, logger)
}

func provideOutbox(hist *history.DB, client *api.Client, st *store.Store, thread *render.Thread, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(hist, client, st, thread, b, logger)
}

func provideListener(cfg *config.Config, b *bus.Bus, logger *zap.Logger) *push.Listener {
	return push.NewListener(cfg.Server.PushURL, cfg.Server.Token, b, logger)
}

func provideRouter(st *store.Store, thread *render.Thread, pm *presence.Manager, hist *history.DB, b *bus.Bus, n *notify.BusNotifier, logger *zap.Logger) *push.Router {
	return push.NewRouter(st, thread, pm, hist, b, n, logger)
}

func provideUI(p Params, cfg *config.Config, st *store.Store, thread *render.Thread, ldr *loader.Loader, sender *outbox.Sender, sm *saved.Manager, sc *search.Controller, pm *presence.Manager, b *bus.Bus, logger *zap.Logger) *tui.App {
	return tui.NewApp(tui.Deps{
		Profile:      p.Profile,
		ShowPresence: cfg.Tunables.PresenceIndicators,
		Store:        st,
		Thread:       thread,
		Loader:       ldr,
		Outbox:       sender,
		Saved:        sm,
		Search:       sc,
		Presence:     pm,
		Bus:          b,
		Log:          logger,
	})
}

// restoreConversations seeds the store from the durable mirror so the
// list is usable before the first push frame or page load arrives.
func restoreConversations(st *store.Store, hist *history.DB, logger *zap.Logger) {
	rows, err := hist.ListConversations(0)
	if err != nil {
		logger.Warn("conversation restore failed", zap.Error(err))
		return
	}
	for _, row := range rows {
		st.Put(&store.Conversation{
			ID:         row.ID,
			PartnerID:  row.PartnerID,
			Name:       row.Name,
			Unread:     row.UnreadCount,
			SavedCount: row.SavedCount,
			Deleted:    row.Deleted,
		})
	}
	logger.Info("conversations restored", zap.Int("count", len(rows)))
}

// sweep is the periodic consistency pass: expired page and search cache
// entries are dropped, and recalled messages in the open conversation
// are re-rendered in case a repaint raced the recall.
func sweep(st *store.Store, sc *search.Controller, thread *render.Thread) {
	st.SweepCache()
	sc.SweepCache()
	convID := st.ActiveID()
	if convID == "" {
		return
	}
	for _, m := range st.Snapshot(convID) {
		if m.Recalled() {
			thread.UpdateMessage(convID, m)
		}
	}
}

func registerLifecycle(lc fx.Lifecycle, sd fx.Shutdowner, ui *tui.App, lk *session.Lock, st *store.Store, hist *history.DB, sm *saved.Manager, sc *search.Controller, pm *presence.Manager, router *push.Router, listener *push.Listener, sender *outbox.Sender, thread *render.Thread, logger *zap.Logger) {
	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			restoreConversations(st, hist, logger)
			if err := sm.Restore(); err != nil {
				logger.Warn("saved restore failed", zap.Error(err))
			}

			router.Start(context.Background())
			listener.Start(context.Background())
			sender.Start(context.Background())

			go func() {
				ticker := time.NewTicker(sweepInterval)
				defer ticker.Stop()
				for {
					select {
					case <-ticker.C:
						sweep(st, sc, thread)
					case <-sweepCtx.Done():
						return
					}
				}
			}()

			go func() {
				if err := ui.Run(); err != nil {
					logger.Error("ui error", zap.Error(err))
				}
				_ = sd.Shutdown()
			}()
			return nil
		},
		OnStop: func(_ context.Context) error {
			ui.Stop()
			sc.Cancel()
			cancelSweep()
			sender.Stop()
			listener.Stop()
			router.Stop()
			pm.Stop()
			if err := hist.Close(); err != nil {
				logger.Warn("error closing history", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("client stopped")
			return nil
		},
	})
}
