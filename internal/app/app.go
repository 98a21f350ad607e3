// Package app wires configuration, storage, sessions and the Telegram
// transport into a running bot.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"

	handler "kinobot/api"
	"kinobot/internal/bot"
	"kinobot/internal/broadcast"
	"kinobot/internal/config"
	"kinobot/internal/premium"
	"kinobot/internal/session"
	"kinobot/internal/storage"
	"kinobot/internal/tg"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	cfg      *config.Config
	log      hclog.Logger
	store    storage.Store
	tg       *tg.Client
	bot      *bot.Bot
	premium  *premium.Service
	closers  []func() error
	username string
}

// New opens every dependency named by cfg. The returned App owns them until
// Close.
func New(ctx context.Context, cfg *config.Config, log hclog.Logger) (_ *App, err error) {
	a := &App{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.store, err = OpenStore(ctx, cfg, log.Named("storage"))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.store.Close)

	if cfg.LegacyJSONPath != "" {
		if _, err := storage.ImportLegacyJSON(ctx, a.store, cfg.LegacyJSONPath, log.Named("legacy")); err != nil {
			log.Warn("legacy import failed", "path", cfg.LegacyJSONPath, "error", err)
		}
	}

	sessions, err := a.openSessions(ctx)
	if err != nil {
		return nil, err
	}

	a.tg, err = tg.NewClient(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	a.username = cfg.ShareBotUsername
	if a.username == "" {
		a.username = a.tg.Username()
	}
	log.Info("authorized", "bot", a.username)

	a.premium = premium.NewService(a.store, log.Named("premium"))
	a.bot = bot.New(bot.Options{
		AdminIDs:        cfg.AdminIDs,
		PromoChannel:    cfg.PromoChannel,
		BotUsername:     a.username,
		RandomListLimit: cfg.RandomListLimit,
		MovieListLimit:  cfg.MovieListLimit,
		Broadcast: broadcast.Options{
			ChunkSize:   cfg.BroadcastChunkSize,
			Concurrency: cfg.BroadcastConcurrency,
			PerSecond:   cfg.BroadcastRate,
		},
	}, bot.Deps{
		Store:     a.store,
		Sessions:  sessions,
		Messenger: a.tg,
		Premium:   a.premium,
		Log:       log.Named("bot"),
	})
	if len(cfg.AdminIDs) == 0 {
		log.Warn("ADMIN_IDS is empty, the admin panel is unreachable")
	}
	return a, nil
}

// OpenStore opens the backend selected by STORE_DRIVER.
func OpenStore(ctx context.Context, cfg *config.Config, log hclog.Logger) (storage.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		m, err := storage.NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, log)
		if err != nil {
			return nil, err
		}
		return m, nil
	case config.DriverSQLite, "":
		s, err := storage.OpenSQLite(storage.SQLiteOptions{
			Path:        cfg.DBPath,
			BusyTimeout: cfg.DBTimeout,
			MaxRetries:  cfg.DBMaxRetries,
			RetryDelay:  cfg.DBRetryDelay,
		}, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func (a *App) openSessions(ctx context.Context) (session.Store, error) {
	if a.cfg.RedisAddr == "" {
		a.log.Info("sessions kept in memory")
		return session.NewMemoryStore(), nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: a.cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", a.cfg.RedisAddr, err)
	}
	a.closers = append(a.closers, rdb.Close)
	a.log.Info("sessions kept in redis", "addr", a.cfg.RedisAddr, "ttl", a.cfg.SessionTTL)
	return session.NewRedisStore(rdb, a.cfg.SessionTTL), nil
}

// Run serves updates until ctx is done: through the webhook when WEBHOOK_URL
// is set, by long polling otherwise.
func (a *App) Run(ctx context.Context) error {
	stop, err := a.premium.StartSweeper(ctx, a.cfg.PremiumSweepSchedule)
	if err != nil {
		return err
	}
	defer stop()

	if a.cfg.WebhookURL != "" {
		return a.runWebhook(ctx)
	}
	return a.RunPolling(ctx)
}

// RunPolling long-polls Telegram and handles each update on its own goroutine.
func (a *App) RunPolling(ctx context.Context) error {
	if err := a.tg.DeleteWebhook(ctx); err != nil {
		a.log.Warn("delete webhook failed", "error", err)
	}
	a.log.Info("polling started")
	err := a.serveUpdates(ctx, a.tg.Updates(), a.bot, a.tg.StopUpdates)
	a.log.Info("polling stopped")
	return err
}

// serveUpdates hands every update to h until ctx is done, then calls stop and
// waits for the handlers already running. Handlers run with a context that
// survives ctx and is cancelled once the shutdown grace period runs out.
func (a *App) serveUpdates(ctx context.Context, updates <-chan tgbotapi.Update, h handler.UpdateHandler, stop func()) error {
	work, cancel := context.WithCancel(context.WithoutCancel(ctx))
	var wg sync.WaitGroup
	defer a.drain(wg.Wait, cancel)

	for {
		select {
		case <-ctx.Done():
			stop()
			return nil
		case upd, ok := <-updates:
			if !ok {
				return errors.New("update channel closed")
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				h.HandleUpdate(work, upd)
			}()
		}
	}
}

// drain waits for wait to return. When that takes longer than the shutdown
// grace period the handlers' context is cancelled so they fail fast.
func (a *App) drain(wait func(), cancel context.CancelFunc) {
	defer cancel()
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	t := time.NewTimer(a.cfg.ShutdownGrace)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
		a.log.Warn("in-flight updates still running, cancelling", "grace", a.cfg.ShutdownGrace)
		cancel()
		<-done
	}
}

func (a *App) runWebhook(ctx context.Context) error {
	if err := a.tg.SetWebhook(ctx, a.cfg.WebhookURL, a.cfg.WebhookSecret); err != nil {
		return err
	}
	work, cancel := context.WithCancel(context.WithoutCancel(ctx))
	srv := handler.NewServer(work, a.bot, a.store, handler.Options{
		Secret:       a.cfg.WebhookSecret,
		LibraryLimit: a.cfg.MovieListLimit,
		BotUsername:  a.username,
	}, a.log.Named("http"))

	server := &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		a.log.Info("server listening", "addr", server.Addr, "webhook", a.cfg.WebhookURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		cancel()
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	a.log.Info("shutting down server")
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	_ = server.Shutdown(shutdownCtx)
	a.drain(srv.Wait, cancel)
	a.log.Info("server stopped")
	return nil
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
