// Package app wires all Polly subsystems into a running server.
//
// The App struct owns the full lifecycle: [New] creates and connects all
// subsystems, [App.Run] serves HTTP until the context is cancelled, and
// [App.Shutdown] tears everything down in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithNotifier, WithClock). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/pollyconnect/polly/internal/clock"
	"github.com/pollyconnect/polly/internal/config"
	"github.com/pollyconnect/polly/internal/content"
	"github.com/pollyconnect/polly/internal/conversation"
	"github.com/pollyconnect/polly/internal/distress"
	"github.com/pollyconnect/polly/internal/gateway"
	"github.com/pollyconnect/polly/internal/health"
	"github.com/pollyconnect/polly/internal/intent"
	"github.com/pollyconnect/polly/internal/limits"
	"github.com/pollyconnect/polly/internal/notify"
	"github.com/pollyconnect/polly/internal/observe"
	"github.com/pollyconnect/polly/internal/storage"
	"github.com/pollyconnect/polly/internal/storage/postgres"
)

// App owns all subsystem lifetimes for the Polly server.
type App struct {
	cfg *config.Config
	log *slog.Logger

	clk        clock.Clock
	lib        *content.Library
	classifier *intent.Classifier
	monitor    *distress.Monitor
	ledger     *limits.Ledger
	store      storage.StoryStore
	notifier   notify.Notifier
	dispatcher *notify.Dispatcher
	metrics    *observe.Metrics
	sessions   *SessionManager
	srv        *http.Server

	// closers are called in reverse order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for [New]. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a story store instead of creating one from config.
func WithStore(s storage.StoryStore) Option {
	return func(a *App) { a.store = s }
}

// WithNotifier injects a notification delivery backend instead of the
// configured webhook.
func WithNotifier(n notify.Notifier) Option {
	return func(a *App) { a.notifier = n }
}

// WithClock injects a clock instead of the system clock.
func WithClock(c clock.Clock) Option {
	return func(a *App) { a.clk = c }
}

// WithMetrics injects a metrics instance instead of the global default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together: content library,
// intent classifier, distress monitor, session ledger, story store,
// notification dispatcher, and the HTTP surface (device websocket, health,
// metrics).
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, opts ...Option) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	a := &App{cfg: cfg, log: log}
	for _, o := range opts {
		o(a)
	}
	if a.clk == nil {
		a.clk = clock.System{}
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initContent(); err != nil {
		return nil, fmt.Errorf("app: init content: %w", err)
	}
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	a.initNotify()
	a.initConversation()
	a.initHTTP()

	return a, nil
}

// initContent loads the conversational content and the classifiers over it.
func (a *App) initContent() error {
	var (
		lib *content.Library
		err error
	)
	if dir := a.cfg.Content.Dir; dir != "" {
		lib, err = content.LoadDir(dir)
	} else {
		lib, err = content.LoadDefaults()
	}
	if err != nil {
		return err
	}
	a.lib = lib

	var copts []intent.Option
	if a.cfg.Intent.PhoneticAssist {
		copts = append(copts, intent.WithPhoneticAssist(a.cfg.Intent.PhoneticThreshold))
	}
	a.classifier = intent.NewClassifier(lib, copts...)
	a.monitor = distress.NewMonitor(a.cfg.MemoryCare.DistressingKeywords)
	a.log.Info("content loaded", "weeks", lib.NumWeeks())
	return nil
}

// initStore connects the story store: PostgreSQL when a DSN is configured,
// in-memory otherwise.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	dsn := a.cfg.Storage.PostgresDSN
	if dsn == "" {
		a.log.Warn("no postgres_dsn configured, stories are kept in memory only")
		a.store = storage.NewMemStore()
		return nil
	}
	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return err
	}
	a.store = store
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	a.log.Info("story store connected")
	return nil
}

// initNotify sets up the family notification dispatcher.
func (a *App) initNotify() {
	if a.notifier == nil && a.cfg.Notifications.WebhookURL != "" {
		a.notifier = notify.NewWebhookNotifier(a.cfg.Notifications.WebhookURL, nil)
	}
	a.dispatcher = notify.NewDispatcher(a.notifier, notify.FilterConfig{
		Enabled:          a.cfg.Notifications.Enabled,
		NotifyOnNewStory: a.cfg.Notifications.NotifyOnNewStory,
		NotifyOnDistress: a.cfg.Notifications.NotifyOnDistressKeywords,
		DailySummary:     a.cfg.Notifications.DailySummary,
		WeeklyDigest:     a.cfg.Notifications.WeeklyDigest,
	}, notify.WithObserver(func(kind, status string) {
		a.metrics.RecordNotification(context.Background(), kind, status)
	}))
	a.closers = append(a.closers, func() error {
		a.dispatcher.Close()
		return nil
	})
}

// initConversation builds the shared session dependencies and the registry.
func (a *App) initConversation() {
	a.ledger = limits.NewLedger(a.cfg.Limits, a.clk)
	deps := conversation.Deps{
		Cfg:        a.cfg,
		Lib:        a.lib,
		Clock:      a.clk,
		Classifier: a.classifier,
		Distress:   a.monitor,
		Ledger:     a.ledger,
		Store:      a.store,
		Notify:     a.dispatcher,
		Metrics:    a.metrics,
		Log:        a.log,
	}
	a.sessions = NewSessionManager(deps, a.activeWeek, a.log)
}

// activeWeek resolves the question week at session start.
func (a *App) activeWeek() int {
	if w := a.cfg.Content.WeekOverride; w > 0 {
		return w
	}
	if a.cfg.Content.StartDate == "" {
		return 1
	}
	start, err := time.Parse("2006-01-02", a.cfg.Content.StartDate)
	if err != nil {
		// Validation catches this at load; a bad injected config falls back
		// to week 1.
		return 1
	}
	return clock.WeekOf(start, a.clk.Now(), a.lib.NumWeeks())
}

// initHTTP assembles the server mux: device websocket, health probes, and
// Prometheus metrics.
func (a *App) initHTTP() {
	checkers := []health.Checker{
		{Name: "content", Check: func(context.Context) error {
			if a.lib.NumWeeks() == 0 {
				return fmt.Errorf("content library empty")
			}
			return nil
		}},
	}
	if p, ok := a.store.(interface{ Ping(context.Context) error }); ok {
		checkers = append(checkers, health.Checker{Name: "story_store", Check: p.Ping})
	}
	hc := health.New(checkers...)

	mux := http.NewServeMux()
	mux.Handle("/ws", gateway.NewHandler(a.sessions, a.metrics, a.log))
	mux.HandleFunc("/healthz", hc.Healthz)
	mux.HandleFunc("/readyz", hc.Readyz)
	mux.Handle("/metrics", promhttp.Handler())

	a.srv = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Sessions exposes the session registry, mainly for tests.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("server listening", "addr", a.cfg.Server.ListenAddr)
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return a.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown winds down active sessions, stops the HTTP server, and closes all
// subsystems in reverse initialisation order. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down")
		a.sessions.EndAll()
		if sErr := a.srv.Shutdown(ctx); sErr != nil {
			err = fmt.Errorf("app: http shutdown: %w", sErr)
		}
		for i := len(a.closers) - 1; i >= 0; i-- {
			if cErr := a.closers[i](); cErr != nil && err == nil {
				err = cErr
			}
		}
		a.log.Info("shutdown complete")
	})
	return err
}
