package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	stdsync "sync"
	"syscall"

	"smsrelay-agent/internal/api"
	"smsrelay-agent/internal/feed"
	"smsrelay-agent/internal/infra/config"
	"smsrelay-agent/internal/infra/logger"
	"smsrelay-agent/internal/reconcile"
	"smsrelay-agent/internal/store"
	syncengine "smsrelay-agent/internal/sync"
)

// App is the main application orchestrator. All components are constructed
// here and passed their dependencies explicitly; there is no global state.
type App struct {
	Config *config.Config
	Log    logger.Logger
	Store  *store.Store

	EventStore      *store.EventStore
	CredentialStore *store.CredentialStore

	Source     feed.Source
	Reconciler *reconcile.Reconciler
	ApiClient  *api.Client
	Auth       *api.AuthCache
	Engine     *syncengine.Engine

	ctx    context.Context
	cancel context.CancelFunc
	wg     stdsync.WaitGroup
}

// New creates a new App instance.
func New(cfg *config.Config) (*App, error) {
	log := logger.New("smsrelay", cfg.LogLevel)
	log.Infof("Initializing SMS relay agent...")

	if err := cfg.EnsureStorePath(); err != nil {
		return nil, fmt.Errorf("failed to ensure store path: %w", err)
	}

	dbPath := filepath.Join(cfg.StorePath, "smsrelay.db")
	appStore, err := store.New(dbPath, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	eventStore := store.NewEventStore(appStore)
	credStore := store.NewCredentialStore(appStore)

	feedPath := cfg.FeedPath
	if feedPath == "" {
		feedPath = filepath.Join(cfg.StorePath, "feed.jsonl")
	}
	source := feed.NewFileSource(feedPath, log)

	reconciler := reconcile.New(source, eventStore, cfg.SettleDelay, log)

	apiClient := api.NewClient(cfg.ServerURL, cfg.RequestTimeout, log)
	authCache := api.NewAuthCache(apiClient, credStore, cfg.AuthCacheTTL, log)

	engine := syncengine.NewEngine(eventStore, authCache, apiClient, syncengine.Config{
		BatchSize:       cfg.BatchSize,
		PacingDelay:     cfg.PacingDelay,
		BatchDelay:      cfg.BatchDelay,
		IdleDelay:       cfg.IdleDelay,
		MaxEventRejects: cfg.MaxEventRejects,
		Backoff: syncengine.Backoff{
			Min:        cfg.MinRetryDelay,
			Max:        cfg.MaxRetryDelay,
			Multiplier: cfg.BackoffMultiplier,
			Jitter:     cfg.JitterFraction,
		},
	}, log)

	ctx, cancel := context.WithCancel(context.Background())

	return &App{
		Config:          cfg,
		Log:             log,
		Store:           appStore,
		EventStore:      eventStore,
		CredentialStore: credStore,
		Source:          source,
		Reconciler:      reconciler,
		ApiClient:       apiClient,
		Auth:            authCache,
		Engine:          engine,
		ctx:             ctx,
		cancel:          cancel,
	}, nil
}

// NotifyCapture signals that a new message event was just observed. It only
// enqueues a reconciliation trigger and returns immediately.
func (a *App) NotifyCapture() {
	a.Reconciler.Notify()
}

// Run starts the reconciler and sync engine and blocks until shutdown.
func (a *App) Run() error {
	a.Log.Infof("Starting SMS relay agent...")

	// SIGINT/SIGTERM stop the agent; SIGUSR1 stands in for the platform's
	// live-capture broadcast and triggers a catch-up pass.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	captureChan := make(chan os.Signal, 1)
	signal.Notify(captureChan, syscall.SIGUSR1)

	go func() {
		sig := <-sigChan
		a.Log.Infof("Received %v, initiating shutdown...", sig)
		a.cancel()
	}()
	go func() {
		for range captureChan {
			a.Log.Debugf("Capture notification received")
			a.NotifyCapture()
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.Reconciler.Run(a.ctx, a.Config.ReconcileEvery)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.Engine.Run(a.ctx)
	}()

	// Surface engine status messages in the log.
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		statusLog := a.Log.Sub("Status")
		for {
			select {
			case <-a.ctx.Done():
				return
			case msg := <-a.Engine.Status():
				statusLog.Infof("%s", msg)
			}
		}
	}()

	a.Log.Infof("SMS relay agent is running. Press Ctrl+C to stop.")
	<-a.ctx.Done()
	return a.Shutdown()
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown() error {
	a.cancel()
	a.wg.Wait()
	return a.Store.Close()
}
