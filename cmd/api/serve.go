package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/ibrahimkeyboad/ezledger/internal/adapter/handler"
	"github.com/ibrahimkeyboad/ezledger/internal/adapter/middleware"
	"github.com/ibrahimkeyboad/ezledger/internal/adapter/server"
	"github.com/ibrahimkeyboad/ezledger/internal/adapter/storage"
	"github.com/ibrahimkeyboad/ezledger/internal/adapter/storage/memory"
	"github.com/ibrahimkeyboad/ezledger/internal/core/config"
	"github.com/ibrahimkeyboad/ezledger/internal/core/domain"
	"github.com/ibrahimkeyboad/ezledger/internal/core/ledger"
	"github.com/ibrahimkeyboad/ezledger/internal/core/notifications"
	"github.com/ibrahimkeyboad/ezledger/internal/core/worker"
)

// backend is every port the running service needs from one store.
type backend interface {
	ledger.Store
	handler.AccountRegistry
	middleware.KeyStore
	middleware.ResponseCache
	notifications.Store
	notifications.JobQueue
	notifications.InboxStore
	worker.Queue
}

var (
	_ backend = (*storage.Store)(nil)
	_ backend = (*memory.Store)(nil)
)

func serveCmd() *cobra.Command {
	var bootstrapAdmin string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the webhook worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), bootstrapAdmin)
		},
	}
	cmd.Flags().StringVar(&bootstrapAdmin, "bootstrap-admin", "", "create an admin account with this username and log its API key")
	return cmd
}

// openBackend picks the store from STORAGE. The returned pool is nil for memory.
func openBackend(ctx context.Context, cfg *config.Config) (backend, *pgxpool.Pool, error) {
	if cfg.Storage == config.StorageMemory {
		slog.Warn("⚠️ Using in-memory storage, data is lost on exit")
		return memory.New(), nil, nil
	}
	dbPool, err := storage.ConnectDB(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return nil, nil, err
	}
	return storage.NewStore(dbPool), dbPool, nil
}

func runServe(ctx context.Context, bootstrapAdmin string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	// 2. Setup Logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	// 3. Storage
	store, dbPool, err := openBackend(ctx, cfg)
	if err != nil {
		slog.Error("❌ Database connection failed", "error", err)
		return err
	}

	if bootstrapAdmin != "" {
		if err := createAdmin(ctx, store, bootstrapAdmin, func(key string) {
			slog.Info("🔑 Admin account created", "username", bootstrapAdmin, "api_key", key)
		}); err != nil && !errors.Is(err, domain.ErrUsernameTaken) {
			return err
		}
	}

	// 4. Core services
	dispatcher := notifications.NewDispatcher(store, store, notifications.DispatcherConfig{
		QueueSize:  cfg.NotifyQueueSize,
		Workers:    cfg.NotifyWorkers,
		WebhookURL: cfg.WebhookURL,
	}, logger)
	svc := ledger.New(store, cfg.Ledger(), ledger.WithNotifier(dispatcher), ledger.WithLogger(logger))
	limiter := middleware.NewRateLimiter(cfg.RateLimitPerSec, cfg.RateLimitBurst)

	var ping func(context.Context) error
	if dbPool != nil {
		ping = dbPool.Ping
	}

	// 5. Setup Fiber
	app := server.NewApp(server.Deps{
		Ledger:   svc,
		Accounts: store,
		Keys:     store,
		Cache:    store,
		Inbox:    notifications.NewInbox(store),
		Limiter:  limiter,
		Ping:     ping,
	})

	// 6. Background work: webhook worker and limiter cleanup
	bgCtx, stopBackground := context.WithCancel(ctx)
	processor := worker.NewProcessor(store, worker.Config{
		Secret:       cfg.WebhookSecret,
		PollInterval: cfg.WebhookPollInterval,
		MaxAttempts:  cfg.WebhookMaxAttempts,
		RatePerSec:   cfg.WebhookRatePerSec,
		Lease:        cfg.WebhookLease,
	})
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		slog.Info("👷 Webhook Worker Started...")
		processor.Run(bgCtx)
	}()
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-bgCtx.Done():
				return
			case <-ticker.C:
				limiter.Cleanup(10 * time.Minute)
			}
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	listenErr := make(chan error, 1)
	go func() {
		slog.Info("🚀 Server starting", "env", cfg.Env, "port", cfg.Port, "storage", cfg.Storage)
		listenErr <- app.Listen(":" + cfg.Port)
	}()

	select {
	case <-stop:
		slog.Info("🛑 Shutting down server...")
	case err = <-listenErr:
		slog.Error("Server forced to shutdown", "error", err)
	}

	// Stop accepting requests and finish active ones before the stores go away.
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}
	dispatcher.Close()
	stopBackground()
	<-workerDone

	if dbPool != nil {
		dbPool.Close()
		slog.Info("✅ Database connection closed")
	}

	slog.Info("👋 Server exited successfully")
	return err
}
