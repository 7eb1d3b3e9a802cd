package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hyperengineering/smartshop/internal/account"
	"github.com/hyperengineering/smartshop/internal/api"
	"github.com/hyperengineering/smartshop/internal/docstore"
	"github.com/hyperengineering/smartshop/internal/media"
	"github.com/hyperengineering/smartshop/internal/store"
	"github.com/hyperengineering/smartshop/internal/worker"
	"github.com/hyperengineering/smartshop/migrations"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the document service",
	Long:  "Run the HTTP/WebSocket document service that clients synchronize with.",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	// 1. Signal handling
	ctx, cancel := signal.NotifyContext(cmd.Context(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// 2. Server-only configuration
	if err := cfg.ValidateServer(); err != nil {
		return err
	}

	// 3. Server logs go to stdout
	setupLogger(cfg.Log, cmd.OutOrStdout())
	slog.Info("logger initialized", "level", cfg.Log.Level)

	// 4. Initialize database (migrations, WAL mode)
	db, err := store.OpenDB(cfg.Database.Path, migrations.ServerDir)
	if err != nil {
		return err
	}
	slog.Info("store initialized", "path", cfg.Database.Path)

	docs := docstore.New(db)

	// 5. Accounts and media
	accounts, err := account.NewService(db, cfg.Auth.TokenSecret, time.Duration(cfg.Auth.TokenTTL))
	if err != nil {
		db.Close()
		return err
	}
	images, err := media.NewStore(cfg.Media)
	if err != nil {
		db.Close()
		return err
	}
	if cfg.Media.Bucket != "" {
		slog.Info("media initialized", "bucket", cfg.Media.Bucket, "endpoint", cfg.Media.Endpoint)
	} else {
		slog.Info("media initialized", "dir", cfg.Media.Dir)
	}

	// 6. Initialize HTTP router
	handler := api.NewHandler(docs, accounts, images, cfg.PublicBaseURL(), Version)
	router := api.NewRouter(handler)
	slog.Info("router initialized")

	// 7. Configure HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	// 8. Background workers
	var wg sync.WaitGroup
	purge := worker.NewResetPurgeWorker(accounts, time.Duration(cfg.Auth.ResetPurgeInterval))
	startWorker(ctx, &wg, "reset-purge", purge.Run)

	// 9. Start HTTP server in goroutine
	go func() {
		slog.Info("server starting", "address", addr)
		// ErrServerClosed is the expected error when Shutdown() is called gracefully.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	// 10. Block until signal received
	<-ctx.Done()
	slog.Info("shutdown initiated")

	// 11. Graceful shutdown sequence
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	// 11a. End watch streams so Shutdown does not wait on them
	docs.Close()

	// 11b. Stop HTTP server (drains in-flight requests)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// 11c. Wait for workers to complete
	wg.Wait()

	// 11d. Close database
	if err := db.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// startWorker launches a background worker goroutine that respects context cancellation.
// Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Debug("worker launched", "worker", name)
		fn(ctx)
		slog.Debug("worker exited", "worker", name)
	}()
}
