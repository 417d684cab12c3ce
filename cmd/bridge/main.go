// Bridge orchestrator server — provides the HTTP API, manages queue
// workers, and drives task planning and execution.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/starfleetai/bridge/pkg/abilities"
	"github.com/starfleetai/bridge/pkg/api"
	"github.com/starfleetai/bridge/pkg/browser"
	"github.com/starfleetai/bridge/pkg/chat"
	"github.com/starfleetai/bridge/pkg/config"
	"github.com/starfleetai/bridge/pkg/database"
	"github.com/starfleetai/bridge/pkg/events"
	"github.com/starfleetai/bridge/pkg/executor"
	"github.com/starfleetai/bridge/pkg/planner"
	"github.com/starfleetai/bridge/pkg/queue"
	"github.com/starfleetai/bridge/pkg/repo"
	"github.com/starfleetai/bridge/pkg/sandbox"
)

const gracefulShutdownTimeout = 30 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting bridge", "http_port", cfg.HTTPPort, "workers", cfg.WorkerCount)

	ctx := context.Background()

	dbClient, err := database.NewClient(ctx, database.Config{
		URL:      cfg.DatabaseURL,
		PoolSize: cfg.PoolSize,
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbClient.Close()
	slog.Info("Connected to PostgreSQL database")

	store := repo.NewStore(dbClient.Pool())
	emitter := events.NewNotifyPublisher(dbClient.Pool())

	// Return work orphaned by a previous crash before workers start.
	if err := queue.Recover(ctx, store); err != nil {
		slog.Error("Failed to recover orphaned work", "error", err)
		os.Exit(1)
	}

	runner, err := sandbox.NewRunner()
	if err != nil {
		slog.Error("Failed to initialize sandbox runner", "error", err)
		os.Exit(1)
	}
	manager, err := sandbox.NewManager()
	if err != nil {
		slog.Error("Failed to initialize sandbox manager", "error", err)
		os.Exit(1)
	}
	defer manager.Shutdown(context.Background())

	engine := chat.NewEngine(store, emitter, cfg.UserAgent)
	abilityService := abilities.NewService(store, emitter, runner, cfg.WorkdirRoot)
	taskPlanner := planner.New(store, emitter, cfg.UserAgent)
	webBrowser := browser.NewRunner(manager, cfg.UserAgent)
	taskExecutor := executor.New(store, emitter, engine, abilityService, runner, webBrowser, cfg.WorkdirRoot)

	workerPool := queue.NewWorkerPool(store, emitter, taskExecutor, &cfg)
	workerPool.Start(ctx)

	httpServer := api.NewServer(dbClient, store, emitter, taskPlanner, workerPool, abilityService, engine)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.HTTPPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// Graceful shutdown: let workers finish their current tasks.
	shutdownCtx, cancel := context.WithTimeout(ctx, gracefulShutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		workerPool.Stop()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Worker pool stopped gracefully")
	case <-shutdownCtx.Done():
		slog.Warn("Shutdown timeout exceeded — interrupted tasks will be recovered at next startup")
	}

	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
