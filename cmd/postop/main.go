// Post-operative follow-up orchestrator: schedules discharge follow-up
// calls, executes them over the call fabric, and serves the operational
// HTTP API.
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

	"github.com/chriscow/livekit-postop-sub000/pkg/analyzer"
	"github.com/chriscow/livekit-postop-sub000/pkg/api"
	"github.com/chriscow/livekit-postop-sub000/pkg/config"
	"github.com/chriscow/livekit-postop-sub000/pkg/executor"
	"github.com/chriscow/livekit-postop-sub000/pkg/fabric"
	"github.com/chriscow/livekit-postop-sub000/pkg/llm"
	"github.com/chriscow/livekit-postop-sub000/pkg/scheduler"
	"github.com/chriscow/livekit-postop-sub000/pkg/store"
	"github.com/chriscow/livekit-postop-sub000/pkg/version"
	"github.com/chriscow/livekit-postop-sub000/pkg/worker"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment", "error", err)
	}

	// 1. Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting postop orchestrator",
		"version", version.Full(),
		"http_port", cfg.HTTPPort,
		"workers", cfg.Worker.Concurrency)

	ctx := context.Background()

	// 2. Atomic store
	st, err := store.Connect(ctx, cfg.StoreURL)
	if err != nil {
		slog.Error("Failed to connect to store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("Error closing store", "error", err)
		}
	}()
	slog.Info("Connected to store")

	// 3. One-time startup orphan recovery
	if _, err := worker.RecoverStartupOrphans(ctx, st); err != nil {
		slog.Error("Failed to recover startup orphans", "error", err)
		// Non-fatal, the periodic reaper covers the rest
	}

	// 4. Adapters and domain services
	llmClient, err := llm.NewOpenAI(cfg.LLM)
	if err != nil {
		slog.Error("Failed to initialize LLM client", "error", err)
		os.Exit(1)
	}
	fabricClient, err := fabric.NewHTTPClient(cfg.Fabric)
	if err != nil {
		slog.Error("Failed to initialize fabric client", "error", err)
		os.Exit(1)
	}
	sched := scheduler.New(st)
	an := analyzer.New(llmClient, st, cfg.LLM.Model)
	ex := executor.New(st, fabricClient, cfg.Fabric)

	// 5. Call pool (before the HTTP server)
	pool := worker.NewPool(st, ex, cfg.Worker)
	if err := pool.Start(ctx); err != nil {
		slog.Error("Failed to start call pool", "error", err)
		os.Exit(1)
	}

	// 6. Archive retention loop
	retention := scheduler.NewRetention(cfg.Retention, st)
	retention.Start(ctx)
	defer retention.Stop()

	// 7. HTTP server
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: api.NewServer(st, sched, an, pool).Router(),
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Postop orchestrator started")

	// 8. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 9. Graceful shutdown: stop claiming first, drain in-flight calls.
	pool.Stop()

	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
