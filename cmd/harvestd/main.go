// Package main provides the harvest worker daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/catalog-harvester/internal/app"
	"github.com/raphaelgruber/catalog-harvester/internal/cli"
	"github.com/raphaelgruber/catalog-harvester/internal/config"
	"github.com/raphaelgruber/catalog-harvester/internal/db"
	"github.com/raphaelgruber/catalog-harvester/internal/harvest"
	"github.com/raphaelgruber/catalog-harvester/internal/queue"
	"github.com/raphaelgruber/catalog-harvester/internal/server"
)

func main() {
	// Parse flags
	wipeDB := flag.Bool("wipe", false, "wipe all data from the surrealdb store on startup (testing only)")
	flag.Parse()

	// Load configuration
	cfg := config.Load()

	// Initialize logging
	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer func() { _ = closeLog() }()
	slog.SetDefault(logger)

	slog.Info("starting harvestd", "version", cli.Version, "store", cfg.Store, "port", cfg.ServerPort)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	a, err := app.New(ctx, cfg, logger, app.Options{Publisher: true})
	cancel()
	if err != nil {
		slog.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			slog.Error("failed to close", "error", err)
		}
	}()

	// Wipe database if requested (via flag or env var)
	if *wipeDB || os.Getenv("HARVEST_WIPE_DB") == "true" {
		c, ok := a.Store.(*db.Client)
		if !ok {
			slog.Error("wipe is only supported for the surrealdb store", "store", cfg.Store)
			os.Exit(1)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := c.WipeData(ctx)
		cancel()
		if err != nil {
			slog.Error("failed to wipe database", "error", err)
			os.Exit(1)
		}
	}

	hub := server.NewHub(logger)
	a.Engine.AddHooks(harvest.Hooks{
		Before: []harvest.Hook{hub.JobStarted},
		After:  []harvest.Hook{hub.JobFinished},
	})

	// Runs in progress are cancelled on shutdown.
	runCtx, stopRuns := context.WithCancel(context.Background())
	defer stopRuns()

	worker := queue.NewWorker(a.QueueConfig(), a.Runner, logger)
	if err := worker.Start(runCtx, a.QueueConfig()); err != nil {
		slog.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// Create HTTP server
	srv := server.New(cli.Version, a.Registry, a.Runner, a.Metrics, logger).WithEvents(hub)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      srv.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("status API available", "url", fmt.Sprintf("http://localhost:%d/stats", cfg.ServerPort))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	// Graceful shutdown with timeout
	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	stopRuns()
	worker.Stop()

	slog.Info("harvestd stopped")
}
