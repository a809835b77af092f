// Package main implements the entry point for the converse API server,
// which orchestrates multi-turn conversation tasks against an external
// text-generation backend.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/phrazzld/converse-api/internal/config"
	"github.com/phrazzld/converse-api/internal/events"
	"github.com/phrazzld/converse-api/internal/generation"
	"github.com/phrazzld/converse-api/internal/platform/anthropic"
	"github.com/phrazzld/converse-api/internal/platform/gemini"
	"github.com/phrazzld/converse-api/internal/platform/logger"
	"github.com/phrazzld/converse-api/internal/platform/memstore"
	"github.com/phrazzld/converse-api/internal/platform/postgres"
	"github.com/phrazzld/converse-api/internal/service"
	"github.com/phrazzld/converse-api/internal/store"
)

// shutdownTimeout bounds how long in-flight requests may run after a
// termination signal.
const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("server exited with error: %v", err)
	}
}

// run initializes configuration, logging, the task store, the generation
// backend and the HTTP server, then serves until interrupted.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	slog.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"store_driver", cfg.Store.Driver,
		"llm_provider", cfg.LLM.Provider)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	taskStore, cleanup, err := setupTaskStore(ctx, cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to set up task store: %w", err)
	}
	defer cleanup()

	generator, err := setupGenerator(ctx, cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to set up generation backend: %w", err)
	}

	eventEmitter := events.NewInMemoryEventEmitter(appLogger)

	taskService, err := service.NewTaskService(taskStore, generator, eventEmitter, appLogger)
	if err != nil {
		return fmt.Errorf("failed to create task service: %w", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           newRouter(taskService, appLogger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// setupTaskStore builds the configured task store backend. The returned
// cleanup function closes any underlying resources.
func setupTaskStore(
	ctx context.Context,
	cfg *config.Config,
	appLogger *slog.Logger,
) (store.TaskStore, func(), error) {
	switch cfg.Store.Driver {
	case "memory":
		return memstore.NewTaskStore(appLogger), func() {}, nil

	case "postgres":
		db, err := sql.Open("pgx", cfg.Store.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("failed to ping database: %w", err)
		}
		if err := postgres.RunMigrations(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		cleanup := func() {
			if err := db.Close(); err != nil {
				slog.Error("failed to close database", "error", err)
			}
		}
		return postgres.NewTaskStore(db, appLogger), cleanup, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// setupGenerator builds the configured generation backend.
func setupGenerator(
	ctx context.Context,
	cfg *config.Config,
	appLogger *slog.Logger,
) (generation.Generator, error) {
	switch cfg.LLM.Provider {
	case "gemini":
		return gemini.NewGenerator(ctx, appLogger, cfg.LLM)
	case "anthropic":
		return anthropic.NewGenerator(appLogger, cfg.LLM)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLM.Provider)
	}
}
