package sync

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Config holds configuration for the sync service.
type Config struct {
	Port int

	// DifferencesInterval drives the frequent incremental pass per kind.
	DifferencesInterval time.Duration

	// FullInterval drives the infrequent unconditional pass per kind.
	// Zero disables the full pass.
	FullInterval time.Duration
}

// RunningService represents a started sync service.
type RunningService struct {
	// Shutdown stops the scheduler and HTTP server gracefully.
	Shutdown func(ctx context.Context) error
}

// Start registers the recurring sync passes for every source and serves the
// administrative endpoints.
func Start(ctx context.Context, cfg Config, syncer *Syncer, checkpoints CheckpointStore, logger *slog.Logger) (*RunningService, error) {
	logger = logger.With("service", "sync")

	scheduler := NewScheduler(checkpoints, logger)
	for _, kind := range syncer.Kinds() {
		kind := kind
		err := scheduler.RegisterRecurring(ctx, kind+".differences", cfg.DifferencesInterval,
			func(ctx context.Context) error {
				_, err := syncer.SyncDifferences(ctx, kind)
				return err
			})
		if err != nil {
			scheduler.Close()
			return nil, fmt.Errorf("failed to register differences job: %w", err)
		}

		if cfg.FullInterval > 0 {
			err := scheduler.RegisterRecurring(ctx, kind+".all", cfg.FullInterval,
				func(ctx context.Context) error {
					_, err := syncer.SyncAll(ctx, kind)
					return err
				})
			if err != nil {
				scheduler.Close()
				return nil, fmt.Errorf("failed to register full sync job: %w", err)
			}
		}
	}

	handler := NewHandler(syncer, logger)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting sync server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("sync server error", "error", err)
		}
	}()

	return &RunningService{
		Shutdown: func(shutdownCtx context.Context) error {
			logger.Info("shutting down sync service")
			scheduler.Close()
			return server.Shutdown(shutdownCtx)
		},
	}, nil
}
