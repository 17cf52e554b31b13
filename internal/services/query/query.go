package query

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Config holds configuration for the query service.
type Config struct {
	Port int
}

// RunningService represents a started query service.
type RunningService struct {
	// Shutdown stops the HTTP server gracefully.
	Shutdown func(ctx context.Context) error
}

// Start serves the catalog read API over the provided projection store.
func Start(ctx context.Context, cfg Config, store Reader, logger *slog.Logger) (*RunningService, error) {
	logger = logger.With("service", "query")

	svc := NewService(store, logger)
	handler := NewHandler(svc, logger)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting query server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("query server error", "error", err)
		}
	}()

	return &RunningService{
		Shutdown: func(shutdownCtx context.Context) error {
			logger.Info("shutting down query service")
			return server.Shutdown(shutdownCtx)
		},
	}, nil
}
