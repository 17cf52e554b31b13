package command

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Config holds configuration for the command service.
type Config struct {
	Port int
}

// RunningService represents a started command service.
type RunningService struct {
	// Shutdown stops the HTTP server gracefully.
	Shutdown func(ctx context.Context) error
}

// Start serves the command API over the provided engines.
func Start(ctx context.Context, cfg Config, engines Engines, logger *slog.Logger) (*RunningService, error) {
	logger = logger.With("service", "command")

	svc := NewService(engines, logger)
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
		logger.Info("starting command server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("command server error", "error", err)
		}
	}()

	return &RunningService{
		Shutdown: func(shutdownCtx context.Context) error {
			logger.Info("shutting down command service")
			return server.Shutdown(shutdownCtx)
		},
	}, nil
}
