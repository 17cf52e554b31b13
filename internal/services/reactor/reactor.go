// Package reactor subscribes to committed machine events and drives the
// follow-on writes a sale requires: the purchase record and the per-snack and
// per-machine counters.
package reactor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/snackstand/catalog-services/internal/shared/broadcast"
	"github.com/snackstand/catalog-services/internal/shared/domain/machine"
)

// Config holds configuration for the reactor service.
type Config struct {
	// Brokers and ConsumerGroup configure the Redpanda consumer. Leave
	// Brokers empty to react to the in-process broadcast bus only.
	Brokers       []string
	ConsumerGroup string
	PollTimeout   time.Duration
}

// Dependencies are the engines the reactor writes through.
type Dependencies struct {
	Purchases    CommandPort
	SnackStats   CommandPort
	MachineStats CommandPort
}

// RunningService represents a started reactor service.
type RunningService struct {
	// Shutdown stops the consumer gracefully.
	Shutdown func(ctx context.Context) error
}

// Start wires the snack-bought handler into the broadcast bus and, when
// brokers are configured, into a Redpanda consumer group as well.
func Start(ctx context.Context, cfg Config, bus *broadcast.Bus, deps Dependencies, logger *slog.Logger) (*RunningService, error) {
	logger = logger.With("service", "reactor")

	registry := NewHandlerRegistry(logger)
	registry.Register("machine.", NewSnackBoughtHandler(deps.Purchases, deps.SnackStats, deps.MachineStats, logger))

	bus.Subscribe(machine.Kind, registry.Dispatch)

	if len(cfg.Brokers) == 0 {
		logger.Info("reactor running on in-process broadcast only")
		return &RunningService{
			Shutdown: func(context.Context) error { return nil },
		}, nil
	}

	consumer, err := NewConsumer(
		registry,
		ConsumerConfig{
			Brokers:     cfg.Brokers,
			GroupID:     cfg.ConsumerGroup,
			Topics:      []string{machine.Kind},
			PollTimeout: cfg.PollTimeout,
		},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reactor consumer: %w", err)
	}

	go func() {
		if err := consumer.Start(ctx); err != nil {
			logger.Error("reactor consumer error", "error", err)
		}
	}()

	return &RunningService{
		Shutdown: func(shutdownCtx context.Context) error {
			logger.Info("shutting down reactor service")
			return consumer.Close()
		},
	}, nil
}
