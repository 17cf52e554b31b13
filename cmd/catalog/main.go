package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/snackstand/catalog-services/internal/services/command"
	"github.com/snackstand/catalog-services/internal/services/query"
	"github.com/snackstand/catalog-services/internal/services/reactor"
	catalogsync "github.com/snackstand/catalog-services/internal/services/sync"
	"github.com/snackstand/catalog-services/internal/shared/broadcast"
	"github.com/snackstand/catalog-services/internal/shared/config"
	"github.com/snackstand/catalog-services/internal/shared/domain/aggregate"
	"github.com/snackstand/catalog-services/internal/shared/domain/machine"
	"github.com/snackstand/catalog-services/internal/shared/domain/purchase"
	"github.com/snackstand/catalog-services/internal/shared/domain/snack"
	"github.com/snackstand/catalog-services/internal/shared/domain/stats"
	"github.com/snackstand/catalog-services/internal/shared/eventlog"
	"github.com/snackstand/catalog-services/internal/shared/infra/postgres"
	"github.com/snackstand/catalog-services/internal/shared/infra/redpanda"
	"github.com/snackstand/catalog-services/internal/shared/projections"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("starting catalog services",
		"command_port", cfg.PortCommand,
		"query_port", cfg.PortQuery,
		"sync_port", cfg.PortSync,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Apply schema migrations before anything touches the tables
	if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	pg, err := postgres.NewClient(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer pg.Close()

	eventLog := eventlog.NewPostgres(pg.Pool(), logger)
	projectionStore := projections.NewPostgresStore(pg.Pool(), logger)
	checkpoints := postgres.NewCheckpointStore(pg.Pool())

	// Committed events always fan out in-process; Redpanda is layered on top
	// when enabled so external consumers see the same stream.
	bus := broadcast.NewBus()
	var publisher aggregate.Publisher = bus
	if cfg.EnableRedpanda {
		producer, err := redpanda.NewProducer(cfg.Brokers(), logger)
		if err != nil {
			slog.Error("failed to create Redpanda producer", "error", err)
			os.Exit(1)
		}
		defer producer.Close()
		publisher = broadcast.NewFanout(bus, producer)
	}

	// Write models (one engine per entity kind)
	snacks := aggregate.NewEngine(snack.Kind, snack.New, eventLog, publisher, logger)
	machines := aggregate.NewEngine(machine.Kind, machine.New, eventLog, publisher, logger)
	purchases := aggregate.NewEngine(purchase.Kind, purchase.New, eventLog, publisher, logger)
	snackStats := aggregate.NewEngine("snack_stats", stats.NewFactory("snack_stats"), eventLog, publisher, logger)
	machineStats := aggregate.NewEngine("machine_stats", stats.NewFactory("machine_stats"), eventLog, publisher, logger)
	defer func() {
		snacks.Close()
		machines.Close()
		purchases.Close()
		snackStats.Close()
		machineStats.Close()
	}()

	// Start services
	commandSvc, err := command.Start(ctx, command.Config{
		Port: cfg.PortCommand,
	}, command.Engines{
		Snacks:       snacks,
		Machines:     machines,
		Purchases:    purchases,
		SnackStats:   snackStats,
		MachineStats: machineStats,
	}, logger)
	if err != nil {
		slog.Error("failed to start command service", "error", err)
		os.Exit(1)
	}

	var brokers []string
	if cfg.EnableRedpanda {
		brokers = cfg.Brokers()
	}
	reactorSvc, err := reactor.Start(ctx, reactor.Config{
		Brokers:       brokers,
		ConsumerGroup: cfg.ConsumerGroup,
		PollTimeout:   5 * time.Second,
	}, bus, reactor.Dependencies{
		Purchases:    purchases,
		SnackStats:   snackStats,
		MachineStats: machineStats,
	}, logger)
	if err != nil {
		slog.Error("failed to start reactor service", "error", err)
		os.Exit(1)
	}

	syncer := catalogsync.NewSyncer(projectionStore, logger,
		catalogsync.NewEngineSource(snacks, func(_ uuid.UUID, root *snack.Snack, _ int64) any {
			return root
		}),
		catalogsync.NewEngineSource(machines, func(_ uuid.UUID, root *machine.Machine, _ int64) any {
			return root
		}),
		catalogsync.NewEngineSource(purchases, func(_ uuid.UUID, root *purchase.Purchase, _ int64) any {
			return root
		}),
		catalogsync.NewEngineSource(snackStats, func(_ uuid.UUID, root *stats.Counters, _ int64) any {
			return root
		}),
		catalogsync.NewEngineSource(machineStats, func(_ uuid.UUID, root *stats.Counters, _ int64) any {
			return root
		}),
	)
	syncSvc, err := catalogsync.Start(ctx, catalogsync.Config{
		Port:                cfg.PortSync,
		DifferencesInterval: cfg.SyncDifferencesInterval,
		FullInterval:        cfg.SyncFullInterval,
	}, syncer, checkpoints, logger)
	if err != nil {
		slog.Error("failed to start sync service", "error", err)
		os.Exit(1)
	}

	querySvc, err := query.Start(ctx, query.Config{
		Port: cfg.PortQuery,
	}, projectionStore, logger)
	if err != nil {
		slog.Error("failed to start query service", "error", err)
		os.Exit(1)
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("context cancelled")
	}

	// Graceful shutdown (reverse order)
	slog.Info("shutting down services...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := querySvc.Shutdown(shutdownCtx); err != nil {
		slog.Error("query service shutdown error", "error", err)
	}
	if err := syncSvc.Shutdown(shutdownCtx); err != nil {
		slog.Error("sync service shutdown error", "error", err)
	}
	if err := reactorSvc.Shutdown(shutdownCtx); err != nil {
		slog.Error("reactor service shutdown error", "error", err)
	}
	if err := commandSvc.Shutdown(shutdownCtx); err != nil {
		slog.Error("command service shutdown error", "error", err)
	}

	slog.Info("catalog services stopped")
}

// newLogger creates a structured logger based on configuration.
func newLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
