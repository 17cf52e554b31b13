package reactor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"

	"github.com/snackstand/catalog-services/internal/shared/domain/aggregate"
	"github.com/snackstand/catalog-services/internal/shared/domain/events"
	"github.com/snackstand/catalog-services/internal/shared/domain/machine"
	"github.com/snackstand/catalog-services/internal/shared/domain/purchase"
	"github.com/snackstand/catalog-services/internal/shared/domain/stats"
)

// CommandPort is the slice of an aggregate engine the reactor needs: submit
// one command to one aggregate instance.
type CommandPort interface {
	Handle(ctx context.Context, id uuid.UUID, cmd aggregate.Command, expectedVersion int64, meta events.Metadata) (int64, []*events.Envelope, error)
}

// SnackBoughtHandler turns every machine.snack_bought event into a purchase
// record plus per-snack and per-machine counter bumps. The three participants
// fail independently: one failing write never blocks the other two.
type SnackBoughtHandler struct {
	purchases    CommandPort
	snackStats   CommandPort
	machineStats CommandPort
	logger       *slog.Logger
}

func NewSnackBoughtHandler(purchases, snackStats, machineStats CommandPort, logger *slog.Logger) *SnackBoughtHandler {
	return &SnackBoughtHandler{
		purchases:    purchases,
		snackStats:   snackStats,
		machineStats: machineStats,
		logger:       logger.With("handler", "snack-bought"),
	}
}

var _ EventHandler = (*SnackBoughtHandler)(nil)

func (h *SnackBoughtHandler) Handle(ctx context.Context, event *events.Envelope) error {
	if event.EventType != machine.EventSnackBought {
		return nil
	}

	var bought machine.SnackBought
	if err := event.ParsePayload(&bought); err != nil {
		return fmt.Errorf("failed to parse snack_bought payload: %w", err)
	}

	// Reuse the sale's metadata so every downstream event correlates back to
	// the buying command.
	meta := event.Metadata

	var errs []error

	purchaseID := uuid.Must(uuid.NewV7())
	if _, _, err := h.purchases.Handle(ctx, purchaseID, purchase.Initialize{
		MachineID:   event.AggregateID,
		Position:    bought.Position,
		SnackID:     bought.SnackID,
		BoughtPrice: bought.BoughtPrice,
		BoughtBy:    bought.BoughtBy,
	}, aggregate.VersionAny, meta); err != nil {
		h.logger.Error("failed to record purchase",
			"event_id", event.EventID,
			"machine_id", event.AggregateID,
			"error", err,
		)
		errs = append(errs, err)
	}

	if err := h.bump(ctx, h.snackStats, bought.SnackID, bought.BoughtPrice, meta); err != nil {
		h.logger.Error("failed to bump snack stats",
			"event_id", event.EventID,
			"snack_id", bought.SnackID,
			"error", err,
		)
		errs = append(errs, err)
	}

	if err := h.bump(ctx, h.machineStats, event.AggregateID, bought.BoughtPrice, meta); err != nil {
		h.logger.Error("failed to bump machine stats",
			"event_id", event.EventID,
			"machine_id", event.AggregateID,
			"error", err,
		)
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (h *SnackBoughtHandler) bump(ctx context.Context, port CommandPort, id uuid.UUID, price decimal.Decimal, meta events.Metadata) error {
	if _, _, err := port.Handle(ctx, id, stats.Increment{
		Field:  stats.FieldBoughtCount,
		Amount: decimal.NewFromInt(1),
	}, aggregate.VersionAny, meta); err != nil {
		return err
	}

	_, _, err := port.Handle(ctx, id, stats.Increment{
		Field:  stats.FieldBoughtAmount,
		Amount: price,
	}, aggregate.VersionAny, meta)
	return err
}
