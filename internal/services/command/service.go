// Package command is the write-side HTTP surface: it decodes command requests,
// routes them to the right aggregate engine, and maps typed domain errors to
// HTTP statuses.
package command

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/gofrs/uuid/v5"

	"github.com/snackstand/catalog-services/internal/shared/domain/aggregate"
	"github.com/snackstand/catalog-services/internal/shared/domain/events"
	"github.com/snackstand/catalog-services/internal/shared/domain/machine"
	"github.com/snackstand/catalog-services/internal/shared/domain/purchase"
	"github.com/snackstand/catalog-services/internal/shared/domain/snack"
	"github.com/snackstand/catalog-services/internal/shared/domain/stats"
)

// Dispatcher is the slice of an aggregate engine the command service needs.
type Dispatcher interface {
	Handle(ctx context.Context, id uuid.UUID, cmd aggregate.Command, expectedVersion int64, meta events.Metadata) (int64, []*events.Envelope, error)
}

// Engines names the write models the service routes to. Stats engines are
// addressed through their parent kind.
type Engines struct {
	Snacks       Dispatcher
	Machines     Dispatcher
	Purchases    Dispatcher
	SnackStats   Dispatcher
	MachineStats Dispatcher
}

// Service handles command routing and decoding.
type Service struct {
	byKind  map[string]Dispatcher
	stats   map[string]Dispatcher
	decoder map[string]func(json.RawMessage) (aggregate.Command, error)
	logger  *slog.Logger
}

// NewService creates a new command service.
func NewService(engines Engines, logger *slog.Logger) *Service {
	return &Service{
		byKind: map[string]Dispatcher{
			snack.Kind:    engines.Snacks,
			machine.Kind:  engines.Machines,
			purchase.Kind: engines.Purchases,
		},
		stats: map[string]Dispatcher{
			snack.Kind:   engines.SnackStats,
			machine.Kind: engines.MachineStats,
		},
		decoder: commandDecoders(),
		logger:  logger.With("service", "command"),
	}
}

// Initialize creates a new aggregate with a generated id.
func (s *Service) Initialize(ctx context.Context, kind string, payload json.RawMessage, meta events.Metadata) (uuid.UUID, int64, error) {
	engine, ok := s.byKind[kind]
	if !ok {
		return uuid.Nil, 0, aggregate.NewNotFound("unknown entity kind " + kind)
	}

	cmd, err := s.decode(kind+".initialize", payload)
	if err != nil {
		return uuid.Nil, 0, err
	}

	id := uuid.Must(uuid.NewV7())
	version, _, err := engine.Handle(ctx, id, cmd, 0, meta)
	if err != nil {
		return uuid.Nil, 0, err
	}

	s.logger.Info("aggregate initialized", "kind", kind, "aggregate_id", id)
	return id, version, nil
}

// Execute runs a named command against an existing aggregate.
func (s *Service) Execute(ctx context.Context, kind string, id uuid.UUID, command string, expectedVersion int64, payload json.RawMessage, meta events.Metadata) (int64, error) {
	engine, ok := s.byKind[kind]
	if !ok {
		return 0, aggregate.NewNotFound("unknown entity kind " + kind)
	}

	cmd, err := s.decode(kind+"."+command, payload)
	if err != nil {
		return 0, err
	}

	version, _, err := engine.Handle(ctx, id, cmd, expectedVersion, meta)
	return version, err
}

// Remove tombstones an aggregate. The event history is preserved.
func (s *Service) Remove(ctx context.Context, kind string, id uuid.UUID, expectedVersion int64, meta events.Metadata) (int64, error) {
	return s.Execute(ctx, kind, id, "remove", expectedVersion, nil, meta)
}

// AdjustStats increments or decrements one counter of the kind's stats
// sub-aggregate. The counter shares the parent aggregate's id.
func (s *Service) AdjustStats(ctx context.Context, kind string, id uuid.UUID, mode string, payload json.RawMessage, meta events.Metadata) (int64, error) {
	engine, ok := s.stats[kind]
	if !ok {
		return 0, aggregate.NewNotFound("no stats for entity kind " + kind)
	}

	cmd, err := s.decode("stats."+mode, payload)
	if err != nil {
		return 0, err
	}

	version, _, err := engine.Handle(ctx, id, cmd, aggregate.VersionAny, meta)
	return version, err
}

func (s *Service) decode(name string, payload json.RawMessage) (aggregate.Command, error) {
	decoder, ok := s.decoder[name]
	if !ok {
		return nil, aggregate.NewValidation("unknown command " + name)
	}
	cmd, err := decoder(payload)
	if err != nil {
		return nil, aggregate.NewValidation("malformed payload for " + name + ": " + err.Error())
	}
	return cmd, nil
}

func decodeInto[T aggregate.Command](payload json.RawMessage) (aggregate.Command, error) {
	var cmd T
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return nil, err
		}
	}
	return cmd, nil
}

// commandDecoders maps a command's wire name to its decoder. The set is
// closed: a name missing here is rejected before touching any engine.
func commandDecoders() map[string]func(json.RawMessage) (aggregate.Command, error) {
	return map[string]func(json.RawMessage) (aggregate.Command, error){
		"snack.initialize":         decodeInto[snack.Initialize],
		"snack.change_name":        decodeInto[snack.ChangeName],
		"snack.change_picture_url": decodeInto[snack.ChangePictureURL],
		"snack.remove":             decodeInto[snack.Remove],

		"machine.initialize":   decodeInto[machine.Initialize],
		"machine.load_money":   decodeInto[machine.LoadMoney],
		"machine.unload_money": decodeInto[machine.UnloadMoney],
		"machine.insert_money": decodeInto[machine.InsertMoney],
		"machine.return_money": decodeInto[machine.ReturnMoney],
		"machine.load_snacks":  decodeInto[machine.LoadSnacks],
		"machine.buy_snack":    decodeInto[machine.BuySnack],
		"machine.remove":       decodeInto[machine.Remove],

		"purchase.initialize": decodeInto[purchase.Initialize],
		"purchase.remove":     decodeInto[purchase.Remove],

		"stats.increment": decodeInto[stats.Increment],
		"stats.decrement": decodeInto[stats.Decrement],
	}
}
