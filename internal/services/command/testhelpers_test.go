package command

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/snackstand/catalog-services/internal/shared/domain/aggregate"
	"github.com/snackstand/catalog-services/internal/shared/domain/events"
)

// recordedDispatch captures one call made through a mockDispatcher.
type recordedDispatch struct {
	ID              uuid.UUID
	Cmd             aggregate.Command
	ExpectedVersion int64
	Meta            events.Metadata
}

// mockDispatcher implements Dispatcher for testing.
type mockDispatcher struct {
	HandleFn func(ctx context.Context, id uuid.UUID, cmd aggregate.Command, expectedVersion int64, meta events.Metadata) (int64, []*events.Envelope, error)

	Calls []recordedDispatch
}

func (m *mockDispatcher) Handle(ctx context.Context, id uuid.UUID, cmd aggregate.Command, expectedVersion int64, meta events.Metadata) (int64, []*events.Envelope, error) {
	m.Calls = append(m.Calls, recordedDispatch{ID: id, Cmd: cmd, ExpectedVersion: expectedVersion, Meta: meta})
	if m.HandleFn != nil {
		return m.HandleFn(ctx, id, cmd, expectedVersion, meta)
	}
	return 1, nil, nil
}

func testEngines(d *mockDispatcher) Engines {
	return Engines{
		Snacks:       d,
		Machines:     d,
		Purchases:    d,
		SnackStats:   d,
		MachineStats: d,
	}
}
