package reactor

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/snackstand/catalog-services/internal/shared/domain/aggregate"
	"github.com/snackstand/catalog-services/internal/shared/domain/events"
)

// recordedCommand captures one call made through a mockCommandPort.
type recordedCommand struct {
	ID   uuid.UUID
	Cmd  aggregate.Command
	Meta events.Metadata
}

// mockCommandPort implements CommandPort for testing.
type mockCommandPort struct {
	HandleFn func(ctx context.Context, id uuid.UUID, cmd aggregate.Command, expectedVersion int64, meta events.Metadata) (int64, []*events.Envelope, error)

	Calls []recordedCommand
}

func (m *mockCommandPort) Handle(ctx context.Context, id uuid.UUID, cmd aggregate.Command, expectedVersion int64, meta events.Metadata) (int64, []*events.Envelope, error) {
	m.Calls = append(m.Calls, recordedCommand{ID: id, Cmd: cmd, Meta: meta})
	if m.HandleFn != nil {
		return m.HandleFn(ctx, id, cmd, expectedVersion, meta)
	}
	return 1, nil, nil
}

// mockEventHandler implements EventHandler for testing.
type mockEventHandler struct {
	HandleFn func(ctx context.Context, event *events.Envelope) error
}

func (m *mockEventHandler) Handle(ctx context.Context, event *events.Envelope) error {
	return m.HandleFn(ctx, event)
}
