// Package eventlog provides implementations of the aggregate.EventLog
// interface: an in-memory store for tests and local development, and a
// PostgreSQL store for production.
package eventlog

import (
	"context"
	"fmt"
	"sync"

	"github.com/gofrs/uuid/v5"

	"github.com/snackstand/catalog-services/internal/shared/domain/aggregate"
	"github.com/snackstand/catalog-services/internal/shared/domain/events"
)

// Memory is an in-memory, per-stream ordered event log with strict version
// checking. Safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	streams map[string][]*events.Envelope
	order   map[string][]uuid.UUID // insertion order of ids per kind
}

// Ensure Memory implements aggregate.EventLog
var _ aggregate.EventLog = (*Memory)(nil)

// NewMemory creates an empty in-memory event log.
func NewMemory() *Memory {
	return &Memory{
		streams: make(map[string][]*events.Envelope),
		order:   make(map[string][]uuid.UUID),
	}
}

func streamKey(kind string, id uuid.UUID) string {
	return kind + "/" + id.String()
}

// Append implements aggregate.EventLog.
func (m *Memory) Append(ctx context.Context, kind string, id uuid.UUID, expectedVersion int64, evts []*events.Envelope) (int64, error) {
	if len(evts) == 0 {
		return expectedVersion, fmt.Errorf("append requires at least one event")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := streamKey(kind, id)
	stream := m.streams[key]
	head := int64(len(stream))
	if head != expectedVersion {
		return 0, fmt.Errorf("stream %s at version %d, expected %d: %w",
			key, head, expectedVersion, aggregate.ErrVersionConflict)
	}

	if len(stream) == 0 {
		m.order[kind] = append(m.order[kind], id)
	}
	m.streams[key] = append(stream, evts...)
	return head + int64(len(evts)), nil
}

// ReadAll implements aggregate.EventLog.
func (m *Memory) ReadAll(ctx context.Context, kind string, id uuid.UUID) ([]*events.Envelope, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stream := m.streams[streamKey(kind, id)]
	out := make([]*events.Envelope, len(stream))
	copy(out, stream)
	return out, nil
}

// IDs implements aggregate.EventLog. Ids are returned in first-append order.
func (m *Memory) IDs(ctx context.Context, kind string) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]uuid.UUID, len(m.order[kind]))
	copy(out, m.order[kind])
	return out, nil
}
