package sync

import (
	"context"
	"encoding/json"
	"fmt"
	gosync "sync"

	"github.com/gofrs/uuid/v5"
)

// fakeSource is an in-memory Source whose aggregate versions and documents
// the test controls directly.
type fakeSource struct {
	kind string

	mu       gosync.Mutex
	versions map[uuid.UUID]int64
	failing  map[uuid.UUID]bool
	order    []uuid.UUID
}

var _ Source = (*fakeSource)(nil)

func newFakeSource(kind string) *fakeSource {
	return &fakeSource{
		kind:     kind,
		versions: make(map[uuid.UUID]int64),
		failing:  make(map[uuid.UUID]bool),
	}
}

func (f *fakeSource) set(id uuid.UUID, version int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, known := f.versions[id]; !known {
		f.order = append(f.order, id)
	}
	f.versions[id] = version
}

func (f *fakeSource) fail(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, known := f.versions[id]; !known {
		f.order = append(f.order, id)
		f.versions[id] = 1
	}
	f.failing[id] = true
}

func (f *fakeSource) Kind() string { return f.kind }

func (f *fakeSource) IDs(context.Context) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.order...), nil
}

func (f *fakeSource) Render(_ context.Context, id uuid.UUID) (json.RawMessage, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing[id] {
		return nil, 0, fmt.Errorf("event log unavailable for %s", id)
	}
	version := f.versions[id]
	if version == 0 {
		return nil, 0, nil
	}
	doc, err := json.Marshal(map[string]any{
		"id":        id.String(),
		"name":      fmt.Sprintf("Snack v%d", version),
		"lifecycle": "Active",
	})
	return doc, version, err
}
