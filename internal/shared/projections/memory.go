package projections

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/gofrs/uuid/v5"
)

// Memory is an in-memory Store for tests and local development. Rows are
// kept in insertion order so sort ties resolve deterministically.
type Memory struct {
	mu      sync.RWMutex
	records map[string][]Record // kind -> rows in insertion order
	writes  int
}

// Ensure Memory implements Store
var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory projection store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string][]Record)}
}

// WriteCount returns how many upserts actually wrote a row. Used by tests to
// assert sync idempotence.
func (m *Memory) WriteCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// Upsert implements Store.
func (m *Memory) Upsert(ctx context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.records[rec.Kind]
	for i, existing := range rows {
		if existing.AggregateID == rec.AggregateID {
			if rec.Version <= existing.Version {
				return nil
			}
			rows[i] = rec
			m.writes++
			return nil
		}
	}
	m.records[rec.Kind] = append(rows, rec)
	m.writes++
	return nil
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, kind string, aggregateID uuid.UUID) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rec := range m.records[kind] {
		if rec.AggregateID == aggregateID {
			copied := rec
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

// Versions implements Store.
func (m *Memory) Versions(ctx context.Context, kind string) (map[uuid.UUID]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[uuid.UUID]int64, len(m.records[kind]))
	for _, rec := range m.records[kind] {
		out[rec.AggregateID] = rec.Version
	}
	return out, nil
}

// List implements Store.
func (m *Memory) List(ctx context.Context, kind string, filters []Filter, sorts []Sort) ([]Record, error) {
	rows, _, err := m.PagedList(ctx, kind, filters, sorts, 0, -1)
	return rows, err
}

// PagedList implements Store. take < 0 means no limit.
func (m *Memory) PagedList(ctx context.Context, kind string, filters []Filter, sorts []Sort, skip, take int) ([]Record, int, error) {
	if err := ValidateQuery(kind, filters, sorts); err != nil {
		return nil, 0, err
	}
	fields, _ := Fields(kind)

	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := []Record{}
	for _, rec := range m.records[kind] {
		doc, err := decodeState(rec.State)
		if err != nil {
			return nil, 0, err
		}
		ok, err := matchesAll(fields, doc, filters)
		if err != nil {
			return nil, 0, err
		}
		if ok {
			matched = append(matched, rec)
		}
	}

	if len(sorts) > 0 {
		if err := sortRecords(fields, matched, sorts); err != nil {
			return nil, 0, err
		}
	}

	total := len(matched)
	if skip < 0 {
		skip = 0
	}
	if skip > total {
		skip = total
	}
	matched = matched[skip:]
	if take >= 0 && take < len(matched) {
		matched = matched[:take]
	}

	out := make([]Record, len(matched))
	copy(out, matched)
	return out, total, nil
}

func decodeState(state json.RawMessage) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(state, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode projection state: %w", err)
	}
	return doc, nil
}

func matchesAll(fields map[string]FieldType, doc map[string]any, filters []Filter) (bool, error) {
	for _, f := range filters {
		ft := fields[f.Field]
		want, err := parseTyped(ft, f.Value)
		if err != nil {
			return false, err
		}
		have, ok := docValue(ft, doc[f.Field])
		if !ok {
			return false, nil
		}
		if !have.matches(ft, f.Op, want) {
			return false, nil
		}
	}
	return true, nil
}

func sortRecords(fields map[string]FieldType, rows []Record, sorts []Sort) error {
	type keyed struct {
		rec  Record
		keys []typedValue
	}

	items := make([]keyed, len(rows))
	for i, rec := range rows {
		doc, err := decodeState(rec.State)
		if err != nil {
			return err
		}
		keys := make([]typedValue, len(sorts))
		for j, s := range sorts {
			v, _ := docValue(fields[s.Field], doc[s.Field])
			keys[j] = v
		}
		items[i] = keyed{rec: rec, keys: keys}
	}

	// SliceStable keeps insertion order for ties.
	sort.SliceStable(items, func(a, b int) bool {
		for j, s := range sorts {
			cmp := items[a].keys[j].compare(fields[s.Field], items[b].keys[j])
			if cmp == 0 {
				continue
			}
			if s.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})

	for i, item := range items {
		rows[i] = item.rec
	}
	return nil
}
