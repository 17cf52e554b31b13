package projections

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snackRecord(t *testing.T, version int64, name string) Record {
	t.Helper()
	state, err := json.Marshal(map[string]any{
		"name":        name,
		"picture_url": "https://pics.example/" + name,
		"lifecycle":   "active",
	})
	require.NoError(t, err)
	return Record{
		Kind:         "snack",
		AggregateID:  uuid.Must(uuid.NewV7()),
		Version:      version,
		State:        state,
		LastSyncedAt: time.Now().UTC(),
	}
}

func TestUpsert_OnlyNewerVersionsWrite(t *testing.T) {
	store := NewMemory()
	rec := snackRecord(t, 3, "Soda")

	require.NoError(t, store.Upsert(context.Background(), rec))
	assert.Equal(t, 1, store.WriteCount())

	// Same version: no-op.
	require.NoError(t, store.Upsert(context.Background(), rec))
	assert.Equal(t, 1, store.WriteCount())

	// Older version: no-op.
	older := rec
	older.Version = 2
	require.NoError(t, store.Upsert(context.Background(), older))
	assert.Equal(t, 1, store.WriteCount())

	// Newer version: writes.
	newer := rec
	newer.Version = 4
	require.NoError(t, store.Upsert(context.Background(), newer))
	assert.Equal(t, 2, store.WriteCount())

	got, err := store.Get(context.Background(), "snack", rec.AggregateID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.Version)
}

func TestGet_NotFound(t *testing.T) {
	store := NewMemory()
	_, err := store.Get(context.Background(), "snack", uuid.Must(uuid.NewV7()))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList_FilterByNameContains(t *testing.T) {
	store := NewMemory()
	for _, name := range []string{"Cola", "Chocolate Bar", "Lemonade"} {
		require.NoError(t, store.Upsert(context.Background(), snackRecord(t, 1, name)))
	}

	rows, err := store.List(context.Background(), "snack",
		[]Filter{{Field: "name", Op: OpContains, Value: "ol"}}, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2, "Cola and Chocolate Bar both contain 'ol'")
}

func TestList_FilterEquality(t *testing.T) {
	store := NewMemory()
	require.NoError(t, store.Upsert(context.Background(), snackRecord(t, 1, "Cola")))
	require.NoError(t, store.Upsert(context.Background(), snackRecord(t, 1, "Soda")))

	rows, err := store.List(context.Background(), "snack",
		[]Filter{{Field: "name", Op: OpEq, Value: "Soda"}}, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestList_NumericRangeFilter(t *testing.T) {
	store := NewMemory()
	for i, price := range []string{"1.50", "2.75", "10.00"} {
		state, err := json.Marshal(map[string]any{
			"lifecycle":    "active",
			"bought_by":    fmt.Sprintf("buyer-%d", i),
			"bought_price": price,
			"machine_id":   uuid.Must(uuid.NewV7()).String(),
			"snack_id":     uuid.Must(uuid.NewV7()).String(),
			"bought_at":    time.Now().UTC().Format(time.RFC3339Nano),
		})
		require.NoError(t, err)
		require.NoError(t, store.Upsert(context.Background(), Record{
			Kind:        "purchase",
			AggregateID: uuid.Must(uuid.NewV7()),
			Version:     1,
			State:       state,
		}))
	}

	rows, err := store.List(context.Background(), "purchase",
		[]Filter{{Field: "bought_price", Op: OpGte, Value: "2"}}, nil)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = store.List(context.Background(), "purchase", []Filter{
		{Field: "bought_price", Op: OpGt, Value: "2"},
		{Field: "bought_price", Op: OpLt, Value: "5"},
	}, nil)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestList_SortMultiKeyWithStableTies(t *testing.T) {
	store := NewMemory()
	names := []string{"Soda", "Cola", "Soda", "Apple"}
	var ids []uuid.UUID
	for _, name := range names {
		rec := snackRecord(t, 1, name)
		ids = append(ids, rec.AggregateID)
		require.NoError(t, store.Upsert(context.Background(), rec))
	}

	rows, err := store.List(context.Background(), "snack", nil,
		[]Sort{{Field: "name"}})
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, ids[3], rows[0].AggregateID) // Apple
	assert.Equal(t, ids[1], rows[1].AggregateID) // Cola
	// The two Sodas keep insertion order.
	assert.Equal(t, ids[0], rows[2].AggregateID)
	assert.Equal(t, ids[2], rows[3].AggregateID)

	rows, err = store.List(context.Background(), "snack", nil,
		[]Sort{{Field: "name", Descending: true}})
	require.NoError(t, err)
	assert.Equal(t, ids[0], rows[0].AggregateID)
}

func TestPagedList_SkipTakeAndTotal(t *testing.T) {
	store := NewMemory()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Upsert(context.Background(), snackRecord(t, 1, fmt.Sprintf("Snack %d", i))))
	}

	rows, total, err := store.PagedList(context.Background(), "snack", nil, nil, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, rows, 2)

	// Page past the end.
	rows, total, err = store.PagedList(context.Background(), "snack", nil, nil, 10, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Empty(t, rows)

	// A negative skip is treated as zero, not a slice bound.
	rows, total, err = store.PagedList(context.Background(), "snack", nil, nil, -3, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, rows, 2)
}

func TestValidateQuery_Rejections(t *testing.T) {
	assert.Error(t, ValidateQuery("unknown_kind", nil, nil))
	assert.Error(t, ValidateQuery("snack", []Filter{{Field: "nope", Op: OpEq, Value: "x"}}, nil))
	assert.Error(t, ValidateQuery("snack", []Filter{{Field: "name", Op: OpGt, Value: "x"}}, nil),
		"range operators are not allowed on text fields")
	assert.Error(t, ValidateQuery("purchase", []Filter{{Field: "bought_price", Op: OpContains, Value: "1"}}, nil),
		"contains is not allowed on numeric fields")
	assert.Error(t, ValidateQuery("purchase", []Filter{{Field: "bought_price", Op: OpGt, Value: "abc"}}, nil))
	assert.Error(t, ValidateQuery("snack", nil, []Sort{{Field: "nope"}}))

	assert.NoError(t, ValidateQuery("snack", []Filter{{Field: "name", Op: OpContains, Value: "a"}},
		[]Sort{{Field: "name", Descending: true}}))
}

func TestVersions(t *testing.T) {
	store := NewMemory()
	a := snackRecord(t, 3, "A")
	b := snackRecord(t, 7, "B")
	require.NoError(t, store.Upsert(context.Background(), a))
	require.NoError(t, store.Upsert(context.Background(), b))

	versions, err := store.Versions(context.Background(), "snack")
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]int64{a.AggregateID: 3, b.AggregateID: 7}, versions)
}
