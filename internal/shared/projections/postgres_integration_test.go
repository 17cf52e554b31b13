//go:build integration

package projections

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snackstand/catalog-services/internal/testutil"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	pool := testutil.MustNewTestPool()
	testutil.MustMigrate()
	testPool = pool
	defer pool.Close()
	os.Exit(m.Run())
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func pgSnackRecord(t *testing.T, id uuid.UUID, version int64, name string) Record {
	t.Helper()
	return Record{
		Kind:        "snack",
		AggregateID: id,
		Version:     version,
		State: json.RawMessage(fmt.Sprintf(
			`{"id": %q, "name": %q, "picture_url": "", "lifecycle": "active"}`, id, name)),
		LastSyncedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestPostgresUpsert_InsertAndGet(t *testing.T) {
	testutil.TruncateTables(t, testPool, "projections")
	store := NewPostgresStore(testPool, testLogger())

	id := uuid.Must(uuid.NewV7())
	rec := pgSnackRecord(t, id, 3, "Cola")
	require.NoError(t, store.Upsert(context.Background(), rec))

	got, err := store.Get(context.Background(), "snack", id)
	require.NoError(t, err)
	assert.Equal(t, "snack", got.Kind)
	assert.Equal(t, id, got.AggregateID)
	assert.Equal(t, int64(3), got.Version)
	assert.JSONEq(t, string(rec.State), string(got.State))
	assert.True(t, rec.LastSyncedAt.Equal(got.LastSyncedAt), "LastSyncedAt mismatch")
}

func TestPostgresUpsert_OnlyNewerVersionsWrite(t *testing.T) {
	testutil.TruncateTables(t, testPool, "projections")
	store := NewPostgresStore(testPool, testLogger())

	id := uuid.Must(uuid.NewV7())
	require.NoError(t, store.Upsert(context.Background(), pgSnackRecord(t, id, 5, "Cola")))

	// Same version: no-op
	require.NoError(t, store.Upsert(context.Background(), pgSnackRecord(t, id, 5, "Stale")))
	// Older version: no-op
	require.NoError(t, store.Upsert(context.Background(), pgSnackRecord(t, id, 4, "Staler")))

	got, err := store.Get(context.Background(), "snack", id)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Version)
	assert.Contains(t, string(got.State), "Cola")

	// Newer version wins
	require.NoError(t, store.Upsert(context.Background(), pgSnackRecord(t, id, 6, "Fanta")))
	got, err = store.Get(context.Background(), "snack", id)
	require.NoError(t, err)
	assert.Equal(t, int64(6), got.Version)
	assert.Contains(t, string(got.State), "Fanta")
}

func TestPostgresGet_NotFound(t *testing.T) {
	testutil.TruncateTables(t, testPool, "projections")
	store := NewPostgresStore(testPool, testLogger())

	_, err := store.Get(context.Background(), "snack", uuid.Must(uuid.NewV7()))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresVersions(t *testing.T) {
	testutil.TruncateTables(t, testPool, "projections")
	store := NewPostgresStore(testPool, testLogger())

	a := uuid.Must(uuid.NewV7())
	b := uuid.Must(uuid.NewV7())
	require.NoError(t, store.Upsert(context.Background(), pgSnackRecord(t, a, 2, "Cola")))
	require.NoError(t, store.Upsert(context.Background(), pgSnackRecord(t, b, 7, "Chips")))

	versions, err := store.Versions(context.Background(), "snack")
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]int64{a: 2, b: 7}, versions)

	// Other kinds are not included.
	versions, err = store.Versions(context.Background(), "machine")
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestPostgresList_FilterAndSort(t *testing.T) {
	testutil.TruncateTables(t, testPool, "projections")
	store := NewPostgresStore(testPool, testLogger())

	names := []string{"Cola", "Chips", "Candy", "Water"}
	for _, name := range names {
		require.NoError(t, store.Upsert(context.Background(),
			pgSnackRecord(t, uuid.Must(uuid.NewV7()), 1, name)))
	}

	records, err := store.List(context.Background(), "snack",
		[]Filter{{Field: "name", Op: OpContains, Value: "c"}},
		[]Sort{{Field: "name", Descending: true}},
	)
	require.NoError(t, err)

	got := make([]string, 0, len(records))
	for _, rec := range records {
		var state struct {
			Name string `json:"name"`
		}
		require.NoError(t, json.Unmarshal(rec.State, &state))
		got = append(got, state.Name)
	}
	assert.Equal(t, []string{"Cola", "Chips", "Candy"}, got)
}

func TestPostgresList_NumericFilter(t *testing.T) {
	testutil.TruncateTables(t, testPool, "projections")
	store := NewPostgresStore(testPool, testLogger())

	for i, count := range []int{3, 12, 7} {
		id := uuid.Must(uuid.NewV7())
		require.NoError(t, store.Upsert(context.Background(), Record{
			Kind:        "snack_stats",
			AggregateID: id,
			Version:     int64(i + 1),
			State: json.RawMessage(fmt.Sprintf(
				`{"bought_count": %d, "bought_amount": "%d.50"}`, count, count)),
			LastSyncedAt: time.Now().UTC(),
		}))
	}

	records, err := store.List(context.Background(), "snack_stats",
		[]Filter{{Field: "bought_count", Op: OpGte, Value: "7"}},
		[]Sort{{Field: "bought_count"}},
	)
	require.NoError(t, err)
	require.Len(t, records, 2)

	var first, second struct {
		BoughtCount int `json:"bought_count"`
	}
	require.NoError(t, json.Unmarshal(records[0].State, &first))
	require.NoError(t, json.Unmarshal(records[1].State, &second))
	assert.Equal(t, 7, first.BoughtCount)
	assert.Equal(t, 12, second.BoughtCount)
}

func TestPostgresPagedList(t *testing.T) {
	testutil.TruncateTables(t, testPool, "projections")
	store := NewPostgresStore(testPool, testLogger())

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Upsert(context.Background(),
			pgSnackRecord(t, uuid.Must(uuid.NewV7()), 1, fmt.Sprintf("Snack %d", i))))
	}

	records, total, err := store.PagedList(context.Background(), "snack",
		nil, []Sort{{Field: "name"}}, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, records, 2)

	var state struct {
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(records[0].State, &state))
	assert.Equal(t, "Snack 2", state.Name)
}

func TestPostgresList_RejectsUnknownField(t *testing.T) {
	store := NewPostgresStore(testPool, testLogger())

	_, err := store.List(context.Background(), "snack",
		[]Filter{{Field: "seq; DROP TABLE projections", Op: OpEq, Value: "x"}}, nil)
	require.Error(t, err)
}
