package sync

import (
	"context"
	"log/slog"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snackstand/catalog-services/internal/shared/projections"
)

func TestSyncOneCreatesAndUpdatesProjection(t *testing.T) {
	store := projections.NewMemory()
	source := newFakeSource("snack")
	syncer := NewSyncer(store, slog.Default(), source)

	id := uuid.Must(uuid.NewV7())
	source.set(id, 3)

	require.NoError(t, syncer.SyncOne(context.Background(), "snack", id))

	rec, err := store.Get(context.Background(), "snack", id)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rec.Version)

	source.set(id, 4)
	require.NoError(t, syncer.SyncOne(context.Background(), "snack", id))

	rec, err = store.Get(context.Background(), "snack", id)
	require.NoError(t, err)
	assert.Equal(t, int64(4), rec.Version)
}

func TestSyncOneIdempotent(t *testing.T) {
	store := projections.NewMemory()
	source := newFakeSource("snack")
	syncer := NewSyncer(store, slog.Default(), source)

	id := uuid.Must(uuid.NewV7())
	source.set(id, 2)

	require.NoError(t, syncer.SyncOne(context.Background(), "snack", id))
	writes := store.WriteCount()

	// No aggregate change in between: the second call must not write.
	require.NoError(t, syncer.SyncOne(context.Background(), "snack", id))
	assert.Equal(t, writes, store.WriteCount())
}

func TestSyncOneUnknownKind(t *testing.T) {
	syncer := NewSyncer(projections.NewMemory(), slog.Default(), newFakeSource("snack"))
	err := syncer.SyncOne(context.Background(), "gadget", uuid.Must(uuid.NewV7()))
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = syncer.SyncDifferences(context.Background(), "gadget")
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = syncer.SyncAll(context.Background(), "gadget")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestSyncOneSkipsAggregateWithoutEvents(t *testing.T) {
	store := projections.NewMemory()
	syncer := NewSyncer(store, slog.Default(), newFakeSource("snack"))

	require.NoError(t, syncer.SyncOne(context.Background(), "snack", uuid.Must(uuid.NewV7())))
	assert.Zero(t, store.WriteCount())
}

func TestSyncDifferencesCatchesUpStaleProjections(t *testing.T) {
	store := projections.NewMemory()
	source := newFakeSource("snack")
	syncer := NewSyncer(store, slog.Default(), source)

	id := uuid.Must(uuid.NewV7())
	source.set(id, 5)

	// Projection row absent: the pass creates it at version 5.
	res, err := syncer.SyncDifferences(context.Background(), "snack")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Synced)

	rec, err := store.Get(context.Background(), "snack", id)
	require.NoError(t, err)
	assert.Equal(t, int64(5), rec.Version)

	// Aggregate advances to 6; until the next pass the projection stays at 5.
	source.set(id, 6)
	rec, err = store.Get(context.Background(), "snack", id)
	require.NoError(t, err)
	assert.Equal(t, int64(5), rec.Version)

	res, err = syncer.SyncDifferences(context.Background(), "snack")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Synced)

	rec, err = store.Get(context.Background(), "snack", id)
	require.NoError(t, err)
	assert.Equal(t, int64(6), rec.Version)
}

func TestSyncDifferencesConverges(t *testing.T) {
	store := projections.NewMemory()
	source := newFakeSource("snack")
	syncer := NewSyncer(store, slog.Default(), source)

	ids := make([]uuid.UUID, 5)
	for i := range ids {
		ids[i] = uuid.Must(uuid.NewV7())
		source.set(ids[i], int64(i+1))
	}

	_, err := syncer.SyncDifferences(context.Background(), "snack")
	require.NoError(t, err)

	// With no further writes, another pass finds nothing to do.
	res, err := syncer.SyncDifferences(context.Background(), "snack")
	require.NoError(t, err)
	assert.Zero(t, res.Synced)
	assert.Equal(t, 5, res.Skipped)

	versions, err := store.Versions(context.Background(), "snack")
	require.NoError(t, err)
	for i, id := range ids {
		assert.Equal(t, int64(i+1), versions[id])
	}
}

func TestBulkPassIsolatesFailures(t *testing.T) {
	store := projections.NewMemory()
	source := newFakeSource("snack")
	syncer := NewSyncer(store, slog.Default(), source)

	bad := uuid.Must(uuid.NewV7())
	good := uuid.Must(uuid.NewV7())
	source.fail(bad)
	source.set(good, 2)

	res, err := syncer.SyncDifferences(context.Background(), "snack")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Synced)

	// The failing id did not block the healthy one.
	rec, err := store.Get(context.Background(), "snack", good)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.Version)
}

func TestSyncAllVisitsEveryID(t *testing.T) {
	store := projections.NewMemory()
	source := newFakeSource("snack")
	syncer := NewSyncer(store, slog.Default(), source)

	for i := 0; i < 3; i++ {
		source.set(uuid.Must(uuid.NewV7()), int64(i+1))
	}

	res, err := syncer.SyncAll(context.Background(), "snack")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 3, res.Synced)

	// Unconditional revisit: every id is rendered again, the version guard
	// keeps the rows unchanged.
	res, err = syncer.SyncAll(context.Background(), "snack")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Synced)
}
