//go:build integration

package postgres

import (
	"context"
	"os"
	"testing"
	"time"

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

func TestCheckpointLoad_NeverFired(t *testing.T) {
	testutil.TruncateTables(t, testPool, "sync_checkpoints")
	store := NewCheckpointStore(testPool)

	firedAt, err := store.Load(context.Background(), "snack.differences")
	require.NoError(t, err)
	assert.True(t, firedAt.IsZero())
}

func TestCheckpointSaveLoad(t *testing.T) {
	testutil.TruncateTables(t, testPool, "sync_checkpoints")
	store := NewCheckpointStore(testPool)

	firedAt := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(context.Background(), "snack.differences", firedAt))

	got, err := store.Load(context.Background(), "snack.differences")
	require.NoError(t, err)
	assert.True(t, firedAt.Equal(got), "expected %v, got %v", firedAt, got)
}

func TestCheckpointSave_Overwrites(t *testing.T) {
	testutil.TruncateTables(t, testPool, "sync_checkpoints")
	store := NewCheckpointStore(testPool)

	first := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	second := first.Add(30 * time.Second)
	require.NoError(t, store.Save(context.Background(), "snack.all", first))
	require.NoError(t, store.Save(context.Background(), "snack.all", second))

	got, err := store.Load(context.Background(), "snack.all")
	require.NoError(t, err)
	assert.True(t, second.Equal(got))

	// Jobs are independent.
	got, err = store.Load(context.Background(), "machine.all")
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}
