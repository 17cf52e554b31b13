//go:build integration

package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snackstand/catalog-services/internal/shared/domain/aggregate"
	"github.com/snackstand/catalog-services/internal/shared/domain/events"
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

func testEvent(t *testing.T, kind string, id uuid.UUID, version int64) *events.Envelope {
	t.Helper()
	return &events.Envelope{
		EventID:       uuid.Must(uuid.NewV7()),
		EventType:     kind + ".initialized",
		Category:      events.CategoryInitialized,
		AggregateKind: kind,
		AggregateID:   id,
		Version:       version,
		Timestamp:     time.Now().UTC().Truncate(time.Microsecond),
		Payload:       json.RawMessage(`{"name": "Cola"}`),
		Metadata:      events.Metadata{TraceID: "trace-1", OperatedBy: "tester", SchemaVersion: 1},
	}
}

func TestPostgresAppendReadAll(t *testing.T) {
	testutil.TruncateTables(t, testPool, "event_log")
	log := NewPostgres(testPool, testLogger())

	id := uuid.Must(uuid.NewV7())
	first := testEvent(t, "snack", id, 1)
	second := testEvent(t, "snack", id, 2)
	second.EventType = "snack.name_changed"
	second.Category = events.CategoryFieldChanged
	second.Payload = json.RawMessage(`{"name": "Fanta"}`)

	version, err := log.Append(context.Background(), "snack", id, 0, []*events.Envelope{first, second})
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	history, err := log.ReadAll(context.Background(), "snack", id)
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, first.EventID, history[0].EventID)
	assert.Equal(t, "snack.initialized", history[0].EventType)
	assert.Equal(t, int64(1), history[0].Version)
	assert.True(t, first.Timestamp.Equal(history[0].Timestamp), "Timestamp mismatch")
	assert.JSONEq(t, string(first.Payload), string(history[0].Payload))
	assert.Equal(t, first.Metadata, history[0].Metadata)

	assert.Equal(t, "snack.name_changed", history[1].EventType)
	assert.Equal(t, int64(2), history[1].Version)
}

func TestPostgresAppend_VersionConflict(t *testing.T) {
	testutil.TruncateTables(t, testPool, "event_log")
	log := NewPostgres(testPool, testLogger())

	id := uuid.Must(uuid.NewV7())
	_, err := log.Append(context.Background(), "snack", id, 0, []*events.Envelope{testEvent(t, "snack", id, 1)})
	require.NoError(t, err)

	// A second writer that also observed version 0 must lose.
	_, err = log.Append(context.Background(), "snack", id, 0, []*events.Envelope{testEvent(t, "snack", id, 1)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, aggregate.ErrVersionConflict), "expected ErrVersionConflict, got %v", err)

	// The losing append must not have committed anything.
	history, err := log.ReadAll(context.Background(), "snack", id)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestPostgresAppend_ConflictMidBatchCommitsNothing(t *testing.T) {
	testutil.TruncateTables(t, testPool, "event_log")
	log := NewPostgres(testPool, testLogger())

	id := uuid.Must(uuid.NewV7())
	_, err := log.Append(context.Background(), "snack", id, 0, []*events.Envelope{
		testEvent(t, "snack", id, 1),
		testEvent(t, "snack", id, 2),
	})
	require.NoError(t, err)

	// Batch starting at version 1 collides on its second event (version 2 exists).
	_, err = log.Append(context.Background(), "snack", id, 1, []*events.Envelope{
		testEvent(t, "snack", id, 2),
		testEvent(t, "snack", id, 3),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, aggregate.ErrVersionConflict))

	var count int
	require.NoError(t, testPool.QueryRow(context.Background(),
		"SELECT COUNT(*) FROM event_log WHERE aggregate_id = $1", id).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestPostgresReadAll_UnknownStream(t *testing.T) {
	testutil.TruncateTables(t, testPool, "event_log")
	log := NewPostgres(testPool, testLogger())

	history, err := log.ReadAll(context.Background(), "snack", uuid.Must(uuid.NewV7()))
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestPostgresIDs_FirstAppendOrder(t *testing.T) {
	testutil.TruncateTables(t, testPool, "event_log")
	log := NewPostgres(testPool, testLogger())

	a := uuid.Must(uuid.NewV7())
	b := uuid.Must(uuid.NewV7())
	c := uuid.Must(uuid.NewV7())

	for _, id := range []uuid.UUID{b, a, c} {
		_, err := log.Append(context.Background(), "snack", id, 0, []*events.Envelope{testEvent(t, "snack", id, 1)})
		require.NoError(t, err)
	}
	// Additional events must not change an id's position.
	_, err := log.Append(context.Background(), "snack", b, 1, []*events.Envelope{testEvent(t, "snack", b, 2)})
	require.NoError(t, err)

	ids, err := log.IDs(context.Background(), "snack")
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{b, a, c}, ids)
}

func TestPostgresIDs_KindIsolation(t *testing.T) {
	testutil.TruncateTables(t, testPool, "event_log")
	log := NewPostgres(testPool, testLogger())

	snackID := uuid.Must(uuid.NewV7())
	machineID := uuid.Must(uuid.NewV7())
	_, err := log.Append(context.Background(), "snack", snackID, 0, []*events.Envelope{testEvent(t, "snack", snackID, 1)})
	require.NoError(t, err)
	_, err = log.Append(context.Background(), "machine", machineID, 0, []*events.Envelope{testEvent(t, "machine", machineID, 1)})
	require.NoError(t, err)

	ids, err := log.IDs(context.Background(), "snack")
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{snackID}, ids)
}
