package events

import (
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snackstand/catalog-services/internal/shared/domain/clock"
)

func TestNew_PopulatesEnvelope(t *testing.T) {
	fixed := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	clock.Set(clock.FixedClock{Time: fixed})
	t.Cleanup(clock.Reset)

	aggID := uuid.Must(uuid.NewV7())
	env, err := New("snack", aggID, "snack.initialized", CategoryInitialized, 1,
		map[string]string{"name": "Soda"},
		Metadata{TraceID: "trace-1", OperatedBy: "tester"},
	)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, env.EventID)
	assert.Equal(t, "snack.initialized", env.EventType)
	assert.Equal(t, CategoryInitialized, env.Category)
	assert.Equal(t, "snack", env.AggregateKind)
	assert.Equal(t, aggID, env.AggregateID)
	assert.Equal(t, int64(1), env.Version)
	assert.Equal(t, fixed, env.Timestamp)
	assert.Equal(t, "trace-1", env.Metadata.TraceID)
	assert.Equal(t, 1, env.Metadata.SchemaVersion, "schema version defaults to 1")
}

func TestNew_RejectsUnmarshalablePayload(t *testing.T) {
	_, err := New("snack", uuid.Must(uuid.NewV7()), "snack.initialized", CategoryInitialized, 1,
		make(chan int), Metadata{})
	assert.Error(t, err)
}

func TestParsePayload_RoundTrip(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	env, err := New("snack", uuid.Must(uuid.NewV7()), "snack.name_changed", CategoryFieldChanged, 2,
		payload{Name: "Cola"}, Metadata{})
	require.NoError(t, err)

	var out payload
	require.NoError(t, env.ParsePayload(&out))
	assert.Equal(t, "Cola", out.Name)
}
