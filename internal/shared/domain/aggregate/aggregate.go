// Package aggregate implements the generic command engine shared by every
// entity kind: per-instance serialized command handling, optimistic
// concurrency, event-log replay, and broadcast publication.
package aggregate

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/snackstand/catalog-services/internal/shared/domain/events"
)

// Lifecycle is the coarse state every aggregate moves through.
// Removed is terminal; removed aggregates reject all further mutation.
type Lifecycle string

const (
	LifecycleUninitialized Lifecycle = "uninitialized"
	LifecycleActive        Lifecycle = "active"
	LifecycleRemoved       Lifecycle = "removed"
)

// VersionAny disables the optimistic-concurrency check for a command.
const VersionAny int64 = -1

// Command is a request to change one aggregate. Each entity kind defines a
// closed set of command variants dispatched by type switch in its Decide.
type Command interface {
	// CommandName identifies the command in error events and logs.
	CommandName() string
}

// Change is a state-changing fact produced by Decide, before it is wrapped
// into a versioned envelope by the engine.
type Change struct {
	EventType string
	Category  events.Category
	Payload   any
}

// Root is implemented by each entity kind's state. Decide and Apply must be
// pure with respect to anything but the receiver: all persistence and
// publication belongs to the engine.
type Root[R any] interface {
	// AggregateKind names the entity kind namespace (e.g., "snack").
	AggregateKind() string

	// Status returns the current lifecycle stage.
	Status() Lifecycle

	// Decide validates cmd against current state and returns the resulting
	// changes, or a typed *Error. It must not mutate the receiver.
	Decide(cmd Command) ([]Change, error)

	// Apply mutates state with a committed event. Replaying the full event
	// history through Apply must reproduce the state exactly.
	Apply(evt *events.Envelope) error

	// Clone returns a deep copy for snapshot reads.
	Clone() R
}

// ErrVersionConflict is returned by EventLog.Append when the expected
// version does not match the stream head.
var ErrVersionConflict = errors.New("event log: version conflict")

// EventLog is the append-only, per-aggregate ordered event storage the
// engine consumes. Implementations live in internal/shared/eventlog.
type EventLog interface {
	// Append atomically appends evts, which must carry versions
	// expectedVersion+1..expectedVersion+len(evts). It returns the new head
	// version, or ErrVersionConflict if the stream moved past expectedVersion.
	Append(ctx context.Context, kind string, id uuid.UUID, expectedVersion int64, evts []*events.Envelope) (int64, error)

	// ReadAll returns the full event history for one aggregate in version order.
	ReadAll(ctx context.Context, kind string, id uuid.UUID) ([]*events.Envelope, error)

	// IDs enumerates every aggregate id known for the kind.
	IDs(ctx context.Context, kind string) ([]uuid.UUID, error)
}

// Publisher is the broadcast channel the engine hands committed events to.
// Publishing is fire-and-forget: a failure is logged by the engine and never
// rolls back the already-appended events.
type Publisher interface {
	Publish(ctx context.Context, namespace string, evt *events.Envelope) error
	PublishError(ctx context.Context, namespace string, evt *events.Envelope) error
}

// EnsureUninitialized rejects a command unless the aggregate has never been
// initialized. Used by Initialize variants.
func EnsureUninitialized(status Lifecycle, kind string) error {
	switch status {
	case LifecycleUninitialized:
		return nil
	case LifecycleRemoved:
		return NewValidation(fmt.Sprintf("%s has been removed and cannot be re-initialized", kind))
	default:
		return NewValidation(fmt.Sprintf("%s is already initialized", kind))
	}
}

// EnsureActive rejects a command unless the aggregate is initialized and not
// removed. Used by every mutating command other than Initialize.
func EnsureActive(status Lifecycle, kind string) error {
	switch status {
	case LifecycleActive:
		return nil
	case LifecycleUninitialized:
		return NewNotFound(fmt.Sprintf("%s is not initialized", kind))
	default:
		return NewValidation(fmt.Sprintf("%s has been removed", kind))
	}
}
