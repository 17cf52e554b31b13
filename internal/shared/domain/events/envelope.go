package events

import (
	"encoding/json"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/snackstand/catalog-services/internal/shared/domain/clock"
)

// Category classifies what an event did to its aggregate.
type Category string

const (
	CategoryInitialized   Category = "initialized"
	CategoryFieldChanged  Category = "field_changed"
	CategoryRemoved       Category = "removed"
	CategoryStatsAdjusted Category = "stats_adjusted"

	// CategoryError marks a failed command. Error events carry no aggregate
	// version and are never appended to the event log; they travel only on
	// the broadcast error channel.
	CategoryError Category = "error"
)

// Envelope is the common structure for all events in the system.
// The same structure is stored in the event log, published to the broadcast
// channel, and used for projection bookkeeping.
type Envelope struct {
	// EventID is the unique identifier for this event
	EventID uuid.UUID `json:"event_id"`

	// EventType is the discriminator (e.g., "snack.initialized", "machine.snack_bought")
	EventType string `json:"event_type"`

	// Category classifies the event for generic handling
	Category Category `json:"category"`

	// AggregateKind names the entity kind namespace (e.g., "snack")
	AggregateKind string `json:"aggregate_kind"`

	// AggregateID identifies the aggregate instance this event belongs to
	AggregateID uuid.UUID `json:"aggregate_id"`

	// Version is the aggregate's version after applying this event.
	// Zero for error events, which do not advance the aggregate.
	Version int64 `json:"version"`

	// Timestamp is when the operation occurred (operatedAt)
	Timestamp time.Time `json:"timestamp"`

	// Payload contains the event-specific data
	Payload json.RawMessage `json:"payload"`

	// Metadata carries trace correlation fields
	Metadata Metadata `json:"metadata"`
}

// Metadata contains contextual information about the event. It is carried
// end-to-end from command to event to error for causal correlation and is
// never consulted for authorization.
type Metadata struct {
	// TraceID correlates a command with all events it produced (optional)
	TraceID string `json:"trace_id,omitempty"`

	// OperatedBy identifies who issued the originating command
	OperatedBy string `json:"operated_by,omitempty"`

	// SchemaVersion for payload evolution
	SchemaVersion int `json:"schema_version"`
}

// New creates an event envelope with a generated ID and the current clock time.
// The payload is marshaled immediately so a bad payload fails at the source.
func New(kind string, aggregateID uuid.UUID, eventType string, category Category, version int64, payload any, metadata Metadata) (*Envelope, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	if metadata.SchemaVersion == 0 {
		metadata.SchemaVersion = 1
	}

	return &Envelope{
		EventID:       uuid.Must(uuid.NewV7()),
		EventType:     eventType,
		Category:      category,
		AggregateKind: kind,
		AggregateID:   aggregateID,
		Version:       version,
		Timestamp:     clock.Now(),
		Payload:       payloadBytes,
		Metadata:      metadata,
	}, nil
}

// ParsePayload unmarshals the payload into the provided type.
func (e *Envelope) ParsePayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}
