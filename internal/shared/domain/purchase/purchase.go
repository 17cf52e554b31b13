// Package purchase defines the purchase aggregate: an audit record of one
// snack bought from one machine. Purchases accept only Initialize and
// Remove; a recorded purchase is never edited.
package purchase

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"

	"github.com/snackstand/catalog-services/internal/shared/domain/aggregate"
	"github.com/snackstand/catalog-services/internal/shared/domain/events"
)

// Kind is the purchase entity-kind namespace.
const Kind = "purchase"

// Event types emitted by the purchase aggregate.
const (
	EventInitialized = "purchase.initialized"
	EventRemoved     = "purchase.removed"
)

// Commands.

// Initialize records a purchase.
type Initialize struct {
	MachineID   uuid.UUID       `json:"machine_id"`
	Position    int             `json:"position"`
	SnackID     uuid.UUID       `json:"snack_id"`
	BoughtPrice decimal.Decimal `json:"bought_price"`
	BoughtBy    string          `json:"bought_by"`
}

// Remove tombstones a purchase record.
type Remove struct{}

func (Initialize) CommandName() string { return "purchase.initialize" }
func (Remove) CommandName() string     { return "purchase.remove" }

// Event payloads.

// Initialized is the payload of EventInitialized. BoughtAt is taken from the
// envelope timestamp on apply, keeping replay deterministic.
type Initialized struct {
	MachineID   uuid.UUID       `json:"machine_id"`
	Position    int             `json:"position"`
	SnackID     uuid.UUID       `json:"snack_id"`
	BoughtPrice decimal.Decimal `json:"bought_price"`
	BoughtBy    string          `json:"bought_by"`
}

// Removed is the payload of EventRemoved.
type Removed struct{}

// Purchase is the aggregate state. It is mutated only through Apply.
type Purchase struct {
	ID          uuid.UUID           `json:"id"`
	Lifecycle   aggregate.Lifecycle `json:"lifecycle"`
	MachineID   uuid.UUID           `json:"machine_id"`
	Position    int                 `json:"position"`
	SnackID     uuid.UUID           `json:"snack_id"`
	BoughtPrice decimal.Decimal     `json:"bought_price"`
	BoughtBy    string              `json:"bought_by"`
	BoughtAt    time.Time           `json:"bought_at"`
}

// Ensure Purchase implements aggregate.Root
var _ aggregate.Root[*Purchase] = (*Purchase)(nil)

// New returns an uninitialized purchase.
func New(id uuid.UUID) *Purchase {
	return &Purchase{ID: id, Lifecycle: aggregate.LifecycleUninitialized}
}

// AggregateKind implements aggregate.Root.
func (p *Purchase) AggregateKind() string { return Kind }

// Status implements aggregate.Root.
func (p *Purchase) Status() aggregate.Lifecycle { return p.Lifecycle }

// Clone implements aggregate.Root.
func (p *Purchase) Clone() *Purchase {
	copied := *p
	return &copied
}

// Decide implements aggregate.Root.
func (p *Purchase) Decide(cmd aggregate.Command) ([]aggregate.Change, error) {
	switch c := cmd.(type) {
	case Initialize:
		if err := aggregate.EnsureUninitialized(p.Lifecycle, Kind); err != nil {
			return nil, err
		}
		if c.MachineID == uuid.Nil {
			return nil, aggregate.NewValidation("purchase requires a machine id")
		}
		if c.SnackID == uuid.Nil {
			return nil, aggregate.NewValidation("purchase requires a snack id")
		}
		if c.BoughtPrice.IsNegative() {
			return nil, aggregate.NewValidation("purchase price cannot be negative")
		}
		return []aggregate.Change{{
			EventType: EventInitialized,
			Category:  events.CategoryInitialized,
			Payload: Initialized{
				MachineID:   c.MachineID,
				Position:    c.Position,
				SnackID:     c.SnackID,
				BoughtPrice: c.BoughtPrice,
				BoughtBy:    c.BoughtBy,
			},
		}}, nil

	case Remove:
		if err := aggregate.EnsureActive(p.Lifecycle, Kind); err != nil {
			return nil, err
		}
		return []aggregate.Change{{
			EventType: EventRemoved,
			Category:  events.CategoryRemoved,
			Payload:   Removed{},
		}}, nil

	default:
		return nil, aggregate.NewValidation(fmt.Sprintf("unknown purchase command %T", cmd))
	}
}

// Apply implements aggregate.Root.
func (p *Purchase) Apply(evt *events.Envelope) error {
	switch evt.EventType {
	case EventInitialized:
		var payload Initialized
		if err := evt.ParsePayload(&payload); err != nil {
			return err
		}
		p.Lifecycle = aggregate.LifecycleActive
		p.MachineID = payload.MachineID
		p.Position = payload.Position
		p.SnackID = payload.SnackID
		p.BoughtPrice = payload.BoughtPrice
		p.BoughtBy = payload.BoughtBy
		p.BoughtAt = evt.Timestamp

	case EventRemoved:
		p.Lifecycle = aggregate.LifecycleRemoved

	default:
		return fmt.Errorf("unknown purchase event type %q", evt.EventType)
	}
	return nil
}
