// Package stats defines the stats sub-aggregate: an independently-versioned
// pair of purchase counters scoped to a parent aggregate. It shares the
// parent's id but runs on its own engine, so frequent counter bumps never
// contend with the parent's command queue.
//
// A failed decrement emits an error event on the shared error channel, the
// same as any other failed command; the engine funnels every failure through
// one path.
package stats

import (
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"

	"github.com/snackstand/catalog-services/internal/shared/domain/aggregate"
	"github.com/snackstand/catalog-services/internal/shared/domain/events"
)

// Counter fields.
const (
	FieldBoughtCount  = "bought_count"
	FieldBoughtAmount = "bought_amount"
)

// Adjusted is the payload of the "<kind>.adjusted" event emitted for every
// successful counter change.
type Adjusted struct {
	Field  string          `json:"field"`
	Delta  decimal.Decimal `json:"delta"`
	Result decimal.Decimal `json:"result"`
}

// Commands.

// Increment raises one counter field by a positive amount.
type Increment struct {
	Field  string          `json:"field"`
	Amount decimal.Decimal `json:"amount"`
}

// Decrement lowers one counter field by a positive amount. It fails with
// Underflow if the counter would go negative; values are never clamped.
type Decrement struct {
	Field  string          `json:"field"`
	Amount decimal.Decimal `json:"amount"`
}

func (Increment) CommandName() string { return "stats.increment" }
func (Decrement) CommandName() string { return "stats.decrement" }

// Counters is the sub-aggregate state. Counters start at zero; there is no
// explicit Initialize and no Remove.
type Counters struct {
	ID           uuid.UUID       `json:"id"`
	BoughtCount  int64           `json:"bought_count"`
	BoughtAmount decimal.Decimal `json:"bought_amount"`

	kind string
}

// Ensure Counters implements aggregate.Root
var _ aggregate.Root[*Counters] = (*Counters)(nil)

// NewFactory returns an engine factory for a stats kind (e.g. "snack_stats").
func NewFactory(kind string) func(id uuid.UUID) *Counters {
	return func(id uuid.UUID) *Counters {
		return &Counters{ID: id, BoughtAmount: decimal.Zero, kind: kind}
	}
}

// AggregateKind implements aggregate.Root.
func (c *Counters) AggregateKind() string { return c.kind }

// Status implements aggregate.Root. Stats sub-aggregates are implicitly
// active from version 0.
func (c *Counters) Status() aggregate.Lifecycle { return aggregate.LifecycleActive }

// Clone implements aggregate.Root.
func (c *Counters) Clone() *Counters {
	copied := *c
	return &copied
}

// EventAdjusted returns the adjustment event type for a stats kind.
func EventAdjusted(kind string) string {
	return kind + ".adjusted"
}

// Decide implements aggregate.Root.
func (c *Counters) Decide(cmd aggregate.Command) ([]aggregate.Change, error) {
	switch cm := cmd.(type) {
	case Increment:
		delta, err := c.validateDelta(cm.Field, cm.Amount)
		if err != nil {
			return nil, err
		}
		return c.adjust(cm.Field, delta)

	case Decrement:
		delta, err := c.validateDelta(cm.Field, cm.Amount)
		if err != nil {
			return nil, err
		}
		return c.adjust(cm.Field, delta.Neg())

	default:
		return nil, aggregate.NewValidation(fmt.Sprintf("unknown stats command %T", cmd))
	}
}

func (c *Counters) validateDelta(field string, amount decimal.Decimal) (decimal.Decimal, error) {
	switch field {
	case FieldBoughtCount:
		if !amount.IsInteger() {
			return decimal.Zero, aggregate.NewValidation("bought_count adjustments must be whole numbers")
		}
	case FieldBoughtAmount:
	default:
		return decimal.Zero, aggregate.NewValidation(fmt.Sprintf("unknown stats field %q", field))
	}
	if !amount.IsPositive() {
		return decimal.Zero, aggregate.NewValidation("adjustment amount must be positive")
	}
	return amount, nil
}

func (c *Counters) adjust(field string, delta decimal.Decimal) ([]aggregate.Change, error) {
	current := c.value(field)
	result := current.Add(delta)
	if result.IsNegative() {
		// The caller should have validated feasibility against observed
		// state; this re-validates authoritatively to close races.
		return nil, aggregate.NewUnderflow(fmt.Sprintf(
			"decrementing %s by %s would drive it below zero (current %s)",
			field, delta.Neg(), current))
	}
	return []aggregate.Change{{
		EventType: EventAdjusted(c.kind),
		Category:  events.CategoryStatsAdjusted,
		Payload:   Adjusted{Field: field, Delta: delta, Result: result},
	}}, nil
}

func (c *Counters) value(field string) decimal.Decimal {
	if field == FieldBoughtCount {
		return decimal.NewFromInt(c.BoughtCount)
	}
	return c.BoughtAmount
}

// Apply implements aggregate.Root.
func (c *Counters) Apply(evt *events.Envelope) error {
	if evt.EventType != EventAdjusted(c.kind) {
		return fmt.Errorf("unknown stats event type %q", evt.EventType)
	}
	var p Adjusted
	if err := evt.ParsePayload(&p); err != nil {
		return err
	}
	switch p.Field {
	case FieldBoughtCount:
		c.BoughtCount = p.Result.IntPart()
	case FieldBoughtAmount:
		c.BoughtAmount = p.Result
	default:
		return fmt.Errorf("unknown stats field %q", p.Field)
	}
	return nil
}
