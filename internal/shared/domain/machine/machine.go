// Package machine defines the snack machine aggregate: slot layout, the
// money protocol (load/unload/insert/return), and snack purchases.
package machine

import (
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"

	"github.com/snackstand/catalog-services/internal/shared/domain/aggregate"
	"github.com/snackstand/catalog-services/internal/shared/domain/events"
	"github.com/snackstand/catalog-services/internal/shared/domain/money"
)

// Kind is the snack machine entity-kind namespace.
const Kind = "machine"

// Event types emitted by the machine aggregate.
const (
	EventInitialized   = "machine.initialized"
	EventMoneyLoaded   = "machine.money_loaded"
	EventMoneyUnloaded = "machine.money_unloaded"
	EventMoneyInserted = "machine.money_inserted"
	EventMoneyReturned = "machine.money_returned"
	EventSnacksLoaded  = "machine.snacks_loaded"
	EventSnackBought   = "machine.snack_bought"
	EventRemoved       = "machine.removed"
)

// SnackPile is the content of one slot: which snack, how many, at what price.
type SnackPile struct {
	SnackID  uuid.UUID       `json:"snack_id"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// Validate rejects impossible piles.
func (p SnackPile) Validate() error {
	if p.SnackID == uuid.Nil {
		return aggregate.NewValidation("snack pile requires a snack id")
	}
	if p.Quantity < 0 {
		return aggregate.NewValidation("snack pile quantity cannot be negative")
	}
	if p.Price.IsNegative() {
		return aggregate.NewValidation("snack pile price cannot be negative")
	}
	return nil
}

// Commands.

// Initialize creates a machine with its slot layout and starting float.
type Initialize struct {
	Slots       map[int]SnackPile `json:"slots"`
	MoneyInside money.Money       `json:"money_inside"`
}

// LoadMoney adds float to the machine.
type LoadMoney struct {
	Money money.Money `json:"money"`
}

// UnloadMoney empties the machine's float.
type UnloadMoney struct{}

// InsertMoney is one coin or note inserted by a buyer.
type InsertMoney struct {
	Denomination money.Denomination `json:"denomination"`
}

// ReturnMoney returns the buyer's unspent balance.
type ReturnMoney struct{}

// LoadSnacks restocks one slot.
type LoadSnacks struct {
	Position int       `json:"position"`
	Pile     SnackPile `json:"pile"`
}

// BuySnack vends one snack from a slot against the inserted balance.
type BuySnack struct {
	Position int    `json:"position"`
	BoughtBy string `json:"bought_by"`
}

// Remove tombstones the machine.
type Remove struct{}

func (Initialize) CommandName() string  { return "machine.initialize" }
func (LoadMoney) CommandName() string   { return "machine.load_money" }
func (UnloadMoney) CommandName() string { return "machine.unload_money" }
func (InsertMoney) CommandName() string { return "machine.insert_money" }
func (ReturnMoney) CommandName() string { return "machine.return_money" }
func (LoadSnacks) CommandName() string  { return "machine.load_snacks" }
func (BuySnack) CommandName() string    { return "machine.buy_snack" }
func (Remove) CommandName() string      { return "machine.remove" }

// Event payloads.

// Initialized is the payload of EventInitialized.
type Initialized struct {
	Slots       map[int]SnackPile `json:"slots"`
	MoneyInside money.Money       `json:"money_inside"`
}

// MoneyLoaded is the payload of EventMoneyLoaded.
type MoneyLoaded struct {
	Money money.Money `json:"money"`
}

// MoneyUnloaded is the payload of EventMoneyUnloaded.
type MoneyUnloaded struct {
	Money money.Money `json:"money"`
}

// MoneyInserted is the payload of EventMoneyInserted.
type MoneyInserted struct {
	Denomination money.Denomination `json:"denomination"`
	Amount       decimal.Decimal    `json:"amount"`
}

// MoneyReturned is the payload of EventMoneyReturned.
type MoneyReturned struct {
	Money  money.Money     `json:"money"`
	Amount decimal.Decimal `json:"amount"`
}

// SnacksLoaded is the payload of EventSnacksLoaded.
type SnacksLoaded struct {
	Position int       `json:"position"`
	Pile     SnackPile `json:"pile"`
}

// SnackBought is the payload of EventSnackBought. The reactor service uses
// it to record the purchase and bump stats.
type SnackBought struct {
	Position    int             `json:"position"`
	SnackID     uuid.UUID       `json:"snack_id"`
	BoughtPrice decimal.Decimal `json:"bought_price"`
	BoughtBy    string          `json:"bought_by"`
}

// Removed is the payload of EventRemoved.
type Removed struct{}

// Machine is the aggregate state. It is mutated only through Apply.
type Machine struct {
	ID        uuid.UUID           `json:"id"`
	Lifecycle aggregate.Lifecycle `json:"lifecycle"`

	// Slots maps position to its pile. A missing position is an empty slot.
	Slots map[int]SnackPile `json:"slots"`

	// MoneyInside is the machine's float plus committed purchases.
	MoneyInside money.Money `json:"money_inside"`

	// AmountInTransaction is the buyer's unspent inserted balance.
	AmountInTransaction decimal.Decimal `json:"amount_in_transaction"`
}

// Ensure Machine implements aggregate.Root
var _ aggregate.Root[*Machine] = (*Machine)(nil)

// New returns an uninitialized machine.
func New(id uuid.UUID) *Machine {
	return &Machine{
		ID:                  id,
		Lifecycle:           aggregate.LifecycleUninitialized,
		Slots:               make(map[int]SnackPile),
		AmountInTransaction: decimal.Zero,
	}
}

// AggregateKind implements aggregate.Root.
func (m *Machine) AggregateKind() string { return Kind }

// Status implements aggregate.Root.
func (m *Machine) Status() aggregate.Lifecycle { return m.Lifecycle }

// Clone implements aggregate.Root.
func (m *Machine) Clone() *Machine {
	copied := *m
	copied.Slots = make(map[int]SnackPile, len(m.Slots))
	for pos, pile := range m.Slots {
		copied.Slots[pos] = pile
	}
	return &copied
}

// Decide implements aggregate.Root.
func (m *Machine) Decide(cmd aggregate.Command) ([]aggregate.Change, error) {
	switch c := cmd.(type) {
	case Initialize:
		return m.decideInitialize(c)
	case LoadMoney:
		return m.decideLoadMoney(c)
	case UnloadMoney:
		return m.decideUnloadMoney()
	case InsertMoney:
		return m.decideInsertMoney(c)
	case ReturnMoney:
		return m.decideReturnMoney()
	case LoadSnacks:
		return m.decideLoadSnacks(c)
	case BuySnack:
		return m.decideBuySnack(c)
	case Remove:
		if err := aggregate.EnsureActive(m.Lifecycle, Kind); err != nil {
			return nil, err
		}
		return []aggregate.Change{{
			EventType: EventRemoved,
			Category:  events.CategoryRemoved,
			Payload:   Removed{},
		}}, nil
	default:
		return nil, aggregate.NewValidation(fmt.Sprintf("unknown machine command %T", cmd))
	}
}

func (m *Machine) decideInitialize(c Initialize) ([]aggregate.Change, error) {
	if err := aggregate.EnsureUninitialized(m.Lifecycle, Kind); err != nil {
		return nil, err
	}
	if err := c.MoneyInside.Validate(); err != nil {
		return nil, aggregate.NewValidation(err.Error())
	}
	for pos, pile := range c.Slots {
		if pos < 0 {
			return nil, aggregate.NewValidation(fmt.Sprintf("slot position %d is negative", pos))
		}
		if err := pile.Validate(); err != nil {
			return nil, err
		}
	}
	return []aggregate.Change{{
		EventType: EventInitialized,
		Category:  events.CategoryInitialized,
		Payload:   Initialized{Slots: c.Slots, MoneyInside: c.MoneyInside},
	}}, nil
}

func (m *Machine) decideLoadMoney(c LoadMoney) ([]aggregate.Change, error) {
	if err := aggregate.EnsureActive(m.Lifecycle, Kind); err != nil {
		return nil, err
	}
	if err := c.Money.Validate(); err != nil {
		return nil, aggregate.NewValidation(err.Error())
	}
	return []aggregate.Change{{
		EventType: EventMoneyLoaded,
		Category:  events.CategoryFieldChanged,
		Payload:   MoneyLoaded{Money: c.Money},
	}}, nil
}

func (m *Machine) decideUnloadMoney() ([]aggregate.Change, error) {
	if err := aggregate.EnsureActive(m.Lifecycle, Kind); err != nil {
		return nil, err
	}
	return []aggregate.Change{{
		EventType: EventMoneyUnloaded,
		Category:  events.CategoryFieldChanged,
		Payload:   MoneyUnloaded{Money: m.MoneyInside},
	}}, nil
}

func (m *Machine) decideInsertMoney(c InsertMoney) ([]aggregate.Change, error) {
	if err := aggregate.EnsureActive(m.Lifecycle, Kind); err != nil {
		return nil, err
	}
	value, ok := money.Value(c.Denomination)
	if !ok {
		return nil, aggregate.NewValidation(fmt.Sprintf("unknown denomination %q", c.Denomination))
	}
	return []aggregate.Change{{
		EventType: EventMoneyInserted,
		Category:  events.CategoryFieldChanged,
		Payload:   MoneyInserted{Denomination: c.Denomination, Amount: value},
	}}, nil
}

func (m *Machine) decideReturnMoney() ([]aggregate.Change, error) {
	if err := aggregate.EnsureActive(m.Lifecycle, Kind); err != nil {
		return nil, err
	}
	if m.AmountInTransaction.IsZero() {
		return nil, aggregate.NewValidation("no money in transaction to return")
	}
	returned, ok := m.MoneyInside.Allocate(m.AmountInTransaction)
	if !ok {
		return nil, aggregate.NewValidation(
			fmt.Sprintf("machine cannot make change for %s", m.AmountInTransaction))
	}
	return []aggregate.Change{{
		EventType: EventMoneyReturned,
		Category:  events.CategoryFieldChanged,
		Payload:   MoneyReturned{Money: returned, Amount: m.AmountInTransaction},
	}}, nil
}

func (m *Machine) decideLoadSnacks(c LoadSnacks) ([]aggregate.Change, error) {
	if err := aggregate.EnsureActive(m.Lifecycle, Kind); err != nil {
		return nil, err
	}
	if c.Position < 0 {
		return nil, aggregate.NewValidation(fmt.Sprintf("slot position %d is negative", c.Position))
	}
	if err := c.Pile.Validate(); err != nil {
		return nil, err
	}
	return []aggregate.Change{{
		EventType: EventSnacksLoaded,
		Category:  events.CategoryFieldChanged,
		Payload:   SnacksLoaded{Position: c.Position, Pile: c.Pile},
	}}, nil
}

func (m *Machine) decideBuySnack(c BuySnack) ([]aggregate.Change, error) {
	if err := aggregate.EnsureActive(m.Lifecycle, Kind); err != nil {
		return nil, err
	}
	pile, ok := m.Slots[c.Position]
	if !ok {
		return nil, aggregate.NewValidation(fmt.Sprintf("slot %d is empty", c.Position))
	}
	if pile.Quantity <= 0 {
		return nil, aggregate.NewValidation(fmt.Sprintf("slot %d is sold out", c.Position))
	}
	if m.AmountInTransaction.LessThan(pile.Price) {
		return nil, aggregate.NewValidation(fmt.Sprintf(
			"inserted amount %s does not cover price %s", m.AmountInTransaction, pile.Price))
	}
	return []aggregate.Change{{
		EventType: EventSnackBought,
		Category:  events.CategoryFieldChanged,
		Payload: SnackBought{
			Position:    c.Position,
			SnackID:     pile.SnackID,
			BoughtPrice: pile.Price,
			BoughtBy:    c.BoughtBy,
		},
	}}, nil
}

// Apply implements aggregate.Root.
func (m *Machine) Apply(evt *events.Envelope) error {
	switch evt.EventType {
	case EventInitialized:
		var p Initialized
		if err := evt.ParsePayload(&p); err != nil {
			return err
		}
		m.Lifecycle = aggregate.LifecycleActive
		m.MoneyInside = p.MoneyInside
		m.Slots = make(map[int]SnackPile, len(p.Slots))
		for pos, pile := range p.Slots {
			m.Slots[pos] = pile
		}

	case EventMoneyLoaded:
		var p MoneyLoaded
		if err := evt.ParsePayload(&p); err != nil {
			return err
		}
		m.MoneyInside = m.MoneyInside.Add(p.Money)

	case EventMoneyUnloaded:
		m.MoneyInside = money.None

	case EventMoneyInserted:
		var p MoneyInserted
		if err := evt.ParsePayload(&p); err != nil {
			return err
		}
		m.MoneyInside = m.MoneyInside.AddCoin(p.Denomination)
		m.AmountInTransaction = m.AmountInTransaction.Add(p.Amount)

	case EventMoneyReturned:
		var p MoneyReturned
		if err := evt.ParsePayload(&p); err != nil {
			return err
		}
		remaining, ok := m.MoneyInside.Subtract(p.Money)
		if !ok {
			return fmt.Errorf("money returned event removes denominations not inside machine")
		}
		m.MoneyInside = remaining
		m.AmountInTransaction = decimal.Zero

	case EventSnacksLoaded:
		var p SnacksLoaded
		if err := evt.ParsePayload(&p); err != nil {
			return err
		}
		m.Slots[p.Position] = p.Pile

	case EventSnackBought:
		var p SnackBought
		if err := evt.ParsePayload(&p); err != nil {
			return err
		}
		pile := m.Slots[p.Position]
		pile.Quantity--
		m.Slots[p.Position] = pile
		m.AmountInTransaction = m.AmountInTransaction.Sub(p.BoughtPrice)

	case EventRemoved:
		m.Lifecycle = aggregate.LifecycleRemoved

	default:
		return fmt.Errorf("unknown machine event type %q", evt.EventType)
	}
	return nil
}

// SnackCount returns the total quantity across all slots.
func (m *Machine) SnackCount() int {
	total := 0
	for _, pile := range m.Slots {
		total += pile.Quantity
	}
	return total
}
