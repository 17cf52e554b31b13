// Package money models the physical cash inside a snack machine as counts
// of denominations, with exact decimal arithmetic.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Denomination is a single accepted coin or note value.
type Denomination string

const (
	One    Denomination = "one"
	Two    Denomination = "two"
	Five   Denomination = "five"
	Ten    Denomination = "ten"
	Twenty Denomination = "twenty"
	Fifty  Denomination = "fifty"
)

// denominations in descending value order, used by Allocate.
var denominations = []struct {
	name  Denomination
	value decimal.Decimal
}{
	{Fifty, decimal.NewFromInt(50)},
	{Twenty, decimal.NewFromInt(20)},
	{Ten, decimal.NewFromInt(10)},
	{Five, decimal.NewFromInt(5)},
	{Two, decimal.NewFromInt(2)},
	{One, decimal.NewFromInt(1)},
}

// Value returns the face value of a denomination, or false if unknown.
func Value(d Denomination) (decimal.Decimal, bool) {
	for _, dn := range denominations {
		if dn.name == d {
			return dn.value, true
		}
	}
	return decimal.Zero, false
}

// Money is a count of each denomination. The zero value is empty money.
type Money struct {
	Ones     int `json:"ones"`
	Twos     int `json:"twos"`
	Fives    int `json:"fives"`
	Tens     int `json:"tens"`
	Twenties int `json:"twenties"`
	Fifties  int `json:"fifties"`
}

// None is empty money.
var None = Money{}

func (m Money) count(d Denomination) int {
	switch d {
	case One:
		return m.Ones
	case Two:
		return m.Twos
	case Five:
		return m.Fives
	case Ten:
		return m.Tens
	case Twenty:
		return m.Twenties
	case Fifty:
		return m.Fifties
	}
	return 0
}

func (m Money) withCount(d Denomination, n int) Money {
	switch d {
	case One:
		m.Ones = n
	case Two:
		m.Twos = n
	case Five:
		m.Fives = n
	case Ten:
		m.Tens = n
	case Twenty:
		m.Twenties = n
	case Fifty:
		m.Fifties = n
	}
	return m
}

// Validate rejects negative denomination counts.
func (m Money) Validate() error {
	for _, dn := range denominations {
		if m.count(dn.name) < 0 {
			return fmt.Errorf("negative count for denomination %s", dn.name)
		}
	}
	return nil
}

// Amount returns the total face value.
func (m Money) Amount() decimal.Decimal {
	total := decimal.Zero
	for _, dn := range denominations {
		total = total.Add(dn.value.Mul(decimal.NewFromInt(int64(m.count(dn.name)))))
	}
	return total
}

// Add returns the denomination-wise sum of m and other.
func (m Money) Add(other Money) Money {
	for _, dn := range denominations {
		m = m.withCount(dn.name, m.count(dn.name)+other.count(dn.name))
	}
	return m
}

// AddCoin returns m with one extra unit of the given denomination.
func (m Money) AddCoin(d Denomination) Money {
	return m.withCount(d, m.count(d)+1)
}

// Subtract returns m minus other, or false if any denomination would go
// negative.
func (m Money) Subtract(other Money) (Money, bool) {
	for _, dn := range denominations {
		n := m.count(dn.name) - other.count(dn.name)
		if n < 0 {
			return Money{}, false
		}
		m = m.withCount(dn.name, n)
	}
	return m, true
}

// Allocate greedily picks denominations from m summing to exactly amount,
// largest first. Returns false when the amount cannot be represented with
// the denominations available.
func (m Money) Allocate(amount decimal.Decimal) (Money, bool) {
	if amount.IsNegative() {
		return Money{}, false
	}

	allocated := Money{}
	remaining := amount
	for _, dn := range denominations {
		want := remaining.Div(dn.value).IntPart()
		have := int64(m.count(dn.name))
		take := want
		if take > have {
			take = have
		}
		allocated = allocated.withCount(dn.name, int(take))
		remaining = remaining.Sub(dn.value.Mul(decimal.NewFromInt(take)))
	}

	if !remaining.IsZero() {
		return Money{}, false
	}
	return allocated, true
}
