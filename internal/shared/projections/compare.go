package projections

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// typedValue is a parsed filter value or state-document value, comparable
// within one FieldType.
type typedValue struct {
	text    string
	numeric decimal.Decimal
	when    time.Time
}

// parseTyped parses the string form of a value per the field type.
func parseTyped(ft FieldType, value string) (typedValue, error) {
	switch ft {
	case FieldText:
		return typedValue{text: value}, nil
	case FieldNumeric:
		d, err := decimal.NewFromString(value)
		if err != nil {
			return typedValue{}, fmt.Errorf("not a number: %q", value)
		}
		return typedValue{numeric: d}, nil
	case FieldTime:
		ts, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return typedValue{}, fmt.Errorf("not an RFC3339 timestamp: %q", value)
		}
		return typedValue{when: ts}, nil
	}
	return typedValue{}, fmt.Errorf("unknown field type %q", ft)
}

// docValue extracts a field from a decoded state document and coerces it to
// the declared type. JSON numbers, numeric strings (decimals marshal as
// strings), and RFC3339 strings are all accepted.
func docValue(ft FieldType, raw any) (typedValue, bool) {
	switch ft {
	case FieldText:
		s, ok := raw.(string)
		return typedValue{text: s}, ok
	case FieldNumeric:
		switch v := raw.(type) {
		case float64:
			return typedValue{numeric: decimal.NewFromFloat(v)}, true
		case string:
			d, err := decimal.NewFromString(v)
			return typedValue{numeric: d}, err == nil
		case json.Number:
			d, err := decimal.NewFromString(v.String())
			return typedValue{numeric: d}, err == nil
		}
		return typedValue{}, false
	case FieldTime:
		s, ok := raw.(string)
		if !ok {
			return typedValue{}, false
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		return typedValue{when: ts}, err == nil
	}
	return typedValue{}, false
}

// compare returns -1, 0, or 1 ordering a before b within one field type.
func (a typedValue) compare(ft FieldType, b typedValue) int {
	switch ft {
	case FieldText:
		return strings.Compare(a.text, b.text)
	case FieldNumeric:
		return a.numeric.Cmp(b.numeric)
	case FieldTime:
		switch {
		case a.when.Before(b.when):
			return -1
		case a.when.After(b.when):
			return 1
		}
	}
	return 0
}

// matches evaluates one operator against a document value.
func (a typedValue) matches(ft FieldType, op Op, filter typedValue) bool {
	if op == OpContains {
		return strings.Contains(strings.ToLower(a.text), strings.ToLower(filter.text))
	}
	cmp := a.compare(ft, filter)
	switch op {
	case OpEq:
		return cmp == 0
	case OpGt:
		return cmp > 0
	case OpGte:
		return cmp >= 0
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	}
	return false
}
