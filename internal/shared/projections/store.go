// Package projections owns the read-model store: denormalized rows derived
// from aggregate state, kept eventually consistent by the sync service and
// served by the query service.
package projections

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
)

// ErrNotFound is returned by Get when no row exists.
var ErrNotFound = errors.New("projection not found")

// Record is a materialized row for one aggregate. Its Version never exceeds
// the aggregate's version; the two are equal only right after a sync.
type Record struct {
	Kind         string          `json:"kind"`
	AggregateID  uuid.UUID       `json:"aggregate_id"`
	Version      int64           `json:"version"`
	State        json.RawMessage `json:"state"`
	LastSyncedAt time.Time       `json:"last_synced_at"`
}

// Op is a filter operator.
type Op string

const (
	OpEq       Op = "eq"
	OpContains Op = "contains"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
)

// Filter is one predicate over a state field. Value is the untyped string
// form (as it arrives in a query parameter) and is parsed per the field's
// declared type.
type Filter struct {
	Field string
	Op    Op
	Value string
}

// Sort is one ordering key. Ties between equal records are broken by
// insertion order.
type Sort struct {
	Field      string
	Descending bool
}

// FieldType declares how a state field is compared.
type FieldType string

const (
	FieldText    FieldType = "text"
	FieldNumeric FieldType = "numeric"
	FieldTime    FieldType = "time"
)

// kindFields whitelists the filterable and sortable state fields per kind.
// Store implementations must never interpolate field names that are not
// listed here.
var kindFields = map[string]map[string]FieldType{
	"snack": {
		"name":        FieldText,
		"picture_url": FieldText,
		"lifecycle":   FieldText,
	},
	"machine": {
		"lifecycle":             FieldText,
		"amount_in_transaction": FieldNumeric,
	},
	"purchase": {
		"lifecycle":    FieldText,
		"machine_id":   FieldText,
		"snack_id":     FieldText,
		"bought_by":    FieldText,
		"bought_price": FieldNumeric,
		"bought_at":    FieldTime,
	},
	"snack_stats": {
		"bought_count":  FieldNumeric,
		"bought_amount": FieldNumeric,
	},
	"machine_stats": {
		"bought_count":  FieldNumeric,
		"bought_amount": FieldNumeric,
	},
}

// Fields returns the filterable field set for a kind.
func Fields(kind string) (map[string]FieldType, bool) {
	fields, ok := kindFields[kind]
	return fields, ok
}

// Kinds returns all projected kinds.
func Kinds() []string {
	out := make([]string, 0, len(kindFields))
	for kind := range kindFields {
		out = append(out, kind)
	}
	return out
}

// ValidateQuery rejects unknown kinds, unknown fields, and operators that do
// not apply to a field's type. Empty filters and sorts are valid.
func ValidateQuery(kind string, filters []Filter, sorts []Sort) error {
	fields, ok := Fields(kind)
	if !ok {
		return fmt.Errorf("unknown projection kind %q", kind)
	}

	for _, f := range filters {
		ft, ok := fields[f.Field]
		if !ok {
			return fmt.Errorf("unknown field %q for kind %q", f.Field, kind)
		}
		if !opAllowed(ft, f.Op) {
			return fmt.Errorf("operator %q not allowed on %s field %q", f.Op, ft, f.Field)
		}
		if _, err := parseTyped(ft, f.Value); err != nil {
			return fmt.Errorf("bad value for field %q: %w", f.Field, err)
		}
	}

	for _, s := range sorts {
		if _, ok := fields[s.Field]; !ok {
			return fmt.Errorf("unknown sort field %q for kind %q", s.Field, kind)
		}
	}
	return nil
}

func opAllowed(ft FieldType, op Op) bool {
	switch ft {
	case FieldText:
		return op == OpEq || op == OpContains
	case FieldNumeric, FieldTime:
		switch op {
		case OpEq, OpGt, OpGte, OpLt, OpLte:
			return true
		}
	}
	return false
}

// Store provides read and write operations for projections. The sync
// service writes, the query service reads.
type Store interface {
	// Upsert inserts or updates a row, but only if rec.Version is newer than
	// the stored version. Older or equal versions are a no-op.
	Upsert(ctx context.Context, rec Record) error

	// Get retrieves a single row, or ErrNotFound.
	Get(ctx context.Context, kind string, aggregateID uuid.UUID) (*Record, error)

	// Versions returns the projected version of every row of a kind.
	Versions(ctx context.Context, kind string) (map[uuid.UUID]int64, error)

	// List returns all matching rows in the requested order.
	List(ctx context.Context, kind string, filters []Filter, sorts []Sort) ([]Record, error)

	// PagedList returns one page of matching rows plus the total match count.
	PagedList(ctx context.Context, kind string, filters []Filter, sorts []Sort, skip, take int) ([]Record, int, error)
}
