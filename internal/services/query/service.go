// Package query is the read-side surface: filtered, sorted, paged access to
// projection rows. It never writes and is safe to call while sync passes run.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofrs/uuid/v5"

	"github.com/snackstand/catalog-services/internal/shared/projections"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// ErrBadQuery marks malformed filter or sort input. Empty result sets are
// never an error.
var ErrBadQuery = errors.New("bad query")

// Reader is the slice of the projection store the query service needs.
type Reader interface {
	Get(ctx context.Context, kind string, aggregateID uuid.UUID) (*projections.Record, error)
	List(ctx context.Context, kind string, filters []projections.Filter, sorts []projections.Sort) ([]projections.Record, error)
	PagedList(ctx context.Context, kind string, filters []projections.Filter, sorts []projections.Sort, skip, take int) ([]projections.Record, int, error)
}

// Service handles read-model queries.
type Service struct {
	store  Reader
	logger *slog.Logger
}

// NewService creates a new query service.
func NewService(store Reader, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With("service", "query"),
	}
}

// Get returns one projection row, or projections.ErrNotFound.
func (s *Service) Get(ctx context.Context, kind string, id uuid.UUID) (*projections.Record, error) {
	if _, ok := projections.Fields(kind); !ok {
		return nil, projections.ErrNotFound
	}
	return s.store.Get(ctx, kind, id)
}

// List returns every matching row. An empty result is not an error.
func (s *Service) List(ctx context.Context, kind string, filters []projections.Filter, sorts []projections.Sort) ([]projections.Record, error) {
	if err := projections.ValidateQuery(kind, filters, sorts); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadQuery, err)
	}
	return s.store.List(ctx, kind, filters, sorts)
}

// PagedList returns one page of matching rows plus the total match count.
// The limit is defaulted and capped; negative offsets are clamped to zero.
func (s *Service) PagedList(ctx context.Context, kind string, filters []projections.Filter, sorts []projections.Sort, offset, limit int) ([]projections.Record, int, error) {
	if err := projections.ValidateQuery(kind, filters, sorts); err != nil {
		return nil, 0, fmt.Errorf("%w: %s", ErrBadQuery, err)
	}

	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}

	return s.store.PagedList(ctx, kind, filters, sorts, offset, limit)
}
