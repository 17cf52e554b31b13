package query

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/snackstand/catalog-services/internal/shared/projections"
)

// mockReader implements Reader for testing.
type mockReader struct {
	GetFn       func(ctx context.Context, kind string, aggregateID uuid.UUID) (*projections.Record, error)
	ListFn      func(ctx context.Context, kind string, filters []projections.Filter, sorts []projections.Sort) ([]projections.Record, error)
	PagedListFn func(ctx context.Context, kind string, filters []projections.Filter, sorts []projections.Sort, skip, take int) ([]projections.Record, int, error)
}

func (m *mockReader) Get(ctx context.Context, kind string, aggregateID uuid.UUID) (*projections.Record, error) {
	return m.GetFn(ctx, kind, aggregateID)
}

func (m *mockReader) List(ctx context.Context, kind string, filters []projections.Filter, sorts []projections.Sort) ([]projections.Record, error) {
	return m.ListFn(ctx, kind, filters, sorts)
}

func (m *mockReader) PagedList(ctx context.Context, kind string, filters []projections.Filter, sorts []projections.Sort, skip, take int) ([]projections.Record, int, error) {
	return m.PagedListFn(ctx, kind, filters, sorts, skip, take)
}
