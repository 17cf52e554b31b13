package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/snackstand/catalog-services/internal/shared/domain/aggregate"
)

// EngineSource adapts one aggregate engine into a sync Source. The render
// closure shapes the aggregate's state into the projection document; only
// fields the document carries are visible to the query service.
type EngineSource[R aggregate.Root[R]] struct {
	engine *aggregate.Engine[R]
	render func(id uuid.UUID, root R, version int64) any
}

func NewEngineSource[R aggregate.Root[R]](engine *aggregate.Engine[R], render func(id uuid.UUID, root R, version int64) any) *EngineSource[R] {
	return &EngineSource[R]{engine: engine, render: render}
}

func (s *EngineSource[R]) Kind() string {
	return s.engine.Kind()
}

func (s *EngineSource[R]) IDs(ctx context.Context) ([]uuid.UUID, error) {
	return s.engine.IDs(ctx)
}

func (s *EngineSource[R]) Render(ctx context.Context, id uuid.UUID) (json.RawMessage, int64, error) {
	root, version, err := s.engine.CurrentState(ctx, id)
	if err != nil {
		var aggErr *aggregate.Error
		if errors.As(err, &aggErr) && aggErr.Code == aggregate.CodeNotFound {
			return nil, 0, nil
		}
		return nil, 0, err
	}

	doc, err := json.Marshal(s.render(id, root, version))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to render %s %s: %w", s.Kind(), id, err)
	}
	return doc, version, nil
}
