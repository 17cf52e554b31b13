// Package sync maintains the projection rows the query service reads. It
// renders aggregate state into denormalized documents, writes them through a
// version-guarded upsert, and reruns on persistent schedules so projections
// converge even when a broadcast notification was lost.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofrs/uuid/v5"

	"github.com/snackstand/catalog-services/internal/shared/domain/clock"
	"github.com/snackstand/catalog-services/internal/shared/projections"
)

// ErrUnknownKind is returned when no source is registered for a kind.
var ErrUnknownKind = errors.New("no sync source for kind")

// Source exposes one aggregate kind to the synchronizer.
type Source interface {
	// Kind names the projection kind this source feeds.
	Kind() string

	// IDs enumerates every aggregate id known to the event log.
	IDs(ctx context.Context) ([]uuid.UUID, error)

	// Render loads the aggregate's current state and returns its projection
	// document plus the version it reflects. Version zero means the
	// aggregate has no events and nothing to project.
	Render(ctx context.Context, id uuid.UUID) (json.RawMessage, int64, error)
}

// Result summarizes one bulk pass.
type Result struct {
	Kind    string `json:"kind"`
	Total   int    `json:"total"`
	Synced  int    `json:"synced"`
	Skipped int    `json:"skipped"`
	Failed  int    `json:"failed"`
}

// Syncer copies aggregate state into the projection store.
type Syncer struct {
	sources map[string]Source
	store   projections.Store
	logger  *slog.Logger
}

func NewSyncer(store projections.Store, logger *slog.Logger, sources ...Source) *Syncer {
	byKind := make(map[string]Source, len(sources))
	for _, src := range sources {
		byKind[src.Kind()] = src
	}
	return &Syncer{
		sources: byKind,
		store:   store,
		logger:  logger.With("service", "sync"),
	}
}

// Kinds returns the kinds this syncer can synchronize.
func (s *Syncer) Kinds() []string {
	out := make([]string, 0, len(s.sources))
	for kind := range s.sources {
		out = append(out, kind)
	}
	return out
}

// SyncOne renders one aggregate and upserts its projection row. The store's
// version guard makes it idempotent: a row already at or past the rendered
// version is left untouched.
func (s *Syncer) SyncOne(ctx context.Context, kind string, id uuid.UUID) error {
	src, ok := s.sources[kind]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownKind, kind)
	}

	state, version, err := src.Render(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to render %s %s: %w", kind, id, err)
	}
	if version == 0 {
		return nil
	}

	return s.store.Upsert(ctx, projections.Record{
		Kind:         kind,
		AggregateID:  id,
		Version:      version,
		State:        state,
		LastSyncedAt: clock.Now(),
	})
}

// SyncDifferences brings forward every projection row that is missing or
// behind its aggregate. A failing id is logged and skipped; the rest of the
// pass continues.
func (s *Syncer) SyncDifferences(ctx context.Context, kind string) (Result, error) {
	src, ok := s.sources[kind]
	if !ok {
		return Result{}, fmt.Errorf("%w %q", ErrUnknownKind, kind)
	}

	projected, err := s.store.Versions(ctx, kind)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read projected versions for %q: %w", kind, err)
	}

	ids, err := src.IDs(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to enumerate %q ids: %w", kind, err)
	}

	res := Result{Kind: kind, Total: len(ids)}
	for _, id := range ids {
		state, version, err := src.Render(ctx, id)
		if err != nil {
			s.logger.Error("sync pass skipping aggregate",
				"kind", kind, "aggregate_id", id, "error", err)
			res.Failed++
			continue
		}
		if version == 0 || projected[id] >= version {
			res.Skipped++
			continue
		}

		err = s.store.Upsert(ctx, projections.Record{
			Kind:         kind,
			AggregateID:  id,
			Version:      version,
			State:        state,
			LastSyncedAt: clock.Now(),
		})
		if err != nil {
			s.logger.Error("sync pass skipping aggregate",
				"kind", kind, "aggregate_id", id, "error", err)
			res.Failed++
			continue
		}
		res.Synced++
	}

	s.logger.Info("sync differences pass finished",
		"kind", kind, "total", res.Total, "synced", res.Synced,
		"skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

// SyncAll runs SyncOne for every known id regardless of staleness. Meant for
// administrative recovery; the per-row version guard still applies.
func (s *Syncer) SyncAll(ctx context.Context, kind string) (Result, error) {
	src, ok := s.sources[kind]
	if !ok {
		return Result{}, fmt.Errorf("%w %q", ErrUnknownKind, kind)
	}

	ids, err := src.IDs(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to enumerate %q ids: %w", kind, err)
	}

	res := Result{Kind: kind, Total: len(ids)}
	for _, id := range ids {
		if err := s.SyncOne(ctx, kind, id); err != nil {
			s.logger.Error("sync pass skipping aggregate",
				"kind", kind, "aggregate_id", id, "error", err)
			res.Failed++
			continue
		}
		res.Synced++
	}

	s.logger.Info("sync all pass finished",
		"kind", kind, "total", res.Total, "synced", res.Synced, "failed", res.Failed)
	return res, nil
}
