package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CheckpointStore persists the last firing time of each recurring sync job so
// a restarted process can tell how far behind its schedule it is.
type CheckpointStore struct {
	pool *pgxpool.Pool
}

func NewCheckpointStore(pool *pgxpool.Pool) *CheckpointStore {
	return &CheckpointStore{pool: pool}
}

// Load returns the last recorded firing time for the named job, or the zero
// time when the job has never fired.
func (s *CheckpointStore) Load(ctx context.Context, name string) (time.Time, error) {
	var firedAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT last_fired_at FROM sync_checkpoints WHERE name = $1`, name,
	).Scan(&firedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to load sync checkpoint %q: %w", name, err)
	}
	return firedAt, nil
}

// Save records the firing time for the named job.
func (s *CheckpointStore) Save(ctx context.Context, name string, firedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_checkpoints (name, last_fired_at, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET
			last_fired_at = EXCLUDED.last_fired_at,
			updated_at = now()`,
		name, firedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save sync checkpoint %q: %w", name, err)
	}
	return nil
}
