package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/snackstand/catalog-services/internal/shared/domain/aggregate"
	"github.com/snackstand/catalog-services/internal/shared/domain/events"
)

// Postgres implements aggregate.EventLog on the event_log table. Version
// conflicts are detected by the unique (aggregate_kind, aggregate_id,
// version) constraint, so two writers racing on the same expected version
// cannot both commit.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Ensure Postgres implements aggregate.EventLog
var _ aggregate.EventLog = (*Postgres)(nil)

// NewPostgres creates a PostgreSQL-backed event log.
func NewPostgres(pool *pgxpool.Pool, logger *slog.Logger) *Postgres {
	return &Postgres{
		pool:   pool,
		logger: logger.With("repository", "event_log"),
	}
}

// Append implements aggregate.EventLog.
func (p *Postgres) Append(ctx context.Context, kind string, id uuid.UUID, expectedVersion int64, evts []*events.Envelope) (int64, error) {
	if len(evts) == 0 {
		return expectedVersion, fmt.Errorf("append requires at least one event")
	}

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to begin append transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO event_log (event_id, aggregate_kind, aggregate_id, version, event_type, category, occurred_at, payload, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	for i, evt := range evts {
		metadata, err := json.Marshal(evt.Metadata)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal event metadata: %w", err)
		}

		version := expectedVersion + int64(i) + 1
		_, err = tx.Exec(ctx, query,
			evt.EventID,
			kind,
			id,
			version,
			evt.EventType,
			evt.Category,
			evt.Timestamp,
			evt.Payload,
			metadata,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return 0, fmt.Errorf("stream %s/%s moved past version %d: %w",
					kind, id, expectedVersion, aggregate.ErrVersionConflict)
			}
			return 0, fmt.Errorf("failed to insert into event_log: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit append transaction: %w", err)
	}

	newVersion := expectedVersion + int64(len(evts))
	p.logger.Debug("events appended",
		"aggregate_kind", kind,
		"aggregate_id", id,
		"count", len(evts),
		"version", newVersion,
	)
	return newVersion, nil
}

// ReadAll implements aggregate.EventLog.
func (p *Postgres) ReadAll(ctx context.Context, kind string, id uuid.UUID) ([]*events.Envelope, error) {
	query := `
		SELECT event_id, version, event_type, category, occurred_at, payload, metadata
		FROM event_log
		WHERE aggregate_kind = $1 AND aggregate_id = $2
		ORDER BY version ASC
	`

	rows, err := p.pool.Query(ctx, query, kind, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query event_log: %w", err)
	}
	defer rows.Close()

	var history []*events.Envelope
	for rows.Next() {
		evt := &events.Envelope{AggregateKind: kind, AggregateID: id}
		var metadata []byte

		if err := rows.Scan(&evt.EventID, &evt.Version, &evt.EventType, &evt.Category, &evt.Timestamp, &evt.Payload, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan event_log row: %w", err)
		}
		if err := json.Unmarshal(metadata, &evt.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event metadata: %w", err)
		}
		history = append(history, evt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event_log rows: %w", err)
	}
	return history, nil
}

// IDs implements aggregate.EventLog. Ids are returned in first-append order.
func (p *Postgres) IDs(ctx context.Context, kind string) ([]uuid.UUID, error) {
	query := `
		SELECT aggregate_id
		FROM event_log
		WHERE aggregate_kind = $1
		GROUP BY aggregate_id
		ORDER BY MIN(seq) ASC
	`

	rows, err := p.pool.Query(ctx, query, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to query aggregate ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating aggregate ids: %w", err)
	}
	return ids, nil
}

// isUniqueViolation checks if the error is a unique constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 23505 is unique_violation
		return pgErr.Code == "23505"
	}
	return false
}
