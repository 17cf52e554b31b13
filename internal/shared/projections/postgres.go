package projections

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on the projections table. Kind-specific
// fields live in a JSONB state column; filter and sort expressions are built
// only from the whitelisted field registry, never from caller input.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Ensure PostgresStore implements Store
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a PostgreSQL-backed projection store.
func NewPostgresStore(pool *pgxpool.Pool, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{
		pool:   pool,
		logger: logger.With("repository", "projections"),
	}
}

// Upsert implements Store. Only a newer version overwrites the stored row.
func (s *PostgresStore) Upsert(ctx context.Context, rec Record) error {
	query := `
		INSERT INTO projections (kind, aggregate_id, version, state, last_synced_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (kind, aggregate_id) DO UPDATE
		SET version = EXCLUDED.version,
		    state = EXCLUDED.state,
		    last_synced_at = EXCLUDED.last_synced_at
		WHERE projections.version < EXCLUDED.version
	`

	result, err := s.pool.Exec(ctx, query,
		rec.Kind,
		rec.AggregateID,
		rec.Version,
		rec.State,
		rec.LastSyncedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert projection: %w", err)
	}

	if result.RowsAffected() == 0 {
		s.logger.Debug("projection not updated (version not newer)",
			"kind", rec.Kind,
			"aggregate_id", rec.AggregateID,
			"version", rec.Version,
		)
	}
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, kind string, aggregateID uuid.UUID) (*Record, error) {
	query := `
		SELECT kind, aggregate_id, version, state, last_synced_at
		FROM projections
		WHERE kind = $1 AND aggregate_id = $2
	`

	var rec Record
	err := s.pool.QueryRow(ctx, query, kind, aggregateID).Scan(
		&rec.Kind,
		&rec.AggregateID,
		&rec.Version,
		&rec.State,
		&rec.LastSyncedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get projection: %w", err)
	}
	return &rec, nil
}

// Versions implements Store.
func (s *PostgresStore) Versions(ctx context.Context, kind string) (map[uuid.UUID]int64, error) {
	query := `SELECT aggregate_id, version FROM projections WHERE kind = $1`

	rows, err := s.pool.Query(ctx, query, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to query projection versions: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]int64)
	for rows.Next() {
		var id uuid.UUID
		var version int64
		if err := rows.Scan(&id, &version); err != nil {
			return nil, fmt.Errorf("failed to scan projection version: %w", err)
		}
		out[id] = version
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projection versions: %w", err)
	}
	return out, nil
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context, kind string, filters []Filter, sorts []Sort) ([]Record, error) {
	rows, _, err := s.query(ctx, kind, filters, sorts, 0, -1, false)
	return rows, err
}

// PagedList implements Store.
func (s *PostgresStore) PagedList(ctx context.Context, kind string, filters []Filter, sorts []Sort, skip, take int) ([]Record, int, error) {
	return s.query(ctx, kind, filters, sorts, skip, take, true)
}

func (s *PostgresStore) query(ctx context.Context, kind string, filters []Filter, sorts []Sort, skip, take int, counted bool) ([]Record, int, error) {
	if err := ValidateQuery(kind, filters, sorts); err != nil {
		return nil, 0, err
	}
	fields, _ := Fields(kind)

	where := []string{"kind = $1"}
	args := []any{kind}
	for _, f := range filters {
		expr, arg := filterSQL(fields[f.Field], f, len(args)+1)
		where = append(where, expr)
		args = append(args, arg)
	}
	whereClause := strings.Join(where, " AND ")

	total := 0
	if counted {
		countSQL := "SELECT COUNT(*) FROM projections WHERE " + whereClause
		if err := s.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("failed to count projections: %w", err)
		}
	}

	// seq is the insertion-order column; it breaks sort ties.
	orderExprs := make([]string, 0, len(sorts)+1)
	for _, so := range sorts {
		direction := "ASC"
		if so.Descending {
			direction = "DESC"
		}
		orderExprs = append(orderExprs, fieldSQL(fields[so.Field], so.Field)+" "+direction)
	}
	orderExprs = append(orderExprs, "seq ASC")

	listSQL := fmt.Sprintf(`
		SELECT kind, aggregate_id, version, state, last_synced_at
		FROM projections
		WHERE %s
		ORDER BY %s
	`, whereClause, strings.Join(orderExprs, ", "))

	if take >= 0 {
		listSQL += fmt.Sprintf(" LIMIT %d", take)
	}
	if skip > 0 {
		listSQL += fmt.Sprintf(" OFFSET %d", skip)
	}

	rows, err := s.pool.Query(ctx, listSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list projections: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Kind, &rec.AggregateID, &rec.Version, &rec.State, &rec.LastSyncedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan projection: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating projections: %w", err)
	}

	if !counted {
		total = len(records)
	}
	return records, total, nil
}

// fieldSQL returns the typed JSONB extraction expression for a whitelisted
// field.
func fieldSQL(ft FieldType, field string) string {
	expr := fmt.Sprintf("state->>'%s'", field)
	switch ft {
	case FieldNumeric:
		return "(" + expr + ")::numeric"
	case FieldTime:
		return "(" + expr + ")::timestamptz"
	}
	return expr
}

// filterSQL returns one predicate expression and its argument.
func filterSQL(ft FieldType, f Filter, argPos int) (string, any) {
	expr := fieldSQL(ft, f.Field)

	if f.Op == OpContains {
		return fmt.Sprintf("%s ILIKE '%%' || $%d || '%%'", expr, argPos), f.Value
	}

	op := map[Op]string{OpEq: "=", OpGt: ">", OpGte: ">=", OpLt: "<", OpLte: "<="}[f.Op]
	switch ft {
	case FieldNumeric:
		return fmt.Sprintf("%s %s $%d::numeric", expr, op, argPos), f.Value
	case FieldTime:
		return fmt.Sprintf("%s %s $%d::timestamptz", expr, op, argPos), f.Value
	}
	return fmt.Sprintf("%s %s $%d", expr, op, argPos), f.Value
}
