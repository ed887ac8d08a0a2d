package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"edutalks/internal/calls"
	"edutalks/pkg/utils"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS call_journal (
		id               uuid PRIMARY KEY,
		kind             text NOT NULL,
		generation       bigint NOT NULL,
		call_id          text NOT NULL DEFAULT '',
		callee_id        text NOT NULL DEFAULT '',
		status           text NOT NULL,
		duration_seconds integer NOT NULL DEFAULT 0,
		stars            integer NOT NULL DEFAULT 0,
		reason           text NOT NULL DEFAULT '',
		error            text NOT NULL DEFAULT '',
		created_at       timestamptz NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS call_journal_created_at_idx ON call_journal (created_at)`,
	`CREATE INDEX IF NOT EXISTS call_journal_call_id_idx ON call_journal (call_id) WHERE call_id <> ''`,
}

// PostgresRepo stores the journal in an insert-only table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

// Migrate creates the table and indexes if missing.
func (r *PostgresRepo) Migrate(ctx context.Context) error {
	if err := utils.ApplySchema(ctx, r.db, schema...); err != nil {
		return fmt.Errorf("journal: migrate: %w", err)
	}
	return nil
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO call_journal
			(id, kind, generation, call_id, callee_id, status, duration_seconds, stars, reason, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, string(e.Kind), int64(e.Generation), e.CallID, e.CalleeID, string(e.Status),
		e.DurationSeconds, e.Stars, e.Reason, e.Error, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("journal: insert: %w", err)
	}
	return nil
}

func (r *PostgresRepo) List(ctx context.Context, q Query) ([]Event, error) {
	query, args := buildListQuery(q)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	defer rows.Close()

	out := make([]Event, 0)
	for rows.Next() {
		var (
			e          Event
			kind       string
			status     string
			generation int64
		)
		if err := rows.Scan(&e.ID, &kind, &generation, &e.CallID, &e.CalleeID, &status,
			&e.DurationSeconds, &e.Stars, &e.Reason, &e.Error, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		e.Kind = calls.EventKind(kind)
		e.Status = calls.Status(status)
		e.Generation = uint64(generation)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: rows: %w", err)
	}
	return out, nil
}

func buildListQuery(q Query) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if !q.From.IsZero() {
		where = append(where, "created_at >= "+arg(q.From))
	}
	if !q.To.IsZero() {
		where = append(where, "created_at < "+arg(q.To))
	}
	if q.CallID != "" {
		where = append(where, "call_id = "+arg(q.CallID))
	}
	if len(q.Kinds) > 0 {
		ph := make([]string, len(q.Kinds))
		for i, k := range q.Kinds {
			ph[i] = arg(string(k))
		}
		where = append(where, "kind IN ("+strings.Join(ph, ", ")+")")
	}

	var b strings.Builder
	b.WriteString(`SELECT id, kind, generation, call_id, callee_id, status, duration_seconds, stars, reason, error, created_at FROM call_journal`)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at, id")
	if q.Limit > 0 {
		b.WriteString(" LIMIT " + arg(q.Limit))
	}
	return b.String(), args
}
