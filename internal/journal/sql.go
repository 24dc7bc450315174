package journal

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const defaultRecentLimit = 10

// SQL stores entries in the render_journal table of a PostgreSQL or SQLite database.
type SQL struct {
	db *sqlx.DB
}

// NewSQL wraps a migrated database.
func NewSQL(db *sqlx.DB) *SQL {
	return &SQL{db: db}
}

// Record inserts e.
func (s *SQL) Record(ctx context.Context, e Entry) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO render_journal (id, user_id, flow_id, outcome, message, artifacts, duration_ms, created_at_ms)
		VALUES (:id, :user_id, :flow_id, :outcome, :message, :artifacts, :duration_ms, :created_at_ms)`,
		e,
	)
	if err != nil {
		return fmt.Errorf("journal: insert: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *SQL) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	var out []Entry
	query := s.db.Rebind(`
		SELECT id, user_id, flow_id, outcome, message, artifacts, duration_ms, created_at_ms
		FROM render_journal
		ORDER BY created_at_ms DESC, id DESC
		LIMIT ?`)
	if err := s.db.SelectContext(ctx, &out, query, limit); err != nil {
		return nil, fmt.Errorf("journal: select recent: %w", err)
	}
	return out, nil
}
