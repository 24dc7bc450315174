// Package journal records every render attempt for diagnostics. It never holds
// conversation state.
package journal

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"time"

	coreconfig "github.com/m3rciful/receiptbot/core/config"
)

//go:embed migrations
var migrations embed.FS

// Outcome of a successful render; failures use the renderer error kind.
const OutcomeOK = "ok"

// Entry is one recorded render attempt.
type Entry struct {
	ID          string `db:"id"`
	UserID      int64  `db:"user_id"`
	FlowID      string `db:"flow_id"`
	Outcome     string `db:"outcome"`
	Message     string `db:"message"`
	Artifacts   int    `db:"artifacts"`
	DurationMS  int64  `db:"duration_ms"`
	CreatedAtMS int64  `db:"created_at_ms"`
}

// CreatedAt returns the creation time.
func (e Entry) CreatedAt() time.Time {
	return time.UnixMilli(e.CreatedAtMS)
}

// Duration returns how long the render took.
func (e Entry) Duration() time.Duration {
	return time.Duration(e.DurationMS) * time.Millisecond
}

// Recorder stores and lists journal entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// Nop discards entries.
type Nop struct{}

// Record does nothing.
func (Nop) Record(context.Context, Entry) error { return nil }

// Recent returns no entries.
func (Nop) Recent(context.Context, int) ([]Entry, error) { return nil, nil }

// Migrations returns the schema for the given journal driver.
func Migrations(driver string) (fs.FS, error) {
	switch driver {
	case coreconfig.JournalPostgres, coreconfig.JournalSQLite:
		return fs.Sub(migrations, "migrations/"+driver)
	default:
		return nil, fmt.Errorf("journal: no migrations for driver %q", driver)
	}
}
