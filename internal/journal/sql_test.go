package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/receiptbot/core/config"
	coredatabase "github.com/m3rciful/receiptbot/core/database"
)

func openSQLite(t *testing.T) *sqlx.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	db, err := coredatabase.OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	schema, err := Migrations(coreconfig.JournalSQLite)
	require.NoError(t, err)
	require.NoError(t, coredatabase.RunMigrations(coredatabase.SQLiteTarget(path), schema))
	// Applying twice is a no-op.
	require.NoError(t, coredatabase.RunMigrations(coredatabase.SQLiteTarget(path), schema))
	return db
}

func exerciseRecorder(t *testing.T, rec Recorder) {
	t.Helper()
	ctx := context.Background()
	base := time.Now().Add(-time.Minute).UnixMilli()

	entries := []Entry{
		{ID: uuid.NewString(), UserID: 1, FlowID: "sber-receipt", Outcome: OutcomeOK, Artifacts: 2, DurationMS: 900, CreatedAtMS: base},
		{ID: uuid.NewString(), UserID: 2, FlowID: "sber-bill", Outcome: "timeout", Message: "exceeded 1m0s", DurationMS: 60000, CreatedAtMS: base + 10},
		{ID: uuid.NewString(), UserID: 1, FlowID: "tinkoff-receipt", Outcome: "renderer_error", Message: "font not found", DurationMS: 120, CreatedAtMS: base + 20},
	}
	for _, e := range entries {
		require.NoError(t, rec.Record(ctx, e))
	}

	got, err := rec.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, entries[2], got[0])
	require.Equal(t, entries[1], got[1])
	require.Equal(t, time.Minute, got[1].Duration())
	require.Equal(t, entries[1].CreatedAtMS, got[1].CreatedAt().UnixMilli())

	all, err := rec.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestSQLiteRecorder(t *testing.T) {
	exerciseRecorder(t, NewSQL(openSQLite(t)))
}

func TestSQLiteRecorderRejectsDuplicateID(t *testing.T) {
	rec := NewSQL(openSQLite(t))
	e := Entry{ID: uuid.NewString(), UserID: 1, FlowID: "x", Outcome: OutcomeOK, CreatedAtMS: 1}
	require.NoError(t, rec.Record(context.Background(), e))
	require.Error(t, rec.Record(context.Background(), e))
}

func TestPostgresRecorder(t *testing.T) {
	dsn := os.Getenv("JOURNAL_PG_DSN")
	if dsn == "" {
		t.Skip("JOURNAL_PG_DSN not set")
	}
	db, err := sqlx.Connect(coredatabase.DriverPostgres, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	schema, err := Migrations(coreconfig.JournalPostgres)
	require.NoError(t, err)
	target := coredatabase.Target{Driver: coredatabase.DriverPostgres, URL: dsn, Name: "test"}
	require.NoError(t, coredatabase.RunMigrations(target, schema))
	_, err = db.Exec(`TRUNCATE render_journal`)
	require.NoError(t, err)

	exerciseRecorder(t, NewSQL(db))
}

func TestMigrationsUnknownDriver(t *testing.T) {
	_, err := Migrations("mysql")
	require.Error(t, err)
}

func TestNop(t *testing.T) {
	var rec Recorder = Nop{}
	require.NoError(t, rec.Record(context.Background(), Entry{}))
	got, err := rec.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Empty(t, got)
}
