package bootstrap

import (
	"errors"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/receiptbot/core/config"
	coredatabase "github.com/m3rciful/receiptbot/core/database"
)

func noLogger(*coreconfig.Config) error { return nil }

func TestRunWithoutJournalSkipsDatabase(t *testing.T) {
	cfg := &coreconfig.Config{Journal: coreconfig.JournalConfig{Driver: coreconfig.JournalNone}}
	res, err := Run(Options{
		Config:     cfg,
		LoggerInit: noLogger,
		Connect: func(coreconfig.JournalConfig) (*sqlx.DB, coredatabase.Target, error) {
			t.Fatal("connect must not be called")
			return nil, coredatabase.Target{}, nil
		},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.DB != nil || res.Driver != coreconfig.JournalNone {
		t.Fatalf("unexpected result: %+v", res)
	}
	if err := res.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestRunPropagatesLoggerError(t *testing.T) {
	_, err := Run(Options{
		Config:     &coreconfig.Config{},
		LoggerInit: func(*coreconfig.Config) error { return errors.New("boom") },
	})
	if err == nil {
		t.Fatal("expected logger error")
	}
}

func TestRunRequiresMigrationsForJournal(t *testing.T) {
	cfg := &coreconfig.Config{Journal: coreconfig.JournalConfig{Driver: coreconfig.JournalSQLite}}
	if _, err := Run(Options{Config: cfg, LoggerInit: noLogger}); err == nil {
		t.Fatal("expected error without migrations")
	}
}

func TestRunMigratesSelectedDriver(t *testing.T) {
	cfg := &coreconfig.Config{Journal: coreconfig.JournalConfig{Driver: coreconfig.JournalSQLite, SQLitePath: "x.db"}}
	schema := fstest.MapFS{"0001_init.up.sql": {Data: []byte("select 1;")}}

	var migrated coredatabase.Target
	res, err := Run(Options{
		Config:     cfg,
		LoggerInit: noLogger,
		Migrations: func(driver string) (fs.FS, error) {
			if driver != coreconfig.JournalSQLite {
				t.Fatalf("driver = %q", driver)
			}
			return schema, nil
		},
		Connect: func(jc coreconfig.JournalConfig) (*sqlx.DB, coredatabase.Target, error) {
			db, err := sqlx.Open(coredatabase.DriverSQLite, ":memory:")
			return db, coredatabase.SQLiteTarget(jc.SQLitePath), err
		},
		Migrate: func(target coredatabase.Target, _ fs.FS) error {
			migrated = target
			return nil
		},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	defer res.Close()
	if migrated.URL != "sqlite://x.db" {
		t.Fatalf("migrated target = %+v", migrated)
	}
	if res.Driver != coreconfig.JournalSQLite || res.DB == nil {
		t.Fatalf("unexpected result: %+v", res)
	}
}
