package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	coreconfig "github.com/m3rciful/receiptbot/core/config"
	"github.com/m3rciful/receiptbot/core/logger"
)

const (
	// DriverPostgres is the database/sql driver name registered by lib/pq.
	DriverPostgres = "postgres"
	// DriverSQLite is the database/sql driver name registered by modernc.org/sqlite.
	DriverSQLite = "sqlite"
)

// PostgresDSN builds a lib/pq key/value connection string.
func PostgresDSN(cfg coreconfig.DatabaseConfig) string {
	return fmt.Sprintf(
		"user=%s password=%s host=%s port=%s dbname=%s sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name, cfg.SSLMode,
	)
}

// Connect opens a PostgreSQL connection, configures the pool, and verifies connectivity.
func Connect(cfg coreconfig.DatabaseConfig) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	sqlxDB, err := sqlx.ConnectContext(ctx, DriverPostgres, PostgresDSN(cfg))
	took := time.Since(start)
	if err != nil {
		logger.Error(ctx, logger.CompDB, "db.connect",
			slog.String("status", "fail"),
			slog.String("driver", DriverPostgres),
			slog.String("host", cfg.Host),
			slog.String("port", cfg.Port),
			slog.String("db", cfg.Name),
			slog.Duration("duration", logger.RoundMS(took)),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("db connect: %w", err)
	}

	if pingErr := sqlxDB.PingContext(ctx); pingErr != nil {
		_ = sqlxDB.Close()
		logger.Error(ctx, logger.CompDB, "db.ping",
			slog.String("status", "fail"),
			slog.String("driver", DriverPostgres),
			slog.String("host", cfg.Host),
			slog.String("err", pingErr.Error()),
		)
		return nil, fmt.Errorf("db ping: %w", pingErr)
	}

	sqlxDB.SetMaxOpenConns(cfg.MaxConnections)
	sqlxDB.SetMaxIdleConns(cfg.MaxConnections)

	logger.Info(ctx, logger.CompDB, "db.connect",
		slog.String("status", "ok"),
		slog.String("driver", DriverPostgres),
		slog.String("host", cfg.Host),
		slog.String("port", cfg.Port),
		slog.String("db", cfg.Name),
		slog.Int("pool_open", cfg.MaxConnections),
		slog.Duration("duration", logger.RoundMS(took)),
	)
	return sqlxDB, nil
}

// OpenSQLite opens (creating if needed) a SQLite database file.
// SQLite allows a single writer, so the pool is capped at one connection.
func OpenSQLite(path string) (*sqlx.DB, error) {
	ctx := context.Background()
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sqlx.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	logger.Info(ctx, logger.CompDB, "db.connect",
		slog.String("status", "ok"),
		slog.String("driver", DriverSQLite),
		slog.String("db", path),
	)
	return db, nil
}

// WaitForPostgres tries to connect to the DB until it is ready or timeout is reached.
func WaitForPostgres(dsn string, timeout time.Duration) error {
	start := time.Now()
	var lastErr error
	for {
		db, err := sql.Open(DriverPostgres, dsn)
		if err == nil {
			if err = db.Ping(); err == nil {
				_ = db.Close()
				return nil
			}
			_ = db.Close()
		}
		lastErr = err
		if time.Since(start) > timeout {
			return fmt.Errorf("timeout reached waiting for database: %w", lastErr)
		}
		time.Sleep(2 * time.Second)
	}
}

// OpenJournal connects to the database selected by the journal settings and
// returns it together with the matching migration target.
func OpenJournal(cfg coreconfig.JournalConfig) (*sqlx.DB, Target, error) {
	switch cfg.Driver {
	case coreconfig.JournalPostgres:
		db, err := Connect(cfg.Database)
		return db, PostgresTarget(cfg.Database), err
	case coreconfig.JournalSQLite:
		db, err := OpenSQLite(cfg.SQLitePath)
		return db, SQLiteTarget(cfg.SQLitePath), err
	default:
		return nil, Target{}, fmt.Errorf("db: unsupported journal driver %q", cfg.Driver)
	}
}
