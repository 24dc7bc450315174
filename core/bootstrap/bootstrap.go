package bootstrap

import (
	"fmt"
	"io/fs"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/receiptbot/core/config"
	coredatabase "github.com/m3rciful/receiptbot/core/database"
	"github.com/m3rciful/receiptbot/core/logger"
)

// Options control the bootstrap pipeline.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coreconfig.JournalConfig) (*sqlx.DB, coredatabase.Target, error)
	Migrate    func(coredatabase.Target, fs.FS) error
	// Migrations returns the schema for a database driver. Required when a journal driver is set.
	Migrations func(driver string) (fs.FS, error)
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	// DB is nil when the journal is disabled.
	DB     *sqlx.DB
	Driver string
}

// Close releases the database, if any.
func (r *Result) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

// Run initializes the logger and, when the journal is enabled, connects to its
// database and applies migrations.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	jc := opts.Config.Journal
	if jc.Driver == "" || jc.Driver == coreconfig.JournalNone {
		return &Result{Driver: coreconfig.JournalNone}, nil
	}
	if opts.Migrations == nil {
		return nil, fmt.Errorf("bootstrap: journal driver %q set without migrations", jc.Driver)
	}
	schema, err := opts.Migrations(jc.Driver)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: migrations lookup failed: %w", err)
	}

	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.OpenJournal
	}
	db, target, err := connect(jc)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}

	migrate := opts.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}
	if err := migrate(target, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}

	return &Result{DB: db, Driver: jc.Driver}, nil
}
