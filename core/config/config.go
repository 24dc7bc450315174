package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// RendererConfig describes how the external receipt renderer is invoked.
type RendererConfig struct {
	// Command is the interpreter or executable, e.g. "python3" or "/usr/bin/python3".
	Command        string `yaml:"command" envconfig:"RENDERER_COMMAND"`
	ScriptsDir     string `yaml:"scripts_dir" envconfig:"RENDERER_SCRIPTS_DIR"`
	TimeoutSeconds int    `yaml:"timeout_seconds" envconfig:"RENDERER_TIMEOUT_SECONDS"`
	MaxStderrBytes int    `yaml:"max_stderr_bytes" envconfig:"RENDERER_MAX_STDERR_BYTES"`
	// StageDir receives a private copy of each render's artifacts. Empty uses the OS temp dir.
	StageDir string `yaml:"stage_dir" envconfig:"RENDERER_STAGE_DIR"`
}

// SessionConfig selects the conversation session backend.
type SessionConfig struct {
	Backend    string `yaml:"backend" envconfig:"SESSION_BACKEND"`
	RedisURL   string `yaml:"redis_url" envconfig:"REDIS_URL"`
	Prefix     string `yaml:"prefix" envconfig:"SESSION_PREFIX"`
	TTLMinutes int    `yaml:"ttl_minutes" envconfig:"SESSION_TTL_MINUTES"`
}

// FlowsConfig points at optional overrides of the embedded flow catalog and menu.
type FlowsConfig struct {
	CatalogFile string `yaml:"catalog_file" envconfig:"FLOWS_CATALOG_FILE"`
	MenuFile    string `yaml:"menu_file" envconfig:"FLOWS_MENU_FILE"`
}

// DatabaseConfig holds SQL connection settings for the render journal.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// JournalConfig enables recording of render attempts.
type JournalConfig struct {
	Driver     string         `yaml:"driver" envconfig:"JOURNAL_DRIVER"`
	SQLitePath string         `yaml:"sqlite_path" envconfig:"JOURNAL_SQLITE_PATH"`
	Database   DatabaseConfig `yaml:"database"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
	// UpdateInlineQuery identifies inline query updates for rate limit exclusions.
	UpdateInlineQuery = "inline_query"
)

const (
	// SessionMemory keeps sessions in process memory.
	SessionMemory = "memory"
	// SessionRedis keeps sessions in Redis with a TTL.
	SessionRedis = "redis"
)

const (
	// JournalNone disables the render journal.
	JournalNone = "none"
	// JournalPostgres stores the render journal in PostgreSQL.
	JournalPostgres = "postgres"
	// JournalSQLite stores the render journal in a local SQLite file.
	JournalSQLite = "sqlite"
)

const (
	defaultRendererTimeoutSeconds = 60
	defaultMaxStderrBytes         = 16 * 1024
	defaultSessionTTLMinutes      = 40
	defaultSessionPrefix          = "receiptbot:session:"
	defaultSQLitePath             = "receiptbot.db"
)

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
// - "inline_query": inline query updates
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the bot configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Renderer  RendererConfig  `yaml:"renderer"`
	Session   SessionConfig   `yaml:"session"`
	Flows     FlowsConfig     `yaml:"flows"`
	Journal   JournalConfig   `yaml:"journal"`
}

// CoreConfig satisfies the runner's config carrier contract.
func (c *Config) CoreConfig() *Config {
	return c
}

// Load reads an optional .env file, the YAML file at path and environment variables.
// A missing YAML file is not an error: the bot can be configured from the environment alone.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse YAML config: %w", err)
			}
		}
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram token is required (BOT_TOKEN)")
	}

	if err := normalizeRunMode(cfg); err != nil {
		return err
	}
	if err := normalizeRateLimit(cfg); err != nil {
		return err
	}
	if err := normalizeRenderer(&cfg.Renderer); err != nil {
		return err
	}
	if err := normalizeSession(&cfg.Session); err != nil {
		return err
	}
	return normalizeJournal(&cfg.Journal)
}

func normalizeRunMode(cfg *Config) error {
	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm
	return nil
}

func normalizeRateLimit(cfg *Config) error {
	allowed := map[string]struct{}{
		UpdateCallback:    {},
		UpdateMessage:     {},
		UpdateInlineQuery: {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message, inline_query", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}
	return nil
}

func normalizeRenderer(rc *RendererConfig) error {
	rc.Command = strings.TrimSpace(rc.Command)
	if rc.Command == "" {
		return fmt.Errorf("renderer.command is required (RENDERER_COMMAND)")
	}
	rc.ScriptsDir = strings.TrimSpace(rc.ScriptsDir)
	if rc.ScriptsDir == "" {
		rc.ScriptsDir = "script"
	}
	if rc.TimeoutSeconds < 0 {
		return fmt.Errorf("renderer.timeout_seconds must be >= 0")
	}
	if rc.TimeoutSeconds == 0 {
		rc.TimeoutSeconds = defaultRendererTimeoutSeconds
	}
	if rc.MaxStderrBytes < 0 {
		return fmt.Errorf("renderer.max_stderr_bytes must be >= 0")
	}
	if rc.MaxStderrBytes == 0 {
		rc.MaxStderrBytes = defaultMaxStderrBytes
	}
	return nil
}

func normalizeSession(sc *SessionConfig) error {
	backend := strings.ToLower(strings.TrimSpace(sc.Backend))
	if backend == "" {
		backend = SessionMemory
	}
	switch backend {
	case SessionMemory:
	case SessionRedis:
		if strings.TrimSpace(sc.RedisURL) == "" {
			return fmt.Errorf("session.redis_url is required when session.backend is 'redis'")
		}
	default:
		return fmt.Errorf("invalid session.backend %q; allowed: memory, redis", sc.Backend)
	}
	sc.Backend = backend
	if sc.TTLMinutes < 0 {
		return fmt.Errorf("session.ttl_minutes must be >= 0")
	}
	if sc.TTLMinutes == 0 {
		sc.TTLMinutes = defaultSessionTTLMinutes
	}
	if strings.TrimSpace(sc.Prefix) == "" {
		sc.Prefix = defaultSessionPrefix
	}
	return nil
}

func normalizeJournal(jc *JournalConfig) error {
	driver := strings.ToLower(strings.TrimSpace(jc.Driver))
	if driver == "" {
		driver = JournalNone
	}
	switch driver {
	case JournalNone:
	case JournalSQLite:
		if strings.TrimSpace(jc.SQLitePath) == "" {
			jc.SQLitePath = defaultSQLitePath
		}
	case JournalPostgres:
		if strings.TrimSpace(jc.Database.Host) == "" || strings.TrimSpace(jc.Database.Name) == "" {
			return fmt.Errorf("journal.database.host and journal.database.name are required for the postgres journal")
		}
		if jc.Database.SSLMode == "" {
			jc.Database.SSLMode = "disable"
		}
		if jc.Database.Port == "" {
			jc.Database.Port = "5432"
		}
		if jc.Database.MaxConnections <= 0 {
			jc.Database.MaxConnections = 4
		}
	default:
		return fmt.Errorf("invalid journal.driver %q; allowed: none, postgres, sqlite", jc.Driver)
	}
	jc.Driver = driver
	return nil
}
