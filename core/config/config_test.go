package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{Token: "123:abc"},
		Renderer: RendererConfig{Command: "python3"},
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := validConfig()
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Fatalf("run mode = %q, want %q", cfg.Telegram.RunMode, RunModeLongpoll)
	}
	if cfg.Renderer.TimeoutSeconds != defaultRendererTimeoutSeconds {
		t.Fatalf("renderer timeout = %d", cfg.Renderer.TimeoutSeconds)
	}
	if cfg.Renderer.ScriptsDir != "script" {
		t.Fatalf("scripts dir = %q", cfg.Renderer.ScriptsDir)
	}
	if cfg.Session.Backend != SessionMemory || cfg.Session.TTLMinutes != defaultSessionTTLMinutes {
		t.Fatalf("session defaults not applied: %+v", cfg.Session)
	}
	if cfg.Journal.Driver != JournalNone {
		t.Fatalf("journal driver = %q", cfg.Journal.Driver)
	}
}

func TestNormalizeRequiresToken(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.Token = "  "
	err := Normalize(cfg)
	if err == nil || !strings.Contains(err.Error(), "token") {
		t.Fatalf("expected token error, got %v", err)
	}
}

func TestNormalizeRequiresRendererCommand(t *testing.T) {
	cfg := validConfig()
	cfg.Renderer.Command = ""
	err := Normalize(cfg)
	if err == nil || !strings.Contains(err.Error(), "renderer.command") {
		t.Fatalf("expected renderer command error, got %v", err)
	}
}

func TestNormalizeRejectsInvalidValues(t *testing.T) {
	cases := map[string]func(*Config){
		"run mode":        func(c *Config) { c.Telegram.RunMode = "carrier-pigeon" },
		"webhook url":     func(c *Config) { c.Telegram.RunMode = RunModeWebhook },
		"rate limit":      func(c *Config) { c.RateLimit.ExcludeUpdates = []string{"photo"} },
		"renderer":        func(c *Config) { c.Renderer.TimeoutSeconds = -1 },
		"session backend": func(c *Config) { c.Session.Backend = "memcached" },
		"redis url":       func(c *Config) { c.Session.Backend = SessionRedis },
		"journal driver":  func(c *Config) { c.Journal.Driver = "mysql" },
		"journal pg":      func(c *Config) { c.Journal.Driver = JournalPostgres },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(cfg)
			if err := Normalize(cfg); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}

func TestLoadMergesYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := []byte("telegram:\n  run_mode: polling\nrenderer:\n  command: python3\n  scripts_dir: /opt/script\nsession:\n  backend: memory\n")
	if err := os.WriteFile(path, yml, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("BOT_TOKEN", "42:secret")
	t.Setenv("RENDERER_TIMEOUT_SECONDS", "5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "42:secret" {
		t.Fatalf("token from env not applied: %q", cfg.Telegram.Token)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Fatalf("polling alias not normalized: %q", cfg.Telegram.RunMode)
	}
	if cfg.Renderer.ScriptsDir != "/opt/script" || cfg.Renderer.TimeoutSeconds != 5 {
		t.Fatalf("renderer config = %+v", cfg.Renderer)
	}
}

func TestLoadWithoutFileUsesEnv(t *testing.T) {
	t.Setenv("BOT_TOKEN", "1:x")
	t.Setenv("RENDERER_COMMAND", "python")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Renderer.Command != "python" {
		t.Fatalf("renderer command = %q", cfg.Renderer.Command)
	}
}
