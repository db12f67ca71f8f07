package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestValidateCatchesProblems(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Mode = "yolo" }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"bad fee rate", func(c *Config) { c.Kucoin.FeeRate = "lots" }},
		{"fee rate >= 1", func(c *Config) { c.Kucoin.FeeRate = "1.5" }},
		{"trade without creds", func(c *Config) { c.Mode = "trade" }},
		{"same base and quote", func(c *Config) { c.Trading.QuoteCurrency = c.Trading.BaseCurrency }},
		{"zero budget", func(c *Config) { c.Trading.Budget = "0" }},
		{"tiny open order cap", func(c *Config) { c.Gatekeeper.MaxOpenOrders = 2 }},
		{"redis enabled without addr", func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }},
		{"postgres enabled without dsn", func(c *Config) { c.Postgres.Enabled = true }},
	}
	for _, tc := range cases {
		cfg := Defaults()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected a validation error", tc.name)
		}
	}
}

func TestSlogLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tc := range cases {
		cfg := Defaults()
		cfg.LogLevel = tc.in
		if got := cfg.SlogLevel(); got != tc.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
mode = "monitor"

[trading]
budget = "250"
coins = ["ETH", "XRP"]

[gatekeeper]
window = "5s"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("TRIARB_TRADING_BUDGET", "500")
	t.Setenv("TRIARB_REDIS_ENABLED", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Mode != "monitor" {
		t.Errorf("mode = %q, want monitor from file", cfg.Mode)
	}
	if cfg.Trading.Budget != "500" {
		t.Errorf("budget = %q, env override should win", cfg.Trading.Budget)
	}
	if len(cfg.Trading.Coins) != 2 || cfg.Trading.Coins[0] != "ETH" {
		t.Errorf("coins = %v", cfg.Trading.Coins)
	}
	if cfg.Gatekeeper.Window.Duration != 5*time.Second {
		t.Errorf("window = %s, want 5s from file", cfg.Gatekeeper.Window.Duration)
	}
	if !cfg.Redis.Enabled {
		t.Error("redis.enabled env override missing")
	}
	// Untouched values keep their defaults.
	if cfg.Gatekeeper.OrdersPerWindow != 45 {
		t.Errorf("orders_per_window = %d, want default 45", cfg.Gatekeeper.OrdersPerWindow)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Kucoin.Key = "k"
	cfg.Kucoin.Secret = "s"
	cfg.Kucoin.Passphrase = "p"
	cfg.Redis.Password = "pw"
	cfg.Postgres.DSN = "postgres://user:pw@host/db"

	red := RedactedConfig(&cfg)
	for name, v := range map[string]string{
		"kucoin.key":        red.Kucoin.Key,
		"kucoin.secret":     red.Kucoin.Secret,
		"kucoin.passphrase": red.Kucoin.Passphrase,
		"redis.password":    red.Redis.Password,
		"postgres.dsn":      red.Postgres.DSN,
	} {
		if v != "***" {
			t.Errorf("%s = %q, want redacted", name, v)
		}
	}
	if cfg.Kucoin.Key != "k" {
		t.Error("redaction must not mutate the original")
	}
	// Empty secrets stay empty rather than advertising themselves.
	empty := Defaults()
	if got := RedactedConfig(&empty); got.Kucoin.Key != "" {
		t.Errorf("empty key = %q, want empty", got.Kucoin.Key)
	}
}
