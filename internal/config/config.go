// Package config defines the top-level configuration for the triangular
// arbitrage bot and provides validation helpers.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TRIARB_* environment variables.
type Config struct {
	Kucoin     KucoinConfig     `toml:"kucoin"`
	Trading    TradingConfig    `toml:"trading"`
	Gatekeeper GatekeeperConfig `toml:"gatekeeper"`
	Redis      RedisConfig      `toml:"redis"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// KucoinConfig holds KuCoin API credentials and endpoints.
type KucoinConfig struct {
	Key        string `toml:"key"`
	Secret     string `toml:"secret"`
	Passphrase string `toml:"passphrase"`
	BaseURL    string `toml:"base_url"`
	FeeRate    string `toml:"fee_rate"`
}

// TradingConfig holds the triangle universe and sizing parameters.
type TradingConfig struct {
	BaseCurrency  string   `toml:"base_currency"`
	QuoteCurrency string   `toml:"quote_currency"`
	Budget        string   `toml:"budget"`
	Coins         []string `toml:"coins"`
	BusCapacity   int      `toml:"bus_capacity"`

	MonitorInterval duration `toml:"monitor_interval"`
}

// GatekeeperConfig holds the order-placement limits enforced ahead of the
// exchange's own rate limiting.
type GatekeeperConfig struct {
	OrdersPerWindow int      `toml:"orders_per_window"`
	Window          duration `toml:"window"`
	MaxOpenOrders   int      `toml:"max_open_orders"`
	FillTimeout     duration `toml:"fill_timeout"`
}

// RedisConfig holds Redis connection parameters. Redis is optional: when
// disabled the rate limiter runs in-process and telemetry is skipped.
type RedisConfig struct {
	Enabled  bool   `toml:"enabled"`
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	PoolSize int    `toml:"pool_size"`
}

// PostgresConfig holds journal database parameters. The journal is optional.
type PostgresConfig struct {
	Enabled      bool   `toml:"enabled"`
	DSN          string `toml:"dsn"`
	PoolMaxConns int    `toml:"pool_max_conns"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "3s", "500ms").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "3s" or "500ms".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Kucoin: KucoinConfig{
			BaseURL: "https://api.kucoin.com",
			FeeRate: "0.001",
		},
		Trading: TradingConfig{
			BaseCurrency:    "BTC",
			QuoteCurrency:   "USDT",
			Budget:          "100",
			Coins:           []string{},
			BusCapacity:     1024,
			MonitorInterval: duration{10 * time.Second},
		},
		Gatekeeper: GatekeeperConfig{
			OrdersPerWindow: 45,
			Window:          duration{3 * time.Second},
			MaxOpenOrders:   200,
			FillTimeout:     duration{10 * time.Second},
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			DB:       0,
			PoolSize: 20,
		},
		Postgres: PostgresConfig{
			Enabled:      false,
			PoolMaxConns: 10,
		},
		Mode:     "dryrun",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"dryrun":  true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// SlogLevel maps LogLevel to its slog value. Unknown strings fall back to
// info; Validate rejects them before they matter.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, dryrun, monitor)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Kucoin — credentials are only required when the bot places real orders.
	if c.Kucoin.BaseURL == "" {
		errs = append(errs, "kucoin: base_url must not be empty")
	}
	if strings.ToLower(c.Mode) == "trade" {
		if c.Kucoin.Key == "" || c.Kucoin.Secret == "" || c.Kucoin.Passphrase == "" {
			errs = append(errs, "kucoin: key, secret, and passphrase are required for mode trade")
		}
	}
	if fee, err := decimal.NewFromString(c.Kucoin.FeeRate); err != nil {
		errs = append(errs, fmt.Sprintf("kucoin: fee_rate %q is not a valid decimal", c.Kucoin.FeeRate))
	} else if fee.IsNegative() || fee.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, fmt.Sprintf("kucoin: fee_rate must be in [0, 1), got %s", c.Kucoin.FeeRate))
	}

	// Trading
	if c.Trading.BaseCurrency == "" {
		errs = append(errs, "trading: base_currency must not be empty")
	}
	if c.Trading.QuoteCurrency == "" {
		errs = append(errs, "trading: quote_currency must not be empty")
	}
	if c.Trading.BaseCurrency != "" && c.Trading.BaseCurrency == c.Trading.QuoteCurrency {
		errs = append(errs, "trading: base_currency and quote_currency must differ")
	}
	if budget, err := decimal.NewFromString(c.Trading.Budget); err != nil {
		errs = append(errs, fmt.Sprintf("trading: budget %q is not a valid decimal", c.Trading.Budget))
	} else if !budget.IsPositive() {
		errs = append(errs, fmt.Sprintf("trading: budget must be > 0, got %s", c.Trading.Budget))
	}
	if c.Trading.BusCapacity < 1 {
		errs = append(errs, "trading: bus_capacity must be >= 1")
	}
	if c.Trading.MonitorInterval.Duration <= 0 {
		errs = append(errs, "trading: monitor_interval must be > 0")
	}

	// Gatekeeper
	if c.Gatekeeper.OrdersPerWindow < 1 {
		errs = append(errs, "gatekeeper: orders_per_window must be >= 1")
	}
	if c.Gatekeeper.Window.Duration <= 0 {
		errs = append(errs, "gatekeeper: window must be > 0")
	}
	if c.Gatekeeper.MaxOpenOrders < 3 {
		errs = append(errs, "gatekeeper: max_open_orders must be >= 3 (a cycle needs three legs)")
	}
	if c.Gatekeeper.FillTimeout.Duration <= 0 {
		errs = append(errs, "gatekeeper: fill_timeout must be > 0")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			errs = append(errs, "postgres: dsn must not be empty when enabled")
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
