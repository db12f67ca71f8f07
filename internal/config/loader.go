package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TRIARB_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TRIARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Kucoin ──
	setStr(&cfg.Kucoin.Key, "TRIARB_KUCOIN_KEY")
	setStr(&cfg.Kucoin.Secret, "TRIARB_KUCOIN_SECRET")
	setStr(&cfg.Kucoin.Passphrase, "TRIARB_KUCOIN_PASSPHRASE")
	setStr(&cfg.Kucoin.BaseURL, "TRIARB_KUCOIN_BASE_URL")
	setStr(&cfg.Kucoin.FeeRate, "TRIARB_KUCOIN_FEE_RATE")

	// ── Trading ──
	setStr(&cfg.Trading.BaseCurrency, "TRIARB_TRADING_BASE_CURRENCY")
	setStr(&cfg.Trading.QuoteCurrency, "TRIARB_TRADING_QUOTE_CURRENCY")
	setStr(&cfg.Trading.Budget, "TRIARB_TRADING_BUDGET")
	setStringSlice(&cfg.Trading.Coins, "TRIARB_TRADING_COINS")
	setInt(&cfg.Trading.BusCapacity, "TRIARB_TRADING_BUS_CAPACITY")
	setDuration(&cfg.Trading.MonitorInterval, "TRIARB_TRADING_MONITOR_INTERVAL")

	// ── Gatekeeper ──
	setInt(&cfg.Gatekeeper.OrdersPerWindow, "TRIARB_GATEKEEPER_ORDERS_PER_WINDOW")
	setDuration(&cfg.Gatekeeper.Window, "TRIARB_GATEKEEPER_WINDOW")
	setInt(&cfg.Gatekeeper.MaxOpenOrders, "TRIARB_GATEKEEPER_MAX_OPEN_ORDERS")
	setDuration(&cfg.Gatekeeper.FillTimeout, "TRIARB_GATEKEEPER_FILL_TIMEOUT")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "TRIARB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "TRIARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRIARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRIARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRIARB_REDIS_POOL_SIZE")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "TRIARB_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "TRIARB_POSTGRES_DSN")
	setInt(&cfg.Postgres.PoolMaxConns, "TRIARB_POSTGRES_POOL_MAX_CONNS")

	// ── Top-level ──
	setStr(&cfg.Mode, "TRIARB_MODE")
	setStr(&cfg.LogLevel, "TRIARB_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
