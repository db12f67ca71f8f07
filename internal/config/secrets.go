package config

// RedactedConfig returns a copy of cfg with sensitive fields replaced by the
// redaction placeholder "***". Use this when logging or printing the active
// configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Kucoin.Key)
	redact(&out.Kucoin.Secret)
	redact(&out.Kucoin.Passphrase)
	redact(&out.Redis.Password)
	redact(&out.Postgres.DSN)

	// Copy the slice so callers cannot mutate the original through the
	// redacted copy.
	if cfg.Trading.Coins != nil {
		out.Trading.Coins = make([]string, len(cfg.Trading.Coins))
		copy(out.Trading.Coins, cfg.Trading.Coins)
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
