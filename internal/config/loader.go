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
// built-in defaults, applies VEILCAST_* environment variable overrides, and
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

// applyEnvOverrides reads well-known VEILCAST_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Operator ──
	setStr(&cfg.Operator.PrivateKey, "VEILCAST_OPERATOR_PRIVATE_KEY")
	setStr(&cfg.Operator.EncryptedKeyPath, "VEILCAST_OPERATOR_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Operator.KeyPassword, "VEILCAST_OPERATOR_KEY_PASSWORD")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "VEILCAST_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "VEILCAST_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "VEILCAST_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "VEILCAST_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "VEILCAST_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "VEILCAST_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "VEILCAST_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "VEILCAST_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "VEILCAST_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "VEILCAST_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "VEILCAST_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "VEILCAST_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "VEILCAST_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "VEILCAST_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "VEILCAST_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "VEILCAST_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "VEILCAST_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "VEILCAST_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "VEILCAST_S3_REGION")
	setStr(&cfg.S3.Bucket, "VEILCAST_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "VEILCAST_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "VEILCAST_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "VEILCAST_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "VEILCAST_S3_FORCE_PATH_STYLE")

	// ── Oracle ──
	setStr(&cfg.Oracle.CallbackSecret, "VEILCAST_ORACLE_CALLBACK_SECRET")
	setDuration(&cfg.Oracle.Latency, "VEILCAST_ORACLE_LATENCY")

	// ── Ledger ──
	setDuration(&cfg.Ledger.StatsTTL, "VEILCAST_LEDGER_STATS_TTL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "VEILCAST_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "VEILCAST_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "VEILCAST_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "VEILCAST_SERVER_API_KEY")
	setBool(&cfg.Server.RequireSignatures, "VEILCAST_SERVER_REQUIRE_SIGNATURES")
	setInt(&cfg.Server.RateLimit, "VEILCAST_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "VEILCAST_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "VEILCAST_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "VEILCAST_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "VEILCAST_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "VEILCAST_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "VEILCAST_MODE")
	setStr(&cfg.LogLevel, "VEILCAST_LOG_LEVEL")
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
