package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies BETENGINE_* environment variable overrides, and
// returns the final Config. A missing file at path leaves the defaults in
// place. The returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known BETENGINE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty).
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "BETENGINE_CHAIN_RPC_URL")
	setStr(&cfg.Chain.MarketAddress, "BETENGINE_CHAIN_MARKET_ADDRESS")
	setStr(&cfg.Chain.WagerAddress, "BETENGINE_CHAIN_WAGER_ADDRESS")
	setStr(&cfg.Chain.PredictionAddress, "BETENGINE_CHAIN_PREDICTION_ADDRESS")
	setStr(&cfg.Chain.NativeSymbol, "BETENGINE_CHAIN_NATIVE_SYMBOL")

	// ── Prices ──
	setStr(&cfg.Prices.CoinGeckoURL, "BETENGINE_PRICES_COINGECKO_URL")
	setStr(&cfg.Prices.CoinGeckoAPIKey, "BETENGINE_PRICES_COINGECKO_API_KEY")
	setInt(&cfg.Prices.CoinGeckoPerMinute, "BETENGINE_PRICES_COINGECKO_PER_MINUTE")
	setStr(&cfg.Prices.DexScreenerURL, "BETENGINE_PRICES_DEXSCREENER_URL")
	setStringSlice(&cfg.Prices.Symbols, "BETENGINE_PRICES_SYMBOLS")
	setDuration(&cfg.Prices.PollInterval, "BETENGINE_PRICES_POLL_INTERVAL")
	setDuration(&cfg.Prices.MaxAge, "BETENGINE_PRICES_MAX_AGE")
	setInt(&cfg.Prices.MaxInFlight, "BETENGINE_PRICES_MAX_IN_FLIGHT")

	// ── Points ──
	setInt64(&cfg.Points.StreamMaxLen, "BETENGINE_POINTS_STREAM_MAX_LEN")

	// ── Settlement ──
	setBool(&cfg.Settlement.Enabled, "BETENGINE_SETTLEMENT_ENABLED")
	setDuration(&cfg.Settlement.Interval, "BETENGINE_SETTLEMENT_INTERVAL")
	setInt(&cfg.Settlement.BatchSize, "BETENGINE_SETTLEMENT_BATCH_SIZE")
	setDuration(&cfg.Settlement.ExpireAfter, "BETENGINE_SETTLEMENT_EXPIRE_AFTER")
	setDuration(&cfg.Settlement.LockTTL, "BETENGINE_SETTLEMENT_LOCK_TTL")

	// ── Store ──
	setStr(&cfg.Store.Backend, "BETENGINE_STORE_BACKEND")
	setStr(&cfg.Store.SQLitePath, "BETENGINE_STORE_SQLITE_PATH")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "BETENGINE_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "BETENGINE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "BETENGINE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "BETENGINE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "BETENGINE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "BETENGINE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "BETENGINE_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "BETENGINE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "BETENGINE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "BETENGINE_POSTGRES_RUN_MIGRATIONS")
	setDuration(&cfg.Postgres.StatementTimeout, "BETENGINE_POSTGRES_STATEMENT_TIMEOUT")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "BETENGINE_REDIS_ENABLED")
	setStr(&cfg.Redis.URL, "BETENGINE_REDIS_URL")
	setStr(&cfg.Redis.Addr, "BETENGINE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BETENGINE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BETENGINE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BETENGINE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BETENGINE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "BETENGINE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "BETENGINE_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "BETENGINE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "BETENGINE_S3_REGION")
	setStr(&cfg.S3.Bucket, "BETENGINE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "BETENGINE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "BETENGINE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "BETENGINE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "BETENGINE_S3_FORCE_PATH_STYLE")

	// ── Export ──
	setBool(&cfg.Export.Enabled, "BETENGINE_EXPORT_ENABLED")
	setStr(&cfg.Export.Prefix, "BETENGINE_EXPORT_PREFIX")
	setInt(&cfg.Export.TopN, "BETENGINE_EXPORT_TOP_N")
	setDuration(&cfg.Export.Interval, "BETENGINE_EXPORT_INTERVAL")
	setDuration(&cfg.Export.Retention, "BETENGINE_EXPORT_RETENTION")
	setInt(&cfg.Export.MultipartMB, "BETENGINE_EXPORT_MULTIPART_MB")

	// ── Server ──
	setStr(&cfg.Server.Host, "BETENGINE_SERVER_HOST")
	setInt(&cfg.Server.Port, "BETENGINE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "BETENGINE_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "BETENGINE_SERVER_API_KEY")
	setInt(&cfg.Server.ReadLimit, "BETENGINE_SERVER_READ_LIMIT")
	setInt(&cfg.Server.WriteLimit, "BETENGINE_SERVER_WRITE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "BETENGINE_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramAPIURL, "BETENGINE_NOTIFY_TELEGRAM_API_URL")
	setStr(&cfg.Notify.TelegramToken, "BETENGINE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "BETENGINE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "BETENGINE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "BETENGINE_NOTIFY_EVENTS")
	setDuration(&cfg.Notify.Cooldown, "BETENGINE_NOTIFY_COOLDOWN")

	// ── Top-level ──
	setStr(&cfg.Mode, "BETENGINE_MODE")
	setStr(&cfg.LogLevel, "BETENGINE_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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
