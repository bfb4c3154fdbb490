// Package config defines the top-level configuration for betengine and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by BETENGINE_* environment variables.
type Config struct {
	Chain      ChainConfig      `toml:"chain"`
	Prices     PricesConfig     `toml:"prices"`
	Points     PointsConfig     `toml:"points"`
	Settlement SettlementConfig `toml:"settlement"`
	Store      StoreConfig      `toml:"store"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Export     ExportConfig     `toml:"export"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// ChainConfig points at the JSON-RPC endpoint and the three betting
// contracts. An empty RPCURL disables contract reads; call data can still be
// encoded for any configured address.
type ChainConfig struct {
	RPCURL            string `toml:"rpc_url"`
	MarketAddress     string `toml:"market_address"`
	WagerAddress      string `toml:"wager_address"`
	PredictionAddress string `toml:"prediction_address"`
	NativeSymbol      string `toml:"native_symbol"`
}

// PricesConfig holds the price provider endpoints and the live poll set.
type PricesConfig struct {
	CoinGeckoURL       string            `toml:"coingecko_url"`
	CoinGeckoAPIKey    string            `toml:"coingecko_api_key"`
	CoinGeckoPerMinute int               `toml:"coingecko_per_minute"`
	SymbolIDs          map[string]string `toml:"symbol_ids"`
	DexScreenerURL     string            `toml:"dexscreener_url"`
	Symbols            []string          `toml:"symbols"`
	PollInterval       duration          `toml:"poll_interval"`
	MaxAge             duration          `toml:"max_age"`
	MaxInFlight        int               `toml:"max_in_flight"`
}

// PointsConfig tunes the award event stream.
type PointsConfig struct {
	StreamMaxLen int64 `toml:"stream_max_len"`
}

// SettlementConfig tunes the bet settlement tracker.
type SettlementConfig struct {
	Enabled   bool     `toml:"enabled"`
	Interval  duration `toml:"interval"`
	BatchSize int      `toml:"batch_size"`
	// ExpireAfter closes bets whose contract never appears on chain.
	ExpireAfter duration `toml:"expire_after"`
	// LockTTL is renewed while a cycle runs; a crashed holder frees the
	// lock after this long.
	LockTTL duration `toml:"lock_ttl"`
}

// StoreConfig selects the ledger backend: "sqlite" or "postgres".
type StoreConfig struct {
	Backend    string `toml:"backend"`
	SQLitePath string `toml:"sqlite_path"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
	// StatementTimeout is set as the session statement_timeout; zero leaves
	// the server default.
	StatementTimeout duration `toml:"statement_timeout"`
}

// RedisConfig holds Redis connection parameters. Redis is optional; without
// it the caches, rate limiting, locking and the event bus are skipped.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	URL        string `toml:"url"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ExportConfig schedules leaderboard and ledger snapshots.
type ExportConfig struct {
	Enabled     bool     `toml:"enabled"`
	Prefix      string   `toml:"prefix"`
	TopN        int      `toml:"top_n"`
	Interval    duration `toml:"interval"`
	Retention   duration `toml:"retention"`
	MultipartMB int      `toml:"multipart_mb"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	ReadLimit   int      `toml:"read_limit"`
	WriteLimit  int      `toml:"write_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramAPIURL    string   `toml:"telegram_api_url"`
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	Cooldown          duration `toml:"cooldown"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			NativeSymbol: "ETH",
		},
		Prices: PricesConfig{
			CoinGeckoURL:       "https://api.coingecko.com/api/v3",
			CoinGeckoPerMinute: 30,
			SymbolIDs:          map[string]string{},
			DexScreenerURL:     "https://api.dexscreener.com",
			Symbols:            []string{"ETH", "BTC"},
			PollInterval:       duration{30 * time.Second},
			MaxAge:             duration{time.Minute},
			MaxInFlight:        4,
		},
		Points: PointsConfig{
			StreamMaxLen: 100_000,
		},
		Settlement: SettlementConfig{
			Enabled:     true,
			Interval:    duration{time.Minute},
			BatchSize:   100,
			ExpireAfter: duration{24 * time.Hour},
			LockTTL:     duration{30 * time.Second},
		},
		Store: StoreConfig{
			Backend:    "sqlite",
			SQLitePath: "data/betengine.db",
		},
		Postgres: PostgresConfig{
			Host:             "localhost",
			Port:             5432,
			Database:         "postgres",
			User:             "postgres",
			SSLMode:          "disable",
			PoolMaxConns:     10,
			PoolMinConns:     2,
			RunMigrations:    true,
			StatementTimeout: duration{15 * time.Second},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "betengine-data",
			ForcePathStyle: true,
		},
		Export: ExportConfig{
			Prefix:      "snapshots",
			TopN:        1000,
			Interval:    duration{time.Hour},
			MultipartMB: 40,
		},
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			ReadLimit:   120,
			WriteLimit:  30,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events:   []string{"points_awarded", "bet_settled", "export_completed", "error"},
			Cooldown: duration{time.Minute},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"api":     true,
	"tracker": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// ChainEnabled reports whether contract reads are available.
func (c *Config) ChainEnabled() bool {
	return strings.TrimSpace(c.Chain.RPCURL) != ""
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: api, tracker, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Chain
	for name, addr := range map[string]string{
		"market_address":     c.Chain.MarketAddress,
		"wager_address":      c.Chain.WagerAddress,
		"prediction_address": c.Chain.PredictionAddress,
	} {
		if addr != "" && !common.IsHexAddress(addr) {
			errs = append(errs, fmt.Sprintf("chain: %s %q is not a hex address", name, addr))
		}
	}
	if strings.EqualFold(c.Mode, "tracker") && c.Settlement.Enabled && !c.ChainEnabled() {
		errs = append(errs, "chain: rpc_url is required for settlement in tracker mode")
	}

	// Prices
	if c.Prices.PollInterval.Duration <= 0 {
		errs = append(errs, "prices: poll_interval must be > 0")
	}
	if c.Prices.MaxAge.Duration <= 0 {
		errs = append(errs, "prices: max_age must be > 0")
	}
	if c.Prices.MaxInFlight < 1 {
		errs = append(errs, "prices: max_in_flight must be >= 1")
	}
	if c.Prices.CoinGeckoPerMinute < 0 {
		errs = append(errs, "prices: coingecko_per_minute must be >= 0")
	}

	// Settlement
	if c.Settlement.Enabled {
		if c.Settlement.Interval.Duration <= 0 {
			errs = append(errs, "settlement: interval must be > 0")
		}
		if c.Settlement.BatchSize < 1 {
			errs = append(errs, "settlement: batch_size must be >= 1")
		}
		if c.Settlement.ExpireAfter.Duration <= 0 {
			errs = append(errs, "settlement: expire_after must be > 0")
		}
		if c.Settlement.LockTTL.Duration < time.Second {
			errs = append(errs, "settlement: lock_ttl must be >= 1s")
		}
	}

	// Store
	switch strings.ToLower(c.Store.Backend) {
	case "sqlite":
		if strings.TrimSpace(c.Store.SQLitePath) == "" {
			errs = append(errs, "store: sqlite_path must not be empty for the sqlite backend")
		}
	case "postgres":
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
		if c.Postgres.StatementTimeout.Duration < 0 {
			errs = append(errs, "postgres: statement_timeout must be >= 0")
		}
	default:
		errs = append(errs, fmt.Sprintf("store: unknown backend %q (valid: sqlite, postgres)", c.Store.Backend))
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.URL == "" && c.Redis.Addr == "" {
			errs = append(errs, "redis: url or addr must be set when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Export
	if c.Export.Enabled {
		if !c.S3.Enabled {
			errs = append(errs, "export: requires s3.enabled")
		}
		if c.Export.TopN < 1 {
			errs = append(errs, "export: top_n must be >= 1")
		}
		if c.Export.Interval.Duration <= 0 {
			errs = append(errs, "export: interval must be > 0")
		}
		if c.Export.Retention.Duration < 0 {
			errs = append(errs, "export: retention must be >= 0")
		}
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadLimit < 0 || c.Server.WriteLimit < 0 {
		errs = append(errs, "server: read_limit and write_limit must be >= 0")
	}
	if (c.Server.ReadLimit > 0 || c.Server.WriteLimit > 0) && c.Server.RateWindow.Duration <= 0 {
		errs = append(errs, "server: rate_window must be > 0 when rate limits are set")
	}

	// Notify: token and chat id travel together.
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}
	if c.Notify.Cooldown.Duration < 0 {
		errs = append(errs, "notify: cooldown must be >= 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
