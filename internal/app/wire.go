package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	s3blob "github.com/alanyoungcy/betengine/internal/blob/s3"
	"github.com/alanyoungcy/betengine/internal/cache/redis"
	"github.com/alanyoungcy/betengine/internal/chain"
	"github.com/alanyoungcy/betengine/internal/config"
	"github.com/alanyoungcy/betengine/internal/domain"
	"github.com/alanyoungcy/betengine/internal/notify"
	"github.com/alanyoungcy/betengine/internal/platform/coingecko"
	"github.com/alanyoungcy/betengine/internal/platform/dexscreener"
	"github.com/alanyoungcy/betengine/internal/server/handler"
	"github.com/alanyoungcy/betengine/internal/service"
	"github.com/alanyoungcy/betengine/internal/store/postgres"
	"github.com/alanyoungcy/betengine/internal/store/sqlite"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function. Caches, bus, locks and blobs are nil when their backend is
// not configured.
type Dependencies struct {
	// Stores
	Ledger domain.LedgerStore
	Bets   domain.TrackedBetStore
	Audit  domain.AuditStore

	// Caches
	PriceCache  domain.PriceCache
	Leaderboard domain.LeaderboardCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	Blobs s3blob.BlobStore

	Chain    *chain.Client
	Notifier *notify.Notifier

	// Checks feeds the health endpoint, one entry per live backend.
	Checks map[string]handler.Checker
}

// Services are the domain services built on top of Dependencies.
type Services struct {
	Points   *service.PointsService
	Prices   *service.PriceService
	Tracker  *service.SettlementTracker
	Exporter *s3blob.Exporter
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Checks: map[string]handler.Checker{}}

	// --- Ledger store ---
	switch strings.ToLower(cfg.Store.Backend) {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgresConfig(cfg))
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		pool := pgClient.Pool()
		deps.Ledger = postgres.NewLedgerStore(pool)
		deps.Bets = postgres.NewTrackedBetStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
		deps.Checks["postgres"] = pool.Ping
	default:
		store, err := openSQLite(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return fail(fmt.Errorf("wire: %w", err))
		}
		closers = append(closers, func() { _ = store.Close() })
		deps.Ledger = store
		deps.Bets = store
		deps.Audit = store
		deps.Checks["sqlite"] = store.Ping
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			URL:        cfg.Redis.URL,
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient, 2*cfg.Prices.MaxAge.Duration)
		deps.Leaderboard = redis.NewLeaderboardCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Points.StreamMaxLen)
		deps.Checks["redis"] = redisClient.Ping
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Blobs = s3blob.NewStore(s3Client)
		deps.Checks["s3"] = s3Client.Ping
	}

	// --- Chain ---
	addrs := chain.Addresses{
		Market:     cfg.Chain.MarketAddress,
		Wager:      cfg.Chain.WagerAddress,
		Prediction: cfg.Chain.PredictionAddress,
	}
	if cfg.ChainEnabled() {
		client, err := chain.Dial(ctx, cfg.Chain.RPCURL, addrs)
		if err != nil {
			return fail(fmt.Errorf("wire: %w", err))
		}
		closers = append(closers, client.Close)
		deps.Chain = client
		deps.Checks["chain"] = client.Ping
	} else {
		client, err := chain.New(nil, addrs)
		if err != nil {
			return fail(fmt.Errorf("wire: %w", err))
		}
		deps.Chain = client
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramAPIURL,
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, cfg.Notify.Cooldown.Duration, logger)

	return deps, cleanup, nil
}

// BuildServices creates the domain services over deps.
func BuildServices(cfg *config.Config, deps *Dependencies, logger *slog.Logger) *Services {
	opts := []coingecko.Option{coingecko.WithSymbolIDs(cfg.Prices.SymbolIDs)}
	if cfg.Prices.CoinGeckoAPIKey != "" {
		opts = append(opts, coingecko.WithAPIKey(cfg.Prices.CoinGeckoAPIKey))
	}
	if deps.RateLimiter != nil && cfg.Prices.CoinGeckoPerMinute > 0 {
		opts = append(opts, coingecko.WithLimiter(deps.RateLimiter, cfg.Prices.CoinGeckoPerMinute))
	}

	svc := &Services{}
	svc.Points = service.NewPointsService(deps.Ledger, deps.Leaderboard, deps.SignalBus, deps.Audit, deps.Notifier, logger)
	svc.Prices = service.NewPriceService(
		coingecko.NewClient(cfg.Prices.CoinGeckoURL, opts...),
		dexscreener.NewClient(cfg.Prices.DexScreenerURL),
		deps.PriceCache,
		deps.SignalBus,
		cfg.Prices.MaxAge.Duration,
		logger,
	)
	svc.Tracker = service.NewSettlementTracker(
		deps.Bets, deps.Chain, svc.Points, svc.Prices,
		deps.LockManager, deps.SignalBus, deps.Notifier,
		service.SettlementConfig{
			Contracts: chain.Addresses{
				Market:     cfg.Chain.MarketAddress,
				Wager:      cfg.Chain.WagerAddress,
				Prediction: cfg.Chain.PredictionAddress,
			},
			NativeSymbol: cfg.Chain.NativeSymbol,
			PollInterval: cfg.Settlement.Interval.Duration,
			BatchSize:    cfg.Settlement.BatchSize,
			ExpireAfter:  cfg.Settlement.ExpireAfter.Duration,
			LockTTL:      cfg.Settlement.LockTTL.Duration,
		},
		logger,
	)
	if deps.Blobs != nil {
		svc.Exporter = s3blob.NewExporter(deps.Blobs, deps.Ledger, deps.Audit, deps.Notifier, s3blob.ExporterConfig{
			Prefix:             cfg.Export.Prefix,
			TopN:               cfg.Export.TopN,
			MultipartThreshold: int64(cfg.Export.MultipartMB) << 20,
			Retention:          cfg.Export.Retention.Duration,
		}, logger)
	}
	return svc
}

func postgresConfig(cfg *config.Config) postgres.ClientConfig {
	return postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,

		StatementTimeout: cfg.Postgres.StatementTimeout.Duration,
	}
}

func openSQLite(ctx context.Context, path string) (*sqlite.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite dir: %w", err)
		}
	}
	return sqlite.Open(ctx, path)
}

// Migrate applies the schema for the configured backend and returns.
func Migrate(ctx context.Context, cfg *config.Config) error {
	if strings.ToLower(cfg.Store.Backend) == "postgres" {
		pgClient, err := postgres.New(ctx, postgresConfig(cfg))
		if err != nil {
			return fmt.Errorf("migrate: postgres: %w", err)
		}
		defer pgClient.Close()
		return pgClient.RunMigrations(ctx)
	}
	// Opening the SQLite store applies its migrations.
	store, err := openSQLite(ctx, cfg.Store.SQLitePath)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return store.Close()
}
