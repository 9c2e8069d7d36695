package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/veilcast/veilcast/internal/blob/s3"
	"github.com/veilcast/veilcast/internal/cache/redis"
	"github.com/veilcast/veilcast/internal/config"
	"github.com/veilcast/veilcast/internal/crypto"
	"github.com/veilcast/veilcast/internal/domain"
	"github.com/veilcast/veilcast/internal/notify"
	"github.com/veilcast/veilcast/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Archives (nil in local mode)
	Events        domain.EventArchive
	Submissions   domain.SubmissionArchive
	Finalizations domain.FinalizationArchive

	// Caches (nil in local mode)
	StatsCache  domain.StatsCache
	RateLimiter domain.RateLimiter
	SignalBus   domain.SignalBus

	// Blob storage (nil unless S3 is enabled)
	Archiver domain.Archiver

	// Notifications
	Notifier *notify.Notifier

	// Operator identity (nil in serve mode unless a key is configured)
	Identity *crypto.Identity

	// CallbackAuth authenticates oracle callback deliveries.
	CallbackAuth *crypto.CallbackAuth
}

// needsPostgres returns true for modes that require a database connection.
func needsPostgres(mode string) bool {
	return mode == "serve"
}

// needsRedis returns true for modes that require Redis.
func needsRedis(mode string) bool {
	return mode == "serve"
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

	deps := &Dependencies{}

	// --- PostgreSQL (only for modes that need persistence) ---
	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		// Run migrations if enabled.
		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Events = postgres.NewEventArchive(pool)
		deps.Submissions = postgres.NewSubmissionArchive(pool)
		deps.Finalizations = postgres.NewFinalizationArchive(pool)
	}

	// --- Redis ---
	if needsRedis(cfg.Mode) {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.StatsCache = redis.NewStatsCache(redisClient, cfg.Ledger.StatsTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// --- S3 blob storage (optional) ---
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
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			"",
		)
	}

	// --- Operator identity ---
	if cfg.Operator.PrivateKey != "" || cfg.Operator.EncryptedKeyPath != "" {
		id, err := crypto.LoadIdentity(crypto.KeyConfig{
			RawPrivateKey:    cfg.Operator.PrivateKey,
			EncryptedKeyPath: cfg.Operator.EncryptedKeyPath,
			KeyPassword:      cfg.Operator.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: operator identity: %w", err)
		}
		deps.Identity = id
	}

	deps.CallbackAuth = crypto.NewCallbackAuth(cfg.Oracle.CallbackSecret)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
