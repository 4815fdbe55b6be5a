package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tradehall/auctionbot/internal/auction"
	s3blob "github.com/tradehall/auctionbot/internal/blob/s3"
	"github.com/tradehall/auctionbot/internal/cache/redis"
	"github.com/tradehall/auctionbot/internal/config"
	"github.com/tradehall/auctionbot/internal/domain"
	"github.com/tradehall/auctionbot/internal/notify"
	"github.com/tradehall/auctionbot/internal/store/postgres"
	"github.com/tradehall/auctionbot/internal/sweeper"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	AuctionStore domain.AuctionStore
	BidStore     domain.BidStore
	AuditStore   domain.AuditStore

	// Caches
	RateLimiter  domain.RateLimiter
	LockManager  domain.LockManager
	EventBus     domain.EventBus
	SummaryState domain.SummaryState

	// Messaging
	Notifier   *notify.Notifier
	Dispatcher *notify.Dispatcher

	// Core
	Service  *auction.Service
	Sweeper  *sweeper.Sweeper
	Archiver *s3blob.Archiver // nil when the archive is disabled
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.AuctionStore = postgres.NewAuctionStore(pool)
	deps.BidStore = postgres.NewBidStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

	// --- Redis ---
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

	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.EventBus = redis.NewEventBus(redisClient)
	deps.SummaryState = redis.NewSummaryState(redisClient)

	// --- Notifications ---
	var senders []notify.Sender
	var summaryEditor notify.SummaryEditor
	if cfg.Discord.WebhookURL != "" {
		ds := notify.NewDiscordSender(cfg.Discord.WebhookURL)
		senders = append(senders, ds)
		summaryEditor = ds
	}
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	var dm notify.DirectMessenger
	if cfg.Discord.BotToken != "" {
		dm = notify.NewDiscordDM(cfg.Discord.BotToken)
	}
	deps.Dispatcher = notify.NewDispatcher(
		deps.Notifier, dm, summaryEditor, deps.SummaryState, deps.AuctionStore, logger,
	)

	// --- Core services ---
	deps.Service = auction.New(
		auction.Config{
			MinIncrementPct:   cfg.Auction.MinIncrementPct,
			MinBid:            cfg.Auction.MinBid,
			MaxActivePerUser:  cfg.Auction.MaxActivePerUser,
			MaxCreatesPerHour: cfg.Auction.MaxCreatesPerHour,
			Durations:         cfg.Auction.DurationChoices(),
			AdminTestDuration: cfg.Auction.AdminTestDuration.Duration,
			SnipeWindow:       cfg.Auction.SnipeWindow.Duration,
			SnipeExtension:    cfg.Auction.SnipeExtension.Duration,
			SnipeCooldown:     cfg.Auction.SnipeCooldown.Duration,
		},
		deps.AuctionStore, deps.BidStore, deps.AuditStore,
		deps.RateLimiter, deps.EventBus, deps.Dispatcher,
		cfg.IsAdmin, logger,
	)

	deps.Sweeper = sweeper.New(
		sweeper.Config{
			Interval: cfg.Sweeper.Interval.Duration,
			LockTTL:  cfg.Sweeper.LockTTL.Duration,
		},
		deps.AuctionStore, deps.LockManager, deps.Dispatcher, logger,
	)

	// --- S3 archive (optional) ---
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
			deps.AuctionStore, deps.BidStore, deps.AuditStore,
			logger,
		)
	}

	return deps, cleanup, nil
}
