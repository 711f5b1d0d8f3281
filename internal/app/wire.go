package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/bodega-labs/bodegad/internal/blob/s3"
	"github.com/bodega-labs/bodegad/internal/cache/redis"
	"github.com/bodega-labs/bodegad/internal/config"
	"github.com/bodega-labs/bodegad/internal/domain"
	"github.com/bodega-labs/bodegad/internal/events"
	"github.com/bodega-labs/bodegad/internal/ledger"
	"github.com/bodega-labs/bodegad/internal/notify"
	"github.com/bodega-labs/bodegad/internal/privstate"
	"github.com/bodega-labs/bodegad/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the application modes
// need. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Stores
	MarketStore    domain.MarketStore
	StateStore     domain.MarketStateStore
	BatchStore     domain.BatchStore
	VoteStore      domain.VoteStore
	ConsensusStore domain.ConsensusStore
	NullifierStore domain.NullifierStore
	AuditStore     domain.AuditStore

	// Caches and messaging
	PriceCache  domain.PriceCache
	StateCache  domain.MarketStateCache
	LockManager domain.LockManager
	RateLimiter domain.RateLimiter
	SignalBus   domain.SignalBus
	Bus         *events.Bus

	// Ledger boundary
	Ledger    ledger.Client
	Prover    *ledger.RemoteProver
	Stream    *ledger.Stream
	Addresses ledger.Addresses

	// Blob storage
	BlobWriter  domain.BlobWriter
	BlobReader  domain.BlobReader
	BlobDeleter domain.BlobDeleter
	Archiver    domain.Archiver

	// Local private positions
	Positions *privstate.Store

	// Notifications
	Notifier *notify.Notifier
}

// needsPostgres returns true for modes that require local persistence.
func needsPostgres(mode string) bool {
	switch mode {
	case "engine", "client", "full":
		return true
	default:
		return false
	}
}

// needsPositions returns true for modes that place bets and claims.
func needsPositions(mode string) bool {
	switch mode {
	case "client", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them with a cleanup function for shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Addresses: ledger.Addresses{
			MarketFactory:    cfg.Ledger.MarketFactory,
			PredictionMarket: cfg.Ledger.PredictionMarket,
			OracleConsensus:  cfg.Ledger.OracleConsensus,
		},
	}

	// --- Ledger boundary ---
	deps.Ledger = ledger.NewHTTPClient(cfg.Ledger.NodeURL, cfg.Ledger.Timeout.Duration)
	deps.Prover = ledger.NewRemoteProver(cfg.Ledger.ProvingURL, cfg.Ledger.Timeout.Duration)
	if cfg.Ledger.WsURL != "" {
		deps.Stream = ledger.NewStream(cfg.Ledger.WsURL, logger)
		closers = append(closers, func() { _ = deps.Stream.Close() })
	}

	// --- PostgreSQL (only for modes that need persistence) ---
	var (
		batchStore *postgres.BatchStore
		auditStore *postgres.AuditStore
	)
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

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		batchStore = postgres.NewBatchStore(pool)
		auditStore = postgres.NewAuditStore(pool)

		deps.MarketStore = postgres.NewMarketStore(pool)
		deps.StateStore = postgres.NewStateStore(pool)
		deps.BatchStore = batchStore
		deps.VoteStore = postgres.NewVoteStore(pool)
		deps.ConsensusStore = postgres.NewConsensusStore(pool)
		deps.NullifierStore = postgres.NewNullifierStore(pool)
		deps.AuditStore = auditStore
	}

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

	deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Redis.PriceTTL.Duration)
	deps.StateCache = redis.NewStateCache(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.Bus = events.NewBus(deps.SignalBus, logger)

	// --- S3 archival (optional) ---
	if cfg.Archive.Enabled && batchStore != nil {
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

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		reader := s3blob.NewReader(s3Client)
		deps.BlobReader = reader
		deps.BlobDeleter = reader
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, batchStore, auditStore, auditStore)
	}

	// --- Local private positions ---
	if needsPositions(cfg.Mode) {
		positions, err := privstate.Open(cfg.Positions.Path, cfg.Positions.Passphrase)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: position store: %w", err)
		}
		deps.Positions = positions
	}

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
