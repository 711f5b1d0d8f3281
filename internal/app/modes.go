package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bodega-labs/bodegad/internal/amm"
	"github.com/bodega-labs/bodegad/internal/batch"
	"github.com/bodega-labs/bodegad/internal/domain"
	"github.com/bodega-labs/bodegad/internal/events"
	"github.com/bodega-labs/bodegad/internal/notify"
	"github.com/bodega-labs/bodegad/internal/oracle"
	"github.com/bodega-labs/bodegad/internal/proof"
	"github.com/bodega-labs/bodegad/internal/server/handler"
	"github.com/bodega-labs/bodegad/internal/server/middleware"
	"github.com/bodega-labs/bodegad/internal/server/ws"
	"github.com/bodega-labs/bodegad/internal/service"
	"github.com/bodega-labs/bodegad/internal/settle"
)

// services bundles the built service layer for one mode. Bet and claim
// services are nil when the mode has no local position store.
type services struct {
	proofs  *proof.Manager
	engine  *amm.Engine
	batcher *batch.Batcher
	settler *settle.Settler
	markets *service.MarketService
	oracles *service.OracleService
	prices  *service.PriceService
	bets    *service.BetService
	claims  *service.ClaimService
}

// buildServices wires the engines and services for modes that run the full
// pipeline. The batcher's apply path folds each flushed batch into market
// state, drops the derived-price caches, and announces the batch on the bus.
func (a *App) buildServices(deps *Dependencies) *services {
	s := &services{}

	s.proofs = proof.NewManager(deps.Prover, a.cfg.Proof.MaxAttempts, a.cfg.Proof.Backoff.Duration, a.logger)
	s.engine = amm.NewEngine(deps.MarketStore, deps.StateStore, deps.BatchStore, deps.LockManager, deps.AuditStore, a.logger)
	s.prices = service.NewPriceService(deps.PriceCache, deps.StateCache, deps.StateStore, a.logger)

	apply := func(ctx context.Context, b domain.Batch) error {
		if err := s.engine.ApplyBatch(ctx, b); err != nil {
			return err
		}
		s.prices.Invalidate(ctx, b.MarketID)

		ev := domain.BatchAppliedEvent{
			MarketID:      b.MarketID,
			BatchID:       b.ID,
			Root:          b.Root,
			PositionCount: b.PositionCount,
			At:            b.Timestamp,
		}
		if st, err := deps.StateStore.Get(ctx, b.MarketID); err == nil {
			ev.BatchCounter = st.BatchCounter
		}
		if err := deps.Bus.Publish(ctx, ev); err != nil {
			a.logger.WarnContext(ctx, "publish batch event failed",
				slog.String("batch_id", b.ID),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}
	s.batcher = batch.New(batch.Config{
		MaxPositions: a.cfg.Batch.MaxPositions,
		Window:       a.cfg.Batch.Window.Duration,
		FlushTick:    a.cfg.Batch.FlushTick.Duration,
	}, apply, a.logger)

	consensus := oracle.NewEngine(deps.VoteStore, deps.ConsensusStore, oracle.Config{
		BaseThresholdPct:     a.cfg.Oracle.BaseThresholdPct,
		DisputeEscalationPct: a.cfg.Oracle.DisputeEscalationPct,
		MaxThresholdPct:      a.cfg.Oracle.MaxThresholdPct,
		MinOracles:           a.cfg.Oracle.MinOracles,
	}, a.logger)
	s.settler = settle.NewSettler(
		deps.MarketStore, deps.StateStore, deps.ConsensusStore, deps.NullifierStore,
		deps.Prover, settle.Config{MaxPayoutRatio: a.cfg.Settlement.MaxPayoutRatio}, a.logger,
	)

	minBond, ok := new(big.Int).SetString(a.cfg.Market.MinCreatorBond, 10)
	if !ok {
		minBond = nil
	}
	s.markets = service.NewMarketService(
		deps.MarketStore, s.engine, deps.Ledger, deps.Addresses, deps.Bus, minBond, a.logger,
	)
	s.oracles = service.NewOracleService(
		consensus, s.engine, deps.MarketStore, deps.Ledger, deps.Addresses, deps.Bus, a.logger,
	)

	if deps.Positions != nil {
		s.bets = service.NewBetService(
			deps.MarketStore, s.proofs, s.batcher, deps.Positions, deps.Ledger, deps.Addresses, a.logger,
		)
		s.claims = service.NewClaimService(
			deps.Positions, s.settler, s.proofs, s.oracles, deps.Ledger, deps.Addresses, deps.Bus, a.logger,
		)
	}

	return s
}

// startCore launches the goroutines every pipeline mode shares: batch
// flushing, settlement guard expiry, and the ledger event stream.
func (a *App) startCore(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	g.Go(func() error {
		return svcs.batcher.Run(ctx)
	})
	g.Go(func() error {
		return svcs.settler.RunGuardCleanup(ctx)
	})
	a.startStream(ctx, g, deps)
	a.startRelay(ctx, deps)
}

// startStream runs the ledger event stream and republishes its events onto
// the local bus so the relay and WebSocket hub see remote activity too.
func (a *App) startStream(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Stream == nil {
		return
	}
	deps.Stream.OnEvent(func(ev domain.Event) {
		if err := deps.Bus.Publish(ctx, ev); err != nil {
			a.logger.WarnContext(ctx, "republish stream event failed",
				slog.String("kind", string(ev.Kind())),
				slog.String("error", err.Error()),
			)
		}
	})
	g.Go(func() error {
		return deps.Stream.Run(ctx)
	})
}

// startRelay forwards bus events to the configured notification channels.
func (a *App) startRelay(ctx context.Context, deps *Dependencies) {
	relay := notify.NewEventRelay(deps.Notifier)
	if _, err := deps.Bus.Subscribe(ctx, events.Filter{}, relay.Handle); err != nil {
		a.logger.WarnContext(ctx, "event relay subscription failed",
			slog.String("error", err.Error()),
		)
	}
}

// startArchiver periodically moves processed batches and aged audit rows to
// cold storage.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour
	interval := a.cfg.Archive.Interval.Duration

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				before := time.Now().Add(-retention)
				if n, err := deps.Archiver.ArchiveBatches(ctx, before); err != nil {
					a.logger.WarnContext(ctx, "batch archival failed", slog.String("error", err.Error()))
				} else if n > 0 {
					a.logger.InfoContext(ctx, "batches archived", slog.Int64("count", n))
				}
				if n, err := deps.Archiver.ArchiveAuditLog(ctx, before); err != nil {
					a.logger.WarnContext(ctx, "audit archival failed", slog.String("error", err.Error()))
				} else if n > 0 {
					a.logger.InfoContext(ctx, "audit rows archived", slog.Int64("count", n))
				}
			}
		}
	})
}

// EngineMode runs the market pipeline: batch application, lifecycle sweeps,
// oracle consensus, settlement, archival, and the operator API.
func (a *App) EngineMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting engine mode")

	g, ctx := errgroup.WithContext(ctx)
	svcs := a.buildServices(deps)

	a.startCore(ctx, g, deps, svcs)
	g.Go(func() error {
		return svcs.markets.RunLifecycleSweep(ctx, a.cfg.Market.SweepInterval.Duration)
	})
	a.startArchiver(ctx, g, deps)

	if a.cfg.Server.Enabled {
		a.startAPIServer(ctx, g, deps, svcs)
	}

	return g.Wait()
}

// ClientMode places bets and claims against the ledger while mirroring
// market state locally. Lifecycle sweeps and archival stay with the engine.
func (a *App) ClientMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting client mode")

	g, ctx := errgroup.WithContext(ctx)
	svcs := a.buildServices(deps)

	a.startCore(ctx, g, deps, svcs)

	if a.cfg.Server.Enabled {
		a.startAPIServer(ctx, g, deps, svcs)
	}

	return g.Wait()
}

// MonitorMode follows the ledger event stream read-only and serves the
// WebSocket feed. No database is attached.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startStream(ctx, g, deps)
	a.startRelay(ctx, deps)

	// The API surface shrinks to liveness, status, and the event feed.
	a.startAPIServer(ctx, g, deps, nil)

	return g.Wait()
}

// FullMode runs every subsystem in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	svcs := a.buildServices(deps)

	a.startCore(ctx, g, deps, svcs)
	g.Go(func() error {
		return svcs.markets.RunLifecycleSweep(ctx, a.cfg.Market.SweepInterval.Duration)
	})
	a.startArchiver(ctx, g, deps)
	a.startAPIServer(ctx, g, deps, svcs)

	return g.Wait()
}

// startAPIServer mounts the HTTP API. Handlers register only when their
// backing services exist, so the same server serves every mode.
func (a *App) startAPIServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	addr := fmt.Sprintf(":%d", a.cfg.Server.Port)

	mux := http.NewServeMux()

	health := handler.NewHealthHandler(a.logger)
	mux.HandleFunc("GET /api/health", health.HealthCheck)

	statusH := handler.NewStatusHandler(a.cfg.Mode)
	mux.HandleFunc("GET /api/status", statusH.GetStatus)

	hub := ws.NewHub(deps.SignalBus, a.cfg.Mode, a.logger)
	mux.HandleFunc("GET /ws", hub.HandleWS)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	if svcs != nil {
		mh := handler.NewMarketHandler(svcs.markets, a.logger)
		mux.HandleFunc("POST /api/markets", mh.CreateMarket)
		mux.HandleFunc("GET /api/markets", mh.ListMarkets)
		mux.HandleFunc("GET /api/markets/{id}", mh.GetMarket)
		mux.HandleFunc("POST /api/markets/{id}/activate", mh.ActivateMarket)
		mux.HandleFunc("POST /api/markets/{id}/cancel", mh.CancelMarket)

		oh := handler.NewOracleHandler(svcs.oracles, a.logger)
		mux.HandleFunc("POST /api/markets/{id}/votes", oh.SubmitVote)
		mux.HandleFunc("POST /api/markets/{id}/tally", oh.Tally)
		mux.HandleFunc("POST /api/markets/{id}/disputes", oh.OpenDispute)
		mux.HandleFunc("GET /api/markets/{id}/result", oh.GetResult)

		ph := handler.NewPriceHandler(svcs.prices)
		mux.HandleFunc("GET /api/markets/{id}/price", ph.GetQuote)

		if svcs.bets != nil {
			bh := handler.NewBetHandler(svcs.bets, a.cfg.Identity.UserID, a.logger)
			mux.HandleFunc("POST /api/markets/{id}/bets", bh.PlaceBet)
			mux.HandleFunc("GET /api/markets/{id}/positions", bh.ListPositions)
		}
		if svcs.claims != nil {
			ch := handler.NewClaimHandler(svcs.claims, a.cfg.Identity.Address, a.logger)
			mux.HandleFunc("POST /api/positions/{id}/claim", ch.Claim)
			mux.HandleFunc("GET /api/positions/{id}/claimable", ch.ClaimableRatio)
		}
	}

	// Middleware chain: rate limit, then auth, then CORS, then logging.
	var h http.Handler = mux
	if a.cfg.Server.RateLimit > 0 && deps.RateLimiter != nil {
		h = middleware.RateLimit(deps.RateLimiter, a.cfg.Server.RateLimit, time.Minute)(h)
	}
	if a.cfg.Server.APIKey != "" {
		h = middleware.Auth(a.cfg.Server.APIKey)(h)
	}
	if len(a.cfg.Server.CORSOrigins) > 0 {
		h = middleware.CORS(a.cfg.Server.CORSOrigins)(h)
	}
	h = middleware.Logging(a.logger)(h)

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.logger.InfoContext(ctx, "HTTP server shutting down")
		return srv.Shutdown(shutCtx)
	})
}
