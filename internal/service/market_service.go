// Package service orchestrates the engines, stores, and the ledger boundary
// into the operations callers actually invoke.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/bodega-labs/bodegad/internal/amm"
	"github.com/bodega-labs/bodegad/internal/domain"
	"github.com/bodega-labs/bodegad/internal/events"
	"github.com/bodega-labs/bodegad/internal/ledger"
)

// MarketService drives market creation and lifecycle against the contract
// and mirrors the results into local stores.
type MarketService struct {
	markets   domain.MarketStore
	engine    *amm.Engine
	ledger    ledger.Client
	addresses ledger.Addresses
	bus       *events.Bus
	minBond   *big.Int
	logger    *slog.Logger
}

// NewMarketService creates a MarketService.
func NewMarketService(
	markets domain.MarketStore,
	engine *amm.Engine,
	lc ledger.Client,
	addresses ledger.Addresses,
	bus *events.Bus,
	minBond *big.Int,
	logger *slog.Logger,
) *MarketService {
	if minBond == nil {
		minBond = new(big.Int)
	}
	return &MarketService{
		markets:   markets,
		engine:    engine,
		ledger:    lc,
		addresses: addresses,
		bus:       bus,
		minBond:   minBond,
		logger:    logger.With(slog.String("component", "market_service")),
	}
}

// CreateMarketParams collects the caller-supplied market definition.
type CreateMarketParams struct {
	Question           string
	Description        string
	ResolutionCriteria string
	Creator            string
	EndTime            time.Time
	ResolutionDeadline time.Time
	ChallengePeriodEnd time.Time
	CreatorBond        *big.Int
	MinLiquidity       *big.Int
}

// CreateMarket validates the definition, posts it to the market factory
// contract, and records the CREATED market locally. Validation happens
// before the contract call so a bad definition never costs a transaction.
func (s *MarketService) CreateMarket(ctx context.Context, p CreateMarketParams) (domain.Market, error) {
	now := time.Now()
	m := domain.Market{
		ID:                 uuid.New().String(),
		Question:           p.Question,
		Description:        p.Description,
		ResolutionCriteria: p.ResolutionCriteria,
		Creator:            p.Creator,
		EndTime:            p.EndTime,
		ResolutionDeadline: p.ResolutionDeadline,
		ChallengePeriodEnd: p.ChallengePeriodEnd,
		CreatorBond:        p.CreatorBond,
		MinLiquidity:       p.MinLiquidity,
		Status:             domain.MarketStatusCreated,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if m.CreatorBond == nil {
		m.CreatorBond = new(big.Int)
	}
	if m.MinLiquidity == nil {
		m.MinLiquidity = new(big.Int)
	}

	if err := amm.ValidateNewMarket(m, s.minBond, now); err != nil {
		return domain.Market{}, err
	}

	_, err := s.ledger.Submit(ctx, s.addresses.MarketFactory, "createMarket", map[string]any{
		"marketId":           m.ID,
		"question":           m.Question,
		"resolutionCriteria": m.ResolutionCriteria,
		"creator":            m.Creator,
		"endTime":            m.EndTime.Unix(),
		"resolutionDeadline": m.ResolutionDeadline.Unix(),
		"challengePeriodEnd": m.ChallengePeriodEnd.Unix(),
		"creatorBond":        m.CreatorBond.String(),
	})
	if err != nil {
		return domain.Market{}, fmt.Errorf("service: create market on ledger: %w", err)
	}

	if err := s.markets.Create(ctx, m); err != nil {
		return domain.Market{}, fmt.Errorf("service: record market %s: %w", m.ID, err)
	}

	s.publish(ctx, domain.MarketCreatedEvent{
		MarketID: m.ID,
		Creator:  m.Creator,
		Question: m.Question,
		EndTime:  m.EndTime,
		At:       now,
	})

	s.logger.InfoContext(ctx, "market created",
		slog.String("market_id", m.ID),
		slog.String("creator", m.Creator),
	)
	return m, nil
}

// Activate funds the market with initial liquidity and opens trading.
func (s *MarketService) Activate(ctx context.Context, marketID string, liquidity *big.Int) (domain.Market, error) {
	_, err := s.ledger.Submit(ctx, s.addresses.PredictionMarket, "activateMarket", map[string]any{
		"marketId":  marketID,
		"liquidity": liquidity.String(),
	})
	if err != nil {
		return domain.Market{}, fmt.Errorf("service: activate market on ledger: %w", err)
	}

	m, err := s.engine.Activate(ctx, marketID, liquidity)
	if err != nil {
		return domain.Market{}, err
	}
	s.publishTransition(ctx, m, domain.MarketStatusCreated)
	return m, nil
}

// Cancel aborts a market on behalf of its creator.
func (s *MarketService) Cancel(ctx context.Context, marketID, caller string) (domain.Market, error) {
	from, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.Market{}, domain.NewError(domain.CodeMarketNotFound, "market not found", err).
			WithDetail("market_id", marketID)
	}

	m, err := s.engine.Cancel(ctx, marketID, caller)
	if err != nil {
		return domain.Market{}, err
	}
	if _, err := s.ledger.Submit(ctx, s.addresses.PredictionMarket, "cancelMarket", map[string]any{
		"marketId": marketID,
		"caller":   caller,
	}); err != nil {
		return m, fmt.Errorf("service: cancel market on ledger: %w", err)
	}
	s.publishTransition(ctx, m, from.Status)
	return m, nil
}

// End closes trading on a market whose end time has passed. Called by the
// lifecycle sweep.
func (s *MarketService) End(ctx context.Context, marketID string, now time.Time) (domain.Market, error) {
	m, err := s.engine.End(ctx, marketID, now)
	if err != nil {
		return domain.Market{}, err
	}
	s.publishTransition(ctx, m, domain.MarketStatusActive)
	return m, nil
}

// Settle finalizes a resolved market once its challenge period closes.
func (s *MarketService) Settle(ctx context.Context, marketID string, now time.Time) (domain.Market, error) {
	m, err := s.engine.Settle(ctx, marketID, now)
	if err != nil {
		return domain.Market{}, err
	}
	if _, err := s.ledger.Submit(ctx, s.addresses.PredictionMarket, "settleMarket", map[string]any{
		"marketId": marketID,
	}); err != nil {
		return m, fmt.Errorf("service: settle market on ledger: %w", err)
	}
	s.publishTransition(ctx, m, domain.MarketStatusResolved)
	return m, nil
}

// SweepLifecycle advances markets whose clocks have run out: ACTIVE markets
// past their end time are ended, RESOLVED markets past their challenge
// period settle, and markets past their resolution deadline without an
// outcome expire.
func (s *MarketService) SweepLifecycle(ctx context.Context, now time.Time) {
	active, err := s.markets.ListByStatus(ctx, domain.MarketStatusActive, domain.ListOpts{})
	if err != nil {
		s.logger.ErrorContext(ctx, "lifecycle sweep: list active", slog.String("error", err.Error()))
	}
	for _, m := range active {
		if now.Before(m.EndTime) {
			continue
		}
		if _, err := s.End(ctx, m.ID, now); err != nil {
			s.logger.WarnContext(ctx, "lifecycle sweep: end failed",
				slog.String("market_id", m.ID), slog.String("error", err.Error()))
		}
	}

	resolved, err := s.markets.ListByStatus(ctx, domain.MarketStatusResolved, domain.ListOpts{})
	if err != nil {
		s.logger.ErrorContext(ctx, "lifecycle sweep: list resolved", slog.String("error", err.Error()))
	}
	for _, m := range resolved {
		if now.Before(m.ChallengePeriodEnd) {
			continue
		}
		if _, err := s.Settle(ctx, m.ID, now); err != nil {
			s.logger.WarnContext(ctx, "lifecycle sweep: settle failed",
				slog.String("market_id", m.ID), slog.String("error", err.Error()))
		}
	}

	overdue, err := s.markets.ListResolutionOverdue(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "lifecycle sweep: list overdue", slog.String("error", err.Error()))
		return
	}
	for _, m := range overdue {
		if m.Status != domain.MarketStatusActive && m.Status != domain.MarketStatusEnded {
			continue
		}
		from := m.Status
		expired, err := s.engine.Expire(ctx, m.ID, now)
		if err != nil {
			s.logger.WarnContext(ctx, "lifecycle sweep: expire failed",
				slog.String("market_id", m.ID), slog.String("error", err.Error()))
			continue
		}
		s.publishTransition(ctx, expired, from)
	}
}

// RunLifecycleSweep runs SweepLifecycle on the given interval until ctx is
// cancelled.
func (s *MarketService) RunLifecycleSweep(ctx context.Context, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.SweepLifecycle(ctx, now)
		}
	}
}

// GetMarket returns a market by id.
func (s *MarketService) GetMarket(ctx context.Context, marketID string) (domain.Market, error) {
	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.Market{}, domain.NewError(domain.CodeMarketNotFound, "market not found", err).
			WithDetail("market_id", marketID)
	}
	return m, nil
}

// ListMarkets returns markets in the given lifecycle state.
func (s *MarketService) ListMarkets(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	return s.markets.ListByStatus(ctx, status, opts)
}

func (s *MarketService) publishTransition(ctx context.Context, m domain.Market, from domain.MarketStatus) {
	s.publish(ctx, domain.MarketStatusChangedEvent{
		MarketID: m.ID,
		From:     from,
		To:       m.Status,
		At:       m.UpdatedAt,
	})
}

func (s *MarketService) publish(ctx context.Context, e domain.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "event publish failed",
			slog.String("kind", string(e.Kind())),
			slog.String("error", err.Error()),
		)
	}
}
