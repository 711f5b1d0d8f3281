package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bodega-labs/bodegad/internal/domain"
)

// Quote is a point-in-time YES/NO price pair. Prices always sum to 1 for a
// market with live reserves.
type Quote struct {
	MarketID string    `json:"market_id"`
	Yes      float64   `json:"yes"`
	No       float64   `json:"no"`
	AsOf     time.Time `json:"as_of"`
}

// PriceService serves derived prices: price cache first, then state cache,
// then the state store, refilling caches on the way back up.
type PriceService struct {
	prices domain.PriceCache
	states domain.MarketStateCache
	store  domain.MarketStateStore
	logger *slog.Logger
}

// NewPriceService creates a PriceService. Either cache may be nil, in which
// case that tier is skipped.
func NewPriceService(
	prices domain.PriceCache,
	states domain.MarketStateCache,
	store domain.MarketStateStore,
	logger *slog.Logger,
) *PriceService {
	return &PriceService{
		prices: prices,
		states: states,
		store:  store,
		logger: logger.With(slog.String("component", "price_service")),
	}
}

// Quote returns the current prices for a market.
func (s *PriceService) Quote(ctx context.Context, marketID string) (Quote, error) {
	if s.prices != nil {
		yes, no, ts, err := s.prices.GetPrices(ctx, marketID)
		if err == nil {
			return Quote{MarketID: marketID, Yes: yes, No: no, AsOf: ts}, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "price cache read failed",
				slog.String("market_id", marketID), slog.String("error", err.Error()))
		}
	}

	state, err := s.state(ctx, marketID)
	if err != nil {
		return Quote{}, err
	}

	yes, no := state.Prices()
	q := Quote{MarketID: marketID, Yes: yes, No: no, AsOf: state.LastTradeTime}
	if q.AsOf.IsZero() {
		q.AsOf = time.Now()
	}

	if s.prices != nil {
		if err := s.prices.SetPrices(ctx, marketID, yes, no, q.AsOf); err != nil {
			s.logger.WarnContext(ctx, "price cache fill failed",
				slog.String("market_id", marketID), slog.String("error", err.Error()))
		}
	}
	return q, nil
}

// Invalidate drops cached prices and state for a market. The AMM engine
// calls this after every applied batch.
func (s *PriceService) Invalidate(ctx context.Context, marketID string) {
	if s.prices != nil {
		if err := s.prices.Invalidate(ctx, marketID); err != nil {
			s.logger.WarnContext(ctx, "price cache invalidate failed",
				slog.String("market_id", marketID), slog.String("error", err.Error()))
		}
	}
	if s.states != nil {
		if err := s.states.Invalidate(ctx, marketID); err != nil {
			s.logger.WarnContext(ctx, "state cache invalidate failed",
				slog.String("market_id", marketID), slog.String("error", err.Error()))
		}
	}
}

func (s *PriceService) state(ctx context.Context, marketID string) (domain.MarketState, error) {
	if s.states != nil {
		state, err := s.states.Get(ctx, marketID)
		if err == nil {
			return state, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "state cache read failed",
				slog.String("market_id", marketID), slog.String("error", err.Error()))
		}
	}

	state, err := s.store.Get(ctx, marketID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.MarketState{}, domain.NewError(domain.CodeMarketNotFound,
				"no state for market", err).WithDetail("market_id", marketID)
		}
		return domain.MarketState{}, fmt.Errorf("service: load state %s: %w", marketID, err)
	}

	if s.states != nil {
		if err := s.states.Set(ctx, state); err != nil {
			s.logger.WarnContext(ctx, "state cache fill failed",
				slog.String("market_id", marketID), slog.String("error", err.Error()))
		}
	}
	return state, nil
}
