package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bodega-labs/bodegad/internal/domain"
)

// channelPrefix namespaces market event channels on the signal bus.
const channelPrefix = "bodega:events:"

// Filter selects which events a subscriber receives. Zero values match
// everything.
type Filter struct {
	MarketID string
	Kinds    []domain.EventKind
}

func (f Filter) matches(e domain.Event) bool {
	if f.MarketID != "" && e.Market() != f.MarketID {
		return false
	}
	if len(f.Kinds) == 0 {
		return true
	}
	for _, k := range f.Kinds {
		if e.Kind() == k {
			return true
		}
	}
	return false
}

// Bus publishes typed events and fans them out to filtered subscribers over
// the signal bus. Delivery is at-least-once per subscriber for events
// matching its filter; ordering across subscribers is unspecified.
type Bus struct {
	signals domain.SignalBus
	logger  *slog.Logger
}

// NewBus wraps a signal bus.
func NewBus(signals domain.SignalBus, logger *slog.Logger) *Bus {
	return &Bus{
		signals: signals,
		logger:  logger.With(slog.String("component", "event_bus")),
	}
}

// Publish encodes and broadcasts one event. Events for a market go to that
// market's channel; subscribers with a market filter listen there,
// wildcard subscribers listen on the pattern channel.
func (b *Bus) Publish(ctx context.Context, e domain.Event) error {
	data, err := Encode(e)
	if err != nil {
		return err
	}
	if err := b.signals.Publish(ctx, channelPrefix+e.Market(), data); err != nil {
		return fmt.Errorf("events: publish %s: %w", e.Kind(), err)
	}
	return nil
}

// Subscribe delivers matching events to callback until unsubscribe is
// called or ctx is cancelled. Undecodable payloads are logged and skipped;
// subscribers never see raw bus bytes.
func (b *Bus) Subscribe(ctx context.Context, filter Filter, callback func(domain.Event)) (func(), error) {
	channel := channelPrefix + "*"
	if filter.MarketID != "" {
		channel = channelPrefix + filter.MarketID
	}

	subCtx, cancel := context.WithCancel(ctx)
	ch, err := b.signals.Subscribe(subCtx, channel)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("events: subscribe %s: %w", channel, err)
	}

	go func() {
		for payload := range ch {
			e, err := Decode(payload)
			if err != nil {
				b.logger.WarnContext(subCtx, "dropping undecodable event",
					slog.String("channel", channel),
					slog.String("error", err.Error()),
				)
				continue
			}
			if filter.matches(e) {
				callback(e)
			}
		}
	}()

	return cancel, nil
}
