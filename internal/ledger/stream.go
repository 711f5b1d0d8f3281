package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bodega-labs/bodegad/internal/domain"
	"github.com/bodega-labs/bodegad/internal/events"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	reconnectBase  = time.Second
	reconnectMax   = 30 * time.Second
	maxMessageSize = 1 << 20
)

// EventHandler receives decoded contract events.
type EventHandler func(domain.Event)

// Stream maintains a websocket subscription to the node's contract event
// feed. It reconnects with exponential backoff and restores subscriptions
// after every reconnect.
type Stream struct {
	url    string
	logger *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	markets map[string]struct{}

	handlerMu sync.RWMutex
	handlers  []EventHandler

	done chan struct{}
	once sync.Once
}

// NewStream creates an event stream for the given websocket endpoint.
func NewStream(url string, logger *slog.Logger) *Stream {
	return &Stream{
		url:     url,
		logger:  logger.With("component", "ledger_stream"),
		markets: make(map[string]struct{}),
		done:    make(chan struct{}),
	}
}

// OnEvent registers a handler invoked for every decoded event.
func (s *Stream) OnEvent(h EventHandler) {
	s.handlerMu.Lock()
	s.handlers = append(s.handlers, h)
	s.handlerMu.Unlock()
}

// Subscribe adds a market to the subscription set. If connected, the
// subscription command is sent immediately.
func (s *Stream) Subscribe(marketID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets[marketID] = struct{}{}
	if s.conn == nil {
		return nil
	}
	return s.sendCommand(map[string]any{"op": "subscribe", "market_id": marketID})
}

// Unsubscribe removes a market from the subscription set.
func (s *Stream) Unsubscribe(marketID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markets, marketID)
	if s.conn == nil {
		return nil
	}
	return s.sendCommand(map[string]any{"op": "unsubscribe", "market_id": marketID})
}

// Run connects and processes events until the context is cancelled.
func (s *Stream) Run(ctx context.Context) error {
	backoff := reconnectBase
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		default:
		}

		if err := s.connect(ctx); err != nil {
			s.logger.Warn("connect failed, retrying",
				"error", err, "backoff", backoff.String())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > reconnectMax {
				backoff = reconnectMax
			}
			continue
		}
		backoff = reconnectBase

		err := s.readLoop(ctx)
		s.closeConn()
		if err != nil && ctx.Err() == nil {
			s.logger.Warn("stream disconnected, reconnecting", "error", err)
		}
	}
}

// Close shuts the stream down permanently.
func (s *Stream) Close() error {
	s.once.Do(func() { close(s.done) })
	s.closeConn()
	return nil
}

func (s *Stream) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: writeWait}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("ledger: dial %s: %w", s.url, err)
	}
	conn.SetReadLimit(maxMessageSize)

	s.mu.Lock()
	s.conn = conn
	restore := make([]string, 0, len(s.markets))
	for id := range s.markets {
		restore = append(restore, id)
	}
	for _, id := range restore {
		if err := s.sendCommand(map[string]any{"op": "subscribe", "market_id": id}); err != nil {
			s.mu.Unlock()
			conn.Close()
			return fmt.Errorf("ledger: restore subscription %s: %w", id, err)
		}
	}
	s.mu.Unlock()

	s.logger.Info("connected", "url", s.url, "subscriptions", len(restore))
	return nil
}

// sendCommand writes a JSON command. Callers must hold s.mu.
func (s *Stream) sendCommand(cmd map[string]any) error {
	if s.conn == nil {
		return fmt.Errorf("ledger: stream not connected")
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("ledger: write command: %w", err)
	}
	return nil
}

func (s *Stream) readLoop(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("ledger: stream not connected")
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go s.pingLoop(pingCtx, conn)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("ledger: read: %w", err)
		}
		s.dispatch(raw)
	}
}

func (s *Stream) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Stream) dispatch(raw []byte) {
	ev, err := events.Decode(raw)
	if err != nil {
		s.logger.Warn("undecodable event", "error", err, "size", len(raw))
		return
	}
	if u, ok := ev.(domain.UnknownEvent); ok {
		s.logger.Debug("unknown event kind", "kind", u.RawKind)
	}

	s.handlerMu.RLock()
	handlers := make([]EventHandler, len(s.handlers))
	copy(handlers, s.handlers)
	s.handlerMu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

func (s *Stream) closeConn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.conn.Close()
	s.conn = nil
}
