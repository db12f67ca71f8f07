package kucoin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/alphasquare/triarb/internal/bus"
	"github.com/alphasquare/triarb/internal/domain"
)

const (
	// writeWait is the time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// handshakeTimeout bounds the WS dial.
	handshakeTimeout = 15 * time.Second

	// reconnectDelay is the pause before redialing after a dropped session.
	reconnectDelay = 2 * time.Second

	// level2BatchSize is how many symbols share one subscribe frame; the
	// exchange caps topic length, not subscription count.
	level2BatchSize = 50
)

// TokenSource provides a fresh WS endpoint+token; tokens are single-use, so
// every (re)connect asks again.
type TokenSource interface {
	WebSocketEndpoint(ctx context.Context) (endpoint, token string, pingIntervalMs int64, err error)
}

// Session owns one market-data WebSocket connection. It subscribes to the
// level-2 topic for its symbols, seeds each symbol with a REST snapshot, and
// publishes raw OrderbookEvents to the out bus. It reconnects on transport
// errors; only a failed publish (bus closed) terminates the session, which
// the supervisor treats as fatal.
type Session struct {
	tokens    TokenSource
	snapshots SnapshotSource
	symbols   []string
	out       *bus.Bus[domain.OrderbookEvent]
	logger    *slog.Logger
}

// SnapshotSource fetches a full REST order-book snapshot for one symbol.
type SnapshotSource interface {
	OrderbookSnapshot(ctx context.Context, symbol string) (*domain.Orderbook, error)
}

// NewSession creates a Session for the given symbols.
func NewSession(tokens TokenSource, snapshots SnapshotSource, symbols []string, out *bus.Bus[domain.OrderbookEvent], logger *slog.Logger) *Session {
	return &Session{
		tokens:    tokens,
		snapshots: snapshots,
		symbols:   symbols,
		out:       out,
		logger:    logger.With(slog.String("component", "kucoin_ws")),
	}
}

// Run connects and streams until ctx is cancelled or the out bus rejects a
// publish. Transport errors trigger a reconnect with a fresh token.
func (s *Session) Run(ctx context.Context) error {
	if len(s.symbols) == 0 {
		return fmt.Errorf("kucoin/ws: no symbols to subscribe")
	}
	for {
		err := s.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			return nil
		}
		if !isTransport(err) {
			return err
		}
		s.logger.Warn("websocket session dropped, reconnecting",
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

// transportError marks errors that warrant a reconnect rather than a fatal
// exit.
type transportError struct{ err error }

func (e transportError) Error() string { return e.err.Error() }
func (e transportError) Unwrap() error { return e.err }

func isTransport(err error) bool {
	var te transportError
	return errors.As(err, &te)
}

func (s *Session) runConnection(ctx context.Context) error {
	endpoint, token, pingIntervalMs, err := s.tokens.WebSocketEndpoint(ctx)
	if err != nil {
		return transportError{fmt.Errorf("kucoin/ws: token: %w", err)}
	}

	connectID := uuid.New().String()
	url := fmt.Sprintf("%s?token=%s&connectId=%s", endpoint, token, connectID)

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return transportError{fmt.Errorf("kucoin/ws: dial: %w", err)}
	}
	defer conn.Close()

	// Close the connection when ctx ends so ReadJSON unblocks.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := s.awaitWelcome(conn); err != nil {
		return transportError{err}
	}
	if err := s.subscribeLevel2(conn); err != nil {
		return transportError{err}
	}
	s.logger.Info("websocket subscribed",
		slog.Int("symbols", len(s.symbols)),
		slog.String("connect_id", connectID),
	)

	// Seed every symbol with a REST snapshot now that deltas are flowing;
	// the merge engine's sequence check reconciles the overlap.
	if err := s.publishSnapshots(ctx); err != nil {
		return err
	}

	pingInterval := time.Duration(pingIntervalMs) * time.Millisecond
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	// Writer goroutine for pings; gorilla allows one concurrent writer only.
	pingErr := make(chan error, 1)
	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go func() {
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-pingTicker.C:
				frame := wsEnvelope{ID: uuid.New().String(), Type: wsTypePing}
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(frame); err != nil {
					pingErr <- err
					return
				}
			}
		}
	}()

	for {
		select {
		case err := <-pingErr:
			return transportError{fmt.Errorf("kucoin/ws: ping: %w", err)}
		default:
		}

		var env wsEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return transportError{fmt.Errorf("kucoin/ws: read: %w", err)}
		}
		if err := s.handleFrame(ctx, &env); err != nil {
			return err
		}
	}
}

// awaitWelcome reads the server's welcome frame.
func (s *Session) awaitWelcome(conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})

	var env wsEnvelope
	if err := conn.ReadJSON(&env); err != nil {
		return fmt.Errorf("kucoin/ws: welcome: %w", err)
	}
	if env.Type != wsTypeWelcome {
		return fmt.Errorf("kucoin/ws: expected welcome, got %q", env.Type)
	}
	return nil
}

// subscribeLevel2 sends subscribe frames for the session's symbols in
// batches.
func (s *Session) subscribeLevel2(conn *websocket.Conn) error {
	for start := 0; start < len(s.symbols); start += level2BatchSize {
		end := start + level2BatchSize
		if end > len(s.symbols) {
			end = len(s.symbols)
		}
		cmd := wsSubscribeCommand{
			ID:       uuid.New().String(),
			Type:     wsTypeSubscribe,
			Topic:    "/market/level2:" + strings.Join(s.symbols[start:end], ","),
			Response: true,
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(cmd); err != nil {
			return fmt.Errorf("kucoin/ws: subscribe: %w", err)
		}
	}
	return nil
}

// publishSnapshots fetches and publishes a Received event per symbol.
func (s *Session) publishSnapshots(ctx context.Context) error {
	for _, symbol := range s.symbols {
		snap, err := s.snapshots.OrderbookSnapshot(ctx, symbol)
		if err != nil {
			// A missing snapshot only delays this symbol; deltas for it will
			// be dropped by the sync task until a later resync succeeds.
			s.logger.Warn("snapshot fetch failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
			continue
		}
		ev := domain.OrderbookEvent{
			Kind:   domain.OrderbookReceived,
			Symbol: symbol,
			Book:   snap,
		}
		if err := s.out.Publish(ctx, ev); err != nil {
			return fmt.Errorf("kucoin/ws: publish snapshot %s: %w", symbol, err)
		}
	}
	return nil
}

// handleFrame dispatches one inbound frame. Malformed payloads are logged and
// dropped; only bus failures propagate.
func (s *Session) handleFrame(ctx context.Context, env *wsEnvelope) error {
	switch env.Type {
	case wsTypePong, wsTypeAck, wsTypeWelcome:
		return nil
	case wsTypeError:
		s.logger.Error("websocket error frame", slog.String("data", string(env.Data)))
		return nil
	case wsTypeMessage:
	default:
		s.logger.Debug("ignoring frame", slog.String("type", env.Type))
		return nil
	}

	if env.Subject != level2Subject {
		return nil
	}
	var update level2Update
	if err := json.Unmarshal(env.Data, &update); err != nil {
		s.logger.Error("malformed l2update dropped",
			slog.String("topic", env.Topic),
			slog.String("error", err.Error()),
		)
		return nil
	}
	ev, err := update.deltaEvent()
	if err != nil {
		s.logger.Error("unparseable l2update dropped",
			slog.String("symbol", update.Symbol),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if err := s.out.Publish(ctx, ev); err != nil {
		return fmt.Errorf("kucoin/ws: publish delta %s: %w", update.Symbol, err)
	}
	return nil
}
