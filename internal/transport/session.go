// Package transport maintains the single websocket session to the
// matchmaking orchestrator: connect, authenticate, dispatch inbound frames,
// and reconnect with linear-capped backoff.
package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/deyoyk/RankedBedwarsV2/internal/config"
	"github.com/deyoyk/RankedBedwarsV2/internal/protocol"
)

// State is the connection state of the session.
type State int

const (
	Disconnected State = iota
	Connecting
	Authenticating
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Authenticating:
		return "authenticating"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// ErrDisconnected is returned by Send when no connection is up. The frame is
// dropped, never queued: delivery is at most once by design of the wire
// contract, and the orchestrator resynchronizes from snapshots after
// reconnect.
var ErrDisconnected = errors.New("session disconnected")

// Handler consumes inbound frames. The message router implements this.
type Handler interface {
	Dispatch(ctx context.Context, raw []byte)
}

// OperatorNotifier delivers out-of-band alerts to server operators.
type OperatorNotifier interface {
	BroadcastOperators(message string)
}

// Snapshot is a point-in-time view of the session for diagnostics.
type Snapshot struct {
	State             State
	ReconnectAttempts int
}

// Session is the websocket client session. There is exactly one per process.
type Session struct {
	cfg       config.OrchestratorConfig
	logger    *zap.Logger
	handler   Handler
	operators OperatorNotifier

	// OnAuthenticated runs after every successful authentication; the
	// composition root uses it to resend the server status, permission,
	// and arena snapshots.
	OnAuthenticated func(ctx context.Context)

	mu                 sync.Mutex
	conn               *websocket.Conn
	state              State
	attempts           int
	reconnectScheduled bool
	stopped            bool
	ctx                context.Context

	writeMu sync.Mutex

	pingMu  sync.Mutex
	pending map[string]time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewSession creates a session. It does not connect until Start.
//
// Precondition: handler, operators, and logger must be non-nil.
func NewSession(cfg config.OrchestratorConfig, handler Handler, operators OperatorNotifier, logger *zap.Logger) *Session {
	return &Session{
		cfg:       cfg,
		logger:    logger,
		handler:   handler,
		operators: operators,
		pending:   make(map[string]time.Time),
		stopCh:    make(chan struct{}),
	}
}

// Start connects to the orchestrator and blocks until Stop or context
// cancellation. Reconnects happen on their own timers; Start does not
// return on connection loss.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.connect(ctx)

	select {
	case <-s.stopCh:
	case <-ctx.Done():
	}
	s.closeConn()
	return nil
}

// Stop terminates the session and suppresses further reconnects.
func (s *Session) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.closeConn()
}

// Snapshot returns the current connection state and attempt counter.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{State: s.state, ReconnectAttempts: s.attempts}
}

// ResetReconnectState clears the attempt counter so an operator can restart
// retries after the automatic budget was exhausted. If the session is
// disconnected a fresh connect is kicked off immediately.
func (s *Session) ResetReconnectState() {
	s.mu.Lock()
	s.attempts = 0
	s.reconnectScheduled = false
	disconnected := s.state == Disconnected && !s.stopped
	ctx := s.ctx
	s.mu.Unlock()

	s.logger.Info("reconnect state reset")
	if disconnected && ctx != nil {
		go s.connect(ctx)
	}
}

// Send encodes and writes a message. While disconnected the frame is dropped
// (at most once delivery), operators are alerted, and a reconnect is
// scheduled if one is not already pending.
func (s *Session) Send(msg protocol.Message) error {
	s.mu.Lock()
	conn := s.conn
	connected := s.state == Connected
	ctx := s.ctx
	s.mu.Unlock()

	if !connected || conn == nil {
		s.logger.Warn("dropping frame, session disconnected",
			zap.String("kind", msg.Type()),
		)
		s.operators.BroadcastOperators("Orchestrator link is down, dropped a " + msg.Type() + " message")
		if ctx != nil {
			s.scheduleReconnect(ctx)
		}
		return ErrDisconnected
	}
	return s.writeFrame(conn, msg)
}

// SendPing sends a latency probe and returns its generated ping id.
func (s *Session) SendPing() (string, error) {
	id := uuid.NewString()
	now := time.Now()
	s.pingMu.Lock()
	s.pending[id] = now
	s.pingMu.Unlock()

	if err := s.Send(protocol.Ping{PingID: id, Timestamp: now.UnixMilli()}); err != nil {
		s.pingMu.Lock()
		delete(s.pending, id)
		s.pingMu.Unlock()
		return "", err
	}
	return id, nil
}

// HandlePong resolves an outstanding latency probe and returns the measured
// round trip.
func (s *Session) HandlePong(pingID string) (time.Duration, bool) {
	s.pingMu.Lock()
	defer s.pingMu.Unlock()
	sent, ok := s.pending[pingID]
	if !ok {
		return 0, false
	}
	delete(s.pending, pingID)
	return time.Since(sent), true
}

func (s *Session) writeFrame(conn *websocket.Conn, msg protocol.Message) error {
	raw, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		s.logger.Error("write failed",
			zap.String("kind", msg.Type()),
			zap.Error(err),
		)
		s.onConnectionLost()
		return err
	}
	return nil
}

func (s *Session) connect(ctx context.Context) {
	s.mu.Lock()
	if s.stopped || s.state != Disconnected {
		s.mu.Unlock()
		return
	}
	s.state = Connecting
	s.reconnectScheduled = false
	s.mu.Unlock()

	url := s.cfg.URL()
	s.logger.Info("connecting to orchestrator", zap.String("url", url))

	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.ConnectTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		s.logger.Error("connection failed",
			zap.String("url", url),
			zap.String("cause", classify(err)),
			zap.Error(err),
		)
		s.mu.Lock()
		s.state = Disconnected
		s.mu.Unlock()
		s.scheduleReconnect(ctx)
		return
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = conn
	s.state = Authenticating
	s.mu.Unlock()

	if err := s.writeFrame(conn, protocol.Auth{AuthKey: s.cfg.AuthKey}); err != nil {
		// No read loop is running yet, so nothing else will notice this
		// connection died; the retry has to be scheduled here.
		s.scheduleReconnect(ctx)
		return
	}
	go s.readLoop(ctx, conn)
}

func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			stopped := s.stopped
			if s.conn == conn {
				s.conn.Close()
				s.conn = nil
				s.state = Disconnected
			}
			s.mu.Unlock()
			if !stopped {
				s.logger.Warn("connection lost", zap.Error(err))
				// scheduleReconnect no-ops unless the session is actually
				// disconnected, so a stale read loop cannot double-schedule.
				s.scheduleReconnect(ctx)
			}
			return
		}
		s.handleFrame(ctx, raw)
	}
}

// handleFrame intercepts authentication results; everything else goes to the
// router on its own goroutine.
func (s *Session) handleFrame(ctx context.Context, raw []byte) {
	msg, err := protocol.Decode(raw)
	if err == nil {
		switch m := msg.(type) {
		case *protocol.AuthSuccess:
			s.onAuthSuccess(ctx, m)
			return
		case *protocol.AuthFailure:
			s.onAuthFailure(m)
			return
		}
	}
	go s.handler.Dispatch(ctx, raw)
}

func (s *Session) onAuthSuccess(ctx context.Context, m *protocol.AuthSuccess) {
	s.mu.Lock()
	s.state = Connected
	s.attempts = 0
	s.mu.Unlock()

	s.logger.Info("authenticated with orchestrator",
		zap.String("message", m.Message),
	)
	if s.OnAuthenticated != nil {
		s.OnAuthenticated(ctx)
	}
}

// onAuthFailure closes the socket. The close travels through the generic
// connection-lost path, which schedules a reconnect; a bad key therefore
// retries until the attempt budget runs out rather than halting immediately.
func (s *Session) onAuthFailure(m *protocol.AuthFailure) {
	s.logger.Error("authentication rejected",
		zap.String("message", m.Message),
	)
	s.operators.BroadcastOperators("Orchestrator rejected the auth key")
	s.closeConn()
}

func (s *Session) onConnectionLost() {
	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.state = Disconnected
	s.mu.Unlock()
}

func (s *Session) closeConn() {
	s.onConnectionLost()
}

func (s *Session) scheduleReconnect(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.reconnectScheduled || s.state != Disconnected {
		return
	}
	if s.attempts >= s.cfg.MaxReconnectAttempts {
		s.logger.Error("reconnect attempts exhausted, manual reset required",
			zap.Int("attempts", s.attempts),
		)
		s.operators.BroadcastOperators("Orchestrator link is down and automatic reconnects are exhausted")
		return
	}
	s.attempts++
	delay := Backoff(s.attempts, s.cfg.ReconnectBaseDelay, s.cfg.ReconnectMaxDelay)
	s.reconnectScheduled = true
	s.logger.Info("reconnect scheduled",
		zap.Int("attempt", s.attempts),
		zap.Duration("delay", delay),
	)
	time.AfterFunc(delay, func() {
		select {
		case <-s.stopCh:
			return
		default:
		}
		s.connect(ctx)
	})
}

// classify buckets a dial error for logging. Purely diagnostic.
func classify(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return "refused"
	}
	return "error"
}
