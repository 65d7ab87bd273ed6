package transport

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/deyoyk/RankedBedwarsV2/internal/config"
	"github.com/deyoyk/RankedBedwarsV2/internal/protocol"
)

func TestBackoffGrowsLinearlyThenCaps(t *testing.T) {
	base := 5 * time.Second
	max := 60 * time.Second
	want := []time.Duration{5 * time.Second, 10 * time.Second, 15 * time.Second, 20 * time.Second, 25 * time.Second}
	for i, expected := range want {
		assert.Equal(t, expected, Backoff(i+1, base, max), "attempt %d", i+1)
	}
	assert.Equal(t, max, Backoff(12, base, max))
	assert.Equal(t, max, Backoff(1000, base, max))
}

type recordingOperators struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingOperators) BroadcastOperators(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

func (r *recordingOperators) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

type recordingHandler struct {
	frames chan []byte
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{frames: make(chan []byte, 16)}
}

func (h *recordingHandler) Dispatch(ctx context.Context, raw []byte) {
	h.frames <- raw
}

// newOrchestrator runs a websocket endpoint that calls serve with each
// accepted connection. Returns the orchestrator config pointing at it.
func newOrchestrator(t *testing.T, serve func(conn *websocket.Conn)) config.OrchestratorConfig {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serve(conn)
	}))
	t.Cleanup(srv.Close)

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return config.OrchestratorConfig{
		Host:                 host,
		Port:                 port,
		Path:                 "/",
		AuthKey:              "testkey",
		ConnectTimeout:       5 * time.Second,
		ReconnectBaseDelay:   10 * time.Millisecond,
		ReconnectMaxDelay:    50 * time.Millisecond,
		MaxReconnectAttempts: 5,
	}
}

// acceptAuth reads the auth frame, asserts the key, and replies auth_success.
func acceptAuth(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame map[string]any
	require.NoError(t, json.Unmarshal(raw, &frame))
	require.Equal(t, "auth", frame["type"])
	require.Equal(t, "testkey", frame["auth_key"])
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"auth_success"}`)))
}

func startSession(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Start(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		s.Stop()
		cancel()
		<-done
	})
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal(msg)
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestConnectAuthenticateAndResync(t *testing.T) {
	cfg := newOrchestrator(t, func(conn *websocket.Conn) {
		acceptAuth(t, conn)
		// Hold the connection open.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	ops := &recordingOperators{}
	var resyncs sync.WaitGroup
	resyncs.Add(1)
	s := NewSession(cfg, newRecordingHandler(), ops, zaptest.NewLogger(t))
	s.OnAuthenticated = func(ctx context.Context) { resyncs.Done() }
	startSession(t, s)

	waitFor(t, func() bool { return s.Snapshot().State == Connected }, "session never authenticated")
	resyncs.Wait()
	assert.Equal(t, 0, s.Snapshot().ReconnectAttempts, "auth_success resets the attempt counter")
}

func TestInboundFramesReachHandler(t *testing.T) {
	cfg := newOrchestrator(t, func(conn *websocket.Conn) {
		acceptAuth(t, conn)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"warp_players","game_id":"7","map":"aqua","team1":{"players":["a"]},"team2":{"players":["b"]}}`)))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	handler := newRecordingHandler()
	s := NewSession(cfg, handler, &recordingOperators{}, zaptest.NewLogger(t))
	startSession(t, s)

	select {
	case raw := <-handler.frames:
		msg, err := protocol.Decode(raw)
		require.NoError(t, err)
		wp, ok := msg.(*protocol.WarpPlayers)
		require.True(t, ok)
		assert.Equal(t, "7", wp.GameID)
	case <-time.After(3 * time.Second):
		t.Fatal("frame never reached the handler")
	}
}

func TestSendWhileDisconnectedDrops(t *testing.T) {
	// The session deliberately drops frames while disconnected rather than
	// queueing them: delivery is at most once and the orchestrator
	// resynchronizes from snapshots after reconnect.
	cfg := config.OrchestratorConfig{
		Host:                 "127.0.0.1",
		Port:                 1, // nothing listens here
		Path:                 "/",
		AuthKey:              "testkey",
		ConnectTimeout:       time.Second,
		ReconnectBaseDelay:   10 * time.Millisecond,
		ReconnectMaxDelay:    50 * time.Millisecond,
		MaxReconnectAttempts: 1,
	}
	ops := &recordingOperators{}
	s := NewSession(cfg, newRecordingHandler(), ops, zaptest.NewLogger(t))

	err := s.Send(protocol.WarpSuccess{GameID: "g1"})
	assert.ErrorIs(t, err, ErrDisconnected)
	assert.NotEmpty(t, ops.all())
}

func TestAuthFailureClosesThenReconnects(t *testing.T) {
	// A rejected key closes the socket; the generic close path then
	// schedules a retry. A bad key therefore burns through the reconnect
	// budget instead of halting on the first rejection.
	var mu sync.Mutex
	dials := 0
	cfg := newOrchestrator(t, func(conn *websocket.Conn) {
		mu.Lock()
		dials++
		mu.Unlock()
		_, _, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"auth_failure","message":"bad key"}`))
	})

	ops := &recordingOperators{}
	s := NewSession(cfg, newRecordingHandler(), ops, zaptest.NewLogger(t))
	startSession(t, s)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return dials >= 2
	}, "session never retried after auth_failure")
	assert.NotEmpty(t, ops.all())
}

func TestAuthWriteFailureSchedulesReconnect(t *testing.T) {
	// The auth frame is written before the read loop exists, so a failed
	// write there has no other path back into the backoff schedule.
	var mu sync.Mutex
	dials := 0
	cfg := newOrchestrator(t, func(conn *websocket.Conn) {
		mu.Lock()
		dials++
		mu.Unlock()
		// Close without reading. The oversized auth frame below cannot be
		// absorbed by socket buffers, so the client's write fails.
		conn.Close()
	})
	cfg.AuthKey = strings.Repeat("k", 1<<24)

	s := NewSession(cfg, newRecordingHandler(), &recordingOperators{}, zaptest.NewLogger(t))
	startSession(t, s)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return dials >= 2
	}, "session never retried after the auth write failed")
}

func TestReconnectStopsAfterBudgetExhausted(t *testing.T) {
	cfg := config.OrchestratorConfig{
		Host:                 "127.0.0.1",
		Port:                 1,
		Path:                 "/",
		AuthKey:              "testkey",
		ConnectTimeout:       200 * time.Millisecond,
		ReconnectBaseDelay:   5 * time.Millisecond,
		ReconnectMaxDelay:    10 * time.Millisecond,
		MaxReconnectAttempts: 2,
	}
	ops := &recordingOperators{}
	s := NewSession(cfg, newRecordingHandler(), ops, zaptest.NewLogger(t))
	startSession(t, s)

	waitFor(t, func() bool { return len(ops.all()) > 0 }, "operators never alerted about exhaustion")

	snap := s.Snapshot()
	assert.Equal(t, Disconnected, snap.State)
	assert.Equal(t, cfg.MaxReconnectAttempts, snap.ReconnectAttempts)

	// Counter must survive until an operator resets it.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, cfg.MaxReconnectAttempts, s.Snapshot().ReconnectAttempts)

	s.ResetReconnectState()
	assert.Equal(t, 0, s.Snapshot().ReconnectAttempts)
}

func TestSendPingAndHandlePong(t *testing.T) {
	frames := make(chan map[string]any, 4)
	cfg := newOrchestrator(t, func(conn *websocket.Conn) {
		acceptAuth(t, conn)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame map[string]any
			if json.Unmarshal(raw, &frame) == nil {
				frames <- frame
			}
		}
	})

	s := NewSession(cfg, newRecordingHandler(), &recordingOperators{}, zaptest.NewLogger(t))
	startSession(t, s)
	waitFor(t, func() bool { return s.Snapshot().State == Connected }, "session never authenticated")

	id, err := s.SendPing()
	require.NoError(t, err)
	require.NotEmpty(t, id)

	select {
	case frame := <-frames:
		assert.Equal(t, "ping", frame["type"])
		assert.Equal(t, id, frame["ping_id"])
	case <-time.After(3 * time.Second):
		t.Fatal("ping never reached the orchestrator")
	}

	rtt, ok := s.HandlePong(id)
	require.True(t, ok)
	assert.Greater(t, rtt, time.Duration(0))

	_, ok = s.HandlePong(id)
	assert.False(t, ok, "a probe resolves at most once")
	_, ok = s.HandlePong("unknown")
	assert.False(t, ok)
}
