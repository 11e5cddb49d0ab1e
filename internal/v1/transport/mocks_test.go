package transport

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/tmtu/watchroom/internal/v1/config"
	"github.com/tmtu/watchroom/internal/v1/identity"
	"github.com/tmtu/watchroom/internal/v1/protocol"
	"github.com/tmtu/watchroom/internal/v1/ratelimit"
	"github.com/tmtu/watchroom/internal/v1/registry"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testCookieSecret = "0123456789abcdef0123456789abcdef"

// newTestHub builds a hub with an empty registry, a memory backed rate
// limiter and the default development origins.
func newTestHub(t *testing.T) (*Hub, *registry.Registry, *identity.Issuer) {
	t.Helper()

	reg := registry.New()

	issuer, err := identity.NewIssuer(testCookieSecret)
	require.NoError(t, err)

	lim, err := ratelimit.New(&config.Config{RateLimitWS: "1000-M", RateLimitLobby: "1000-M"}, nil)
	require.NoError(t, err)

	return NewHub(reg, issuer, lim, ParseAllowedOrigins("")), reg, issuer
}

// MockConnection implements wsConnection with pluggable behavior.
type MockConnection struct {
	ReadMessageFunc  func() (int, []byte, error)
	WriteMessageFunc func(int, []byte) error
	CloseFunc        func() error
}

func (m *MockConnection) ReadMessage() (int, []byte, error) {
	if m.ReadMessageFunc != nil {
		return m.ReadMessageFunc()
	}
	return 0, nil, net.ErrClosed
}

func (m *MockConnection) WriteMessage(messageType int, data []byte) error {
	if m.WriteMessageFunc != nil {
		return m.WriteMessageFunc(messageType, data)
	}
	return nil
}

func (m *MockConnection) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

func (m *MockConnection) SetWriteDeadline(_ time.Time) error {
	return nil
}

type recordedWrite struct {
	messageType int
	data        []byte
}

// scriptedConn replays a fixed sequence of inbound text frames, then blocks
// reads until the connection closes. Every write is recorded.
type scriptedConn struct {
	mu        sync.Mutex
	inbound   [][]byte
	writes    []recordedWrite
	closed    chan struct{}
	closeOnce sync.Once
}

func newScriptedConn(frames ...string) *scriptedConn {
	c := &scriptedConn{closed: make(chan struct{})}
	for _, f := range frames {
		c.inbound = append(c.inbound, []byte(f))
	}
	return c
}

func (s *scriptedConn) ReadMessage() (int, []byte, error) {
	s.mu.Lock()
	if len(s.inbound) > 0 {
		frame := s.inbound[0]
		s.inbound = s.inbound[1:]
		s.mu.Unlock()
		return websocket.TextMessage, frame, nil
	}
	s.mu.Unlock()

	<-s.closed
	return 0, nil, net.ErrClosed
}

func (s *scriptedConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-s.closed:
		return net.ErrClosed
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, recordedWrite{messageType, append([]byte(nil), data...)})
	return nil
}

func (s *scriptedConn) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *scriptedConn) SetWriteDeadline(_ time.Time) error {
	return nil
}

func (s *scriptedConn) Closed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *scriptedConn) Writes() []recordedWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recordedWrite(nil), s.writes...)
}

// serverMessages decodes every recorded text frame.
func (s *scriptedConn) serverMessages(t *testing.T) []protocol.ServerMessage {
	t.Helper()
	var msgs []protocol.ServerMessage
	for _, w := range s.Writes() {
		if w.messageType != websocket.TextMessage {
			continue
		}
		msg, err := protocol.DecodeServerMessage(w.data)
		require.NoError(t, err)
		msgs = append(msgs, msg)
	}
	return msgs
}

// waitForMessage polls the recorded writes until one matches.
func (s *scriptedConn) waitForMessage(t *testing.T, match func(protocol.ServerMessage) bool) protocol.ServerMessage {
	t.Helper()
	var found protocol.ServerMessage
	require.Eventually(t, func() bool {
		for _, msg := range s.serverMessages(t) {
			if match(msg) {
				found = msg
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	return found
}

func isRoomState(m protocol.ServerMessage) bool {
	_, ok := m.(protocol.RoomState)
	return ok
}

func isNewParticipant(m protocol.ServerMessage) bool {
	_, ok := m.(protocol.NewParticipant)
	return ok
}

func isByeParticipant(m protocol.ServerMessage) bool {
	_, ok := m.(protocol.ByeParticipant)
	return ok
}

func isDoSeek(m protocol.ServerMessage) bool {
	_, ok := m.(protocol.DoSeek)
	return ok
}

func isErrorMessage(m protocol.ServerMessage) bool {
	_, ok := m.(protocol.Error)
	return ok
}
