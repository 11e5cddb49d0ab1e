package room

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tmtu/watchroom/internal/v1/media"
	"github.com/tmtu/watchroom/internal/v1/protocol"
)

// MockSender implements Sender for testing. Every frame is recorded as the
// raw JSON a client would see, whether it arrived encoded or not.
type MockSender struct {
	mu           sync.Mutex
	frames       [][]byte
	disconnected bool
}

func NewMockSender() *MockSender {
	return &MockSender{}
}

func (m *MockSender) Send(msg protocol.ServerMessage) {
	data, err := protocol.EncodeServerMessage(msg)
	if err != nil {
		data = []byte(`"unencodable"`)
	}
	m.record(data)
}

func (m *MockSender) SendRaw(data []byte) {
	m.record(data)
}

func (m *MockSender) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnected = true
}

func (m *MockSender) record(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, data)
}

func (m *MockSender) Disconnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnected
}

// Frames returns a copy of everything recorded so far.
func (m *MockSender) Frames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.frames))
	copy(out, m.frames)
	return out
}

// Messages decodes every recorded frame.
func (m *MockSender) Messages(t *testing.T) []protocol.ServerMessage {
	t.Helper()
	frames := m.Frames()
	msgs := make([]protocol.ServerMessage, 0, len(frames))
	for _, f := range frames {
		msg, err := protocol.DecodeServerMessage(f)
		require.NoError(t, err, "sender recorded an undecodable frame: %s", f)
		msgs = append(msgs, msg)
	}
	return msgs
}

// WaitForMessage polls the recorded frames until one matches, and returns it.
func (m *MockSender) WaitForMessage(t *testing.T, match func(protocol.ServerMessage) bool) protocol.ServerMessage {
	t.Helper()
	var found protocol.ServerMessage
	require.Eventually(t, func() bool {
		for _, msg := range m.Messages(t) {
			if match(msg) {
				found = msg
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "expected message never arrived")
	return found
}

func isRoomState(m protocol.ServerMessage) bool {
	_, ok := m.(protocol.RoomState)
	return ok
}

func isRoomUpdate(m protocol.ServerMessage) bool {
	_, ok := m.(protocol.RoomUpdate)
	return ok
}

func isDoSeek(m protocol.ServerMessage) bool {
	_, ok := m.(protocol.DoSeek)
	return ok
}

func isPing(m protocol.ServerMessage) bool {
	_, ok := m.(protocol.Ping)
	return ok
}

func countPings(msgs []protocol.ServerMessage) int {
	n := 0
	for _, msg := range msgs {
		if isPing(msg) {
			n++
		}
	}
	return n
}

// fakeClock is a hand-driven wall clock for deterministic projections.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{t: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// newIdleRoom builds a room whose loop and pingers never run, so tests can
// call handlers synchronously without racing the room goroutine. A nil clock
// means the real one.
func newIdleRoom(stream *media.Stream, clock func() time.Time) *Room {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &Room{
		name:         "test-room",
		inbox:        make(chan envelope, inboxSize),
		now:          protocol.ServerNow,
		pingInterval: time.Hour,
		stream:       stream,
		state:        protocol.PlayStatePause,
		cookies:      make(map[string]protocol.UserID),
		ctx:          ctx,
		cancel:       cancel,
	}
	if clock != nil {
		r.now = func() protocol.ServerTime { return protocol.ServerTimeAt(clock()) }
	}
	start := r.now()
	r.stateSet = start
	r.positionSet = start
	return r
}

// hello is shorthand for the join frame tests deliver over and over.
func hello(from protocol.UserID, name string, sender Sender, at protocol.ServerTime) ClientMessage {
	return ClientMessage{
		From:       from,
		Cookie:     name,
		Sender:     sender,
		ServerTime: at,
		Msg:        protocol.Hello{Name: name, Avatar: 1, Time: 1000},
	}
}
