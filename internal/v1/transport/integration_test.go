package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmtu/watchroom/internal/v1/identity"
	"github.com/tmtu/watchroom/internal/v1/protocol"
)

// dialRoom opens a real WebSocket session carrying a freshly issued
// identity cookie.
func dialRoom(t *testing.T, server *httptest.Server, issuer *identity.Issuer, code, subject string) *websocket.Conn {
	t.Helper()

	token, err := issuer.Issue(subject)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/websocket/" + code
	header := http.Header{}
	header.Set("Cookie", (&http.Cookie{Name: identity.CookieName, Value: token}).String())

	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil decodes inbound frames until one matches, skipping pings and
// other chatter along the way.
func readUntil(t *testing.T, conn *websocket.Conn, match func(protocol.ServerMessage) bool) protocol.ServerMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		msg, err := protocol.DecodeServerMessage(data)
		require.NoError(t, err)
		if match(msg) {
			return msg
		}
	}
}

func TestWebSocketSession(t *testing.T) {
	h, reg, issuer := newTestHub(t)
	registerRoom(t, reg, "GZ4KQ")

	server := httptest.NewServer(newJoinRouter(h))
	defer server.Close()

	ada := dialRoom(t, server, issuer, "GZ4KQ", "ada-GZ4KQ")
	require.NoError(t, ada.WriteMessage(websocket.TextMessage,
		[]byte(`{"Hello":{"name":"ada","avatar":3,"time":1000}}`)))

	state := readUntil(t, ada, isRoomState).(protocol.RoomState)
	assert.Equal(t, protocol.UserID(0), state.UserID)
	require.Len(t, state.Participants, 1)
	assert.Equal(t, "ada", state.Participants[0].Name)
	assert.Nil(t, state.CurrentStream)

	grace := dialRoom(t, server, issuer, "GZ4KQ", "grace-GZ4KQ")
	require.NoError(t, grace.WriteMessage(websocket.TextMessage,
		[]byte(`{"Hello":{"name":"grace","avatar":7,"time":2000}}`)))

	joined := readUntil(t, ada, isNewParticipant).(protocol.NewParticipant)
	assert.Equal(t, protocol.UserID(1), joined.UserID)
	assert.Equal(t, "grace", joined.Name)

	graceState := readUntil(t, grace, isRoomState).(protocol.RoomState)
	assert.Equal(t, protocol.UserID(1), graceState.UserID)
	assert.Len(t, graceState.Participants, 2)

	// A seek from grace reaches ada; the room level tests pin down that it
	// never echoes back to its sender.
	require.NoError(t, grace.WriteMessage(websocket.TextMessage,
		[]byte(`{"Seek":{"duration":120,"time":3000}}`)))

	seek := readUntil(t, ada, isDoSeek).(protocol.DoSeek)
	assert.Equal(t, protocol.UserID(1), seek.User)
	assert.InDelta(t, 120.0, float64(seek.Duration), 1e-6)

	// Grace's TCP connection dies with no Goodbye frame. The room still
	// announces the leave.
	require.NoError(t, grace.Close())

	bye := readUntil(t, ada, isByeParticipant).(protocol.ByeParticipant)
	assert.Equal(t, protocol.UserID(1), bye.UserID)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.Shutdown(ctx))

	// Shutdown reaches ada as a closed connection.
	require.NoError(t, ada.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := ada.ReadMessage(); err != nil {
			break
		}
	}
}

func TestWebSocketSession_SameIdentityReconnects(t *testing.T) {
	h, reg, issuer := newTestHub(t)
	registerRoom(t, reg, "GZ4KQ")

	server := httptest.NewServer(newJoinRouter(h))
	defer server.Close()

	first := dialRoom(t, server, issuer, "GZ4KQ", "ada-GZ4KQ")
	require.NoError(t, first.WriteMessage(websocket.TextMessage,
		[]byte(`{"Hello":{"name":"ada","avatar":3,"time":1000}}`)))
	firstState := readUntil(t, first, isRoomState).(protocol.RoomState)

	second := dialRoom(t, server, issuer, "GZ4KQ", "ada-GZ4KQ")
	require.NoError(t, second.WriteMessage(websocket.TextMessage,
		[]byte(`{"Hello":{"name":"ada","avatar":3,"time":5000}}`)))
	secondState := readUntil(t, second, isRoomState).(protocol.RoomState)

	// Same cookie, same user id, and the replacement never grew the roster.
	assert.Equal(t, firstState.UserID, secondState.UserID)
	assert.Len(t, secondState.Participants, 1)

	// The first connection is torn down by the replacement.
	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.Shutdown(ctx))
}
