package room

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmtu/watchroom/internal/v1/protocol"
)

func TestPingerSendsImmediatelyThenOnTicks(t *testing.T) {
	r := New(context.Background(), "test-room", nil, WithPingInterval(15*time.Millisecond))
	defer shutdownRoom(t, r)

	sender := NewMockSender()
	r.Deliver(hello(0, "a", sender, protocol.ServerNow()))

	require.Eventually(t, func() bool {
		return countPings(sender.Messages(t)) >= 3
	}, 2*time.Second, 5*time.Millisecond, "pinger never reached three pings")
}

func TestPingerHaltsOnGoodbye(t *testing.T) {
	r := New(context.Background(), "test-room", nil, WithPingInterval(15*time.Millisecond))
	defer shutdownRoom(t, r)

	sender := NewMockSender()
	r.Deliver(hello(0, "a", sender, protocol.ServerNow()))
	sender.WaitForMessage(t, isPing)

	r.Deliver(ClientMessage{From: 0, Sender: sender, Msg: protocol.Goodbye{}})

	// Once the goodbye has dispatched, the participant is gone and no ping
	// can reach the sender anymore.
	_, err := r.Meta(context.Background())
	require.NoError(t, err)
	frozen := countPings(sender.Messages(t))

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, frozen, countPings(sender.Messages(t)))
}

func TestHandleSendPing_MarksOutstandingPing(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0)
	clock := newFakeClock(t0)
	r := newIdleRoom(nil, clock.Now)

	sender := NewMockSender()
	r.handleClient(hello(0, "a", sender, r.now()))
	r.handleSendPing(0, 1)

	p := r.findParticipant(0)
	require.NotNil(t, p)
	require.NotNil(t, p.lastPing)
	assert.Equal(t, t0, p.lastPing.Wall())

	// Ping is a unit variant: the frame is the bare string.
	frames := sender.Frames()
	require.NotEmpty(t, frames)
	assert.Equal(t, `"Ping"`, string(frames[len(frames)-1]))
}

func TestHandleSendPing_UnknownParticipant(t *testing.T) {
	r := newIdleRoom(nil, nil)
	r.handleSendPing(3, 1)
	assert.Empty(t, r.participants)
}
