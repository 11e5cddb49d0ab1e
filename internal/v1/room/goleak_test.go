package room

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tmtu/watchroom/internal/v1/protocol"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestShutdownDisconnectsEveryone(t *testing.T) {
	r := New(context.Background(), "test-room", nil, WithPingInterval(10*time.Millisecond))

	senders := []*MockSender{NewMockSender(), NewMockSender(), NewMockSender()}
	names := []string{"a", "b", "c"}
	for i, s := range senders {
		r.Deliver(hello(protocol.UserID(i), names[i], s, protocol.ServerNow()))
	}
	senders[2].WaitForMessage(t, isRoomState)

	shutdownRoom(t, r)

	for _, s := range senders {
		assert.True(t, s.Disconnected())
	}

	// Goroutine accounting is handled by TestMain's goleak verification;
	// the pingers and the room loop must all be gone now.
}

func TestShutdownTwice(t *testing.T) {
	r := New(context.Background(), "test-room", nil)
	shutdownRoom(t, r)
	shutdownRoom(t, r)
}

func TestParentContextCancelStopsRoom(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := New(ctx, "test-room", nil, WithPingInterval(10*time.Millisecond))

	sender := NewMockSender()
	r.Deliver(hello(0, "a", sender, protocol.ServerNow()))
	sender.WaitForMessage(t, isPing)

	cancel()

	require.Eventually(t, sender.Disconnected, 2*time.Second, 5*time.Millisecond,
		"cancelling the parent context did not tear the room down")

	// The handle keeps rejecting work instead of blocking.
	_, err := r.Meta(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
