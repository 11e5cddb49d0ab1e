package room

import (
	"context"
	"time"

	"github.com/tmtu/watchroom/internal/v1/protocol"
)

// startPinger launches the participant's time sync driver. Must run on the
// room goroutine; the cancel func lands on the participant so eviction can
// stop it.
func (r *Room) startPinger(p *participant) {
	ctx, cancel := context.WithCancel(r.ctx)
	p.stopPing = cancel

	r.wg.Add(1)
	go r.pingLoop(ctx, p.userID)
}

// pingLoop asks the room to ping its participant: once immediately, then on
// every tick until cancelled. The enqueue waits for mailbox space rather
// than dropping, so ticks cannot overtake each other; there is no retry and
// no pong timeout, a silent client simply stops producing mappings.
func (r *Room) pingLoop(ctx context.Context, userID protocol.UserID) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.pingInterval)
	defer ticker.Stop()

	var pingID uint64
	for {
		if !r.deliverPing(ctx, userID, pingID) {
			return
		}
		pingID++

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
