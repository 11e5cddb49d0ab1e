// Package room implements the engine behind one watch room: a single
// goroutine owns all playback state and drains an inbox of session
// messages, so no mutation ever races another. Handles into the room
// (Deliver, GetUserID, Meta) are safe to share across goroutines.
package room

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tmtu/watchroom/internal/v1/logging"
	"github.com/tmtu/watchroom/internal/v1/media"
	"github.com/tmtu/watchroom/internal/v1/metrics"
	"github.com/tmtu/watchroom/internal/v1/protocol"
)

const (
	// inboxSize bounds the mailbox. Enqueues block when it fills, which
	// preserves per-sender ordering instead of dropping.
	inboxSize = 256

	// DefaultPingInterval is the cadence of the per-participant time sync.
	DefaultPingInterval = 5 * time.Second
)

// ErrClosed is returned by blocking calls after the room shut down.
var ErrClosed = errors.New("room closed")

// Room is a handle to one running room. Zero-value is not usable; construct
// with New.
type Room struct {
	name string

	inbox  chan envelope
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	now          func() protocol.ServerTime
	pingInterval time.Duration

	// Everything below is owned by the run goroutine.
	stream       *media.Stream
	state        protocol.PlayState
	stateSet     protocol.ServerTime
	positionSet  protocol.ServerTime
	duration     float32
	freeUserID   protocol.UserID
	cookies      map[string]protocol.UserID
	participants []*participant
}

// Option adjusts a room at construction time.
type Option func(*Room)

// WithClock replaces the wall clock. Tests use it to make projection math
// deterministic.
func WithClock(now func() time.Time) Option {
	return func(r *Room) {
		r.now = func() protocol.ServerTime { return protocol.ServerTimeAt(now()) }
	}
}

// WithPingInterval overrides the ping cadence.
func WithPingInterval(d time.Duration) Option {
	return func(r *Room) {
		r.pingInterval = d
	}
}

// New creates a room named by its join code, optionally with media, and
// starts its goroutine. The room stops when ctx is cancelled or Shutdown is
// called.
func New(ctx context.Context, name string, stream *media.Stream, opts ...Option) *Room {
	r := &Room{
		name:         name,
		inbox:        make(chan envelope, inboxSize),
		now:          protocol.ServerNow,
		pingInterval: DefaultPingInterval,
		stream:       stream,
		state:        protocol.PlayStatePause,
		cookies:      make(map[string]protocol.UserID),
	}
	for _, opt := range opts {
		opt(r)
	}

	start := r.now()
	r.stateSet = start
	r.positionSet = start

	r.ctx, r.cancel = context.WithCancel(context.WithValue(ctx, logging.RoomIDKey, name))

	r.wg.Add(1)
	go r.run()
	return r
}

// Name returns the room's join code.
func (r *Room) Name() string {
	return r.name
}

// GetUserID resolves a cookie identity to this room's user id, allocating
// one on first sight. The same cookie always gets the same id back for the
// room's lifetime.
func (r *Room) GetUserID(ctx context.Context, cookie string) (protocol.UserID, error) {
	reply := make(chan protocol.UserID, 1)
	select {
	case r.inbox <- userIDRequest{cookie: cookie, reply: reply}:
	case <-r.ctx.Done():
		return 0, ErrClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case id := <-reply:
		return id, nil
	case <-r.ctx.Done():
		return 0, ErrClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Meta returns the room's display information for the lobby.
func (r *Room) Meta(ctx context.Context) (Meta, error) {
	reply := make(chan Meta, 1)
	select {
	case r.inbox <- metaRequest{reply: reply}:
	case <-r.ctx.Done():
		return Meta{}, ErrClosed
	case <-ctx.Done():
		return Meta{}, ctx.Err()
	}
	select {
	case meta := <-reply:
		return meta, nil
	case <-r.ctx.Done():
		return Meta{}, ErrClosed
	case <-ctx.Done():
		return Meta{}, ctx.Err()
	}
}

// Deliver hands one session frame to the room. Fire and forget: it blocks
// only while the mailbox is full, and drops the message once the room is
// closed.
func (r *Room) Deliver(msg ClientMessage) {
	select {
	case r.inbox <- clientEnvelope{msg: msg}:
	case <-r.ctx.Done():
		logging.Warn(r.ctx, "Dropping message for closed room",
			zap.Uint32("userId", uint32(msg.From)))
	}
}

// deliverPing is the ping driver's enqueue. It awaits mailbox space, never
// a reply, and reports false once the room is closed.
func (r *Room) deliverPing(ctx context.Context, userID protocol.UserID, pingID uint64) bool {
	select {
	case r.inbox <- pingRequest{userID: userID, pingID: pingID}:
		return true
	case <-ctx.Done():
		return false
	}
}

// Shutdown stops the room: pingers are cancelled, every participant's
// transport is disconnected, and the loop exits. It waits for the room's
// goroutines up to ctx's deadline.
func (r *Room) Shutdown(ctx context.Context) error {
	r.cancel()

	c := make(chan struct{})
	go func() {
		defer close(c)
		r.wg.Wait()
	}()

	select {
	case <-c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Room) run() {
	defer r.wg.Done()
	for {
		select {
		case env := <-r.inbox:
			r.dispatch(env)
		case <-r.ctx.Done():
			r.stopAll()
			return
		}
	}
}

func (r *Room) dispatch(env envelope) {
	switch cmd := env.(type) {
	case userIDRequest:
		cmd.reply <- r.lookupUserID(cmd.cookie)
	case metaRequest:
		cmd.reply <- Meta{Name: r.name, Stream: r.stream, Viewers: len(r.participants)}
	case clientEnvelope:
		r.handleClient(cmd.msg)
	case pingRequest:
		r.handleSendPing(cmd.userID, cmd.pingID)
	}
}

// lookupUserID implements the cookie identity map: one stable user id per
// cookie, allocated densely from zero and never reused.
func (r *Room) lookupUserID(cookie string) protocol.UserID {
	if id, ok := r.cookies[cookie]; ok {
		return id
	}
	id := r.freeUserID
	r.freeUserID++
	r.cookies[cookie] = id
	logging.Debug(r.ctx, "Allocated user id", zap.Uint32("userId", uint32(id)))
	return id
}

func (r *Room) stopAll() {
	logging.Info(r.ctx, "Closing room",
		zap.String("room", r.name),
		zap.Int("participants", len(r.participants)))

	for _, p := range r.participants {
		p.stopPing()
		p.sender.Disconnect()
	}
	r.participants = nil
	metrics.RoomParticipants.DeleteLabelValues(r.name)
}
