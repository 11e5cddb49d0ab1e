package room

import (
	"time"

	"go.uber.org/zap"

	"github.com/tmtu/watchroom/internal/v1/logging"
	"github.com/tmtu/watchroom/internal/v1/metrics"
	"github.com/tmtu/watchroom/internal/v1/protocol"
)

// handleClient routes one session frame. Variants the engine has no
// behavior for (Buffering, chat) are accepted and dropped; the wire parser
// already rejected anything unknown.
func (r *Room) handleClient(msg ClientMessage) {
	label := messageLabel(msg.Msg)
	metrics.RoomMessages.WithLabelValues(label).Inc()

	start := time.Now()
	defer func() {
		metrics.MessageProcessingDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	}()

	switch m := msg.Msg.(type) {
	case protocol.Hello:
		r.handleHello(msg, m)
	case protocol.Goodbye:
		r.handleGoodbye(msg)
	case protocol.Seek:
		r.handleSeek(msg.From, m)
	case protocol.SetState:
		r.handleSetState(msg.From, m)
	case protocol.State:
		r.handleState(msg, m)
	default:
		logging.Debug(r.ctx, "Ignoring message without room behavior",
			zap.Uint32("userId", uint32(msg.From)))
	}
}

func messageLabel(msg protocol.UserMessage) string {
	switch msg.(type) {
	case protocol.Hello:
		return "hello"
	case protocol.Goodbye:
		return "goodbye"
	case protocol.Seek:
		return "seek"
	case protocol.SetState:
		return "set_state"
	case protocol.State:
		return "state"
	default:
		return "ignored"
	}
}

// handleHello admits a participant. The join announcement goes out before
// the newcomer is appended, so it naturally reaches only the others; the
// newcomer instead gets the full RoomState, which does include itself.
func (r *Room) handleHello(env ClientMessage, hello protocol.Hello) {
	if existing := r.findParticipant(env.From); existing != nil {
		// Same identity reconnecting. The stale entry goes quietly; the
		// NewParticipant below overwrites it on every client.
		logging.Info(r.ctx, "Replacing existing participant",
			zap.Uint32("userId", uint32(env.From)))
		existing.stopPing()
		r.evict(env.From)
		if existing.sender != env.Sender {
			existing.sender.Disconnect()
		}
	}

	p := newParticipant(env.From, hello.Name, hello.Avatar, env.Sender)

	logging.Info(r.ctx, "Participant joined",
		zap.Uint32("userId", uint32(p.userID)),
		zap.String("name", p.name),
		zap.String("addr", env.Addr))

	r.fanoutAll(protocol.NewParticipant(p.info()))

	infos := make([]protocol.ParticipantInfo, 0, len(r.participants)+1)
	for _, q := range r.participants {
		infos = append(infos, q.info())
	}
	infos = append(infos, p.info())

	p.sender.Send(protocol.RoomState{
		UserID:        p.userID,
		Participants:  infos,
		CurrentStream: r.currentStreamInfo(),
	})

	r.participants = append(r.participants, p)
	r.startPinger(p)
	metrics.RoomParticipants.WithLabelValues(r.name).Set(float64(len(r.participants)))
}

func (r *Room) handleGoodbye(env ClientMessage) {
	p := r.findParticipant(env.From)
	if p == nil {
		logging.Debug(r.ctx, "Goodbye for absent participant",
			zap.Uint32("userId", uint32(env.From)))
		return
	}
	// A dying connection's synthetic goodbye must not evict a participant
	// that already re-joined on a fresh socket.
	if env.Sender != nil && p.sender != env.Sender {
		logging.Debug(r.ctx, "Ignoring goodbye from superseded connection",
			zap.Uint32("userId", uint32(env.From)))
		return
	}
	r.evict(env.From)
	p.stopPing()

	logging.Info(r.ctx, "Participant left",
		zap.Uint32("userId", uint32(env.From)),
		zap.String("name", p.name))

	r.fanoutAll(protocol.ByeParticipant{UserID: env.From})
	p.sender.Disconnect()

	if len(r.participants) > 0 {
		metrics.RoomParticipants.WithLabelValues(r.name).Set(float64(len(r.participants)))
	} else {
		metrics.RoomParticipants.DeleteLabelValues(r.name)
	}
}

// handleSeek moves the shared position. The sender's player is already
// where it wants to be, so the relay excludes it.
func (r *Room) handleSeek(from protocol.UserID, seek protocol.Seek) {
	r.duration = seek.Duration

	if p := r.findParticipant(from); p != nil && p.mapping != nil {
		r.positionSet = p.mapping.Convert(seek.Time.Client())
	} else {
		logging.Warn(r.ctx, "Seek without a time mapping, keeping previous anchor",
			zap.Uint32("userId", uint32(from)),
			zap.Float32("duration", seek.Duration))
	}

	r.fanoutExcept(from, protocol.DoSeek{User: from, Duration: seek.Duration})
}

// handleSetState switches play/pause. Pausing folds the played interval
// into duration so the shared position freezes where the pause landed on
// the server's clock axis.
func (r *Room) handleSetState(from protocol.UserID, set protocol.SetState) {
	prev := r.stateSet
	r.state = set.State

	if p := r.findParticipant(from); p != nil && p.mapping != nil {
		r.stateSet = p.mapping.Convert(set.Time.Client())
		if set.State == protocol.PlayStatePause {
			elapsed := r.stateSet.Sub(prev)
			r.positionSet = r.now()
			r.duration += float32(elapsed.Seconds())
		}
	} else {
		logging.Warn(r.ctx, "SetState without a time mapping, keeping previous anchor",
			zap.Uint32("userId", uint32(from)),
			zap.String("state", string(set.State)))
	}

	r.fanoutExcept(from, protocol.DoSetState{User: from, State: set.State})
}

// handleState consumes a player report (usually a pong). The report's
// fields replace the participant's wholesale, the time mapping is rebuilt
// from the latest ping, and everyone gets a fresh projection of the room.
func (r *Room) handleState(env ClientMessage, state protocol.State) {
	p := r.findParticipant(env.From)
	if p == nil {
		logging.Warn(r.ctx, "State from unknown participant",
			zap.Uint32("userId", uint32(env.From)),
			zap.String("addr", env.Addr))
		return
	}

	p.duration = state.Duration
	p.durationTime = state.DurationTime.Client()
	p.state = state.State
	p.stateTime = state.StateTime.Client()
	p.buffered = state.Buffered

	if p.lastPing != nil {
		mapping := protocol.TimeMapping{
			RequestedAt: *p.lastPing,
			ServerAt:    env.ServerTime,
			ClientAt:    state.Time.Client(),
		}
		p.mapping = &mapping
		metrics.PingRTT.Observe(mapping.RTT().Seconds())
	} else {
		logging.Warn(r.ctx, "State before first ping, no mapping yet",
			zap.Uint32("userId", uint32(env.From)))
	}

	r.fanoutAll(protocol.RoomUpdate{Participants: r.participantUpdates()})
}

// handleSendPing marks the outstanding ping and pokes the participant. The
// pong comes back as a State message.
func (r *Room) handleSendPing(userID protocol.UserID, pingID uint64) {
	p := r.findParticipant(userID)
	if p == nil {
		logging.Warn(r.ctx, "Ping for unknown participant",
			zap.Uint32("userId", uint32(userID)),
			zap.Uint64("pingId", pingID))
		return
	}

	now := r.now()
	p.lastPing = &now
	p.sender.Send(protocol.Ping{})

	logging.Debug(r.ctx, "Pinged participant",
		zap.Uint32("userId", uint32(userID)),
		zap.Uint64("pingId", pingID))
}

func (r *Room) findParticipant(id protocol.UserID) *participant {
	for _, p := range r.participants {
		if p.userID == id {
			return p
		}
	}
	return nil
}

// evict removes a participant from the ordered list and returns it, or nil.
func (r *Room) evict(id protocol.UserID) *participant {
	for i, p := range r.participants {
		if p.userID == id {
			r.participants = append(r.participants[:i], r.participants[i+1:]...)
			return p
		}
	}
	return nil
}

// participantUpdates projects every mapped participant to the current
// instant. Unmapped ones are omitted; their reports cannot be placed on the
// server clock yet.
func (r *Room) participantUpdates() []protocol.ParticipantUpdate {
	now := r.now()
	updates := make([]protocol.ParticipantUpdate, 0, len(r.participants))
	for _, p := range r.participants {
		if update, ok := p.update(now); ok {
			updates = append(updates, update)
		}
	}
	return updates
}

// currentStreamInfo renders the room's media at the projected shared
// position, nil when the room has none.
func (r *Room) currentStreamInfo() *protocol.StreamInfo {
	if r.stream == nil {
		return nil
	}
	info := r.stream.Info(r.streamPosition(r.now()), r.state)
	return &info
}

// streamPosition is the room's shared playback position at now. Paused
// rooms hold the position reached when the pause anchored; playing rooms
// advance from the moment play was set.
func (r *Room) streamPosition(now protocol.ServerTime) float32 {
	if r.state == protocol.PlayStatePause {
		return r.duration + float32(r.stateSet.Sub(r.positionSet).Seconds())
	}
	return r.duration + float32(now.Sub(r.stateSet).Seconds())
}

// fanoutAll sends one frame to every participant, encoding it once.
func (r *Room) fanoutAll(msg protocol.ServerMessage) {
	if len(r.participants) == 0 {
		return
	}
	data, err := protocol.EncodeServerMessage(msg)
	if err != nil {
		logging.Error(r.ctx, "Failed to encode fanout frame", zap.Error(err))
		return
	}
	for _, p := range r.participants {
		p.sender.SendRaw(data)
	}
	metrics.FanoutFrames.Add(float64(len(r.participants)))
}

// fanoutExcept is fanoutAll minus the participant whose command is being
// relayed.
func (r *Room) fanoutExcept(src protocol.UserID, msg protocol.ServerMessage) {
	if len(r.participants) == 0 {
		return
	}
	data, err := protocol.EncodeServerMessage(msg)
	if err != nil {
		logging.Error(r.ctx, "Failed to encode fanout frame", zap.Error(err))
		return
	}
	sent := 0
	for _, p := range r.participants {
		if p.userID == src {
			continue
		}
		p.sender.SendRaw(data)
		sent++
	}
	metrics.FanoutFrames.Add(float64(sent))
}
