package room

import (
	"github.com/tmtu/watchroom/internal/v1/protocol"
)

// participant is one room member as the room goroutine sees it. Only that
// goroutine touches these fields.
type participant struct {
	userID protocol.UserID
	name   string
	avatar protocol.BadgeID
	badges []protocol.BadgeID
	sender Sender

	// Last player report, all on the participant's own clock axis.
	duration     float32
	durationTime protocol.ClientTime
	state        protocol.PlayState
	stateTime    protocol.ClientTime
	buffered     float32

	// mapping is nil until the first pong; lastPing is nil until the first
	// ping goes out.
	mapping  *protocol.TimeMapping
	lastPing *protocol.ServerTime

	stopPing func()
}

func newParticipant(id protocol.UserID, name string, avatar protocol.BadgeID, sender Sender) *participant {
	return &participant{
		userID:   id,
		name:     name,
		avatar:   avatar,
		badges:   protocol.AwardBadges(id, name),
		sender:   sender,
		state:    protocol.PlayStatePause,
		stopPing: func() {},
	}
}

func (p *participant) info() protocol.ParticipantInfo {
	return protocol.ParticipantInfo{
		UserID: p.userID,
		Name:   p.name,
		Avatar: p.avatar,
		Badges: p.badges,
	}
}

// projectedPosition advances the participant's last reported position to
// now. It returns false while no time mapping exists, since the report
// cannot be placed on the server's clock axis yet.
//
// A paused player sits exactly where it reported. A playing one moved by
// the server time elapsed since the report: the mapping converts the
// report's client timestamp into the server instant it described, and that
// difference may come out negative when a fresher mapping outruns an old
// report. Negative elapsed must flow through unclamped; the projection
// stays consistent once the next report lands.
func (p *participant) projectedPosition(now protocol.ServerTime) (float32, bool) {
	if p.mapping == nil {
		return 0, false
	}
	if p.state == protocol.PlayStatePause {
		return p.duration, true
	}
	anchor := p.mapping.Convert(p.durationTime)
	elapsed := now.Sub(anchor)
	return p.duration + float32(elapsed.Seconds()), true
}

func (p *participant) update(now protocol.ServerTime) (protocol.ParticipantUpdate, bool) {
	position, ok := p.projectedPosition(now)
	if !ok {
		return protocol.ParticipantUpdate{}, false
	}
	return protocol.ParticipantUpdate{
		UserID:   p.userID,
		Duration: position,
		Buffered: p.buffered,
		State:    p.state,
		Badges:   p.badges,
	}, true
}
