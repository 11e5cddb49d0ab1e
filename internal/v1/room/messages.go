package room

import (
	"github.com/tmtu/watchroom/internal/v1/media"
	"github.com/tmtu/watchroom/internal/v1/protocol"
)

// Sender is the outbound half of one participant's connection. The room
// calls it from its own goroutine, so implementations must never block:
// a slow client drops frames, it does not stall the room.
type Sender interface {
	// Send encodes and queues a single frame.
	Send(msg protocol.ServerMessage)
	// SendRaw queues an already encoded frame. The slice is shared between
	// recipients and must not be mutated.
	SendRaw(data []byte)
	// Disconnect tears the connection down. Safe to call more than once.
	Disconnect()
}

// ClientMessage is one decoded inbound frame together with its session
// context. ServerTime is stamped when the frame hits the read pump, before
// decoding, so it is the closest thing to the frame's arrival instant.
type ClientMessage struct {
	From       protocol.UserID
	Cookie     string
	Addr       string
	Sender     Sender
	ServerTime protocol.ServerTime
	Msg        protocol.UserMessage
}

// Meta describes a room to the lobby. Stream is nil while the room has no
// media.
type Meta struct {
	Name    string
	Stream  *media.Stream
	Viewers int
}

// envelope is what travels through a room's inbox.
type envelope interface {
	isEnvelope()
}

type clientEnvelope struct {
	msg ClientMessage
}

type userIDRequest struct {
	cookie string
	reply  chan protocol.UserID
}

type metaRequest struct {
	reply chan Meta
}

type pingRequest struct {
	userID protocol.UserID
	pingID uint64
}

func (clientEnvelope) isEnvelope() {}
func (userIDRequest) isEnvelope()  {}
func (metaRequest) isEnvelope()    {}
func (pingRequest) isEnvelope()    {}
