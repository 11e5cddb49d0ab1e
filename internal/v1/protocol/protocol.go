// Package protocol defines the wire vocabulary shared by the room engine and
// its clients: user/badge identifiers, the two-axis time model, and the JSON
// codec for both message directions.
//
// Frames are externally tagged, one JSON value per WebSocket text frame:
// struct and newtype variants encode as {"Tag": payload}, unit variants as
// the bare string "Tag". Field names are pinned by deployed clients and must
// not change.
package protocol

import (
	"encoding/json"
	"fmt"
)

// UserID identifies a participant within one room. Ids are dense, allocated
// from zero, and never reused for the lifetime of the room.
type UserID uint32

// PlayState is the state a media player can be in.
type PlayState string

const (
	PlayStatePlay  PlayState = "Play"
	PlayStatePause PlayState = "Pause"
)

// UnmarshalJSON rejects anything but the two known states so that a bad
// frame surfaces as a parse error instead of an empty state.
func (p *PlayState) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch PlayState(s) {
	case PlayStatePlay, PlayStatePause:
		*p = PlayState(s)
		return nil
	default:
		return fmt.Errorf("unknown play state %q", s)
	}
}

// ParticipantInfo describes a room member to clients.
type ParticipantInfo struct {
	UserID UserID    `json:"user_id"`
	Name   string    `json:"name"`
	Avatar BadgeID   `json:"avatar"`
	Badges []BadgeID `json:"badges"`
}

// ParticipantUpdate is one row of a RoomUpdate: the participant's projected
// playback position and player state.
type ParticipantUpdate struct {
	UserID   UserID    `json:"user_id"`
	Duration float32   `json:"duration"`
	Buffered float32   `json:"buffered"`
	State    PlayState `json:"state"`
	Badges   []BadgeID `json:"badges"`
}

// Stream is one rendition of a media stream: a sortable quality number and
// the file name of its HLS playlist.
type Stream struct {
	Quality  uint32 `json:"quality"`
	Playlist string `json:"playlist"`
}

// StreamInfo describes the room's current media: the directory slug holding
// the data, every available rendition, and the room playback position.
type StreamInfo struct {
	Slug     string    `json:"slug"`
	Name     string    `json:"name"`
	Streams  []Stream  `json:"streams"`
	Duration float32   `json:"duration"`
	State    PlayState `json:"state"`
}

// UserMessage is a message sent by a client to the room.
type UserMessage interface {
	isUserMessage()
}

// Hello is the first message of a session, carrying the display identity the
// user picked in the lobby.
type Hello struct {
	Name   string  `json:"name"`
	Avatar BadgeID `json:"avatar"`
	Time   Time    `json:"time"`
}

// Goodbye announces the user left the room. The transport also synthesizes
// one when the connection dies.
type Goodbye struct{}

// State reports how the user's player currently looks. Clients send it as a
// pong to Ping and spontaneously when playback changes under them
// (buffering, stalls).
type State struct {
	Duration     float32   `json:"duration"`
	DurationTime Time      `json:"duration_time"`
	State        PlayState `json:"state"`
	StateTime    Time      `json:"state_time"`
	Buffered     float32   `json:"buffered"`
	Time         Time      `json:"time"`
}

// Seek asks the room to jump the shared position.
type Seek struct {
	Duration float32 `json:"duration"`
	Time     Time    `json:"time"`
}

// SetState asks the room to play or pause.
type SetState struct {
	State PlayState `json:"state"`
	Time  Time      `json:"time"`
}

// Buffering reports buffering progress. The room accepts and ignores it.
type Buffering struct {
	Buffered float32 `json:"buffered"`
	Time     Time    `json:"time"`
}

// Message is a chat line from the user. The room accepts it; chat routing is
// not part of the engine.
type Message struct {
	Msg string `json:"msg"`
}

func (Hello) isUserMessage()     {}
func (Goodbye) isUserMessage()   {}
func (State) isUserMessage()     {}
func (Seek) isUserMessage()      {}
func (SetState) isUserMessage()  {}
func (Buffering) isUserMessage() {}
func (Message) isUserMessage()   {}

// ServerMessage is a message sent by the room to a client.
type ServerMessage interface {
	isServerMessage()
}

// Ping asks the client for a State report. Unit variant, encodes as "Ping".
type Ping struct{}

// RoomState is the initial payload describing the room to a newcomer.
// CurrentStream is nil when the room has no media yet.
type RoomState struct {
	UserID        UserID            `json:"user_id"`
	Participants  []ParticipantInfo `json:"participants"`
	CurrentStream *StreamInfo       `json:"current_stream"`
}

// RoomUpdate carries every mapped participant's projected position.
type RoomUpdate struct {
	Participants []ParticipantUpdate `json:"participants"`
}

// NewParticipant announces a join to the participants already present.
type NewParticipant ParticipantInfo

// ByeParticipant announces a leave.
type ByeParticipant struct {
	UserID UserID `json:"user_id"`
}

// NewStream announces a change of the room's media.
type NewStream StreamInfo

// DoSeek relays a seek so every other player jumps. User is the participant
// whose command caused it.
type DoSeek struct {
	User     UserID  `json:"user"`
	Duration float32 `json:"duration"`
}

// DoSetState relays a play/pause change to every other player. Wire tag is
// "SetState"; the Go name keeps it apart from the inbound command.
type DoSetState struct {
	User  UserID    `json:"user"`
	State PlayState `json:"state"`
}

// ChatMessage relays a chat line.
type ChatMessage struct {
	From UserID `json:"from"`
	Msg  string `json:"msg"`
}

// Error tells a client its last frame could not be handled. The session
// stays open.
type Error string

func (Ping) isServerMessage()           {}
func (RoomState) isServerMessage()      {}
func (RoomUpdate) isServerMessage()     {}
func (NewParticipant) isServerMessage() {}
func (ByeParticipant) isServerMessage() {}
func (NewStream) isServerMessage()      {}
func (DoSeek) isServerMessage()         {}
func (DoSetState) isServerMessage()     {}
func (ChatMessage) isServerMessage()    {}
func (Error) isServerMessage()          {}

// DecodeUserMessage parses one inbound frame. Unknown variants are an error;
// the caller turns that into an Error frame for the sender. Unit variants
// arrive either as a bare string or as {"Tag": null}.
func DecodeUserMessage(data []byte) (UserMessage, error) {
	var tag string
	if err := json.Unmarshal(data, &tag); err == nil {
		switch tag {
		case "Goodbye":
			return Goodbye{}, nil
		default:
			return nil, fmt.Errorf("unknown message variant %q", tag)
		}
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}
	if len(envelope) != 1 {
		return nil, fmt.Errorf("expected a single message variant, got %d keys", len(envelope))
	}

	for tag, payload := range envelope {
		switch tag {
		case "Hello":
			var m Hello
			if err := json.Unmarshal(payload, &m); err != nil {
				return nil, fmt.Errorf("bad Hello payload: %w", err)
			}
			return m, nil
		case "Goodbye":
			return Goodbye{}, nil
		case "State":
			var m State
			if err := json.Unmarshal(payload, &m); err != nil {
				return nil, fmt.Errorf("bad State payload: %w", err)
			}
			return m, nil
		case "Seek":
			var m Seek
			if err := json.Unmarshal(payload, &m); err != nil {
				return nil, fmt.Errorf("bad Seek payload: %w", err)
			}
			return m, nil
		case "SetState":
			var m SetState
			if err := json.Unmarshal(payload, &m); err != nil {
				return nil, fmt.Errorf("bad SetState payload: %w", err)
			}
			return m, nil
		case "Buffering":
			var m Buffering
			if err := json.Unmarshal(payload, &m); err != nil {
				return nil, fmt.Errorf("bad Buffering payload: %w", err)
			}
			return m, nil
		case "Message":
			var m Message
			if err := json.Unmarshal(payload, &m); err != nil {
				return nil, fmt.Errorf("bad Message payload: %w", err)
			}
			return m, nil
		default:
			return nil, fmt.Errorf("unknown message variant %q", tag)
		}
	}
	return nil, fmt.Errorf("empty message")
}

// EncodeServerMessage renders one outbound frame.
func EncodeServerMessage(msg ServerMessage) ([]byte, error) {
	switch m := msg.(type) {
	case Ping:
		return json.Marshal("Ping")
	case RoomState:
		return encodeTagged("RoomState", m)
	case RoomUpdate:
		return encodeTagged("RoomUpdate", m)
	case NewParticipant:
		return encodeTagged("NewParticipant", ParticipantInfo(m))
	case ByeParticipant:
		return encodeTagged("ByeParticipant", m)
	case NewStream:
		return encodeTagged("NewStream", StreamInfo(m))
	case DoSeek:
		return encodeTagged("DoSeek", m)
	case DoSetState:
		return encodeTagged("SetState", m)
	case ChatMessage:
		return encodeTagged("ChatMessage", m)
	case Error:
		return encodeTagged("Error", string(m))
	default:
		return nil, fmt.Errorf("unencodable message type %T", msg)
	}
}

func encodeTagged(tag string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]json.RawMessage{tag: body})
}

// DecodeServerMessage parses an outbound frame back into its variant. The
// engine never needs this; it exists for client tooling and tests.
func DecodeServerMessage(data []byte) (ServerMessage, error) {
	var tag string
	if err := json.Unmarshal(data, &tag); err == nil {
		switch tag {
		case "Ping":
			return Ping{}, nil
		default:
			return nil, fmt.Errorf("unknown message variant %q", tag)
		}
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}
	if len(envelope) != 1 {
		return nil, fmt.Errorf("expected a single message variant, got %d keys", len(envelope))
	}

	for tag, payload := range envelope {
		switch tag {
		case "Ping":
			return Ping{}, nil
		case "RoomState":
			var m RoomState
			if err := json.Unmarshal(payload, &m); err != nil {
				return nil, err
			}
			return m, nil
		case "RoomUpdate":
			var m RoomUpdate
			if err := json.Unmarshal(payload, &m); err != nil {
				return nil, err
			}
			return m, nil
		case "NewParticipant":
			var m ParticipantInfo
			if err := json.Unmarshal(payload, &m); err != nil {
				return nil, err
			}
			return NewParticipant(m), nil
		case "ByeParticipant":
			var m ByeParticipant
			if err := json.Unmarshal(payload, &m); err != nil {
				return nil, err
			}
			return m, nil
		case "NewStream":
			var m StreamInfo
			if err := json.Unmarshal(payload, &m); err != nil {
				return nil, err
			}
			return NewStream(m), nil
		case "SetState":
			var m DoSetState
			if err := json.Unmarshal(payload, &m); err != nil {
				return nil, err
			}
			return m, nil
		case "DoSeek":
			var m DoSeek
			if err := json.Unmarshal(payload, &m); err != nil {
				return nil, err
			}
			return m, nil
		case "ChatMessage":
			var m ChatMessage
			if err := json.Unmarshal(payload, &m); err != nil {
				return nil, err
			}
			return m, nil
		case "Error":
			var s string
			if err := json.Unmarshal(payload, &s); err != nil {
				return nil, err
			}
			return Error(s), nil
		default:
			return nil, fmt.Errorf("unknown message variant %q", tag)
		}
	}
	return nil, fmt.Errorf("empty message")
}
