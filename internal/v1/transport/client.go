package transport

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tmtu/watchroom/internal/v1/logging"
	"github.com/tmtu/watchroom/internal/v1/metrics"
	"github.com/tmtu/watchroom/internal/v1/protocol"
	"github.com/tmtu/watchroom/internal/v1/room"
)

// wsConnection is the slice of *websocket.Conn the pumps use. Tests swap in
// a mock.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
}

const (
	// sendBuffer bounds each connection's outbound queue. A participant that
	// cannot keep up loses frames; it never stalls the room goroutine.
	sendBuffer = 256

	writeWait = 10 * time.Second
)

// Client pumps one WebSocket connection: the read pump decodes inbound
// frames and delivers them to the room, the write pump drains the send
// queue onto the wire. It is the room's Sender for that participant.
type Client struct {
	conn   wsConnection
	room   *room.Room
	userID protocol.UserID
	cookie string
	addr   string

	mu     sync.RWMutex
	closed bool

	closeOnce sync.Once
	send      chan []byte
}

func newClient(conn wsConnection, r *room.Room, userID protocol.UserID, cookie, addr string) *Client {
	return &Client{
		conn:   conn,
		room:   r,
		userID: userID,
		cookie: cookie,
		addr:   addr,
		send:   make(chan []byte, sendBuffer),
	}
}

// Send encodes one frame and queues it. Part of room.Sender.
func (c *Client) Send(msg protocol.ServerMessage) {
	data, err := protocol.EncodeServerMessage(msg)
	if err != nil {
		logging.Error(context.Background(), "Failed to encode frame",
			zap.Uint32("userId", uint32(c.userID)), zap.Error(err))
		return
	}
	c.SendRaw(data)
}

// SendRaw queues an already encoded frame without blocking. Part of
// room.Sender.
func (c *Client) SendRaw(data []byte) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		logging.GetLogger().Debug("Skipping send to closed connection",
			zap.Uint32("userId", uint32(c.userID)))
		return
	}
	c.mu.RUnlock()

	// The queue can still close between the check above and the send, so the
	// rare panic is recovered rather than taking the room down.
	defer func() {
		if r := recover(); r != nil {
			logging.GetLogger().Debug("Dropped frame for closing connection",
				zap.Uint32("userId", uint32(c.userID)))
		}
	}()

	select {
	case c.send <- data:
	default:
		logging.Warn(context.Background(), "Send queue full, dropping frame",
			zap.Uint32("userId", uint32(c.userID)))
	}
}

// Disconnect closes the send queue, which makes the write pump flush, emit
// a close frame and drop the connection. Part of room.Sender; safe to call
// more than once.
func (c *Client) Disconnect() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.send)
	})
}

// readPump decodes inbound frames and hands them to the room. It owns the
// session's teardown: however the read side dies, the room gets a goodbye
// and the write pump is released.
func (c *Client) readPump() {
	defer func() {
		c.room.Deliver(room.ClientMessage{
			From:       c.userID,
			Cookie:     c.cookie,
			Addr:       c.addr,
			Sender:     c,
			ServerTime: protocol.ServerNow(),
			Msg:        protocol.Goodbye{},
		})
		c.Disconnect()
		c.conn.Close()
		metrics.DecConnection()
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		// Stamped before decoding: the room anchors its time mappings to the
		// frame's arrival, not to however long parsing took.
		arrival := protocol.ServerNow()
		if err != nil {
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}

		msg, err := protocol.DecodeUserMessage(data)
		if err != nil {
			metrics.WebsocketEvents.WithLabelValues("frame_received", "decode_error").Inc()
			logging.Warn(context.Background(), "Dropping malformed frame",
				zap.Uint32("userId", uint32(c.userID)), zap.Error(err))
			c.Send(protocol.Error("malformed message"))
			continue
		}
		metrics.WebsocketEvents.WithLabelValues("frame_received", "ok").Inc()

		c.room.Deliver(room.ClientMessage{
			From:       c.userID,
			Cookie:     c.cookie,
			Addr:       c.addr,
			Sender:     c,
			ServerTime: arrival,
			Msg:        msg,
		})
	}
}

// writePump drains the send queue onto the wire. It exits when the queue
// closes (Disconnect) or a write fails, closing the connection either way,
// which in turn unblocks the read pump.
func (c *Client) writePump() {
	defer c.conn.Close()

	for {
		message, ok := <-c.send
		if !ok {
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			logging.Error(context.Background(), "Error writing frame",
				zap.Uint32("userId", uint32(c.userID)), zap.Error(err))
			return
		}
	}
}
