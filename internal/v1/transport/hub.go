package transport

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tmtu/watchroom/internal/v1/identity"
	"github.com/tmtu/watchroom/internal/v1/logging"
	"github.com/tmtu/watchroom/internal/v1/metrics"
	"github.com/tmtu/watchroom/internal/v1/protocol"
	"github.com/tmtu/watchroom/internal/v1/ratelimit"
	"github.com/tmtu/watchroom/internal/v1/registry"
	"github.com/tmtu/watchroom/internal/v1/room"
)

// Hub owns the WebSocket side of the service: it authenticates join
// requests, resolves them against the room registry and wires up the
// connection pumps.
type Hub struct {
	registry       *registry.Registry
	issuer         *identity.Issuer
	limiter        *ratelimit.Limiter
	allowedOrigins []string
}

// NewHub creates a Hub serving the given registry. The issuer verifies the
// identity cookie minted by the lobby.
func NewHub(reg *registry.Registry, issuer *identity.Issuer, limiter *ratelimit.Limiter, allowedOrigins []string) *Hub {
	return &Hub{
		registry:       reg,
		issuer:         issuer,
		limiter:        limiter,
		allowedOrigins: allowedOrigins,
	}
}

// ServeWs handles GET /websocket/:code. A missing identity, a bad identity
// and an unknown code all answer the same 404, so probing the endpoint
// reveals nothing about which codes are live.
func (h *Hub) ServeWs(c *gin.Context) {
	if !h.limiter.CheckWebSocket(c) {
		return // response already written
	}

	cookie, err := c.Cookie(identity.CookieName)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	subject, err := h.issuer.Verify(cookie)
	if err != nil {
		logging.Warn(c.Request.Context(), "Rejecting join with invalid identity", zap.Error(err))
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}

	code := c.Param("code")
	rm, ok := h.registry.Find(code)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}

	if err := validateOrigin(c.Request, h.allowedOrigins); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
		return
	}

	// Resolved before the upgrade so a room that shut down in the meantime
	// still gets a clean HTTP error instead of a dead socket.
	userID, err := rm.GetUserID(c.Request.Context(), subject)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}

	conn, err := h.upgradeWebSocket(c)
	if err != nil {
		return // upgrader already wrote the response
	}

	logging.Info(c.Request.Context(), "Participant connected",
		zap.String("room", code),
		zap.Uint32("userId", uint32(userID)))

	h.HandleConnection(rm, conn, userID, subject, c.Request.RemoteAddr)
}

// HandleConnection wires an established connection to its room and starts
// the pumps. Split from ServeWs so tests can inject a mock connection.
func (h *Hub) HandleConnection(rm *room.Room, conn wsConnection, userID protocol.UserID, cookie, addr string) *Client {
	client := newClient(conn, rm, userID, cookie, addr)
	metrics.IncConnection()

	go client.writePump()
	go client.readPump()
	return client
}

// Shutdown removes and stops every registered room, which disconnects all
// of their clients.
func (h *Hub) Shutdown(ctx context.Context) error {
	codes := h.registry.Codes()
	logging.Info(ctx, "Shutting down hub, closing all rooms", zap.Int("count", len(codes)))

	var errs []error
	for _, code := range codes {
		rm, ok := h.registry.Remove(code)
		if !ok {
			continue
		}
		if err := rm.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
