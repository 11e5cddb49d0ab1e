// Package health serves the kubernetes style liveness and readiness probes.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tmtu/watchroom/internal/v1/directory"
	"github.com/tmtu/watchroom/internal/v1/logging"
)

// Handler manages the health check endpoints.
type Handler struct {
	directory *directory.Service
}

// NewHandler creates a health handler. A nil directory means single-instance
// mode, which is always considered healthy.
func NewHandler(dir *directory.Service) *Handler {
	return &Handler{directory: dir}
}

// LivenessResponse is the liveness probe payload.
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse is the readiness probe payload.
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Liveness handles GET /health/live. It returns 200 whenever the process is
// alive; no dependency is consulted.
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness handles GET /health/ready. It returns 200 only while every
// dependency is healthy, 503 otherwise.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	redisStatus := h.checkRedis(ctx)
	checks["redis"] = redisStatus
	if redisStatus != "healthy" {
		allHealthy = false
	}

	status := "ready"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// checkRedis verifies the room directory's Redis connection.
func (h *Handler) checkRedis(ctx context.Context) string {
	// Single-instance mode carries no Redis to be unhealthy.
	if h.directory == nil {
		return "healthy"
	}

	if err := h.directory.Ping(ctx); err != nil {
		logging.Error(ctx, "Redis health check failed", zap.Error(err))
		return "unhealthy"
	}
	return "healthy"
}
