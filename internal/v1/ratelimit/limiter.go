// Package ratelimit throttles connection attempts and lobby requests,
// backed by Redis when available and process memory otherwise.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/tmtu/watchroom/internal/v1/config"
	"github.com/tmtu/watchroom/internal/v1/logging"
	"github.com/tmtu/watchroom/internal/v1/metrics"
)

// Limiter holds the per-concern limiter instances. Both key on client IP:
// identities are free to mint, so they are no basis for limiting.
type Limiter struct {
	ws    *limiter.Limiter
	lobby *limiter.Limiter
	store limiter.Store
}

// New creates a Limiter from the configured formatted rates. A nil Redis
// client falls back to a per-process memory store.
func New(cfg *config.Config, redisClient *redis.Client) (*Limiter, error) {
	wsRate, err := limiter.NewRateFromFormatted(cfg.RateLimitWS)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket rate: %w", err)
	}

	lobbyRate, err := limiter.NewRateFromFormatted(cfg.RateLimitLobby)
	if err != nil {
		return nil, fmt.Errorf("invalid lobby rate: %w", err)
	}

	var store limiter.Store
	if redisClient != nil {
		s, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{
			Prefix: "limiter:watchroom:",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis store: %w", err)
		}
		store = s
		logging.Info(context.Background(), "✅ Rate limiter using Redis store")
	} else {
		store = memory.NewStore()
		logging.Warn(context.Background(), "⚠️  Rate limiter using Memory store (Redis disabled or unavailable)")
	}

	return &Limiter{
		ws:    limiter.New(store, wsRate),
		lobby: limiter.New(store, lobbyRate),
		store: store,
	}, nil
}

// CheckWebSocket enforces the per-IP connection budget. It returns false
// after writing the 429 response; a store failure fails open.
func (l *Limiter) CheckWebSocket(c *gin.Context) bool {
	ctx := c.Request.Context()
	ip := c.ClientIP()

	result, err := l.ws.Get(ctx, ip)
	if err != nil {
		logging.Error(ctx, "Rate limiter store failed", zap.Error(err))
		return true
	}

	metrics.RateLimitRequests.WithLabelValues("websocket_connect").Inc()
	if result.Reached {
		metrics.RateLimitExceeded.WithLabelValues("websocket_connect", "ip").Inc()
		c.Header("X-RateLimit-Retry-After", strconv.FormatInt(result.Reset, 10))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many connections from this IP"})
		return false
	}

	return true
}

// LobbyMiddleware throttles the lobby's HTML endpoints per IP.
func (l *Limiter) LobbyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ip := c.ClientIP()

		result, err := l.lobby.Get(ctx, ip)
		if err != nil {
			logging.Error(ctx, "Rate limiter store failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.Reset, 10))

		metrics.RateLimitRequests.WithLabelValues("lobby").Inc()
		if result.Reached {
			metrics.RateLimitExceeded.WithLabelValues("lobby", "ip").Inc()
			c.Header("Retry-After", strconv.FormatInt(result.Reset-time.Now().Unix(), 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests",
				"retry_after": result.Reset,
			})
			return
		}

		c.Next()
	}
}
