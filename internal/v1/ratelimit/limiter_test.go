package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmtu/watchroom/internal/v1/config"
)

func newTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rc := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cfg := &config.Config{
		RateLimitWS:    "5-M",
		RateLimitLobby: "3-M",
	}

	l, err := New(cfg, rc)
	require.NoError(t, err)

	return l, mr
}

func TestNew_MemoryFallback(t *testing.T) {
	cfg := &config.Config{
		RateLimitWS:    "5-M",
		RateLimitLobby: "3-M",
	}
	l, err := New(cfg, nil)
	assert.NoError(t, err)
	assert.NotNil(t, l)
}

func TestNew_InvalidRate(t *testing.T) {
	cfg := &config.Config{
		RateLimitWS:    "not-a-rate",
		RateLimitLobby: "3-M",
	}
	_, err := New(cfg, nil)
	assert.Error(t, err)
}

func TestCheckWebSocket_IPLimit(t *testing.T) {
	l, _ := newTestLimiter(t)

	gin.SetMode(gin.TestMode)

	// Consume the budget of 5.
	for i := 0; i < 5; i++ {
		ctx, _ := gin.CreateTestContext(httptest.NewRecorder())
		ctx.Request, _ = http.NewRequest("GET", "/websocket/GZ4KQ", nil)
		assert.True(t, l.CheckWebSocket(ctx))
	}

	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)
	ctx.Request, _ = http.NewRequest("GET", "/websocket/GZ4KQ", nil)
	assert.False(t, l.CheckWebSocket(ctx))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestLobbyMiddleware(t *testing.T) {
	l, _ := newTestLimiter(t)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(l.LobbyMiddleware())
	r.GET("/", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	// Lobby budget is 3.
	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest("GET", "/", nil)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, "3", resp.Header().Get("X-RateLimit-Limit"))
	}

	req, _ := http.NewRequest("GET", "/", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
}

func TestRedisFailure_FailsOpen(t *testing.T) {
	l, mr := newTestLimiter(t)

	// Kill redis to simulate failure.
	mr.Close()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(l.LobbyMiddleware())
	r.GET("/fail-open", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req, _ := http.NewRequest("GET", "/fail-open", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
}
