package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tmtu/watchroom/internal/v1/config"
	"github.com/tmtu/watchroom/internal/v1/directory"
	"github.com/tmtu/watchroom/internal/v1/health"
	"github.com/tmtu/watchroom/internal/v1/identity"
	"github.com/tmtu/watchroom/internal/v1/lobby"
	"github.com/tmtu/watchroom/internal/v1/logging"
	"github.com/tmtu/watchroom/internal/v1/media"
	"github.com/tmtu/watchroom/internal/v1/middleware"
	"github.com/tmtu/watchroom/internal/v1/ratelimit"
	"github.com/tmtu/watchroom/internal/v1/registry"
	"github.com/tmtu/watchroom/internal/v1/room"
	"github.com/tmtu/watchroom/internal/v1/tracing"
	"github.com/tmtu/watchroom/internal/v1/transport"
)

const serviceName = "watchroom"

// demoRoomCode matches the room the original deployment always opened, so a
// fresh checkout is joinable without touching the create form.
const demoRoomCode = "GZ4KQ"

func main() {
	// Load .env file for local development.
	// Try multiple paths to handle different ways of running the app
	envPaths := []string{".env", "../../../.env", "../../.env"}
	var envLoaded bool

	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			slog.Info("Loaded environment from", "path", path)
			envLoaded = true
			break
		}
	}

	if !envLoaded {
		slog.Warn("No .env file found in any expected location, relying on environment variables")
	}

	// Validate environment variables before starting the server
	cfg, err := config.ValidateEnv()
	if err != nil {
		slog.Error("Environment validation failed", "error", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.Development()); err != nil {
		slog.Error("Failed to initialize logging", "error", err)
		os.Exit(1)
	}

	if cfg.Development() {
		slog.Info("Running in DEVELOPMENT MODE")
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// --- Tracing (Optional) ---
	if cfg.TracingEnabled {
		if cfg.OTLPEndpoint == "" {
			slog.Warn("TRACING_ENABLED is set but OTEL_EXPORTER_OTLP_ENDPOINT is missing, tracing stays off")
		} else if shutdown, err := tracing.Init(context.Background(), serviceName, cfg.GoEnv, cfg.OTLPEndpoint); err != nil {
			slog.Error("Failed to initialize tracing, continuing without it", "error", err)
		} else {
			slog.Info("✅ Tracing initialized", "endpoint", cfg.OTLPEndpoint)
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					slog.Error("Failed to flush traces", "error", err)
				}
			}()
		}
	}

	// --- Redis Room Directory (Optional) ---
	// The directory persists the room catalog across restarts; without it
	// the server runs in single-instance mode and rooms live only in memory.
	var dir *directory.Service
	if cfg.RedisEnabled {
		dir, err = directory.NewService(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			slog.Error("Failed to connect to Redis, running in single-instance mode", "error", err)
			dir = nil
		}
	} else {
		slog.Info("Running in single-instance mode (Redis disabled)")
	}

	limiter, err := ratelimit.New(cfg, dir.Client())
	if err != nil {
		slog.Error("Failed to create rate limiter", "error", err)
		os.Exit(1)
	}

	issuer, err := identity.NewIssuer(cfg.CookieSecret)
	if err != nil {
		slog.Error("Failed to create identity issuer", "error", err)
		os.Exit(1)
	}

	// --- Stream Library ---
	library := media.NewLibrary()
	if cfg.MediaDir != "" {
		if err := library.LoadDir(cfg.MediaDir); err != nil {
			slog.Error("Failed to load media directory", "error", err, "dir", cfg.MediaDir)
		} else {
			slog.Info("Stream library loaded", "dir", cfg.MediaDir, "streams", library.Len())
		}
	}

	seedDemo := cfg.DemoRoom || cfg.Development()
	if seedDemo {
		if _, ok := library.Get(media.DemoStream().Slug); !ok {
			library.Add(media.DemoStream())
		}
	}

	// --- Rooms ---
	reg := registry.New()
	factory := lobby.RoomFactory(func(code string, stream *media.Stream) *room.Room {
		return room.New(context.Background(), code, stream, room.WithPingInterval(cfg.PingInterval))
	})

	if dir != nil {
		restoreRooms(context.Background(), dir, reg, library, factory)
	}

	if seedDemo {
		if _, exists := reg.Find(demoRoomCode); !exists {
			stream := media.DemoStream()
			reg.Register(demoRoomCode, factory(demoRoomCode, stream))
			slog.Info("Seeded demo room", "code", demoRoomCode, "name", stream.Name)
		}
	}

	// --- HTTP Surface ---
	allowedOrigins := transport.ParseAllowedOrigins(cfg.AllowedOrigins)
	hub := transport.NewHub(reg, issuer, limiter, allowedOrigins)
	front := lobby.NewHandler(reg, library, issuer, dir, factory, cfg.Development())

	router := gin.Default()

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = allowedOrigins
	router.Use(cors.New(corsCfg))
	router.Use(middleware.CorrelationID())
	if cfg.TracingEnabled {
		router.Use(otelgin.Middleware(serviceName))
	}

	router.GET("/", front.Index)
	router.POST("/", limiter.LobbyMiddleware(), front.Join)
	router.GET("/create", front.CreatePage)
	router.POST("/create", limiter.LobbyMiddleware(), front.Create)

	router.GET("/websocket/:code", hub.ServeWs)

	// Prometheus metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check endpoints
	healthHandler := health.NewHandler(dir)
	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)

	// Player assets and HLS media, served next to the API so playlist URLs
	// stay same-origin.
	if cfg.StaticDir != "" {
		router.Static("/static", cfg.StaticDir)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// --- Graceful Shutdown ---
	// Start the server in a goroutine so it doesn't block.
	go func() {
		slog.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Failed to run server", "error", err)
			syscall.Kill(os.Getpid(), syscall.SIGTERM)
		}
	}()

	// Wait for an interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Close every room and its websocket sessions. Directory entries stay
	// put: the next boot restores the catalog from them.
	if err := hub.Shutdown(ctx); err != nil {
		slog.Error("Error during hub shutdown", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	if dir != nil {
		if err := dir.Close(); err != nil {
			slog.Error("Failed to close Redis connection", "error", err)
		} else {
			slog.Info("Redis connection closed")
		}
	}

	slog.Info("Server exiting")
}

// restoreRooms re-opens every room the directory remembers. Saved entries
// whose stream has left the library still open, just without media.
func restoreRooms(ctx context.Context, dir *directory.Service, reg *registry.Registry, library *media.Library, factory lobby.RoomFactory) {
	entries, err := dir.List(ctx)
	if err != nil {
		slog.Error("Failed to list saved rooms", "error", err)
		return
	}

	restored := 0
	for _, entry := range entries {
		if _, exists := reg.Find(entry.Code); exists {
			continue
		}
		var stream *media.Stream
		if source, ok := library.Get(entry.Slug); ok {
			copied := *source
			copied.Name = entry.Name
			stream = &copied
		} else {
			slog.Warn("Saved room references an unknown stream",
				"code", entry.Code, "slug", entry.Slug)
		}
		reg.Register(entry.Code, factory(entry.Code, stream))
		restored++
	}

	if restored > 0 {
		slog.Info("Restored rooms from directory", "count", restored)
	}
}
