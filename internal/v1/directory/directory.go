// Package directory persists the catalog of open rooms in Redis so the
// lobby survives restarts, and publishes room lifecycle events for external
// consumers. A nil *Service degrades to single-instance mode: every method
// becomes a no-op.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"k8s.io/utils/set"

	"github.com/tmtu/watchroom/internal/v1/metrics"
)

const (
	roomSetKey    = "watchroom:rooms"
	roomKeyPrefix = "watchroom:room:"
	eventsChannel = "watchroom:events"
)

// Lifecycle event kinds published on the events channel.
const (
	EventRoomOpened = "room_opened"
	EventRoomClosed = "room_closed"
)

// Entry is one catalog row. Only identity and media binding are persisted;
// live playback state never is.
type Entry struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Event is a lifecycle notification for out-of-process consumers.
type Event struct {
	Kind string `json:"kind"`
	Code string `json:"code"`
	Name string `json:"name,omitempty"`
}

// Opened builds the event announcing a new room.
func Opened(code, name string) Event {
	return Event{Kind: EventRoomOpened, Code: code, Name: name}
}

// Closed builds the event announcing a room going away.
func Closed(code string) Event {
	return Event{Kind: EventRoomClosed, Code: code}
}

// Service handles all interaction with the Redis catalog.
type Service struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
}

// Client returns the underlying Redis client, nil in single-instance mode.
func (s *Service) Client() *redis.Client {
	if s == nil {
		return nil
	}
	return s.client
}

// NewService connects to Redis and verifies the connection immediately.
func NewService(addr, password string) (*Service, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "redis",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("redis").Set(stateVal)
		},
	}

	slog.Info("Connected to Redis room directory", "addr", addr)
	return &Service{
		client: rdb,
		cb:     gobreaker.NewCircuitBreaker(st),
	}, nil
}

// Save upserts a catalog entry: the code joins the room set and the entry
// blob is written under its own key.
func (s *Service) Save(ctx context.Context, entry Entry) error {
	if s == nil || s.client == nil {
		return nil // single-instance mode
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		data, err := json.Marshal(entry)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal directory entry: %w", err)
		}

		pipe := s.client.TxPipeline()
		pipe.SAdd(ctx, roomSetKey, entry.Code)
		pipe.Set(ctx, roomKeyPrefix+entry.Code, data, 0)
		_, err = pipe.Exec(ctx)
		return nil, err
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			slog.Warn("Redis circuit breaker open, dropping directory save", "code", entry.Code)
			return nil // graceful degradation
		}
		slog.Error("Directory save failed", "code", entry.Code, "error", err)
		return err
	}
	return nil
}

// Remove deletes a catalog entry.
func (s *Service) Remove(ctx context.Context, code string) error {
	if s == nil || s.client == nil {
		return nil // single-instance mode
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		pipe := s.client.TxPipeline()
		pipe.SRem(ctx, roomSetKey, code)
		pipe.Del(ctx, roomKeyPrefix+code)
		_, err := pipe.Exec(ctx)
		return nil, err
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			slog.Warn("Redis circuit breaker open, skipping directory remove", "code", code)
			return nil // graceful degradation
		}
		slog.Error("Directory remove failed", "code", code, "error", err)
		return err
	}
	return nil
}

// List returns every saved entry, ordered by code. The room set and the
// entry blobs can drift when a pod dies between pipeline stages, so both
// sides are merged before reading.
func (s *Service) List(ctx context.Context) ([]Entry, error) {
	if s == nil || s.client == nil {
		return nil, nil // single-instance mode
	}

	res, err := s.cb.Execute(func() (interface{}, error) {
		members, err := s.client.SMembers(ctx, roomSetKey).Result()
		if err != nil {
			return nil, err
		}
		keys, err := s.client.Keys(ctx, roomKeyPrefix+"*").Result()
		if err != nil {
			return nil, err
		}

		known := set.New(members...)
		for _, key := range keys {
			known.Insert(strings.TrimPrefix(key, roomKeyPrefix))
		}
		codes := known.UnsortedList()
		sort.Strings(codes)

		entries := make([]Entry, 0, len(codes))
		for _, code := range codes {
			data, err := s.client.Get(ctx, roomKeyPrefix+code).Bytes()
			if err == redis.Nil {
				continue // set member without a blob
			}
			if err != nil {
				return nil, err
			}

			var entry Entry
			if err := json.Unmarshal(data, &entry); err != nil {
				slog.Error("Skipping corrupt directory entry", "code", code, "error", err)
				continue
			}
			entries = append(entries, entry)
		}
		return entries, nil
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			slog.Warn("Redis circuit breaker open, returning empty directory")
			return nil, nil // graceful degradation
		}
		slog.Error("Directory list failed", "error", err)
		return nil, fmt.Errorf("failed to list directory: %w", err)
	}
	return res.([]Entry), nil
}

// Publish emits a lifecycle event on the events channel.
func (s *Service) Publish(ctx context.Context, event Event) error {
	if s == nil || s.client == nil {
		return nil // single-instance mode
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		data, err := json.Marshal(event)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal lifecycle event: %w", err)
		}
		return nil, s.client.Publish(ctx, eventsChannel, data).Err()
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			slog.Warn("Redis circuit breaker open, dropping lifecycle event",
				"kind", event.Kind, "code", event.Code)
			return nil // graceful degradation
		}
		slog.Error("Lifecycle publish failed", "kind", event.Kind, "code", event.Code, "error", err)
		return err
	}
	return nil
}

// Ping checks Redis connectivity. Used by health checks.
func (s *Service) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil // single-instance mode
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.Ping(ctx).Err()
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
		}
		return err
	}
	return nil
}

// Close shuts down the Redis connection.
func (s *Service) Close() error {
	if s == nil || s.client == nil {
		return nil // single-instance mode
	}
	return s.client.Close()
}
