package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the watch room service, declared centrally so packages share
// one registry view.
//
// Naming convention: namespace_subsystem_name
// - namespace: watchroom (application-level grouping)
// - subsystem: websocket, room, ratelimit, breaker (feature-level grouping)
// - name: specific metric (connections_active, messages_total, etc.)
//
// Metric Types:
// - Gauge: Current state (connections, rooms, participants)
// - Counter: Cumulative events (messages processed, frames fanned out)
// - Histogram: Distributions (processing time, ping round trips)

var (
	// ActiveWebSocketConnections tracks the current number of active WebSocket connections (Gauge - current state)
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "watchroom",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of registered rooms (Gauge - current state)
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "watchroom",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of registered rooms",
	})

	// RoomParticipants tracks the number of participants in each room (GaugeVec with room_id label - current state per room)
	RoomParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "watchroom",
		Subsystem: "room",
		Name:      "participants_count",
		Help:      "Number of participants in each room",
	}, []string{"room_id"})

	// RoomsCreated counts rooms opened through the lobby (Counter - cumulative)
	RoomsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "watchroom",
		Subsystem: "room",
		Name:      "created_total",
		Help:      "Rooms opened through the lobby",
	})

	// RoomMessages counts session messages dispatched by the room engine (CounterVec - cumulative)
	RoomMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watchroom",
		Subsystem: "room",
		Name:      "messages_total",
		Help:      "Session messages dispatched by room engines",
	}, []string{"type"})

	// FanoutFrames counts frames fanned out to participants (Counter - cumulative)
	FanoutFrames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "watchroom",
		Subsystem: "room",
		Name:      "fanout_frames_total",
		Help:      "Frames fanned out to participants",
	})

	// PingRTT observes the server-side round trip of the time sync ping/pong (Histogram - distribution)
	PingRTT = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "watchroom",
		Subsystem: "room",
		Name:      "ping_rtt_seconds",
		Help:      "Round trip of the time sync ping/pong pairs",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})

	// WebsocketEvents tracks the total number of WebSocket events processed (CounterVec - cumulative)
	WebsocketEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watchroom",
		Subsystem: "websocket",
		Name:      "events_total",
		Help:      "Total WebSocket events processed",
	}, []string{"event_type", "status"})

	// MessageProcessingDuration tracks the time spent handling inbound frames (HistogramVec - latency distribution)
	MessageProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "watchroom",
		Subsystem: "websocket",
		Name:      "message_processing_seconds",
		Help:      "Time spent handling inbound WebSocket frames",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"event_type"})

	// RateLimitRequests counts requests checked against a rate limit (CounterVec - cumulative)
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watchroom",
		Subsystem: "ratelimit",
		Name:      "requests_total",
		Help:      "Requests checked against a rate limit",
	}, []string{"endpoint"})

	// RateLimitExceeded counts requests rejected by a rate limit (CounterVec - cumulative)
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watchroom",
		Subsystem: "ratelimit",
		Name:      "exceeded_total",
		Help:      "Requests rejected by a rate limit",
	}, []string{"endpoint", "limit_type"})

	// CircuitBreakerState exposes breaker state per backing service: 0 closed, 1 half-open, 2 open (GaugeVec)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "watchroom",
		Subsystem: "breaker",
		Name:      "state",
		Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"service"})

	// CircuitBreakerFailures counts operations that tripped breaker accounting (CounterVec - cumulative)
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watchroom",
		Subsystem: "breaker",
		Name:      "failures_total",
		Help:      "Operations that failed through a circuit breaker",
	}, []string{"service"})
)

func IncConnection() {
	ActiveWebSocketConnections.Inc()
}

func DecConnection() {
	ActiveWebSocketConnections.Dec()
}
