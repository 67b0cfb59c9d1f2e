package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "session_gateway_active_sessions",
		Help: "Number of active voice sessions",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_gateway_sessions_total",
		Help: "Total number of voice sessions handled",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "session_gateway_session_duration_seconds",
		Help:    "Duration of voice sessions in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	handshakeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_gateway_handshake_failures_total",
		Help: "Total number of failed credential handshakes",
	}, []string{"reason"}) // reason: malformed, missing_key, init_failed

	// Turn metrics
	turnsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_gateway_turns_total",
		Help: "Total number of finalized turns",
	})

	// Leg metrics
	legRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_gateway_leg_requests_total",
		Help: "Total number of per-turn leg executions",
	}, []string{"leg", "status"}) // leg: generation, lookup, synthesis; status: success, error, skipped

	legLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "session_gateway_leg_latency_seconds",
		Help:    "Leg completion latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	}, []string{"leg"})

	// Outbound event metrics
	outboundEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_gateway_outbound_events_total",
		Help: "Total number of events delivered to clients",
	}, []string{"type"})

	droppedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_gateway_outbound_events_dropped_total",
		Help: "Events dropped because their session was no longer active",
	})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_gateway_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" or "out"
)

// SessionMetrics tracks metrics for a single session
type SessionMetrics struct {
	sessionID string
	startTime time.Time
	mu        sync.Mutex
	ended     bool
}

// NewSessionMetrics creates a new metrics tracker for a session
func NewSessionMetrics(sessionID string) *SessionMetrics {
	return &SessionMetrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordSessionStart records the start of a session
func (m *SessionMetrics) RecordSessionStart() {
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordSessionEnd records the end of a session. Safe to call more than once;
// only the first call is counted.
func (m *SessionMetrics) RecordSessionEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ended {
		return
	}
	m.ended = true

	activeSessions.Dec()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordTurn records one finalized turn
func (m *SessionMetrics) RecordTurn() {
	turnsTotal.Inc()
}

// RecordAudioBytes records audio bytes processed
func (m *SessionMetrics) RecordAudioBytes(direction string, bytes int64) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// RecordLeg records the outcome and latency of one leg execution
func RecordLeg(leg string, start time.Time, status string) {
	legLatency.WithLabelValues(leg).Observe(time.Since(start).Seconds())
	legRequests.WithLabelValues(leg, status).Inc()
}

// RecordLegSkipped records a leg that was disabled for the session
func RecordLegSkipped(leg string) {
	legRequests.WithLabelValues(leg, "skipped").Inc()
}

// RecordOutboundEvent records one event delivered to a client
func RecordOutboundEvent(eventType string) {
	outboundEvents.WithLabelValues(eventType).Inc()
}

// RecordDroppedEvent records an event dropped at the invalidated-sink check
func RecordDroppedEvent() {
	droppedEvents.Inc()
}

// RecordHandshakeFailure records a failed credential handshake
func RecordHandshakeFailure(reason string) {
	handshakeFailures.WithLabelValues(reason).Inc()
}
