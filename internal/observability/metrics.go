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
		Name: "voice_agent_active_sessions",
		Help: "Number of active dialogue sessions",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_agent_sessions_total",
		Help: "Total number of sessions handled",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_agent_session_duration_seconds",
		Help:    "Duration of dialogue sessions in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	// Segmentation metrics
	utterancesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_agent_utterances_total",
		Help: "Total number of detected utterances by outcome",
	}, []string{"outcome"}) // outcome: "committed", "discarded", "timed_out", "rejected"

	gatedFramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_agent_gated_frames_total",
		Help: "Microphone frames dropped by echo prevention",
	})

	// Pipeline stage metrics
	stageRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_agent_stage_requests_total",
		Help: "Pipeline stage invocations by stage and status",
	}, []string{"stage", "status"}) // stage: "stt", "llm", "tts"

	stageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voice_agent_stage_latency_seconds",
		Help:    "Pipeline stage latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	}, []string{"stage"})

	turnsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_agent_turns_total",
		Help: "Completed conversation turns",
	})

	historyEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_agent_history_evictions_total",
		Help: "Turns evicted from bounded conversation history",
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_agent_errors_total",
		Help: "Total number of errors",
	}, []string{"kind", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voice_agent_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_agent_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_agent_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" or "out"
)

// Metrics tracks metrics for a single session
type Metrics struct {
	sessionID  string
	startTime  time.Time
	stageStart map[string]time.Time
	mu         sync.Mutex
}

// NewSessionMetrics creates a new metrics tracker for a session
func NewSessionMetrics(sessionID string) *Metrics {
	return &Metrics{
		sessionID:  sessionID,
		startTime:  time.Now(),
		stageStart: make(map[string]time.Time),
	}
}

// RecordSessionStart records the start of a session
func (m *Metrics) RecordSessionStart() {
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordSessionEnd records the end of a session
func (m *Metrics) RecordSessionEnd() {
	activeSessions.Dec()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordUtterance records a detected utterance outcome
// ("committed", "discarded", "timed_out" or "rejected").
func (m *Metrics) RecordUtterance(outcome string) {
	utterancesTotal.WithLabelValues(outcome).Inc()
}

// RecordGatedFrame records a microphone frame dropped by echo prevention
func (m *Metrics) RecordGatedFrame() {
	gatedFramesTotal.Inc()
}

// RecordStageStart records the start of a pipeline stage ("stt", "llm", "tts")
func (m *Metrics) RecordStageStart(stage string) {
	m.mu.Lock()
	m.stageStart[stage] = time.Now()
	m.mu.Unlock()
}

// RecordStageEnd records the end of a pipeline stage
func (m *Metrics) RecordStageEnd(stage string, success bool) {
	m.mu.Lock()
	start, ok := m.stageStart[stage]
	delete(m.stageStart, stage)
	m.mu.Unlock()

	if ok {
		stageLatency.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}

	status := "success"
	if !success {
		status = "error"
	}
	stageRequests.WithLabelValues(stage, status).Inc()
}

// RecordTurn records a completed conversation turn
func (m *Metrics) RecordTurn() {
	turnsTotal.Inc()
}

// RecordHistoryEviction records a turn evicted from bounded history
func (m *Metrics) RecordHistoryEviction() {
	historyEvictions.Inc()
}

// RecordError records an error by kind and component
func (m *Metrics) RecordError(kind, component string) {
	errorsTotal.WithLabelValues(kind, component).Inc()
}

// RecordAudioBytes records audio bytes processed
func (m *Metrics) RecordAudioBytes(direction string, bytes int64) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
