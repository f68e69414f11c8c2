package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Workflow metrics
	WorkflowsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storyland_workflows_started_total",
			Help: "Total number of itinerary workflows started",
		},
	)

	WorkflowsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyland_workflows_completed_total",
			Help: "Total number of itinerary workflows finished, by terminal status",
		},
		[]string{"status"},
	)

	PhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storyland_phase_duration_seconds",
			Help:    "Wall time spent in each workflow phase",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"phase"},
	)

	PhaseTimeouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyland_phase_timeouts_total",
			Help: "Phases abandoned because their deadline elapsed",
		},
		[]string{"phase"},
	)

	// Selection gate metrics
	SelectionsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyland_selections_received_total",
			Help: "Region selection signals received, by source",
		},
		[]string{"source"},
	)

	SelectionWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storyland_selection_wait_seconds",
			Help:    "Time a workflow spent waiting for a region selection",
			Buckets: []float64{1, 10, 60, 300, 1800, 3600, 86400},
		},
	)

	// Tool call metrics
	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyland_tool_calls_total",
			Help: "External tool calls, by tool and outcome",
		},
		[]string{"tool", "outcome"},
	)

	ToolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storyland_tool_call_duration_seconds",
			Help:    "External tool call latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	ToolRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyland_tool_retries_total",
			Help: "Retry attempts against external tools",
		},
		[]string{"tool"},
	)

	// LLM metrics
	LLMCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyland_llm_calls_total",
			Help: "LLM completion calls, by stage and outcome",
		},
		[]string{"stage", "outcome"},
	)

	LLMTokensUsed = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storyland_llm_tokens_used",
			Help:    "Tokens consumed per LLM call",
			Buckets: []float64{100, 500, 1000, 2000, 5000, 10000},
		},
	)

	// State store metrics
	StateReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyland_state_reads_total",
			Help: "State store reads, by scope",
		},
		[]string{"scope"},
	)

	StateWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyland_state_writes_total",
			Help: "State store writes, by scope",
		},
		[]string{"scope"},
	)

	// Session metrics
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storyland_sessions_created_total",
			Help: "Reader sessions created",
		},
	)

	SessionCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storyland_session_cache_hits_total",
			Help: "Session lookups served from the local cache",
		},
	)

	SessionCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storyland_session_cache_misses_total",
			Help: "Session lookups that fell through to Redis",
		},
	)

	SessionCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storyland_session_cache_size",
			Help: "Sessions currently held in the local cache",
		},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storyland_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyland_circuit_breaker_trips_total",
			Help: "Times a circuit breaker opened",
		},
		[]string{"name"},
	)

	// Streaming metrics
	StreamSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storyland_stream_subscribers",
			Help: "Connected progress stream subscribers",
		},
	)

	StreamEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyland_stream_events_published_total",
			Help: "Progress events published, by type",
		},
		[]string{"type"},
	)
)
