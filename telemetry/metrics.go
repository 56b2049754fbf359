package telemetry

// Histogram bucket definitions for different latency profiles
var (
	// MatchBuckets for publish-path index traversals (in-memory, hot)
	MatchBuckets = []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1}

	// CompileBuckets for first-time filter compilation
	CompileBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1}
)

// Subscription Metrics
var (
	// SubscribeTotal counts subscribe attempts by result (ok, duplicate, compile_error)
	SubscribeTotal CounterVec = noopCounterVec{}

	// UnsubscribeTotal counts unsubscribe attempts by result (ok, drift)
	UnsubscribeTotal CounterVec = noopCounterVec{}

	// RoomsActive tracks the number of live rooms
	RoomsActive Gauge = NoopStat{}

	// CustomersActive tracks connections with at least one binding
	CustomersActive Gauge = NoopStat{}

	// IndexLeaves tracks live matcher leaves in the filter index
	IndexLeaves Gauge = NoopStat{}
)

// Publish-path Metrics
var (
	// MatchDurationSeconds measures filter-index traversal latency
	MatchDurationSeconds Histogram = NoopStat{}

	// EventsTotal counts ingested change events by result (matched, unmatched, decode_error)
	EventsTotal CounterVec = noopCounterVec{}

	// SignalsDroppedTotal counts signals dropped on full subscriber buffers
	SignalsDroppedTotal Counter = NoopStat{}
)

// Compiler Metrics
var (
	// CompileDurationSeconds measures filter compilation latency
	CompileDurationSeconds Histogram = NoopStat{}

	// CompileCacheTotal counts compiled-filter cache lookups by outcome (hit, miss)
	CompileCacheTotal CounterVec = noopCounterVec{}
)

// InitMetrics initializes all Prometheus metrics.
// Must be called after InitializeTelemetry().
func InitMetrics() {
	SubscribeTotal = NewCounterVec(
		"subscribe_total",
		"Subscribe attempts by result",
		[]string{"result"},
	)
	UnsubscribeTotal = NewCounterVec(
		"unsubscribe_total",
		"Unsubscribe attempts by result",
		[]string{"result"},
	)
	RoomsActive = NewGauge(
		"rooms_active",
		"Number of live rooms",
	)
	CustomersActive = NewGauge(
		"customers_active",
		"Connections with at least one subscription",
	)
	IndexLeaves = NewGauge(
		"index_leaves",
		"Live matcher leaves in the filter index",
	)

	MatchDurationSeconds = NewHistogramWithBuckets(
		"match_duration_seconds",
		"Filter-index traversal latency",
		MatchBuckets,
	)
	EventsTotal = NewCounterVec(
		"events_total",
		"Ingested change events by result",
		[]string{"result"},
	)
	SignalsDroppedTotal = NewCounter(
		"signals_dropped_total",
		"Signals dropped on full subscriber buffers",
	)

	CompileDurationSeconds = NewHistogramWithBuckets(
		"compile_duration_seconds",
		"Filter compilation latency",
		CompileBuckets,
	)
	CompileCacheTotal = NewCounterVec(
		"compile_cache_total",
		"Compiled-filter cache lookups by outcome",
		[]string{"outcome"},
	)
}
