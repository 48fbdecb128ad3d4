package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// All metrics are registered globally, so a binary that does not serve gRPC
// still exports the gRPC series with zero values.

// namespace defines the global prefix for all metrics (e.g., grouper_...).
const namespace = "grouper"

// lowLatencyBuckets covers grouping work that is expected to finish within a few milliseconds.
// Range: 1ms to 500ms.
var lowLatencyBuckets = []float64{.001, .002, .005, .010, .015, .020, .025, .030, .050, .100, .500}

var (
	// -------------------------------------------------------------------------
	// HTTP API
	// -------------------------------------------------------------------------

	// HTTPReqDuration measures the latency of HTTP requests.
	// Metric: grouper_http_handling_seconds
	HTTPReqDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "handling_seconds",
		Help:      "Time taken to handle HTTP requests",
		Buckets:   lowLatencyBuckets,
	}, []string{"method", "path"})

	// HTTPReqTotal counts the total number of HTTP requests.
	// Metric: grouper_http_requests_total
	HTTPReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests",
	}, []string{"method", "path", "code"})

	// -------------------------------------------------------------------------
	// gRPC API
	// -------------------------------------------------------------------------

	// GRPCDuration measures the latency of gRPC requests.
	// Metric: grouper_grpc_handling_seconds
	GRPCDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "grpc",
		Name:      "handling_seconds",
		Help:      "Time taken to handle gRPC requests",
		Buckets:   lowLatencyBuckets,
	}, []string{"method", "code"})

	// GRPCTotal counts the total number of gRPC requests.
	// Metric: grouper_grpc_requests_total
	GRPCTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "grpc",
		Name:      "requests_total",
		Help:      "Total gRPC requests",
	}, []string{"method", "code"})

	// -------------------------------------------------------------------------
	// CACHE (L1 otter, L2 Redis)
	// -------------------------------------------------------------------------

	CacheL1Hits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "l1_hits_total",
		Help:      "Total L1 cache hits (in-memory)",
	})

	CacheL1Misses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "l1_misses_total",
		Help:      "Total L1 cache misses",
	})

	// CacheL1Evictions tracks items removed because the cache reached capacity.
	CacheL1Evictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "l1_evictions_total",
		Help:      "Total items evicted due to capacity",
	})

	// CacheL1Usage is an item count; S3-FIFO does not track byte size.
	CacheL1Usage = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "l1_items_count",
		Help:      "Current number of items in the L1 cache",
	})

	// CacheL1Dropped tracks writes rejected by the cache admission policy.
	CacheL1Dropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "l1_dropped_total",
		Help:      "Total sets dropped by the L1 cache",
	})

	// CacheL2Requests counts Redis operations by outcome (hit, miss, ok, error).
	// Metric: grouper_cache_l2_requests_total
	CacheL2Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "l2_requests_total",
		Help:      "Total L2 cache operations by result",
	}, []string{"op", "result"})

	// CacheL2PoolConns reports the Redis connection pool state (total, idle).
	CacheL2PoolConns = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "l2_pool_connections",
		Help:      "Current number of Redis pool connections by state",
	}, []string{"state"})

	// CacheL2PoolTimeouts counts waits for a free Redis connection that timed out.
	CacheL2PoolTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "l2_pool_timeouts_total",
		Help:      "Total Redis pool wait timeouts",
	})

	// -------------------------------------------------------------------------
	// DATABASE
	// -------------------------------------------------------------------------

	// DBPoolConns reports the pgx pool state (total, idle, acquired).
	// Metric: grouper_db_pool_connections
	DBPoolConns = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "db",
		Name:      "pool_connections",
		Help:      "Current number of PostgreSQL pool connections by state",
	}, []string{"state"})

	// -------------------------------------------------------------------------
	// GROUPING
	// -------------------------------------------------------------------------

	// GroupingDuration measures the time spent computing the variants of one event.
	// Metric: grouper_grouping_duration_seconds
	GroupingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "grouping",
		Name:      "duration_seconds",
		Help:      "Time taken to compute grouping variants for an event",
		Buckets:   lowLatencyBuckets,
	}, []string{"config"})

	// GroupingEventsTotal counts grouped events by config and outcome.
	GroupingEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "grouping",
		Name:      "events_total",
		Help:      "Total events grouped",
	}, []string{"config", "status"})

	// FingerprintRuleMatches counts server-side fingerprinting rule hits.
	FingerprintRuleMatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "grouping",
		Name:      "fingerprint_rule_matches_total",
		Help:      "Total events whose fingerprint was set by a server-side rule",
	}, []string{"builtin"})

	// ConfigFallbacks counts lenient degradations while loading project rules.
	// Metric: grouper_grouping_config_fallbacks_total
	ConfigFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "grouping",
		Name:      "config_fallbacks_total",
		Help:      "Total project rule sets replaced by defaults after a parse or cache failure",
	}, []string{"kind", "reason"})

	// BackgroundComparisons counts sampled background evaluations by result (match, mismatch, error).
	BackgroundComparisons = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "grouping",
		Name:      "background_comparisons_total",
		Help:      "Total background grouping evaluations compared against the primary result",
	}, []string{"config", "result"})

	// -------------------------------------------------------------------------
	// WARMER
	// -------------------------------------------------------------------------

	// WarmerRunDuration measures one full pass over every project.
	// Metric: grouper_warmer_run_duration_seconds
	WarmerRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "warmer",
		Name:      "run_duration_seconds",
		Help:      "Time taken to warm the cache for every project",
		Buckets:   prometheus.DefBuckets,
	})

	WarmerProjectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "warmer",
		Name:      "projects_total",
		Help:      "Total projects processed by the warmer",
	}, []string{"status"}) // success, fail
)
