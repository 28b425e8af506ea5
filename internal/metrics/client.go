package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for tracking pool and cache behavior.
var (
	// Connection metrics
	ConnectedRelays = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gestalt_client_connected_relays",
		Help: "The number of relay connections currently open",
	})

	ActiveSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gestalt_client_active_subscriptions",
		Help: "The number of live streaming subscriptions",
	})

	DialFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gestalt_client_dial_failures_total",
		Help: "Failed websocket dials by relay",
	}, []string{"relay"})

	// Publish metrics
	PublishAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gestalt_client_publish_attempts_total",
		Help: "Events handed to the pool for publishing",
	})

	PublishAcks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gestalt_client_publish_acks_total",
		Help: "Relay acknowledgments by outcome",
	}, []string{"outcome"}) // "ok", "rejected", "timeout"

	// Query metrics
	Queries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gestalt_client_queries_total",
		Help: "One-shot queries issued against the pool",
	})

	QueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gestalt_client_query_duration_seconds",
		Help:    "Wall time of one-shot queries",
		Buckets: prometheus.ExponentialBuckets(0.01, 10, 5), // 0.01, 0.1, 1, 10, 100
	})

	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gestalt_client_events_received_total",
		Help: "Events received from relays, pre-dedup, by relay",
	}, []string{"relay"})

	DuplicateEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gestalt_client_duplicate_events_total",
		Help: "Events dropped as cross-relay duplicates",
	})

	InvalidSignatures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gestalt_client_invalid_signatures_total",
		Help: "Inbound events dropped for failing signature verification",
	})

	// Derived-state metrics
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gestalt_client_cache_hits_total",
		Help: "Derived-state cache hits by cache",
	}, []string{"cache"}) // "profile", "follows", "bookmarks"

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gestalt_client_cache_misses_total",
		Help: "Derived-state cache misses by cache",
	}, []string{"cache"})

	SingleflightShared = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gestalt_client_singleflight_shared_total",
		Help: "Fetches that piggybacked on an identical in-flight fetch",
	})

	// Error metrics
	ErrorsCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gestalt_client_errors_total",
		Help: "The total number of errors by type",
	}, []string{"type"}) // "signing", "validation", "network", "timeout", "storage"
)

// Plain counters for programmatic status snapshots, since prometheus
// counters cannot be read back directly.
var (
	eventsReceivedCount int64
	publishOKCount      int64
	lastEventTimestamp  int64
)

// RecordEventReceived increments both the prometheus counter and the local
// snapshot counter.
func RecordEventReceived(relay string, unixTime int64) {
	EventsReceived.WithLabelValues(relay).Inc()
	atomic.AddInt64(&eventsReceivedCount, 1)
	atomic.StoreInt64(&lastEventTimestamp, unixTime)
}

// RecordPublishOK counts a confirmed publish.
func RecordPublishOK() {
	PublishAcks.WithLabelValues("ok").Inc()
	atomic.AddInt64(&publishOKCount, 1)
}

// EventsReceivedCount returns events received since start.
func EventsReceivedCount() int64 {
	return atomic.LoadInt64(&eventsReceivedCount)
}

// PublishOKCount returns confirmed publishes since start.
func PublishOKCount() int64 {
	return atomic.LoadInt64(&publishOKCount)
}

// LastEventTime returns the unix timestamp of the most recent inbound event.
func LastEventTime() int64 {
	return atomic.LoadInt64(&lastEventTimestamp)
}

// RegisterMetrics pre-registers common label values so dashboards show
// zeroes instead of absent series.
func RegisterMetrics() {
	for _, outcome := range []string{"ok", "rejected", "timeout"} {
		PublishAcks.WithLabelValues(outcome)
	}
	for _, cache := range []string{"profile", "follows", "bookmarks"} {
		CacheHits.WithLabelValues(cache)
		CacheMisses.WithLabelValues(cache)
	}
	for _, errType := range []string{"signing", "validation", "network", "timeout", "storage"} {
		ErrorsCount.WithLabelValues(errType)
	}
}
