// Package metrics exposes the cache's Prometheus instrumentation: sync
// timestamps, clone count/latency, lock-wait time, and repair outcomes.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lastSyncTimestamp *prometheus.GaugeVec
	cloneCount        *prometheus.CounterVec
	cloneLatency      *prometheus.HistogramVec
	lockWaitSeconds   *prometheus.HistogramVec
	repairCount       *prometheus.CounterVec
)

// Enable registers every metric under metricsNamespace. Available metrics:
//   - git_cache_last_sync_timestamp (tags: identity) - Gauge, last successful sync.
//   - git_cache_clone_count (tags: identity, success) - Counter of clone attempts.
//   - git_cache_clone_latency_seconds (tags: identity) - Histogram of clone duration.
//   - git_cache_lock_wait_seconds (tags: path) - Histogram of lock acquisition wait.
//   - git_cache_repair_count (tags: outcome) - Counter of repair attempts.
func Enable(metricsNamespace string, registerer prometheus.Registerer) {
	factory := promauto.With(registerer)

	lastSyncTimestamp = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "git_cache_last_sync_timestamp",
		Help:      "Timestamp of the last successful mirror sync",
	}, []string{"identity"})

	cloneCount = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "git_cache_clone_count",
		Help:      "Count of clone operations",
	}, []string{"identity", "success"})

	cloneLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "git_cache_clone_latency_seconds",
		Help:      "Latency of clone operations",
		Buckets:   []float64{0.5, 1, 5, 10, 20, 30, 60, 90, 120, 150, 300},
	}, []string{"identity"})

	lockWaitSeconds = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "git_cache_lock_wait_seconds",
		Help:      "Time spent waiting to acquire a per-path advisory lock",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60},
	}, []string{"path"})

	repairCount = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "git_cache_repair_count",
		Help:      "Count of repair attempts",
	}, []string{"outcome"})
}

// RecordClone records a clone attempt's outcome and bumps the sync
// timestamp on success.
func RecordClone(identity string, success bool) {
	if cloneCount == nil {
		return
	}
	if success {
		lastSyncTimestamp.With(prometheus.Labels{"identity": identity}).Set(float64(time.Now().Unix()))
	}
	cloneCount.With(prometheus.Labels{"identity": identity, "success": strconv.FormatBool(success)}).Inc()
}

// ObserveCloneLatency records how long a clone took.
func ObserveCloneLatency(identity string, start time.Time) {
	if cloneLatency == nil {
		return
	}
	cloneLatency.WithLabelValues(identity).Observe(time.Since(start).Seconds())
}

// ObserveLockWait records how long a caller waited to acquire path's lock.
func ObserveLockWait(path string, start time.Time) {
	if lockWaitSeconds == nil {
		return
	}
	lockWaitSeconds.WithLabelValues(path).Observe(time.Since(start).Seconds())
}

// RecordRepair records a repair attempt's outcome ("repaired", "failed",
// "skipped-dirty", "synced").
func RecordRepair(outcome string) {
	if repairCount == nil {
		return
	}
	repairCount.WithLabelValues(outcome).Inc()
}
