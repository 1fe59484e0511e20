package observability

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// APIMetrics counts farm API calls per module and route. Status codes are
// folded into their class so label cardinality stays bounded.
type APIMetrics struct {
	calls     *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttled *prometheus.CounterVec
}

var (
	apiMetricsOnce sync.Once
	apiRegistry    *APIMetrics

	chainMetricsOnce sync.Once
	chainRegistry    *ChainMetrics

	explorerMetricsOnce sync.Once
	explorerRegistry    *ExplorerMetrics
)

// API returns the process-wide farm API collectors.
func API() *APIMetrics {
	apiMetricsOnce.Do(func() {
		apiRegistry = &APIMetrics{
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "xfarm",
				Subsystem: "api",
				Name:      "calls_total",
				Help:      "Farm API calls by module, route and status class.",
			}, []string{"module", "route", "class"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "xfarm",
				Subsystem: "api",
				Name:      "call_duration_seconds",
				Help:      "Farm API handler latency by module.",
				Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
			}, []string{"module"}),
			throttled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "xfarm",
				Subsystem: "api",
				Name:      "throttled_total",
				Help:      "Farm API calls rejected before reaching a handler.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(apiRegistry.calls, apiRegistry.latency, apiRegistry.throttled)
	})
	return apiRegistry
}

// Observe records one completed call with the status written to the client.
func (m *APIMetrics) Observe(module, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	module = orUnknown(module)
	m.calls.WithLabelValues(module, orUnknown(route), statusClass(status)).Inc()
	m.latency.WithLabelValues(module).Observe(elapsed.Seconds())
}

// RecordThrottle counts a rejected call. reason is a stable token such as
// "rate_limit".
func (m *APIMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "unspecified"
	}
	m.throttled.WithLabelValues(orUnknown(module), reason).Inc()
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "other"
	}
	return strconv.Itoa(status/100) + "xx"
}

func orUnknown(v string) string {
	if v = strings.TrimSpace(v); v == "" {
		return "unknown"
	}
	return v
}

// ChainMetrics tracks the block clock driven by the daemon.
type ChainMetrics struct {
	height        prometheus.Gauge
	blockInterval prometheus.Gauge
	commitErrors  prometheus.Counter
}

// Chain exposes the metrics registry for block production.
func Chain() *ChainMetrics {
	chainMetricsOnce.Do(func() {
		chainRegistry = &ChainMetrics{
			height: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "xfarm",
				Subsystem: "chain",
				Name:      "block_height",
				Help:      "Current block height of the farm clock.",
			}),
			blockInterval: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "xfarm",
				Subsystem: "chain",
				Name:      "block_interval_seconds",
				Help:      "Interval in seconds between consecutive blocks.",
			}),
			commitErrors: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "xfarm",
				Subsystem: "chain",
				Name:      "commit_errors_total",
				Help:      "Count of failed block height commits.",
			}),
		}
		prometheus.MustRegister(chainRegistry.height, chainRegistry.blockInterval, chainRegistry.commitErrors)
	})
	return chainRegistry
}

// RecordBlock updates the height and interval gauges.
func (m *ChainMetrics) RecordBlock(height uint64, interval time.Duration) {
	if m == nil {
		return
	}
	m.height.Set(float64(height))
	seconds := interval.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.blockInterval.Set(seconds)
}

// RecordCommitError counts a failed height commit.
func (m *ChainMetrics) RecordCommitError() {
	if m == nil {
		return
	}
	m.commitErrors.Inc()
}

// ExplorerMetrics bundles collectors for the event index.
type ExplorerMetrics struct {
	indexed *prometheus.CounterVec
	errors  *prometheus.CounterVec
}

// Explorer returns the metrics registry for the event index.
func Explorer() *ExplorerMetrics {
	explorerMetricsOnce.Do(func() {
		explorerRegistry = &ExplorerMetrics{
			indexed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "xfarm",
				Subsystem: "explorer",
				Name:      "indexed_events_total",
				Help:      "Count of events written to the explorer index by type.",
			}, []string{"type"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "xfarm",
				Subsystem: "explorer",
				Name:      "errors_total",
				Help:      "Count of explorer failures segmented by operation.",
			}, []string{"operation"}),
		}
		prometheus.MustRegister(explorerRegistry.indexed, explorerRegistry.errors)
	})
	return explorerRegistry
}

// RecordIndexed increments the indexed counter for an event type.
func (m *ExplorerMetrics) RecordIndexed(eventType string) {
	if m == nil {
		return
	}
	m.indexed.WithLabelValues(labelType(eventType)).Inc()
}

// RecordError increments the error counter for operation.
func (m *ExplorerMetrics) RecordError(operation string) {
	if m == nil {
		return
	}
	if operation = strings.TrimSpace(operation); operation == "" {
		operation = "unspecified"
	}
	m.errors.WithLabelValues(operation).Inc()
}

func labelType(eventType string) string {
	return orUnknown(eventType)
}
