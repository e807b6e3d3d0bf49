// Package metrics exposes the service's Prometheus instruments.
package metrics

import (
	"fmt"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the instruments the ledger service records.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration prometheus.Histogram

	MirrorWritesTotal   prometheus.Counter
	MirrorWriteFailures prometheus.Counter
	SyncQueueDepth      prometheus.Gauge
	SweepRetriesTotal   prometheus.Counter
	SweepExhaustedTotal prometheus.Counter

	FallbackReadsTotal *prometheus.CounterVec

	SnapshotCacheHits   prometheus.Counter
	SnapshotCacheMisses prometheus.Counter
}

// New builds the instrument set under the wealthledger namespace.
func New(serviceName string) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wealthledger",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by route and status",
		}, []string{"route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "wealthledger",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		MirrorWritesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wealthledger",
			Subsystem: serviceName,
			Name:      "mirror_writes_total",
			Help:      "Rows written to the analytical mirror",
		}),
		MirrorWriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wealthledger",
			Subsystem: serviceName,
			Name:      "mirror_write_failures_total",
			Help:      "Mirror writes converted into sync queue items",
		}),
		SyncQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wealthledger",
			Subsystem: serviceName,
			Name:      "sync_queue_depth",
			Help:      "Pending sync queue items",
		}),
		SweepRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wealthledger",
			Subsystem: serviceName,
			Name:      "sweep_retries_total",
			Help:      "Mirror retries attempted by the background sweep",
		}),
		SweepExhaustedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wealthledger",
			Subsystem: serviceName,
			Name:      "sweep_exhausted_total",
			Help:      "Queue items that reached max attempts",
		}),
		FallbackReadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wealthledger",
			Subsystem: serviceName,
			Name:      "fallback_reads_total",
			Help:      "Reads served from the event log instead of the mirror",
		}, []string{"query"}),
		SnapshotCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wealthledger",
			Subsystem: serviceName,
			Name:      "snapshot_cache_hits_total",
			Help:      "Snapshot cache hits",
		}),
		SnapshotCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wealthledger",
			Subsystem: serviceName,
			Name:      "snapshot_cache_misses_total",
			Help:      "Snapshot cache misses",
		}),
	}
}

// Register adds every instrument to the default registry.
func (m *Metrics) Register() error {
	collectors := []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.MirrorWritesTotal,
		m.MirrorWriteFailures,
		m.SyncQueueDepth,
		m.SweepRetriesTotal,
		m.SweepExhaustedTotal,
		m.FallbackReadsTotal,
		m.SnapshotCacheHits,
		m.SnapshotCacheMisses,
	}
	for _, c := range collectors {
		if err := prometheus.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// StartHTTPServer serves the metrics endpoint on its own listener. Binding
// happens synchronously so a taken port is reported to the caller; serving
// then proceeds in the background.
func StartHTTPServer(port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("metrics listener failed: %w", err)
	}
	go func() {
		_ = http.Serve(ln, mux)
	}()
	return nil
}
