// Package metrics declares the process-wide Prometheus collectors promised
// for the ingestion pipeline, quota service, and chat streamer (spec §5),
// grounded on the plain prometheus.NewCounter/NewGauge var style and the
// All()-collector-list registration pattern used by the pack's
// wisbric-nightowl/internal/telemetry package.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var IngestionQueueDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "aihub",
		Subsystem: "ingestion",
		Name:      "queue_depth",
		Help:      "Number of pending knowledge files whose retry time, if any, has passed.",
	},
)

var IngestionReclaimedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "aihub",
		Subsystem: "ingestion",
		Name:      "reclaimed_total",
		Help:      "Total number of knowledge files the reaper reclaimed from a stale processing/indexing state.",
	},
)

var QuotaDenialsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "aihub",
		Subsystem: "quota",
		Name:      "denials_total",
		Help:      "Total number of chat turns denied by the quota service, by dimension.",
	},
	[]string{"dimension"},
)

var StreamLatencySeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "aihub",
		Subsystem: "llm",
		Name:      "stream_first_token_latency_seconds",
		Help:      "Time from upstream request to the first streamed content token, by model.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	},
	[]string{"model"},
)

// All returns every collector this package defines, for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		IngestionQueueDepth,
		IngestionReclaimedTotal,
		QuotaDenialsTotal,
		StreamLatencySeconds,
	}
}

// NewRegistry builds a fresh registry carrying this package's collectors
// plus the Go/process runtime collectors, mirroring the teacher pack's
// coretelemetry.NewMetricsRegistry helper.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	reg.MustRegister(All()...)
	return reg
}
