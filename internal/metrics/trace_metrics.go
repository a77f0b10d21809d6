package metrics

import "github.com/prometheus/client_golang/prometheus"

type TraceMetrics struct {
	RPCRequestsTotal *prometheus.CounterVec
	RPCLatency       *prometheus.HistogramVec
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
}

func NewTraceMetrics() *TraceMetrics {
	return &TraceMetrics{
		RPCRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aletta_rpc_requests_total",
				Help: "Total number of chain RPC requests",
			},
			[]string{"chain", "method", "status"},
		),
		RPCLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aletta_rpc_latency_seconds",
				Help:    "Chain RPC latency in seconds",
				Buckets: LatencyBuckets,
			},
			[]string{"chain", "method"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aletta_trace_cache_hits_total",
				Help: "Trace and code cache hits",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aletta_trace_cache_misses_total",
				Help: "Trace and code cache misses",
			},
			[]string{"cache"},
		),
	}
}

func (t *TraceMetrics) Register(reg *prometheus.Registry) {
	reg.MustRegister(t.RPCRequestsTotal, t.RPCLatency, t.CacheHitsTotal, t.CacheMissesTotal)
}
