package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var LatencyBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Metrics contains all metric groups and the registry they are bound to.
type Metrics struct {
	HTTP     *HTTPMetrics
	Analysis *AnalysisMetrics
	Trace    *TraceMetrics

	registry *prometheus.Registry
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		HTTP:     NewHTTPMetrics(),
		Analysis: NewAnalysisMetrics(),
		Trace:    NewTraceMetrics(),
		registry: reg,
	}
	m.HTTP.Register(reg)
	m.Analysis.Register(reg)
	m.Trace.Register(reg)
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
