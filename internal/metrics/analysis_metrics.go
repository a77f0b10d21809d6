package metrics

import "github.com/prometheus/client_golang/prometheus"

type AnalysisMetrics struct {
	// AnalysesTotal counts finished analyses by outcome: the report status,
	// "cached" for de-duplicated requests, or an error kind.
	AnalysesTotal *prometheus.CounterVec
	Duration      *prometheus.HistogramVec
	Suggestions   *prometheus.CounterVec
	ReportsPurged prometheus.Counter
}

func NewAnalysisMetrics() *AnalysisMetrics {
	return &AnalysisMetrics{
		AnalysesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aletta_analyses_total",
				Help: "Total number of transaction analyses by chain and outcome",
			},
			[]string{"chain", "outcome"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aletta_analysis_duration_seconds",
				Help:    "End-to-end analysis duration including trace fetch",
				Buckets: LatencyBuckets,
			},
			[]string{"chain"},
		),
		Suggestions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aletta_suggestions_total",
				Help: "Suggestions emitted by priority",
			},
			[]string{"priority"},
		),
		ReportsPurged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "aletta_reports_purged_total",
				Help: "Expired reports removed from storage",
			},
		),
	}
}

func (a *AnalysisMetrics) Register(reg *prometheus.Registry) {
	reg.MustRegister(a.AnalysesTotal, a.Duration, a.Suggestions, a.ReportsPurged)
}
