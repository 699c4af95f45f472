package processing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	analysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labfit_analyses_total",
		Help: "Processed analyses by kind and final status",
	}, []string{"kind", "status"})

	analysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "labfit_analysis_duration_seconds",
		Help:    "Time from processing start to the final status",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"kind"})
)
