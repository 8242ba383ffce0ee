package analysis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// analysisDuration tracks the time spent computing each report view
	analysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mesh_analysis_view_duration_seconds",
		Help:    "Mesh analysis view computation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10), // 10µs to ~2.6s
	}, []string{"view"})

	// analysisTotal counts report computations by result
	analysisTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mesh_analysis_total",
		Help: "Total mesh analysis runs by result",
	}, []string{"result"})

	// analysisTruncated counts reports whose path enumeration hit a limit
	analysisTruncated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mesh_analysis_truncated_total",
		Help: "Total mesh analysis runs whose path enumeration hit a configured limit",
	})

	// analysisGraphSize tracks the number of services per analyzed snapshot
	analysisGraphSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mesh_analysis_services",
		Help:    "Number of services per analyzed mesh snapshot",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
)
