package refresh

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	refreshCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mesh_refresh_cycles_total",
		Help: "Refresh cycles by outcome",
	}, []string{"result"})

	publishedGeneration = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mesh_refresh_published_generation",
		Help: "Generation of the most recently published mesh report",
	})
)
