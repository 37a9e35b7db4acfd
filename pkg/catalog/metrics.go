package catalog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	catalogFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediahub_catalog_fetches_total",
		Help: "Catalog fetches by outcome (committed, stale, failed)",
	}, []string{"result"})

	catalogFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mediahub_catalog_fetch_duration_seconds",
		Help:    "Catalog fetch duration as seen by the controller",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	gateDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediahub_gate_decisions_total",
		Help: "Item selections by resulting action",
	}, []string{"action"})
)
