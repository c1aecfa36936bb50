// Package metrics provides application-level Prometheus collectors. They are
// registered with the default registry and exported on /metrics by the HTTP
// server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Extraction outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeAbandoned = "abandoned"
)

var (
	// QueueDepth is the number of observations waiting for the worker.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "floortime_queue_depth",
		Help: "Observations waiting in the write queue.",
	})

	// PendingBufferSize is the number of observations not yet in the graph.
	PendingBufferSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "floortime_pending_buffer_size",
		Help: "Observations accepted but not yet reflected in the graph.",
	})

	ObservationsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "floortime_observations_accepted_total",
		Help: "Observations accepted by write.",
	})

	Extractions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "floortime_extractions_total",
		Help: "Extraction attempts by outcome.",
	}, []string{"outcome"})

	ExtractionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "floortime_extraction_duration_seconds",
		Help:    "Time spent extracting one observation.",
		Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	SearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "floortime_search_duration_seconds",
		Help:    "Time spent answering a fused search.",
		Buckets: prometheus.DefBuckets,
	})
)

// ExtractionFailures counts failed extractions.
var ExtractionFailures = Extractions.WithLabelValues(OutcomeFailure)
