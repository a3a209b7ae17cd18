package orderbook

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpdatesTotal tracks order books forwarded to the detector by source.
	UpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbdetector_orderbook_updates_total",
			Help: "Total number of order books forwarded to the detector",
		},
		[]string{"source"},
	)

	// ConversionErrorsTotal tracks feed messages that could not be converted.
	ConversionErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbdetector_orderbook_conversion_errors_total",
			Help: "Total number of feed messages dropped during conversion",
		},
		[]string{"reason"},
	)

	// ProcessingDuration tracks conversion plus ingestion time.
	ProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arbdetector_orderbook_processing_duration_seconds",
		Help:    "Time to convert and ingest one order book",
		Buckets: prometheus.ExponentialBuckets(0.00001, 2, 16),
	})
)
