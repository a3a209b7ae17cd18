package arbitrage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrderBooksProcessedTotal tracks order books stored by Process.
	OrderBooksProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arbdetector_orderbooks_processed_total",
		Help: "Total number of order books stored by the detector",
	})

	// OrderBooksDroppedTotal tracks order books ignored by Process.
	OrderBooksDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbdetector_orderbooks_dropped_total",
			Help: "Total number of order books dropped at ingestion",
		},
		[]string{"reason"},
	)

	// CycleDurationSeconds tracks the duration of one detection cycle.
	CycleDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arbdetector_cycle_duration_seconds",
		Help:    "Duration of a detection cycle",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	// StoreSize tracks the number of entries per store.
	StoreSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "arbdetector_store_size",
			Help: "Number of entries in each detector store",
		},
		[]string{"store"},
	)

	// ArbitragesStartedTotal tracks newly detected arbitrages.
	ArbitragesStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arbdetector_arbitrages_started_total",
		Help: "Total number of arbitrages that started",
	})

	// ArbitragesEndedTotal tracks arbitrages moved to history.
	ArbitragesEndedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arbdetector_arbitrages_ended_total",
		Help: "Total number of arbitrages that ended",
	})

	// ArbitragesRejectedTotal tracks crossings filtered out by thresholds.
	ArbitragesRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbdetector_arbitrages_rejected_total",
			Help: "Total number of candidate crossings rejected",
		},
		[]string{"reason"},
	)

	// HistoryEvictedTotal tracks history entries removed per eviction pass.
	HistoryEvictedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbdetector_history_evicted_total",
			Help: "Total number of history entries evicted",
		},
		[]string{"pass"},
	)

	// RestartsTotal tracks state resets caused by settings changes.
	RestartsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arbdetector_restarts_total",
		Help: "Total number of detector state resets",
	})

	// MirrorDroppedTotal tracks ended arbitrages not mirrored because the buffer was full.
	MirrorDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arbdetector_mirror_dropped_total",
		Help: "Total number of ended arbitrages dropped before storage",
	})

	// MirrorErrorsTotal tracks storage failures for ended arbitrages.
	MirrorErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arbdetector_mirror_errors_total",
		Help: "Total number of failed ended-arbitrage writes",
	})
)
