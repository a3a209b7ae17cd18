package matrix

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SnapshotsTotal tracks matrix snapshots written to history by result.
	SnapshotsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbdetector_matrix_snapshots_total",
			Help: "Total number of matrix snapshots persisted",
		},
		[]string{"result"},
	)

	// PublishDurationSeconds tracks one publish round.
	PublishDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arbdetector_matrix_publish_duration_seconds",
		Help:    "Duration of a matrix publish round",
		Buckets: prometheus.DefBuckets,
	})
)
