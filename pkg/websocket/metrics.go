package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks active feed connections.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arbdetector_feed_active_connections",
		Help: "Number of active feed WebSocket connections",
	})

	// ReconnectAttemptsTotal tracks reconnection attempts.
	ReconnectAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arbdetector_feed_reconnect_attempts_total",
		Help: "Total number of feed reconnection attempts",
	})

	// ReconnectFailuresTotal tracks reconnection failures.
	ReconnectFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arbdetector_feed_reconnect_failures_total",
		Help: "Total number of feed reconnection failures",
	})

	// MessagesReceivedTotal tracks order-book messages received by source.
	MessagesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbdetector_feed_messages_received_total",
			Help: "Total number of order-book messages received from the feed",
		},
		[]string{"source"},
	)

	// MessagesDroppedTotal tracks messages dropped before reaching the channel.
	MessagesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbdetector_feed_messages_dropped_total",
			Help: "Total number of feed messages dropped",
		},
		[]string{"reason"},
	)

	// SubscriptionCount tracks subscribed sources and instruments.
	SubscriptionCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arbdetector_feed_subscription_count",
		Help: "Number of active feed subscriptions",
	}, []string{"kind"})

	// ConnectionDuration tracks feed connection lifetime.
	ConnectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arbdetector_feed_connection_duration_seconds",
		Help:    "Duration of feed connections before disconnect",
		Buckets: []float64{60, 300, 600, 1800, 3600, 7200, 14400, 28800, 43200, 86400},
	})
)
