package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BreakerState tracks the breaker state (0=closed, 1=half-open, 2=open).
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arbdetector_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"breaker"})

	// BreakerRejectedTotal counts calls rejected while the breaker was open.
	BreakerRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbdetector_circuit_breaker_rejected_total",
		Help: "Total number of calls rejected by an open circuit breaker",
	}, []string{"breaker"})
)
