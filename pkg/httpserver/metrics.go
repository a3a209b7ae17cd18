package httpserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// APIErrorsTotal tracks API error responses by status code.
var APIErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "arbdetector_api_errors_total",
		Help: "Total number of API error responses",
	},
	[]string{"status"},
)
