package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for dispatcher operations.
var (
	// OperationsTotal counts operations by endpoint, operation and result
	// (success, error).
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rsvp_service_operations_total",
		Help: "Total dispatcher operations by endpoint, operation and result",
	}, []string{"endpoint", "operation", "result"})
)
