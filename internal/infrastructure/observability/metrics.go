package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Счётчик операций жизненного цикла сессий
	AuthOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_operations_total",
			Help: "Total number of auth service operations",
		},
		[]string{"operation", "status"},
	)

	// Гистограмма времени выполнения операций
	AuthOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auth_operation_duration_seconds",
			Help:    "Duration of auth service operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

func InitMetrics() {
	prometheus.MustRegister(AuthOperations, AuthOperationDuration)
}
