package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "medadmin"

var (
	once sync.Once

	appointmentOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_operations_total",
			Help:      "Count of appointment operations by operation and outcome.",
		},
		[]string{"operation", "status"},
	)

	rejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_rejections_total",
			Help:      "Count of bookings rejected by the validator, by reason.",
		},
		[]string{"reason"},
	)

	partitionErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partition_errors_total",
			Help:      "Count of failed document store calls by partition and operation.",
		},
		[]string{"partition", "op"},
	)

	storeRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_request_duration_seconds",
			Help:      "Latency of document store requests.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2, 5, 10},
		},
		[]string{"op"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Count of store cache lookups by result.",
		},
		[]string{"result"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(appointmentOps, rejections, partitionErrors, storeRequestDuration, cacheLookups)
	})
}

// IncAppointmentOp counts a book, change or cancel by outcome.
func IncAppointmentOp(operation, status string) {
	appointmentOps.WithLabelValues(operation, status).Inc()
}

// IncRejection counts a validation rejection by reason.
func IncRejection(reason string) {
	rejections.WithLabelValues(reason).Inc()
}

// IncPartitionError counts a failed request to a partition.
func IncPartitionError(partition int, op string) {
	partitionErrors.WithLabelValues(strconv.Itoa(partition), op).Inc()
}

// ObserveStoreRequest records the duration of a partition request started at started.
func ObserveStoreRequest(op string, started time.Time) {
	storeRequestDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// IncCacheLookup counts a Redis cache hit or miss.
func IncCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(result).Inc()
}
