package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	slotOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scheduler",
			Name:      "slot_operations_total",
			Help:      "Count of slot operations by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	slotsGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scheduler",
			Name:      "slots_generated_total",
			Help:      "Count of slots written by cache regeneration.",
		},
	)

	expiredReservations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scheduler",
			Name:      "expired_reservations_cleared_total",
			Help:      "Count of lapsed slot holds cleared on read.",
		},
	)

	sweepTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scheduler",
			Name:      "sweep_transitions_total",
			Help:      "Count of appointments moved by the status sweeper.",
		},
		[]string{"to"},
	)

	sweepRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scheduler",
			Name:      "sweep_runs_total",
			Help:      "Count of sweeper runs by result.",
		},
		[]string{"result"},
	)

	sweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "scheduler",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of sweeper runs.",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 30},
		},
	)

	slotCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scheduler",
			Name:      "slot_cache_lookups_total",
			Help:      "Count of slot list cache lookups by result.",
		},
		[]string{"result"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scheduler",
			Name:      "http_requests_total",
			Help:      "Count of API requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			slotOperations, slotsGenerated, expiredReservations,
			sweepTransitions, sweepRuns, sweepDuration,
			slotCache, httpRequests,
		)
	})
}

func IncSlotOperation(operation, outcome string) {
	slotOperations.WithLabelValues(operation, outcome).Inc()
}

func AddSlotsGenerated(n int) {
	slotsGenerated.Add(float64(n))
}

func AddExpiredReservations(n int64) {
	expiredReservations.Add(float64(n))
}

func IncSweepTransition(to string) {
	sweepTransitions.WithLabelValues(to).Inc()
}

func IncSweepRun(result string) {
	sweepRuns.WithLabelValues(result).Inc()
}

func ObserveSweepDuration(seconds float64) {
	sweepDuration.Observe(seconds)
}

func IncSlotCache(result string) {
	slotCache.WithLabelValues(result).Inc()
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
