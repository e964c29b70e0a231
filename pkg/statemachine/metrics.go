package statemachine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess = "success"
	outcomeError   = "error"
)

var (
	// transitionsTotal counts committed single hops.
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statemachine_transitions_total",
		Help: "Total number of committed state transitions by entity type, field, from and to state",
	}, []string{"entity_type", "field", "from_state", "to_state"})

	// callDuration tracks top-level calls including lock acquisition.
	callDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "statemachine_call_duration_seconds",
		Help:    "Duration of top-level transition calls by entity type, operation and outcome",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"entity_type", "operation", "outcome"})

	lockWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "statemachine_lock_wait_seconds",
		Help:    "Time spent waiting for entity locks by entity type and tier",
		Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	}, []string{"entity_type", "tier"})

	redirectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statemachine_redirects_total",
		Help: "Total number of side effects that redirected to an error state",
	}, []string{"entity_type", "field", "to_state"})

	notificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statemachine_notification_failures_total",
		Help: "Total number of completion notifications that failed to deliver",
	}, []string{"entity_type"})

	tasksScheduled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statemachine_tasks_scheduled_total",
		Help: "Total number of asynchronous transitions enqueued by entity type and kind",
	}, []string{"entity_type", "kind"})
)

func outcome(err error) string {
	if err != nil {
		return outcomeError
	}
	return outcomeSuccess
}
