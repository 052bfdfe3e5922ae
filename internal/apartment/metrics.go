package apartment

import "github.com/prometheus/client_golang/prometheus"

// Label values for task outcomes and rejections.
const (
	outcomeOK    = "ok"
	outcomeError = "error"
	outcomePanic = "panic"

	reasonWakeFull   = "wake_full"
	reasonNotRunning = "not_running"
	reasonTerminated = "terminated"
)

var (
	tasksSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apartment_tasks_submitted_total",
			Help: "Total number of units of work accepted for execution.",
		},
		[]string{"apartment"},
	)

	tasksExecuted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apartment_tasks_executed_total",
			Help: "Total number of units of work executed on the worker, by outcome.",
		},
		[]string{"apartment", "outcome"},
	)

	tasksRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apartment_tasks_rejected_total",
			Help: "Total number of units of work that were refused or never executed, by reason.",
		},
		[]string{"apartment", "reason"},
	)

	taskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "apartment_task_duration_seconds",
			Help:    "Time spent executing a unit of work on the worker, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"apartment"},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "apartment_queue_depth",
			Help: "Number of units of work waiting in the task queue.",
		},
		[]string{"apartment"},
	)

	resourcesTracked = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "apartment_guarded_resources",
			Help: "Number of resources currently tracked by resource guards.",
		},
	)
)

func init() {
	prometheus.MustRegister(tasksSubmitted)
	prometheus.MustRegister(tasksExecuted)
	prometheus.MustRegister(tasksRejected)
	prometheus.MustRegister(taskDuration)
	prometheus.MustRegister(queueDepth)
	prometheus.MustRegister(resourcesTracked)
}
