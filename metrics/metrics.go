package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AnalysisRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_analysis_runs_total",
			Help: "Total number of analysis runs by execution mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	LogsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_logs_processed_total",
			Help: "Total number of log records evaluated",
		},
		[]string{"mode"},
	)

	LinesRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_lines_rejected_total",
			Help: "Total number of malformed log lines dropped by the parser",
		},
	)

	AlertsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_alerts_generated_total",
			Help: "Total number of alerts generated",
		},
		[]string{"alert_type"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "argus_analysis_duration_seconds",
			Help:    "Wall-clock duration of analysis runs",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	WorkerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_worker_failures_total",
			Help: "Total number of partitions that failed to produce a result",
		},
		[]string{"mode"},
	)

	ProtocolMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_protocol_messages_total",
			Help: "Worker protocol messages by direction and kind",
		},
		[]string{"direction", "kind"},
	)

	RulesGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_rules_generated_total",
			Help: "Rule generation requests by generator and outcome",
		},
		[]string{"generator", "outcome"},
	)

	WorkerPoolActiveWorkers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "argus_worker_pool_active_workers",
			Help: "Number of running worker goroutines per pool",
		},
		[]string{"pool_type"},
	)

	WorkerPoolQueueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "argus_worker_pool_queue_size",
			Help: "Tasks waiting in the worker pool queue",
		},
		[]string{"pool_type"},
	)

	WorkerPoolTasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_worker_pool_tasks_processed_total",
			Help: "Tasks completed by the worker pool",
		},
		[]string{"pool_type"},
	)
)
