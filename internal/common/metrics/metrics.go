package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	// Severity classification

	AlertsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_classified_total",
			Help: "Events classified, by severity (none for not-an-alert) and match source",
		},
		[]string{"severity", "matched_by"},
	)

	RuleEvaluationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_rule_evaluation_errors_total",
			Help: "Rules that errored or panicked and were downgraded to medium",
		},
		[]string{"rule_id"},
	)

	EventsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_events_skipped_total",
			Help: "Events not classified, by reason",
		},
		[]string{"reason"},
	)

	// Intent classification

	IntentClassifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intent_classifications_total",
			Help: "Intent classifications by intent and outcome (ok, cached, fallback_parse, fallback_call)",
		},
		[]string{"intent", "outcome"},
	)

	CompletionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_completion_duration_seconds",
			Help:    "Latency of completion calls by provider",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider"},
	)

	// Conversation and actions

	PendingActionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pending_action_transitions_total",
			Help: "Pending action status transitions by target status",
		},
		[]string{"status"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "conversation_sessions_active",
			Help: "Conversation sessions currently tracked",
		},
	)

	ActionExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "action_executions_total",
			Help: "Confirmed action executions by terminal state",
		},
		[]string{"state"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_notifications_total",
			Help: "Alert notifications by channel and status",
		},
		[]string{"channel", "status"},
	)
)
