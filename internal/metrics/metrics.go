package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Evaluation pass metrics
	EvaluationPassesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alert_engine_evaluation_passes_total",
			Help: "Total number of evaluation passes run",
		},
	)

	EvaluationPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "alert_engine_evaluation_pass_duration_seconds",
			Help:    "Time taken to complete an evaluation pass",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	RulesEvaluatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_engine_rules_evaluated_total",
			Help: "Total number of rule evaluations by outcome",
		},
		[]string{"status"}, // status: fired, ok, error
	)

	// Alert lifecycle metrics
	AlertsFiredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_engine_alerts_fired_total",
			Help: "Total number of alerts fired",
		},
		[]string{"severity"},
	)

	AlertsDedupedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alert_engine_alerts_deduped_total",
			Help: "Total number of fires suppressed by an already-firing alert",
		},
	)

	// Notification metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_engine_notifications_total",
			Help: "Total number of notification deliveries",
		},
		[]string{"channel_type", "status"}, // status: success, failure
	)

	// Baseline training metrics
	BaselineTrainingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_engine_baseline_trainings_total",
			Help: "Total number of baseline training runs",
		},
		[]string{"status"}, // status: trained, insufficient_data, error
	)
)
