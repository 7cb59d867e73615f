// Package metricstore reads operational metric samples for rule evaluation
// and baseline training. It is a pure read layer; nothing here writes.
package metricstore

import (
	"context"
	"time"
)

// Source is the metric accessor consumed by the evaluator and the baseline
// trainer. The ok return on single-value reads distinguishes "no data" from
// a real zero, so callers can apply a healthy default instead of alerting.
type Source interface {
	// LatestValue returns the most recent sample for the metric.
	LatestValue(ctx context.Context, metricType, metricTarget string) (value float64, ok bool, err error)
	// WindowSum returns the sum of samples over the trailing window.
	WindowSum(ctx context.Context, metricType, metricTarget string, window time.Duration) (value float64, ok bool, err error)
	// RecentSamples returns up to limit samples, newest first.
	RecentSamples(ctx context.Context, metricType, metricTarget string, limit int) ([]float64, error)
	// SamplesSince returns all samples newer than since, oldest first.
	SamplesSince(ctx context.Context, metricType, metricTarget string, since time.Time) ([]float64, error)
}

// Metric types the engine understands.
const (
	MetricSLO       = "slo"
	MetricCost      = "cost"
	MetricErrorRate = "error_rate"
	MetricLatency   = "latency"
)
