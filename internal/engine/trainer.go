package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"footprintiq-backend/services/alert-engine/internal/bus"
	"footprintiq-backend/services/alert-engine/internal/logger"
	"footprintiq-backend/services/alert-engine/internal/metrics"
	"footprintiq-backend/services/alert-engine/internal/metricstore"
	"footprintiq-backend/services/alert-engine/internal/storage"
)

const (
	trainingWindow     = 30 * 24 * time.Hour
	minTrainingSamples = 100

	// Default number of standard deviations that defines "anomalous" for a
	// freshly trained baseline. Operators can tune it per key afterwards.
	defaultSigmaThreshold = 3.0
)

// Trainer computes statistical baselines over historical metric samples. A
// baseline trained on too little history is worse than no baseline, so
// training below the sample gate fails instead of writing one.
type Trainer struct {
	Metrics   metricstore.Source
	Baselines BaselineStore
	Events    EventPublisher
}

func NewTrainer(metrics metricstore.Source, baselines BaselineStore, events EventPublisher) *Trainer {
	return &Trainer{Metrics: metrics, Baselines: baselines, Events: events}
}

func (t *Trainer) Train(ctx context.Context, workspaceID, metricType, metricTarget string) (storage.Baseline, error) {
	since := time.Now().UTC().Add(-trainingWindow)
	samples, err := t.Metrics.SamplesSince(ctx, metricType, metricTarget, since)
	if err != nil {
		metrics.BaselineTrainingsTotal.WithLabelValues("error").Inc()
		return storage.Baseline{}, fmt.Errorf("fetch training samples: %w", err)
	}
	if len(samples) < minTrainingSamples {
		metrics.BaselineTrainingsTotal.WithLabelValues("insufficient_data").Inc()
		return storage.Baseline{}, fmt.Errorf("%w: have %d samples, need %d",
			ErrInsufficientData, len(samples), minTrainingSamples)
	}

	min, max := MinMax(samples)
	baseline := storage.Baseline{
		WorkspaceID:    workspaceID,
		MetricType:     metricType,
		MetricTarget:   metricTarget,
		MeanValue:      Mean(samples),
		StdDev:         StdDev(samples),
		MinValue:       min,
		MaxValue:       max,
		SampleCount:    len(samples),
		SigmaThreshold: defaultSigmaThreshold,
		LastTrainedAt:  time.Now().UTC(),
	}

	// Retraining keeps the operator-tuned sigma threshold.
	if existing, err := t.Baselines.GetBaseline(ctx, workspaceID, metricType, metricTarget); err == nil && existing.SigmaThreshold > 0 {
		baseline.SigmaThreshold = existing.SigmaThreshold
	}

	if err := t.Baselines.UpsertBaseline(ctx, baseline); err != nil {
		metrics.BaselineTrainingsTotal.WithLabelValues("error").Inc()
		return storage.Baseline{}, fmt.Errorf("persist baseline: %w", err)
	}
	metrics.BaselineTrainingsTotal.WithLabelValues("trained").Inc()

	if t.Events != nil {
		if err := t.Events.Publish(bus.SubjectBaselineTrained, map[string]any{
			"workspace_id":  workspaceID,
			"metric_type":   metricType,
			"metric_target": metricTarget,
			"sample_count":  baseline.SampleCount,
		}); err != nil {
			log := logger.WithComponent("trainer")
			log.Warn().Err(err).Msg("failed to publish baseline.trained")
		}
	}
	return baseline, nil
}

// IsInsufficientData reports whether err is the training gate failure.
func IsInsufficientData(err error) bool {
	return errors.Is(err, ErrInsufficientData)
}
