package engine

import (
	"context"
	"errors"
	"testing"

	"footprintiq-backend/services/alert-engine/internal/metricstore"
	"footprintiq-backend/services/alert-engine/internal/storage"
)

func trainingSamples(n int) []float64 {
	samples := make([]float64, n)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = 10
		} else {
			samples[i] = 20
		}
	}
	return samples
}

func TestTrainBelowSampleGate(t *testing.T) {
	store := newFakeStore()
	m := newFakeMetrics()
	m.since[metricKey(metricstore.MetricLatency, "p1")] = trainingSamples(99)

	trainer := NewTrainer(m, store, nil)
	_, err := trainer.Train(context.Background(), "ws-1", metricstore.MetricLatency, "p1")
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
	if !IsInsufficientData(err) {
		t.Fatalf("IsInsufficientData must report true")
	}
	if len(store.baselines) != 0 {
		t.Fatalf("failed training must not persist a baseline")
	}
}

func TestTrainComputesStats(t *testing.T) {
	store := newFakeStore()
	m := newFakeMetrics()
	m.since[metricKey(metricstore.MetricLatency, "p1")] = trainingSamples(100)
	events := &fakePublisher{}

	trainer := NewTrainer(m, store, events)
	baseline, err := trainer.Train(context.Background(), "ws-1", metricstore.MetricLatency, "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if baseline.MeanValue != 15 {
		t.Fatalf("mean: want 15 got %v", baseline.MeanValue)
	}
	if baseline.StdDev != 5 {
		t.Fatalf("std dev: want 5 got %v", baseline.StdDev)
	}
	if baseline.MinValue != 10 || baseline.MaxValue != 20 {
		t.Fatalf("min/max: want 10/20 got %v/%v", baseline.MinValue, baseline.MaxValue)
	}
	if baseline.SampleCount != 100 {
		t.Fatalf("sample count: want 100 got %d", baseline.SampleCount)
	}
	if baseline.SigmaThreshold != 3.0 {
		t.Fatalf("sigma threshold: want default 3.0 got %v", baseline.SigmaThreshold)
	}
	if baseline.LastTrainedAt.IsZero() {
		t.Fatalf("last trained at must be set")
	}
	if len(store.baselines) != 1 {
		t.Fatalf("want exactly one persisted baseline, got %d", len(store.baselines))
	}
	if !events.has("baseline.trained") {
		t.Fatalf("expected baseline.trained event")
	}
}

func TestRetrainReplacesRowAndKeepsSigma(t *testing.T) {
	store := newFakeStore()
	store.baselines[baselineKey("ws-1", metricstore.MetricLatency, "p1")] = storage.Baseline{
		WorkspaceID: "ws-1", MetricType: metricstore.MetricLatency, MetricTarget: "p1",
		MeanValue: 1, StdDev: 1, SampleCount: 100, SigmaThreshold: 2.5,
	}
	m := newFakeMetrics()
	m.since[metricKey(metricstore.MetricLatency, "p1")] = trainingSamples(200)

	trainer := NewTrainer(m, store, nil)
	baseline, err := trainer.Train(context.Background(), "ws-1", metricstore.MetricLatency, "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if baseline.SigmaThreshold != 2.5 {
		t.Fatalf("retrain must keep tuned sigma: want 2.5 got %v", baseline.SigmaThreshold)
	}
	if baseline.SampleCount != 200 {
		t.Fatalf("retrain must refresh stats: want 200 samples got %d", baseline.SampleCount)
	}
	if len(store.baselines) != 1 {
		t.Fatalf("retrain must replace the row, got %d rows", len(store.baselines))
	}
	stored := store.baselines[baselineKey("ws-1", metricstore.MetricLatency, "p1")]
	if stored.MeanValue != 15 {
		t.Fatalf("stored mean: want 15 got %v", stored.MeanValue)
	}
}

func TestTrainSourceError(t *testing.T) {
	store := newFakeStore()
	m := newFakeMetrics()
	m.err = errors.New("connection reset")

	trainer := NewTrainer(m, store, nil)
	_, err := trainer.Train(context.Background(), "ws-1", metricstore.MetricLatency, "p1")
	if err == nil {
		t.Fatalf("expected error from metric source")
	}
	if errors.Is(err, ErrInsufficientData) {
		t.Fatalf("source failure must not look like the sample gate")
	}
}
