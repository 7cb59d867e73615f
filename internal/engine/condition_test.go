package engine

import (
	"encoding/json"
	"math"
	"testing"
)

func TestDecodeThresholdCondition(t *testing.T) {
	cond, err := DecodeThresholdCondition(json.RawMessage(`{"operator":"gte","threshold":99.9}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cond.Operator != OpGTE || cond.Threshold != 99.9 {
		t.Fatalf("unexpected condition %+v", cond)
	}

	if _, err := DecodeThresholdCondition(json.RawMessage(`{"operator":"between"}`)); err == nil {
		t.Fatalf("expected error for unknown operator")
	}
	if _, err := DecodeThresholdCondition(json.RawMessage(`not json`)); err == nil {
		t.Fatalf("expected error for malformed json")
	}
}

func TestDecodeTrendCondition(t *testing.T) {
	cond, err := DecodeTrendCondition(json.RawMessage(`{"direction":"decreasing"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cond.Direction != DirectionDecreasing {
		t.Fatalf("unexpected condition %+v", cond)
	}
	if _, err := DecodeTrendCondition(json.RawMessage(`{"direction":"sideways"}`)); err == nil {
		t.Fatalf("expected error for unknown direction")
	}
}

func TestDecodeCompositeCondition(t *testing.T) {
	cond, err := DecodeCompositeCondition(json.RawMessage(`{"rules":["a","b"]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cond.Operator != "and" {
		t.Fatalf("missing operator must default to and, got %q", cond.Operator)
	}
	if _, err := DecodeCompositeCondition(json.RawMessage(`{"operator":"xor","rules":["a"]}`)); err == nil {
		t.Fatalf("expected error for unknown operator")
	}
	if _, err := DecodeCompositeCondition(json.RawMessage(`{"operator":"and"}`)); err == nil {
		t.Fatalf("expected error for empty child list")
	}
}

func TestStats(t *testing.T) {
	samples := []float64{10, 20, 10, 20}
	if got := Mean(samples); got != 15 {
		t.Fatalf("mean: want 15 got %v", got)
	}
	if got := StdDev(samples); got != 5 {
		t.Fatalf("std dev: want 5 got %v", got)
	}
	min, max := MinMax(samples)
	if min != 10 || max != 20 {
		t.Fatalf("min/max: want 10/20 got %v/%v", min, max)
	}

	if got := StdDev([]float64{7, 7, 7}); got != 0 {
		t.Fatalf("constant series std dev: want 0 got %v", got)
	}

	got := StdDev([]float64{1, 2, 3, 4})
	want := math.Sqrt(1.25)
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("population std dev: want %v got %v", want, got)
	}
}
