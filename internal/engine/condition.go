package engine

import (
	"encoding/json"
	"fmt"
)

// Rule conditions are stored as a JSON blob interpreted per rule_type. Each
// rule type gets its own typed condition decoded up front; nothing downstream
// inspects the raw blob.

type ThresholdCondition struct {
	Operator  string  `json:"operator"`
	Threshold float64 `json:"threshold"`
}

type TrendCondition struct {
	Direction string `json:"direction"`
}

// AnomalyCondition carries no parameters; the trained baseline supplies the
// sigma threshold.
type AnomalyCondition struct{}

// CompositeCondition combines the decisions of child rules. Operator is
// "and" (default) or "or".
type CompositeCondition struct {
	Operator string   `json:"operator"`
	Rules    []string `json:"rules"`
}

const (
	OpGT  = "gt"
	OpGTE = "gte"
	OpLT  = "lt"
	OpLTE = "lte"
	OpEQ  = "eq"
)

const (
	DirectionIncreasing = "increasing"
	DirectionDecreasing = "decreasing"
)

func DecodeThresholdCondition(raw json.RawMessage) (ThresholdCondition, error) {
	var cond ThresholdCondition
	if err := json.Unmarshal(raw, &cond); err != nil {
		return ThresholdCondition{}, fmt.Errorf("decode threshold condition: %w", err)
	}
	switch cond.Operator {
	case OpGT, OpGTE, OpLT, OpLTE, OpEQ:
	default:
		return ThresholdCondition{}, fmt.Errorf("unsupported operator %q", cond.Operator)
	}
	return cond, nil
}

func DecodeTrendCondition(raw json.RawMessage) (TrendCondition, error) {
	var cond TrendCondition
	if err := json.Unmarshal(raw, &cond); err != nil {
		return TrendCondition{}, fmt.Errorf("decode trend condition: %w", err)
	}
	if cond.Direction != DirectionIncreasing && cond.Direction != DirectionDecreasing {
		return TrendCondition{}, fmt.Errorf("unsupported direction %q", cond.Direction)
	}
	return cond, nil
}

func DecodeCompositeCondition(raw json.RawMessage) (CompositeCondition, error) {
	var cond CompositeCondition
	if err := json.Unmarshal(raw, &cond); err != nil {
		return CompositeCondition{}, fmt.Errorf("decode composite condition: %w", err)
	}
	if cond.Operator == "" {
		cond.Operator = "and"
	}
	if cond.Operator != "and" && cond.Operator != "or" {
		return CompositeCondition{}, fmt.Errorf("unsupported composite operator %q", cond.Operator)
	}
	if len(cond.Rules) == 0 {
		return CompositeCondition{}, fmt.Errorf("composite condition has no child rules")
	}
	return cond, nil
}

// Compare applies a threshold operator to an observed value.
func Compare(operator string, value, threshold float64) bool {
	switch operator {
	case OpGT:
		return value > threshold
	case OpGTE:
		return value >= threshold
	case OpLT:
		return value < threshold
	case OpLTE:
		return value <= threshold
	case OpEQ:
		return value == threshold
	default:
		return false
	}
}
