package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"footprintiq-backend/services/alert-engine/internal/metricstore"
	"footprintiq-backend/services/alert-engine/internal/storage"
)

const (
	costWindow       = 24 * time.Hour
	trendSampleLimit = 10
	minTrendSamples  = 5

	trendIncreasingCutoff = 0.7
	trendDecreasingCutoff = 0.3

	// Healthy default when an SLO has no compliance data yet.
	defaultSLOSuccessRate = 100
)

// Evaluator decides whether a rule's condition currently holds. Absence of
// signal is never treated as a breach: missing data, missing baselines and
// unknown metric types all evaluate to false.
type Evaluator struct {
	Metrics   metricstore.Source
	Rules     RuleStore
	Baselines BaselineStore
}

func NewEvaluator(metrics metricstore.Source, rules RuleStore, baselines BaselineStore) *Evaluator {
	return &Evaluator{Metrics: metrics, Rules: rules, Baselines: baselines}
}

func (e *Evaluator) Evaluate(ctx context.Context, rule storage.Rule) (bool, error) {
	if !rule.IsEnabled {
		return false, nil
	}
	return e.evaluate(ctx, rule, false)
}

func (e *Evaluator) evaluate(ctx context.Context, rule storage.Rule, asChild bool) (bool, error) {
	switch rule.RuleType {
	case storage.RuleThreshold:
		return e.evaluateThreshold(ctx, rule)
	case storage.RuleAnomaly:
		return e.evaluateAnomaly(ctx, rule)
	case storage.RuleTrend:
		return e.evaluateTrend(ctx, rule)
	case storage.RuleComposite:
		// Composite children may not themselves be composite; this also
		// rules out cycles.
		if asChild {
			return false, nil
		}
		return e.evaluateComposite(ctx, rule)
	default:
		return false, nil
	}
}

func (e *Evaluator) evaluateThreshold(ctx context.Context, rule storage.Rule) (bool, error) {
	cond, err := DecodeThresholdCondition(rule.Condition)
	if err != nil {
		return false, err
	}
	var current float64
	switch rule.MetricType {
	case metricstore.MetricSLO:
		value, ok, err := e.Metrics.LatestValue(ctx, rule.MetricType, rule.MetricTarget)
		if err != nil {
			return false, fmt.Errorf("fetch slo compliance: %w", err)
		}
		current = defaultSLOSuccessRate
		if ok {
			current = value
		}
	case metricstore.MetricCost:
		value, _, err := e.Metrics.WindowSum(ctx, rule.MetricType, rule.MetricTarget, costWindow)
		if err != nil {
			return false, fmt.Errorf("fetch cost window: %w", err)
		}
		current = value
	case metricstore.MetricErrorRate:
		value, _, err := e.Metrics.LatestValue(ctx, rule.MetricType, rule.MetricTarget)
		if err != nil {
			return false, fmt.Errorf("fetch error rate: %w", err)
		}
		current = value
	default:
		return false, nil
	}
	return Compare(cond.Operator, current, cond.Threshold), nil
}

func (e *Evaluator) evaluateAnomaly(ctx context.Context, rule storage.Rule) (bool, error) {
	baseline, err := e.Baselines.GetBaseline(ctx, rule.WorkspaceID, rule.MetricType, rule.MetricTarget)
	if errors.Is(err, storage.ErrNotFound) {
		// No trained baseline yet: not actionable, not an error.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("fetch baseline: %w", err)
	}
	current, ok, err := e.Metrics.LatestValue(ctx, rule.MetricType, rule.MetricTarget)
	if err != nil {
		return false, fmt.Errorf("fetch current value: %w", err)
	}
	if !ok {
		return false, nil
	}
	if baseline.StdDev == 0 {
		return false, nil
	}
	z := math.Abs(current-baseline.MeanValue) / baseline.StdDev
	return z > baseline.SigmaThreshold, nil
}

// evaluateTrend applies a slope-sign heuristic over the most recent samples:
// the fraction of adjacent pairs where the value increased, computed over a
// newest-first series.
func (e *Evaluator) evaluateTrend(ctx context.Context, rule storage.Rule) (bool, error) {
	cond, err := DecodeTrendCondition(rule.Condition)
	if err != nil {
		return false, err
	}
	samples, err := e.Metrics.RecentSamples(ctx, rule.MetricType, rule.MetricTarget, trendSampleLimit)
	if err != nil {
		return false, fmt.Errorf("fetch recent samples: %w", err)
	}
	if len(samples) < minTrendSamples {
		return false, nil
	}
	increasing := 0
	for i := 1; i < len(samples); i++ {
		// samples are newest first, so an increase over time means the
		// earlier index holds the larger value
		if samples[i] < samples[i-1] {
			increasing++
		}
	}
	fraction := float64(increasing) / float64(len(samples)-1)
	if cond.Direction == DirectionIncreasing {
		return fraction > trendIncreasingCutoff, nil
	}
	return fraction < trendDecreasingCutoff, nil
}

// evaluateComposite combines child rule decisions with AND/OR. A missing,
// disabled or composite child contributes false.
func (e *Evaluator) evaluateComposite(ctx context.Context, rule storage.Rule) (bool, error) {
	cond, err := DecodeCompositeCondition(rule.Condition)
	if err != nil {
		return false, err
	}
	for _, childID := range cond.Rules {
		childResult := false
		child, err := e.Rules.GetRule(ctx, childID)
		if err == nil && child.IsEnabled {
			childResult, err = e.evaluate(ctx, child, true)
			if err != nil {
				return false, fmt.Errorf("evaluate child rule %s: %w", childID, err)
			}
		}
		if cond.Operator == "or" && childResult {
			return true, nil
		}
		if cond.Operator == "and" && !childResult {
			return false, nil
		}
	}
	return cond.Operator == "and", nil
}
