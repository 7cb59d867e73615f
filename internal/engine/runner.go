package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"footprintiq-backend/services/alert-engine/internal/logger"
	"footprintiq-backend/services/alert-engine/internal/metrics"
	"footprintiq-backend/services/alert-engine/internal/storage"
)

const (
	defaultWorkers  = 8
	defaultInterval = 60 * time.Second
)

// Outcome is the per-rule result of one evaluation pass.
type Outcome struct {
	RuleID string `json:"rule_id"`
	Status string `json:"status"` // fired, ok, error
	Error  string `json:"error,omitempty"`
}

const (
	OutcomeFired = "fired"
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Runner drives discrete evaluation passes over the rules due for a check.
// A pass is stateless: if it is cut short, unstamped rules are simply picked
// up next interval.
type Runner struct {
	Rules     RuleStore
	Evaluator *Evaluator
	Lifecycle *Lifecycle
	Interval  time.Duration
	Workers   int
}

func NewRunner(rules RuleStore, evaluator *Evaluator, lifecycle *Lifecycle, interval time.Duration, workers int) *Runner {
	if interval <= 0 {
		interval = defaultInterval
	}
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Runner{Rules: rules, Evaluator: evaluator, Lifecycle: lifecycle, Interval: interval, Workers: workers}
}

// RunEvaluationPass evaluates every due rule on a bounded worker pool and
// returns one outcome per rule. A single rule's failure never aborts the
// pass for the others.
func (r *Runner) RunEvaluationPass(ctx context.Context) ([]Outcome, error) {
	start := time.Now()
	log := logger.WithComponent("runner")

	rules, err := r.Rules.ListDueRules(ctx, r.Interval)
	if err != nil {
		return nil, fmt.Errorf("list due rules: %w", err)
	}

	outcomes := make([]Outcome, len(rules))
	jobs := make(chan int)
	var wg sync.WaitGroup
	workers := r.Workers
	if workers > len(rules) {
		workers = len(rules)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				outcomes[idx] = r.processRule(ctx, rules[idx])
			}
		}()
	}
	for idx := range rules {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	for _, outcome := range outcomes {
		metrics.RulesEvaluatedTotal.WithLabelValues(outcome.Status).Inc()
	}
	metrics.EvaluationPassesTotal.Inc()
	metrics.EvaluationPassDuration.Observe(time.Since(start).Seconds())

	log.Info().
		Int("rules", len(rules)).
		Dur("duration", time.Since(start)).
		Msg("evaluation pass completed")
	return outcomes, nil
}

func (r *Runner) processRule(ctx context.Context, rule storage.Rule) (outcome Outcome) {
	log := logger.WithComponent("runner")
	outcome = Outcome{RuleID: rule.ID, Status: OutcomeOK}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("rule_id", rule.ID).
				Msg("rule evaluation panic recovered")
			outcome = Outcome{RuleID: rule.ID, Status: OutcomeError, Error: fmt.Sprint(rec)}
		}
		// Stamp regardless of outcome so a rule is never evaluated twice
		// within one interval, even under scheduler overlap.
		if err := r.Rules.StampRuleEvaluated(ctx, rule.ID, time.Now().UTC()); err != nil {
			log.Warn().Err(err).Str("rule_id", rule.ID).Msg("failed to stamp last_evaluated_at")
		}
	}()

	shouldAlert, err := r.Evaluator.Evaluate(ctx, rule)
	if err != nil {
		log.Warn().Err(err).Str("rule_id", rule.ID).Msg("rule evaluation failed")
		return Outcome{RuleID: rule.ID, Status: OutcomeError, Error: err.Error()}
	}
	if !shouldAlert {
		return Outcome{RuleID: rule.ID, Status: OutcomeOK}
	}
	if _, err := r.Lifecycle.Fire(ctx, rule); err != nil {
		log.Warn().Err(err).Str("rule_id", rule.ID).Msg("alert fire failed")
		return Outcome{RuleID: rule.ID, Status: OutcomeError, Error: err.Error()}
	}
	return Outcome{RuleID: rule.ID, Status: OutcomeFired}
}
