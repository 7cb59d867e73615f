package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"footprintiq-backend/services/alert-engine/internal/bus"
	"footprintiq-backend/services/alert-engine/internal/logger"
	"footprintiq-backend/services/alert-engine/internal/metrics"
	"footprintiq-backend/services/alert-engine/internal/storage"
)

// Lifecycle owns the alert state machine: firing -> acknowledged -> resolved,
// with acknowledgement optional. At most one firing alert exists per rule at
// any time; Fire serializes the check-then-create per rule and the partial
// unique index backs the same invariant across processes.
type Lifecycle struct {
	Rules    RuleStore
	Alerts   AlertStore
	Notifier Notifier
	Events   EventPublisher

	locks sync.Map // rule id -> *sync.Mutex
}

func NewLifecycle(rules RuleStore, alerts AlertStore, notifier Notifier, events EventPublisher) *Lifecycle {
	return &Lifecycle{Rules: rules, Alerts: alerts, Notifier: notifier, Events: events}
}

func (l *Lifecycle) ruleLock(ruleID string) *sync.Mutex {
	mu, _ := l.locks.LoadOrStore(ruleID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Fire opens an alert for the rule unless one is already firing. It returns
// whether a new alert was created. Notification delivery is best-effort and
// never rolls back the alert.
func (l *Lifecycle) Fire(ctx context.Context, rule storage.Rule) (bool, error) {
	mu := l.ruleLock(rule.ID)
	mu.Lock()
	defer mu.Unlock()

	log := logger.WithComponent("lifecycle")

	if _, err := l.Alerts.GetFiringAlert(ctx, rule.ID); err == nil {
		metrics.AlertsDedupedTotal.Inc()
		return false, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return false, fmt.Errorf("check firing alert: %w", err)
	}

	now := time.Now().UTC()
	alert := storage.ActiveAlert{
		ID:          uuid.NewString(),
		AlertRuleID: rule.ID,
		WorkspaceID: rule.WorkspaceID,
		Severity:    rule.Severity,
		Title:       rule.Name,
		Message:     fmt.Sprintf("Alert: %s triggered", rule.Name),
		Status:      storage.StatusFiring,
		FiredAt:     now,
	}
	if err := l.Alerts.CreateAlert(ctx, alert); err != nil {
		if errors.Is(err, storage.ErrAlreadyFiring) {
			// Another scheduler won the race; same outcome as the dedup check.
			metrics.AlertsDedupedTotal.Inc()
			return false, nil
		}
		return false, fmt.Errorf("create alert: %w", err)
	}
	metrics.AlertsFiredTotal.WithLabelValues(alert.Severity).Inc()

	// The alert is the durable record of truth from here on; stamping,
	// history and notifications are best-effort on top of it.
	if err := l.Rules.StampRuleTriggered(ctx, rule.ID, now); err != nil {
		log.Warn().Err(err).Str("rule_id", rule.ID).Msg("failed to stamp last_triggered_at")
	}
	if err := l.Alerts.AppendHistory(ctx, storage.HistoryEntry{
		ID:          uuid.NewString(),
		AlertRuleID: rule.ID,
		WorkspaceID: rule.WorkspaceID,
		Severity:    rule.Severity,
		Title:       alert.Title,
		Message:     alert.Message,
		FiredAt:     now,
	}); err != nil {
		log.Warn().Err(err).Str("rule_id", rule.ID).Msg("failed to append history entry")
	}

	if l.Notifier != nil {
		l.Notifier.Dispatch(ctx, alert, rule.NotificationChannels)
	}

	l.publish(bus.SubjectAlertFired, map[string]any{
		"alert_id": alert.ID,
		"rule_id":  rule.ID,
		"severity": alert.Severity,
	})

	log.Info().
		Str("alert_id", alert.ID).
		Str("rule_id", rule.ID).
		Str("severity", alert.Severity).
		Msg("alert fired")
	return true, nil
}

// Acknowledge moves a non-resolved alert to acknowledged. Re-acknowledging
// an acknowledged alert is allowed.
func (l *Lifecycle) Acknowledge(ctx context.Context, alertID, actor string) error {
	alert, err := l.Alerts.GetAlert(ctx, alertID)
	if err != nil {
		return err
	}
	if alert.Status == storage.StatusResolved {
		return ErrAlertResolved
	}
	now := time.Now().UTC()
	if err := l.Alerts.MarkAlertAcknowledged(ctx, alertID, actor, now); err != nil {
		return fmt.Errorf("acknowledge alert: %w", err)
	}
	l.publish(bus.SubjectAlertAcknowledged, map[string]any{
		"alert_id": alertID,
		"actor":    actor,
	})
	return nil
}

// Resolve moves a non-resolved alert to its terminal state and back-fills
// the matching history entry with resolution time, whole-minute duration and
// whether the alert was acknowledged before resolution.
func (l *Lifecycle) Resolve(ctx context.Context, alertID, actor string) error {
	alert, err := l.Alerts.GetAlert(ctx, alertID)
	if err != nil {
		return err
	}
	if alert.Status == storage.StatusResolved {
		return ErrAlertResolved
	}
	now := time.Now().UTC()
	if err := l.Alerts.MarkAlertResolved(ctx, alertID, actor, now); err != nil {
		return fmt.Errorf("resolve alert: %w", err)
	}

	acknowledged := alert.Status == storage.StatusAcknowledged
	durationMinutes := int(now.Sub(alert.FiredAt) / time.Minute)
	if err := l.Alerts.EnrichHistory(ctx, alert.AlertRuleID, alert.FiredAt, now, durationMinutes, acknowledged); err != nil {
		log := logger.WithComponent("lifecycle")
		log.Warn().
			Err(err).
			Str("alert_id", alertID).
			Msg("failed to enrich history entry")
	}

	l.publish(bus.SubjectAlertResolved, map[string]any{
		"alert_id":         alertID,
		"actor":            actor,
		"duration_minutes": durationMinutes,
	})
	return nil
}

func (l *Lifecycle) publish(subject string, payload map[string]any) {
	if l.Events == nil {
		return
	}
	if err := l.Events.Publish(subject, payload); err != nil {
		log := logger.WithComponent("lifecycle")
		log.Warn().Err(err).Str("subject", subject).Msg("failed to publish event")
	}
}
