package engine

import (
	"context"
	"time"

	"footprintiq-backend/services/alert-engine/internal/notify"
	"footprintiq-backend/services/alert-engine/internal/storage"
)

// Store interfaces consumed by the engine. *storage.Repository satisfies all
// of them; tests substitute in-memory fakes.

type RuleStore interface {
	ListDueRules(ctx context.Context, interval time.Duration) ([]storage.Rule, error)
	GetRule(ctx context.Context, id string) (storage.Rule, error)
	StampRuleEvaluated(ctx context.Context, id string, at time.Time) error
	StampRuleTriggered(ctx context.Context, id string, at time.Time) error
}

type AlertStore interface {
	GetFiringAlert(ctx context.Context, ruleID string) (storage.ActiveAlert, error)
	CreateAlert(ctx context.Context, alert storage.ActiveAlert) error
	GetAlert(ctx context.Context, id string) (storage.ActiveAlert, error)
	MarkAlertAcknowledged(ctx context.Context, id, actor string, at time.Time) error
	MarkAlertResolved(ctx context.Context, id, actor string, at time.Time) error
	AppendHistory(ctx context.Context, entry storage.HistoryEntry) error
	EnrichHistory(ctx context.Context, ruleID string, firedAt, resolvedAt time.Time, durationMinutes int, acknowledged bool) error
}

type BaselineStore interface {
	GetBaseline(ctx context.Context, workspaceID, metricType, metricTarget string) (storage.Baseline, error)
	UpsertBaseline(ctx context.Context, b storage.Baseline) error
}

// Notifier fans a fired alert out to its configured channels. Delivery is
// best-effort; the lifecycle manager never acts on the outcomes.
type Notifier interface {
	Dispatch(ctx context.Context, alert storage.ActiveAlert, channelIDs []string) []notify.Outcome
}

// EventPublisher mirrors bus.Publisher. A nil publisher disables events.
type EventPublisher interface {
	Publish(subject string, payload any) error
}
