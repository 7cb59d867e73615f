package storage

import (
	"encoding/json"
	"time"
)

// Alert severities, lowest to highest.
const (
	SeverityInfo      = "info"
	SeverityWarning   = "warning"
	SeverityCritical  = "critical"
	SeverityEmergency = "emergency"
)

// Active alert statuses. Resolved is terminal.
const (
	StatusFiring       = "firing"
	StatusAcknowledged = "acknowledged"
	StatusResolved     = "resolved"
)

// Rule types.
const (
	RuleThreshold = "threshold"
	RuleAnomaly   = "anomaly"
	RuleTrend     = "trend"
	RuleComposite = "composite"
)

// Rule is a persisted alerting policy. The engine only ever writes
// LastEvaluatedAt and LastTriggeredAt; everything else belongs to the
// operator-facing CRUD surface.
type Rule struct {
	ID                   string
	WorkspaceID          string
	Name                 string
	RuleType             string
	MetricType           string
	MetricTarget         string
	Condition            json.RawMessage
	Severity             string
	NotificationChannels []string
	IsEnabled            bool
	LastEvaluatedAt      *time.Time
	LastTriggeredAt      *time.Time
}

// ActiveAlert is a live instance of a rule violation.
type ActiveAlert struct {
	ID             string
	AlertRuleID    string
	WorkspaceID    string
	Severity       string
	Title          string
	Message        string
	Status         string
	FiredAt        time.Time
	AcknowledgedAt *time.Time
	AcknowledgedBy *string
	ResolvedAt     *time.Time
	ResolvedBy     *string
}

// HistoryEntry is the append-only audit record mirroring each fire. Only the
// resolution-time enrichment (resolved_at, duration_minutes, acknowledged)
// ever mutates it.
type HistoryEntry struct {
	ID              string
	AlertRuleID     string
	WorkspaceID     string
	Severity        string
	Title           string
	Message         string
	FiredAt         time.Time
	ResolvedAt      *time.Time
	DurationMinutes *int
	Acknowledged    bool
}

// Channel is a configured notification destination.
type Channel struct {
	ID           string
	WorkspaceID  string
	Name         string
	ChannelType  string
	Config       json.RawMessage
	IsEnabled    bool
	SuccessCount int
	FailureCount int
	LastUsedAt   *time.Time
}

// Baseline is a trained statistical summary for one
// (workspace, metric_type, metric_target) key.
type Baseline struct {
	WorkspaceID    string
	MetricType     string
	MetricTarget   string
	MeanValue      float64
	StdDev         float64
	MinValue       float64
	MaxValue       float64
	SampleCount    int
	SigmaThreshold float64
	LastTrainedAt  time.Time
}
