package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type Repository struct {
	Store *Store
}

func NewRepository(store *Store) *Repository {
	return &Repository{Store: store}
}

const ruleColumns = `id, workspace_id, name, rule_type, metric_type, metric_target,
	condition, severity, notification_channels, is_enabled, last_evaluated_at, last_triggered_at`

func scanRule(row pgx.Row) (Rule, error) {
	var rec Rule
	err := row.Scan(&rec.ID, &rec.WorkspaceID, &rec.Name, &rec.RuleType, &rec.MetricType,
		&rec.MetricTarget, &rec.Condition, &rec.Severity, &rec.NotificationChannels,
		&rec.IsEnabled, &rec.LastEvaluatedAt, &rec.LastTriggeredAt)
	return rec, err
}

// ListDueRules returns enabled rules that have never been evaluated or whose
// last evaluation is older than the interval.
func (r *Repository) ListDueRules(ctx context.Context, interval time.Duration) ([]Rule, error) {
	cutoff := time.Now().UTC().Add(-interval)
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM alert_rules
		WHERE is_enabled = true
		  AND (last_evaluated_at IS NULL OR last_evaluated_at < $1)`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []Rule{}
	for rows.Next() {
		rec, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

func (r *Repository) GetRule(ctx context.Context, id string) (Rule, error) {
	row := r.Store.Pool.QueryRow(ctx, `
		SELECT `+ruleColumns+` FROM alert_rules WHERE id=$1`, id)
	rec, err := scanRule(row)
	if err != nil {
		return Rule{}, ErrNotFound
	}
	return rec, nil
}

func (r *Repository) StampRuleEvaluated(ctx context.Context, id string, at time.Time) error {
	_, err := r.Store.Pool.Exec(ctx, `
		UPDATE alert_rules SET last_evaluated_at=$1 WHERE id=$2`, at, id)
	return err
}

func (r *Repository) StampRuleTriggered(ctx context.Context, id string, at time.Time) error {
	_, err := r.Store.Pool.Exec(ctx, `
		UPDATE alert_rules SET last_triggered_at=$1 WHERE id=$2`, at, id)
	return err
}

const alertColumns = `id, alert_rule_id, workspace_id, severity, title, message, status,
	fired_at, acknowledged_at, acknowledged_by, resolved_at, resolved_by`

func scanAlert(row pgx.Row) (ActiveAlert, error) {
	var rec ActiveAlert
	err := row.Scan(&rec.ID, &rec.AlertRuleID, &rec.WorkspaceID, &rec.Severity, &rec.Title,
		&rec.Message, &rec.Status, &rec.FiredAt, &rec.AcknowledgedAt, &rec.AcknowledgedBy,
		&rec.ResolvedAt, &rec.ResolvedBy)
	return rec, err
}

// GetFiringAlert returns the open firing alert for a rule, if any.
func (r *Repository) GetFiringAlert(ctx context.Context, ruleID string) (ActiveAlert, error) {
	row := r.Store.Pool.QueryRow(ctx, `
		SELECT `+alertColumns+` FROM active_alerts
		WHERE alert_rule_id=$1 AND status=$2`, ruleID, StatusFiring)
	rec, err := scanAlert(row)
	if err != nil {
		return ActiveAlert{}, ErrNotFound
	}
	return rec, nil
}

// CreateAlert inserts a new firing alert. The partial unique index on
// (alert_rule_id) WHERE status='firing' turns a concurrent double-fire into
// ErrAlreadyFiring.
func (r *Repository) CreateAlert(ctx context.Context, alert ActiveAlert) error {
	_, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO active_alerts (id, alert_rule_id, workspace_id, severity, title, message, status, fired_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		alert.ID, alert.AlertRuleID, alert.WorkspaceID, alert.Severity, alert.Title,
		alert.Message, alert.Status, alert.FiredAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrAlreadyFiring
	}
	return err
}

func (r *Repository) GetAlert(ctx context.Context, id string) (ActiveAlert, error) {
	row := r.Store.Pool.QueryRow(ctx, `
		SELECT `+alertColumns+` FROM active_alerts WHERE id=$1`, id)
	rec, err := scanAlert(row)
	if err != nil {
		return ActiveAlert{}, ErrNotFound
	}
	return rec, nil
}

func (r *Repository) ListActiveAlerts(ctx context.Context, workspaceID string) ([]ActiveAlert, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT `+alertColumns+` FROM active_alerts
		WHERE workspace_id=$1 AND status <> $2
		ORDER BY fired_at DESC`, workspaceID, StatusResolved)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []ActiveAlert{}
	for rows.Next() {
		rec, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

func (r *Repository) MarkAlertAcknowledged(ctx context.Context, id, actor string, at time.Time) error {
	_, err := r.Store.Pool.Exec(ctx, `
		UPDATE active_alerts SET status=$1, acknowledged_at=$2, acknowledged_by=$3 WHERE id=$4`,
		StatusAcknowledged, at, actor, id)
	return err
}

func (r *Repository) MarkAlertResolved(ctx context.Context, id, actor string, at time.Time) error {
	_, err := r.Store.Pool.Exec(ctx, `
		UPDATE active_alerts SET status=$1, resolved_at=$2, resolved_by=$3 WHERE id=$4`,
		StatusResolved, at, actor, id)
	return err
}

func (r *Repository) AppendHistory(ctx context.Context, entry HistoryEntry) error {
	_, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO alert_history (id, alert_rule_id, workspace_id, severity, title, message, fired_at, acknowledged)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		entry.ID, entry.AlertRuleID, entry.WorkspaceID, entry.Severity, entry.Title,
		entry.Message, entry.FiredAt, entry.Acknowledged)
	return err
}

// EnrichHistory back-fills the resolution fields on the history entry
// matching a fire. This is the only mutation alert_history ever sees.
func (r *Repository) EnrichHistory(ctx context.Context, ruleID string, firedAt, resolvedAt time.Time, durationMinutes int, acknowledged bool) error {
	_, err := r.Store.Pool.Exec(ctx, `
		UPDATE alert_history SET resolved_at=$1, duration_minutes=$2, acknowledged=$3
		WHERE alert_rule_id=$4 AND fired_at=$5`,
		resolvedAt, durationMinutes, acknowledged, ruleID, firedAt)
	return err
}

func (r *Repository) ListHistory(ctx context.Context, workspaceID string, limit int) ([]HistoryEntry, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT id, alert_rule_id, workspace_id, severity, title, message, fired_at,
			resolved_at, duration_minutes, acknowledged
		FROM alert_history WHERE workspace_id=$1
		ORDER BY fired_at DESC LIMIT $2`, workspaceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []HistoryEntry{}
	for rows.Next() {
		var rec HistoryEntry
		if err := rows.Scan(&rec.ID, &rec.AlertRuleID, &rec.WorkspaceID, &rec.Severity,
			&rec.Title, &rec.Message, &rec.FiredAt, &rec.ResolvedAt, &rec.DurationMinutes,
			&rec.Acknowledged); err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

func (r *Repository) GetChannel(ctx context.Context, id string) (Channel, error) {
	row := r.Store.Pool.QueryRow(ctx, `
		SELECT id, workspace_id, name, channel_type, config, is_enabled,
			success_count, failure_count, last_used_at
		FROM notification_channels WHERE id=$1`, id)
	var rec Channel
	if err := row.Scan(&rec.ID, &rec.WorkspaceID, &rec.Name, &rec.ChannelType, &rec.Config,
		&rec.IsEnabled, &rec.SuccessCount, &rec.FailureCount, &rec.LastUsedAt); err != nil {
		return Channel{}, ErrNotFound
	}
	return rec, nil
}

func (r *Repository) RecordChannelSuccess(ctx context.Context, id string, at time.Time) error {
	_, err := r.Store.Pool.Exec(ctx, `
		UPDATE notification_channels
		SET success_count = success_count + 1, last_used_at = $1
		WHERE id=$2`, at, id)
	return err
}

func (r *Repository) RecordChannelFailure(ctx context.Context, id string) error {
	_, err := r.Store.Pool.Exec(ctx, `
		UPDATE notification_channels
		SET failure_count = failure_count + 1
		WHERE id=$1`, id)
	return err
}

func (r *Repository) GetBaseline(ctx context.Context, workspaceID, metricType, metricTarget string) (Baseline, error) {
	row := r.Store.Pool.QueryRow(ctx, `
		SELECT workspace_id, metric_type, metric_target, mean_value, std_dev,
			min_value, max_value, sample_count, sigma_threshold, last_trained_at
		FROM anomaly_baselines
		WHERE workspace_id=$1 AND metric_type=$2 AND metric_target=$3`,
		workspaceID, metricType, metricTarget)
	var rec Baseline
	if err := row.Scan(&rec.WorkspaceID, &rec.MetricType, &rec.MetricTarget, &rec.MeanValue,
		&rec.StdDev, &rec.MinValue, &rec.MaxValue, &rec.SampleCount, &rec.SigmaThreshold,
		&rec.LastTrainedAt); err != nil {
		return Baseline{}, ErrNotFound
	}
	return rec, nil
}

// UpsertBaseline replaces the baseline for its key in a single statement, so
// a partially-written baseline is never visible.
func (r *Repository) UpsertBaseline(ctx context.Context, b Baseline) error {
	_, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO anomaly_baselines
			(workspace_id, metric_type, metric_target, mean_value, std_dev,
			 min_value, max_value, sample_count, sigma_threshold, last_trained_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (workspace_id, metric_type, metric_target) DO UPDATE SET
			mean_value=EXCLUDED.mean_value,
			std_dev=EXCLUDED.std_dev,
			min_value=EXCLUDED.min_value,
			max_value=EXCLUDED.max_value,
			sample_count=EXCLUDED.sample_count,
			sigma_threshold=EXCLUDED.sigma_threshold,
			last_trained_at=EXCLUDED.last_trained_at`,
		b.WorkspaceID, b.MetricType, b.MetricTarget, b.MeanValue, b.StdDev,
		b.MinValue, b.MaxValue, b.SampleCount, b.SigmaThreshold, b.LastTrainedAt)
	return err
}
