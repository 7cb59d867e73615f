package metricstore

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"footprintiq-backend/services/alert-engine/internal/storage"
)

// PostgresSource reads metric samples from the provider_metrics,
// slo_compliance and provider_costs tables.
type PostgresSource struct {
	Store *storage.Store
}

func NewPostgresSource(store *storage.Store) *PostgresSource {
	return &PostgresSource{Store: store}
}

// sampleColumn maps a metric type to the provider_metrics column holding its
// samples. Unknown types fall back to latency, matching the upstream system.
func sampleColumn(metricType string) string {
	switch metricType {
	case MetricErrorRate:
		return "error_rate"
	default:
		return "latency_avg"
	}
}

func (s *PostgresSource) LatestValue(ctx context.Context, metricType, metricTarget string) (float64, bool, error) {
	var query string
	switch metricType {
	case MetricSLO:
		query = `SELECT success_rate FROM slo_compliance
			WHERE slo_id=$1 ORDER BY period_start DESC LIMIT 1`
	case MetricErrorRate:
		query = `SELECT error_rate FROM provider_metrics
			WHERE provider_id=$1 ORDER BY timestamp DESC LIMIT 1`
	default:
		query = `SELECT latency_avg FROM provider_metrics
			WHERE provider_id=$1 ORDER BY timestamp DESC LIMIT 1`
	}
	var value float64
	err := s.Store.Pool.QueryRow(ctx, query, metricTarget).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return value, true, nil
}

func (s *PostgresSource) WindowSum(ctx context.Context, metricType, metricTarget string, window time.Duration) (float64, bool, error) {
	since := time.Now().UTC().Add(-window)
	var query string
	switch metricType {
	case MetricCost:
		query = `SELECT COALESCE(SUM(total_cost_gbp), 0), COUNT(*) FROM provider_costs
			WHERE provider_id=$1 AND period_start >= $2`
	default:
		query = `SELECT COALESCE(SUM(` + sampleColumn(metricType) + `), 0), COUNT(*) FROM provider_metrics
			WHERE provider_id=$1 AND timestamp >= $2`
	}
	var sum float64
	var count int
	if err := s.Store.Pool.QueryRow(ctx, query, metricTarget, since).Scan(&sum, &count); err != nil {
		return 0, false, err
	}
	return sum, count > 0, nil
}

func (s *PostgresSource) RecentSamples(ctx context.Context, metricType, metricTarget string, limit int) ([]float64, error) {
	rows, err := s.Store.Pool.Query(ctx, `
		SELECT `+sampleColumn(metricType)+` FROM provider_metrics
		WHERE provider_id=$1 ORDER BY timestamp DESC LIMIT $2`, metricTarget, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSamples(rows)
}

func (s *PostgresSource) SamplesSince(ctx context.Context, metricType, metricTarget string, since time.Time) ([]float64, error) {
	rows, err := s.Store.Pool.Query(ctx, `
		SELECT `+sampleColumn(metricType)+` FROM provider_metrics
		WHERE provider_id=$1 AND timestamp >= $2 ORDER BY timestamp ASC`, metricTarget, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSamples(rows)
}

func scanSamples(rows pgx.Rows) ([]float64, error) {
	samples := []float64{}
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		samples = append(samples, v)
	}
	return samples, rows.Err()
}
