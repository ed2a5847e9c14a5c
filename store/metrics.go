package store

import (
	"context"
	"fmt"
	"time"
)

// RecordMetric appends a numeric metric sample.
func (s *Store) RecordMetric(ctx context.Context, name string, value float64) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO metric_samples (id, name, value, recorded_at)
		VALUES (?, ?, ?, ?)`,
		s.newID(), name, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store: record metric: %w", err)
	}
	return nil
}

// RecordTextMetric appends a text metric sample (e.g. a status label).
func (s *Store) RecordTextMetric(ctx context.Context, name, text string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO metric_samples (id, name, text_value, recorded_at)
		VALUES (?, ?, ?, ?)`,
		s.newID(), name, text, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store: record text metric: %w", err)
	}
	return nil
}

// MetricHistory returns samples for a metric since the given time, most
// recent first.
func (s *Store) MetricHistory(ctx context.Context, name string, since time.Time) ([]*MetricSample, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, name, value, text_value, recorded_at
		FROM metric_samples WHERE name = ? AND recorded_at >= ?
		ORDER BY recorded_at DESC`,
		name, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("store: metric history: %w", err)
	}
	defer rows.Close()

	var samples []*MetricSample
	for rows.Next() {
		var m MetricSample
		if err := rows.Scan(&m.ID, &m.Name, &m.Value, &m.TextValue, &m.RecordedAt); err != nil {
			return nil, fmt.Errorf("store: scan metric: %w", err)
		}
		samples = append(samples, &m)
	}
	return samples, rows.Err()
}
