package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AppendAttempt persists one fetch attempt record and returns its ID.
// Attempts are append-only. Empty ProductID/RetailerID are stored as NULL
// (run-level failures have no pair).
func (s *Store) AppendAttempt(ctx context.Context, a *Attempt) (string, error) {
	if a.ID == "" {
		a.ID = s.newID()
	}
	if a.AttemptedAt == 0 {
		a.AttemptedAt = time.Now().UnixMilli()
	}

	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO attempt_log (id, product_id, retailer_id, status,
		error_message, duration_ms, user_agent, attempted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, nullEmpty(a.ProductID), nullEmpty(a.RetailerID), a.Status,
		a.ErrorMessage, a.DurationMs, a.UserAgent, a.AttemptedAt,
	)
	if err != nil {
		return "", fmt.Errorf("store: append attempt: %w", err)
	}
	return a.ID, nil
}

// Attempts returns attempt records since the given time, most recent first,
// capped at limit (0 means no cap).
func (s *Store) Attempts(ctx context.Context, since time.Time, limit int) ([]*Attempt, error) {
	q := `SELECT id, product_id, retailer_id, status, error_message,
		duration_ms, user_agent, attempted_at
		FROM attempt_log WHERE attempted_at >= ?
		ORDER BY attempted_at DESC`
	args := []any{since.UnixMilli()}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*Attempt
	for rows.Next() {
		var a Attempt
		var productID, retailerID sql.NullString
		if err := rows.Scan(&a.ID, &productID, &retailerID, &a.Status,
			&a.ErrorMessage, &a.DurationMs, &a.UserAgent, &a.AttemptedAt); err != nil {
			return nil, fmt.Errorf("store: scan attempt: %w", err)
		}
		a.ProductID = productID.String
		a.RetailerID = retailerID.String
		attempts = append(attempts, &a)
	}
	return attempts, rows.Err()
}

// AttemptStats aggregates attempt outcomes since the given time, overall and
// per retailer.
func (s *Store) AttemptStats(ctx context.Context, since time.Time) (*AttemptStats, error) {
	stats := &AttemptStats{ByRetailer: make(map[string]RetailerCounts)}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT COALESCE(retailer_id, ''), status, COUNT(*)
		FROM attempt_log WHERE attempted_at >= ?
		GROUP BY retailer_id, status`,
		since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("store: attempt stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var retailerID, status string
		var n int
		if err := rows.Scan(&retailerID, &status, &n); err != nil {
			return nil, fmt.Errorf("store: scan attempt stats: %w", err)
		}

		stats.Total += n
		switch status {
		case StatusSuccess:
			stats.Successes += n
		case StatusFailed:
			stats.Failures += n
		}

		if retailerID != "" {
			c := stats.ByRetailer[retailerID]
			c.Total += n
			if status == StatusFailed {
				c.Failures += n
			}
			stats.ByRetailer[retailerID] = c
		}
	}
	return stats, rows.Err()
}

// CountAttempts returns the total number of attempt records.
func (s *Store) CountAttempts(ctx context.Context) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM attempt_log`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count attempts: %w", err)
	}
	return n, nil
}

func nullEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
