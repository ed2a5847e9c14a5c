package store

import (
	"context"
	"fmt"
	"time"
)

// Stats returns record counts and storage footprint. recentSince bounds the
// "recent observations" counter (typically now minus 24h).
func (s *Store) Stats(ctx context.Context, recentSince time.Time) (*Stats, error) {
	st := &Stats{FileSizeBytes: s.fileSize()}

	counts := []struct {
		query string
		dst   *int
	}{
		{`SELECT COUNT(*) FROM products`, &st.Products},
		{`SELECT COUNT(*) FROM retailers`, &st.Retailers},
		{`SELECT COUNT(*) FROM url_mappings`, &st.Mappings},
		{`SELECT COUNT(*) FROM price_observations`, &st.Observations},
		{`SELECT COUNT(*) FROM attempt_log`, &st.Attempts},
	}
	for _, c := range counts {
		if err := s.DB.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("store: stats: %w", err)
		}
	}

	if err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM price_observations WHERE observed_at >= ?`,
		recentSince.UnixMilli()).Scan(&st.RecentObservations); err != nil {
		return nil, fmt.Errorf("store: stats: %w", err)
	}
	return st, nil
}
