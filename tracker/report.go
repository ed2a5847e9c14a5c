package tracker

import (
	"context"
	"time"

	"github.com/quellen/pricewatch/store"
)

// Freshness summarises how much of the active catalog has a recent
// observation inside the staleness window.
type Freshness struct {
	WindowHours float64 `json:"window_hours"`
	TotalPairs  int     `json:"total_pairs"`
	FreshPairs  int     `json:"fresh_pairs"`
	StalePairs  int     `json:"stale_pairs"`
	StalePct    float64 `json:"stale_pct"`
}

// QualityReport is the data-quality snapshot exposed by the report API.
type QualityReport struct {
	GeneratedAt       int64                           `json:"generated_at"`
	Freshness         Freshness                       `json:"freshness"`
	SuccessRatePct24h float64                         `json:"success_rate_pct_24h"`
	Attempts24h       int                             `json:"attempts_24h"`
	Observations24h   int                             `json:"observations_24h"`
	TotalObservations int                             `json:"total_observations"`
	ByRetailer        map[string]store.RetailerCounts `json:"by_retailer"`
}

// Report builds a quality report over the trailing 24 hours plus the
// configured staleness window.
func (s *Service) Report(ctx context.Context) (*QualityReport, error) {
	now := s.now()
	dayAgo := now.Add(-24 * time.Hour)

	tasks, err := s.buildTasks(ctx)
	if err != nil {
		return nil, err
	}

	fresh, err := s.store.FreshPairs(ctx, now.Add(-s.cfg.StalenessWindow))
	if err != nil {
		return nil, err
	}

	fr := Freshness{
		WindowHours: s.cfg.StalenessWindow.Hours(),
		TotalPairs:  len(tasks),
	}
	for _, tk := range tasks {
		if fresh[store.PairKey(tk.product.ID, tk.retailer.ID)] {
			fr.FreshPairs++
		}
	}
	fr.StalePairs = fr.TotalPairs - fr.FreshPairs
	if fr.TotalPairs > 0 {
		fr.StalePct = float64(fr.StalePairs) / float64(fr.TotalPairs) * 100
	}

	stats, err := s.store.AttemptStats(ctx, dayAgo)
	if err != nil {
		return nil, err
	}

	total, recent, err := s.store.CountObservations(ctx, dayAgo)
	if err != nil {
		return nil, err
	}

	rep := &QualityReport{
		GeneratedAt:       now.UnixMilli(),
		Freshness:         fr,
		Attempts24h:       stats.Total,
		Observations24h:   recent,
		TotalObservations: total,
		ByRetailer:        stats.ByRetailer,
	}
	if stats.Total > 0 {
		rep.SuccessRatePct24h = float64(stats.Successes) / float64(stats.Total) * 100
	}
	return rep, nil
}
