// Package health derives an operational status for the tracker from its
// stored attempt log and price history. Checks only ever escalate: a
// healthy verdict can become degraded, degraded can become unhealthy,
// never the reverse, and every triggered issue is reported.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quellen/pricewatch/store"
)

// Status is the overall verdict.
type Status int

const (
	Healthy Status = iota
	Degraded
	Unhealthy
)

func (s Status) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case Unhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// MarshalText lets Status render as its name in JSON responses.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config holds the health thresholds.
type Config struct {
	// SuccessRateMin is the 24h attempt success rate below which the
	// system is degraded. Default: 0.80.
	SuccessRateMin float64
	// StaleMax is the fraction of active pairs allowed to lack a fresh
	// observation before the system is degraded. Default: 0.20.
	StaleMax float64
	// ErrorRateMax is the 24h attempt failure rate above which the
	// system is unhealthy. Default: 0.30.
	ErrorRateMax float64
	// StalenessWindow is the observation age beyond which a pair counts
	// as stale. Default: 48h.
	StalenessWindow time.Duration
	// Window is the attempt-log lookback. Default: 24h.
	Window time.Duration
}

func (c *Config) defaults() {
	if c.SuccessRateMin <= 0 {
		c.SuccessRateMin = 0.80
	}
	if c.StaleMax <= 0 {
		c.StaleMax = 0.20
	}
	if c.ErrorRateMax <= 0 {
		c.ErrorRateMax = 0.30
	}
	if c.StalenessWindow <= 0 {
		c.StalenessWindow = 48 * time.Hour
	}
	if c.Window <= 0 {
		c.Window = 24 * time.Hour
	}
}

// Report is one full health evaluation.
type Report struct {
	Status        Status   `json:"status"`
	Issues        []string `json:"issues"`
	SuccessRate   float64  `json:"success_rate"`
	ErrorRate     float64  `json:"error_rate"`
	StaleFraction float64  `json:"stale_fraction"`
	AttemptsInWin int      `json:"attempts_in_window"`
	PairsTotal    int      `json:"pairs_total"`
	PairsStale    int      `json:"pairs_stale"`
	EvaluatedAt   int64    `json:"evaluated_at"`

	// ByRetailer breaks the windowed attempts out per retailer. Metrics
	// only; it never feeds the status reduction.
	ByRetailer map[string]store.RetailerCounts `json:"by_retailer,omitempty"`

	StorageHealthy bool         `json:"storage_healthy"`
	Storage        *store.Stats `json:"storage,omitempty"`
}

// escalate raises the status, never lowers it, and records the issue.
func (r *Report) escalate(to Status, issue string) {
	if to > r.Status {
		r.Status = to
	}
	r.Issues = append(r.Issues, issue)
}

// Monitor evaluates the tracker's health against a store.
type Monitor struct {
	store  *store.Store
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Monitor. A nil logger defaults to slog.Default.
func New(st *store.Store, cfg Config, logger *slog.Logger) *Monitor {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{store: st, cfg: cfg, logger: logger, now: time.Now}
}

// Check runs every sub-check and folds their findings into one report.
// Sub-checks that cannot read the store report that as an issue instead
// of failing the evaluation; Check itself never returns an error.
func (m *Monitor) Check(ctx context.Context) *Report {
	rep := &Report{
		Status:         Healthy,
		EvaluatedAt:    m.now().UnixMilli(),
		StorageHealthy: true,
	}

	m.checkStorage(ctx, rep)
	m.checkAttempts(ctx, rep)
	m.checkFreshness(ctx, rep)

	if rep.Status != Healthy {
		m.logger.Warn("health: degraded state",
			"status", rep.Status.String(), "issues", rep.Issues)
	}
	return rep
}

// checkStorage verifies the database answers at all. An unreachable
// store is unhealthy on its own.
func (m *Monitor) checkStorage(ctx context.Context, rep *Report) {
	if err := m.store.Ping(ctx); err != nil {
		rep.StorageHealthy = false
		rep.escalate(Unhealthy, fmt.Sprintf("storage unreachable: %v", err))
		return
	}
	stats, err := m.store.Stats(ctx, m.now().Add(-m.cfg.Window))
	if err != nil {
		rep.escalate(Degraded, fmt.Sprintf("storage stats unavailable: %v", err))
		return
	}
	rep.Storage = stats
}

// checkAttempts evaluates the windowed success and error rates. They
// share one query but trip independently: a low success rate degrades,
// a high error rate is unhealthy.
func (m *Monitor) checkAttempts(ctx context.Context, rep *Report) {
	stats, err := m.store.AttemptStats(ctx, m.now().Add(-m.cfg.Window))
	if err != nil {
		rep.escalate(Degraded, fmt.Sprintf("attempt stats unavailable: %v", err))
		return
	}
	rep.AttemptsInWin = stats.Total
	if len(stats.ByRetailer) > 0 {
		rep.ByRetailer = stats.ByRetailer
	}
	if stats.Total == 0 {
		// No attempts yet is the fresh-install case, not a failure.
		return
	}

	rep.SuccessRate = float64(stats.Successes) / float64(stats.Total)
	rep.ErrorRate = float64(stats.Failures) / float64(stats.Total)

	if rep.SuccessRate < m.cfg.SuccessRateMin {
		rep.escalate(Degraded, fmt.Sprintf(
			"success rate %.0f%% below %.0f%% over last %s",
			rep.SuccessRate*100, m.cfg.SuccessRateMin*100, m.cfg.Window))
	}
	if rep.ErrorRate > m.cfg.ErrorRateMax {
		rep.escalate(Unhealthy, fmt.Sprintf(
			"error rate %.0f%% above %.0f%% over last %s",
			rep.ErrorRate*100, m.cfg.ErrorRateMax*100, m.cfg.Window))
	}
}

// checkFreshness counts active mapped pairs without a recent
// observation.
func (m *Monitor) checkFreshness(ctx context.Context, rep *Report) {
	mappings, err := m.store.ActiveMappings(ctx)
	if err != nil {
		rep.escalate(Degraded, fmt.Sprintf("mappings unavailable: %v", err))
		return
	}
	rep.PairsTotal = len(mappings)
	if len(mappings) == 0 {
		return
	}

	fresh, err := m.store.FreshPairs(ctx, m.now().Add(-m.cfg.StalenessWindow))
	if err != nil {
		rep.escalate(Degraded, fmt.Sprintf("freshness unavailable: %v", err))
		return
	}

	for _, mp := range mappings {
		if !fresh[store.PairKey(mp.ProductID, mp.RetailerID)] {
			rep.PairsStale++
		}
	}
	rep.StaleFraction = float64(rep.PairsStale) / float64(rep.PairsTotal)

	if rep.StaleFraction > m.cfg.StaleMax {
		rep.escalate(Degraded, fmt.Sprintf(
			"%d of %d pairs stale (older than %s)",
			rep.PairsStale, rep.PairsTotal, m.cfg.StalenessWindow))
	}
}
