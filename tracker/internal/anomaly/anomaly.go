// Package anomaly flags prices that deviate from their recent history.
//
// The check is advisory: it annotates an observation but never blocks
// persistence.
package anomaly

import (
	"context"
	"fmt"
	"time"
)

// Anomaly kinds.
const (
	KindSpike = "price_spike"
	KindDrop  = "price_drop"
)

// Result is the outcome of one anomaly check.
type Result struct {
	Anomaly bool   `json:"anomaly"`
	Kind    string `json:"kind,omitempty"`
	// PercentChange is the signed deviation of the new price from the
	// historical mean, in percent.
	PercentChange float64 `json:"percent_change,omitempty"`
	Mean          float64 `json:"mean,omitempty"`
	SampleCount   int     `json:"sample_count"`
}

// HistoryFunc returns the historical prices for a (product, retailer) pair
// observed at or after since.
type HistoryFunc func(ctx context.Context, productID, retailerID string, since time.Time) ([]float64, error)

// Checker compares new prices against a trailing window of history.
type Checker struct {
	history   HistoryFunc
	window    time.Duration
	threshold float64
	now       func() time.Time
}

// New builds a Checker. window defaults to 7 days and threshold to 0.20
// (±20%) when zero.
func New(history HistoryFunc, window time.Duration, threshold float64) *Checker {
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	if threshold <= 0 {
		threshold = 0.20
	}
	return &Checker{
		history:   history,
		window:    window,
		threshold: threshold,
		now:       time.Now,
	}
}

// Check compares newPrice against the pair's trailing-window mean. Fewer
// than 2 historical points is an insufficient baseline and reports no
// anomaly.
func (c *Checker) Check(ctx context.Context, productID, retailerID string, newPrice float64) (*Result, error) {
	since := c.now().Add(-c.window)
	prices, err := c.history(ctx, productID, retailerID, since)
	if err != nil {
		return nil, fmt.Errorf("anomaly: load history: %w", err)
	}

	res := &Result{SampleCount: len(prices)}
	if len(prices) < 2 {
		return res, nil
	}

	var sum float64
	for _, p := range prices {
		sum += p
	}
	mean := sum / float64(len(prices))
	res.Mean = mean
	if mean == 0 {
		return res, nil
	}

	change := (newPrice - mean) / mean
	switch {
	case change > c.threshold:
		res.Anomaly = true
		res.Kind = KindSpike
		res.PercentChange = change * 100
	case change < -c.threshold:
		res.Anomaly = true
		res.Kind = KindDrop
		res.PercentChange = change * 100
	}
	return res, nil
}
