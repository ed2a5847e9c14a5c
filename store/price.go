package store

import (
	"context"
	"fmt"
	"time"
)

// AppendObservation persists one price observation and returns its ID.
// Observations are append-only; there is no update or delete path.
func (s *Store) AppendObservation(ctx context.Context, o *Observation) (string, error) {
	if o.ID == "" {
		o.ID = s.newID()
	}
	if o.Currency == "" {
		o.Currency = "GBP"
	}
	if o.RawJSON == "" {
		o.RawJSON = "{}"
	}
	if o.ObservedAt == 0 {
		o.ObservedAt = time.Now().UnixMilli()
	}

	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO price_observations (id, product_id, retailer_id, price,
		currency, in_stock, availability_text, title, raw_json, observed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.ProductID, o.RetailerID, o.Price, o.Currency, o.InStock,
		o.AvailabilityText, o.Title, o.RawJSON, o.ObservedAt,
	)
	if err != nil {
		return "", fmt.Errorf("store: append observation: %w", err)
	}
	return o.ID, nil
}

// PriceHistory returns observations for a (product, retailer) pair since the
// given time, most recent first. IDs are time-sortable, so they break ties
// between same-millisecond appends.
func (s *Store) PriceHistory(ctx context.Context, productID, retailerID string, since time.Time) ([]*Observation, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, product_id, retailer_id, price, currency, in_stock,
		availability_text, title, raw_json, observed_at
		FROM price_observations
		WHERE product_id = ? AND retailer_id = ? AND observed_at >= ?
		ORDER BY observed_at DESC, id DESC`,
		productID, retailerID, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("store: price history: %w", err)
	}
	defer rows.Close()
	return collectObservations(rows)
}

// LatestPrices returns the most recent observation for every (product,
// retailer) pair that has at least one.
func (s *Store) LatestPrices(ctx context.Context) ([]*Observation, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, product_id, retailer_id, price, currency, in_stock,
		availability_text, title, raw_json, observed_at
		FROM price_observations o
		WHERE o.id = (SELECT id FROM price_observations
			WHERE product_id = o.product_id AND retailer_id = o.retailer_id
			ORDER BY observed_at DESC, id DESC LIMIT 1)
		ORDER BY product_id, retailer_id`)
	if err != nil {
		return nil, fmt.Errorf("store: latest prices: %w", err)
	}
	defer rows.Close()
	return collectObservations(rows)
}

// FreshPairs returns the set of (product, retailer) pairs that have at least
// one observation at or after since. Keys are productID + "\x00" + retailerID.
func (s *Store) FreshPairs(ctx context.Context, since time.Time) (map[string]bool, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT DISTINCT product_id, retailer_id
		FROM price_observations WHERE observed_at >= ?`,
		since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("store: fresh pairs: %w", err)
	}
	defer rows.Close()

	fresh := make(map[string]bool)
	for rows.Next() {
		var p, r string
		if err := rows.Scan(&p, &r); err != nil {
			return nil, fmt.Errorf("store: scan fresh pair: %w", err)
		}
		fresh[PairKey(p, r)] = true
	}
	return fresh, rows.Err()
}

// PairKey builds the map key FreshPairs uses for a (product, retailer) pair.
func PairKey(productID, retailerID string) string {
	return productID + "\x00" + retailerID
}

// CountObservations returns total observations and those recorded since the
// given time.
func (s *Store) CountObservations(ctx context.Context, since time.Time) (total, recent int, err error) {
	if err = s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM price_observations`).Scan(&total); err != nil {
		return 0, 0, fmt.Errorf("store: count observations: %w", err)
	}
	if err = s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM price_observations WHERE observed_at >= ?`,
		since.UnixMilli()).Scan(&recent); err != nil {
		return 0, 0, fmt.Errorf("store: count recent observations: %w", err)
	}
	return total, recent, nil
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func collectObservations(rows rowScanner) ([]*Observation, error) {
	var obs []*Observation
	for rows.Next() {
		var o Observation
		if err := rows.Scan(&o.ID, &o.ProductID, &o.RetailerID, &o.Price,
			&o.Currency, &o.InStock, &o.AvailabilityText, &o.Title,
			&o.RawJSON, &o.ObservedAt); err != nil {
			return nil, fmt.Errorf("store: scan observation: %w", err)
		}
		obs = append(obs, &o)
	}
	return obs, rows.Err()
}
