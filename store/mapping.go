package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// UpsertMapping creates the URL mapping for a (product, retailer) pair, or
// updates the existing one in place. At most one mapping ever exists per
// pair; re-adding never duplicates.
func (s *Store) UpsertMapping(ctx context.Context, m *Mapping) error {
	now := time.Now().UnixMilli()
	if m.ID == "" {
		m.ID = s.newID()
	}
	if m.SelectorOverridesJSON == "" {
		m.SelectorOverridesJSON = "{}"
	}
	if m.CreatedAt == 0 {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO url_mappings (id, product_id, retailer_id, url,
		selector_overrides_json, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(product_id, retailer_id) DO UPDATE SET
			url = excluded.url,
			selector_overrides_json = excluded.selector_overrides_json,
			active = excluded.active,
			updated_at = excluded.updated_at`,
		m.ID, m.ProductID, m.RetailerID, m.URL,
		m.SelectorOverridesJSON, m.Active, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: upsert mapping: %w", err)
	}
	return nil
}

// GetMapping retrieves the mapping for a (product, retailer) pair.
func (s *Store) GetMapping(ctx context.Context, productID, retailerID string) (*Mapping, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, product_id, retailer_id, url, selector_overrides_json,
		active, created_at, updated_at
		FROM url_mappings WHERE product_id = ? AND retailer_id = ?`,
		productID, retailerID)
	return scanMapping(row)
}

// ActiveMappings returns every mapping whose active flag is set.
func (s *Store) ActiveMappings(ctx context.Context) ([]*Mapping, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, product_id, retailer_id, url, selector_overrides_json,
		active, created_at, updated_at
		FROM url_mappings WHERE active = 1`)
	if err != nil {
		return nil, fmt.Errorf("store: active mappings: %w", err)
	}
	defer rows.Close()

	var mappings []*Mapping
	for rows.Next() {
		var m Mapping
		if err := rows.Scan(&m.ID, &m.ProductID, &m.RetailerID, &m.URL,
			&m.SelectorOverridesJSON, &m.Active, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan mapping: %w", err)
		}
		mappings = append(mappings, &m)
	}
	return mappings, rows.Err()
}

// SetMappingActive soft-activates or soft-deactivates a mapping.
func (s *Store) SetMappingActive(ctx context.Context, productID, retailerID string, active bool) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE url_mappings SET active = ?, updated_at = ?
		WHERE product_id = ? AND retailer_id = ?`,
		active, time.Now().UnixMilli(), productID, retailerID)
	if err != nil {
		return fmt.Errorf("store: set mapping active: %w", err)
	}
	return requireRow(res, "mapping", productID+"/"+retailerID)
}

func scanMapping(row *sql.Row) (*Mapping, error) {
	var m Mapping
	err := row.Scan(&m.ID, &m.ProductID, &m.RetailerID, &m.URL,
		&m.SelectorOverridesJSON, &m.Active, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan mapping: %w", err)
	}
	return &m, nil
}
