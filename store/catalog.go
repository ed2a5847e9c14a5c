package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InsertProduct adds a product to the catalog. ID and timestamps are filled
// in when zero.
func (s *Store) InsertProduct(ctx context.Context, p *Product) error {
	now := time.Now().UnixMilli()
	if p.ID == "" {
		p.ID = s.newID()
	}
	if p.CreatedAt == 0 {
		p.CreatedAt = now
	}
	if p.UpdatedAt == 0 {
		p.UpdatedAt = now
	}

	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO products (id, brand, name, pack_size, formulation, category,
		active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Brand, p.Name, p.PackSize, p.Formulation, p.Category,
		p.Active, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert product: %w", err)
	}
	return nil
}

// GetProduct retrieves a product by ID.
func (s *Store) GetProduct(ctx context.Context, id string) (*Product, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, brand, name, pack_size, formulation, category, active,
		created_at, updated_at
		FROM products WHERE id = ?`, id)
	return scanProduct(row)
}

// ActiveProducts returns every product whose active flag is set.
func (s *Store) ActiveProducts(ctx context.Context) ([]*Product, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, brand, name, pack_size, formulation, category, active,
		created_at, updated_at
		FROM products WHERE active = 1 ORDER BY brand, name`)
	if err != nil {
		return nil, fmt.Errorf("store: active products: %w", err)
	}
	defer rows.Close()

	var products []*Product
	for rows.Next() {
		p, err := scanProductRows(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// SetProductActive soft-activates or soft-deactivates a product.
func (s *Store) SetProductActive(ctx context.Context, id string, active bool) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE products SET active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("store: set product active: %w", err)
	}
	return requireRow(res, "product", id)
}

// InsertRetailer adds a retailer to the catalog.
func (s *Store) InsertRetailer(ctx context.Context, r *Retailer) error {
	now := time.Now().UnixMilli()
	if r.ID == "" {
		r.ID = s.newID()
	}
	if r.Adapter == "" {
		r.Adapter = "generic"
	}
	if r.SelectorsJSON == "" {
		r.SelectorsJSON = "{}"
	}
	if r.WaitSelectorsJSON == "" {
		r.WaitSelectorsJSON = "[]"
	}
	if r.CreatedAt == 0 {
		r.CreatedAt = now
	}
	if r.UpdatedAt == 0 {
		r.UpdatedAt = now
	}

	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO retailers (id, name, base_url, adapter, selectors_json,
		wait_selectors_json, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.BaseURL, r.Adapter, r.SelectorsJSON,
		r.WaitSelectorsJSON, r.Active, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert retailer: %w", err)
	}
	return nil
}

// GetRetailer retrieves a retailer by ID.
func (s *Store) GetRetailer(ctx context.Context, id string) (*Retailer, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, name, base_url, adapter, selectors_json, wait_selectors_json,
		active, created_at, updated_at
		FROM retailers WHERE id = ?`, id)
	return scanRetailer(row)
}

// ActiveRetailers returns every retailer whose active flag is set.
func (s *Store) ActiveRetailers(ctx context.Context) ([]*Retailer, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, name, base_url, adapter, selectors_json, wait_selectors_json,
		active, created_at, updated_at
		FROM retailers WHERE active = 1 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("store: active retailers: %w", err)
	}
	defer rows.Close()

	var retailers []*Retailer
	for rows.Next() {
		r, err := scanRetailerRows(rows)
		if err != nil {
			return nil, err
		}
		retailers = append(retailers, r)
	}
	return retailers, rows.Err()
}

// SetRetailerActive soft-activates or soft-deactivates a retailer.
func (s *Store) SetRetailerActive(ctx context.Context, id string, active bool) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE retailers SET active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("store: set retailer active: %w", err)
	}
	return requireRow(res, "retailer", id)
}

func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("store: %s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

func scanProduct(row *sql.Row) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Brand, &p.Name, &p.PackSize, &p.Formulation,
		&p.Category, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan product: %w", err)
	}
	return &p, nil
}

func scanProductRows(rows *sql.Rows) (*Product, error) {
	var p Product
	err := rows.Scan(&p.ID, &p.Brand, &p.Name, &p.PackSize, &p.Formulation,
		&p.Category, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: scan product: %w", err)
	}
	return &p, nil
}

func scanRetailer(row *sql.Row) (*Retailer, error) {
	var r Retailer
	err := row.Scan(&r.ID, &r.Name, &r.BaseURL, &r.Adapter, &r.SelectorsJSON,
		&r.WaitSelectorsJSON, &r.Active, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan retailer: %w", err)
	}
	return &r, nil
}

func scanRetailerRows(rows *sql.Rows) (*Retailer, error) {
	var r Retailer
	err := rows.Scan(&r.ID, &r.Name, &r.BaseURL, &r.Adapter, &r.SelectorsJSON,
		&r.WaitSelectorsJSON, &r.Active, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: scan retailer: %w", err)
	}
	return &r, nil
}
