package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CatalogFile is the YAML bulk-import format for products, retailers and
// URL mappings. Mappings reference products by identity (brand, name,
// pack size) and retailers by name.
type CatalogFile struct {
	Products  []CatalogProduct  `yaml:"products"`
	Retailers []CatalogRetailer `yaml:"retailers"`
	Mappings  []CatalogMapping  `yaml:"mappings"`
}

type CatalogProduct struct {
	Brand       string `yaml:"brand"`
	Name        string `yaml:"name"`
	PackSize    string `yaml:"pack_size"`
	Formulation string `yaml:"formulation"`
	Category    string `yaml:"category"`
}

type CatalogRetailer struct {
	Name          string              `yaml:"name"`
	BaseURL       string              `yaml:"base_url"`
	Adapter       string              `yaml:"adapter"`
	Selectors     map[string][]string `yaml:"selectors"`
	WaitSelectors []string            `yaml:"wait_selectors"`
}

type CatalogMapping struct {
	Brand    string `yaml:"brand"`
	Product  string `yaml:"product"`
	PackSize string `yaml:"pack_size"`
	Retailer string `yaml:"retailer"`
	URL      string `yaml:"url"`
}

// ImportResult counts what a bulk import created or updated.
type ImportResult struct {
	Products  int `json:"products"`
	Retailers int `json:"retailers"`
	Mappings  int `json:"mappings"`
}

// ImportCatalogFile reads a YAML catalog file and imports it.
func (s *Store) ImportCatalogFile(ctx context.Context, path string) (*ImportResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("store: read catalog file: %w", err)
	}
	return s.ImportCatalog(ctx, data)
}

// ImportCatalog imports a YAML catalog document. Products and retailers
// already present (by identity) are left untouched; mappings are upserted.
func (s *Store) ImportCatalog(ctx context.Context, data []byte) (*ImportResult, error) {
	var cat CatalogFile
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("store: parse catalog yaml: %w", err)
	}

	res := &ImportResult{}

	for _, cp := range cat.Products {
		if cp.Brand == "" || cp.Name == "" {
			return nil, fmt.Errorf("store: catalog product missing brand or name")
		}
		existing, err := s.productByIdentity(ctx, cp.Brand, cp.Name, cp.PackSize)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			continue
		}
		p := &Product{
			Brand:       cp.Brand,
			Name:        cp.Name,
			PackSize:    cp.PackSize,
			Formulation: cp.Formulation,
			Category:    cp.Category,
			Active:      true,
		}
		if err := s.InsertProduct(ctx, p); err != nil {
			return nil, err
		}
		res.Products++
	}

	for _, cr := range cat.Retailers {
		if cr.Name == "" {
			return nil, fmt.Errorf("store: catalog retailer missing name")
		}
		existing, err := s.retailerByName(ctx, cr.Name)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			continue
		}
		r := &Retailer{
			Name:    cr.Name,
			BaseURL: cr.BaseURL,
			Adapter: cr.Adapter,
			Active:  true,
		}
		if len(cr.Selectors) > 0 {
			b, err := json.Marshal(cr.Selectors)
			if err != nil {
				return nil, fmt.Errorf("store: marshal selectors: %w", err)
			}
			r.SelectorsJSON = string(b)
		}
		if len(cr.WaitSelectors) > 0 {
			b, err := json.Marshal(cr.WaitSelectors)
			if err != nil {
				return nil, fmt.Errorf("store: marshal wait selectors: %w", err)
			}
			r.WaitSelectorsJSON = string(b)
		}
		if err := s.InsertRetailer(ctx, r); err != nil {
			return nil, err
		}
		res.Retailers++
	}

	for _, cm := range cat.Mappings {
		p, err := s.productByIdentity(ctx, cm.Brand, cm.Product, cm.PackSize)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, fmt.Errorf("store: mapping references unknown product %s %s %s",
				cm.Brand, cm.Product, cm.PackSize)
		}
		r, err := s.retailerByName(ctx, cm.Retailer)
		if err != nil {
			return nil, err
		}
		if r == nil {
			return nil, fmt.Errorf("store: mapping references unknown retailer %s", cm.Retailer)
		}
		m := &Mapping{
			ProductID:  p.ID,
			RetailerID: r.ID,
			URL:        cm.URL,
			Active:     true,
		}
		if err := s.UpsertMapping(ctx, m); err != nil {
			return nil, err
		}
		res.Mappings++
	}

	return res, nil
}

func (s *Store) productByIdentity(ctx context.Context, brand, name, packSize string) (*Product, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, brand, name, pack_size, formulation, category, active,
		created_at, updated_at
		FROM products WHERE brand = ? AND name = ? AND pack_size = ?`,
		brand, name, packSize)
	p, err := scanProduct(row)
	if err == ErrNotFound {
		return nil, nil
	}
	return p, err
}

func (s *Store) retailerByName(ctx context.Context, name string) (*Retailer, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, name, base_url, adapter, selectors_json, wait_selectors_json,
		active, created_at, updated_at
		FROM retailers WHERE name = ?`, name)
	r, err := scanRetailer(row)
	if err == ErrNotFound {
		return nil, nil
	}
	return r, err
}
