package adapter

import (
	"encoding/json"
	"fmt"
)

// Selectors holds per-field CSS selector fallback lists. Lists are
// first-match-wins in order.
type Selectors struct {
	Price        []string `json:"price"`
	Title        []string `json:"title"`
	Availability []string `json:"availability"`
	Consent      []string `json:"consent"`
}

// ParseSelectors decodes a selectors JSON object. An empty string yields
// empty selectors.
func ParseSelectors(raw string) (Selectors, error) {
	var s Selectors
	if raw == "" || raw == "{}" {
		return s, nil
	}
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Selectors{}, fmt.Errorf("adapter: parse selectors: %w", err)
	}
	return s, nil
}

// Merge overlays non-empty fields of over onto s. Per-mapping overrides
// replace the retailer list wholesale for that field.
func (s Selectors) Merge(over Selectors) Selectors {
	out := s
	if len(over.Price) > 0 {
		out.Price = over.Price
	}
	if len(over.Title) > 0 {
		out.Title = over.Title
	}
	if len(over.Availability) > 0 {
		out.Availability = over.Availability
	}
	if len(over.Consent) > 0 {
		out.Consent = over.Consent
	}
	return out
}

// withDefaults fills empty fields from d.
func (s Selectors) withDefaults(d Selectors) Selectors {
	return d.Merge(s)
}
