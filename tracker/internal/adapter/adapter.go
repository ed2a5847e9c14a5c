// Package adapter turns a fetched product page into a raw observation.
//
// Adapters are polymorphic over retailer quirks: a generic adapter reads
// price/availability/title by configured selector lists, retailer-specific
// adapters add extra steps (consent dismissal, house selector lists) behind
// the same contract. Adapter selection is a pure registry lookup that falls
// back to the generic adapter on unknown keys.
package adapter

import "context"

// Page is the minimal surface an adapter needs from a live page. The
// session provides a rod-backed implementation; tests provide fakes.
type Page interface {
	// HTML returns the serialized DOM (document.documentElement.outerHTML).
	HTML() (string, error)
	// Click clicks the first element matching selector. Returns an error
	// when no such element exists.
	Click(selector string) error
}

// RawObservation is what an adapter extracts from one product page.
// Fields are raw page values; validation and cleaning happen downstream.
type RawObservation struct {
	Title            string            `json:"title"`
	PriceText        string            `json:"price_text"`
	Price            *float64          `json:"price,omitempty"`
	AvailabilityText string            `json:"availability_text"`
	InStock          *bool             `json:"in_stock,omitempty"`
	Extra            map[string]string `json:"extra,omitempty"`

	URL          string  `json:"url"`
	UserAgent    string  `json:"user_agent"`
	ResponseTime float64 `json:"response_time_s"`
	ObservedAt   int64   `json:"observed_at"`
}

// Adapter extracts a raw observation from a page using a selector config.
type Adapter interface {
	Name() string
	Extract(ctx context.Context, page Page, sel Selectors) (*RawObservation, error)
}

// Registry maps adapter keys to implementations.
type Registry struct {
	adapters map[string]Adapter
	fallback Adapter
}

// NewRegistry builds a registry with all built-in adapters registered and
// the generic adapter as fallback.
func NewRegistry() *Registry {
	generic := &Generic{}
	r := &Registry{
		adapters: make(map[string]Adapter),
		fallback: generic,
	}
	r.Register(generic)
	r.Register(&Tesco{})
	return r
}

// Register adds an adapter under its own name.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Name()] = a
}

// Lookup returns the adapter for key, or the generic fallback for unknown
// or empty keys. Lookup never fails.
func (r *Registry) Lookup(key string) Adapter {
	if a, ok := r.adapters[key]; ok {
		return a
	}
	return r.fallback
}
