package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/quellen/pricewatch/tracker/internal/extract"
)

// ErrNoContent indicates the page yielded neither a price nor a title.
var ErrNoContent = errors.New("adapter: no content extracted")

var genericDefaults = Selectors{
	Price:        []string{".price", "[itemprop=price]", ".product-price", "span.value"},
	Title:        []string{"h1", "[itemprop=name]", ".product-title"},
	Availability: []string{".availability", ".stock-status", "[itemprop=availability]"},
}

// Generic reads price/availability/title by configured selectors with a
// first-match-wins fallback list. It works for any retailer whose pages
// need no interaction beyond navigation.
type Generic struct{}

func (g *Generic) Name() string { return "generic" }

func (g *Generic) Extract(ctx context.Context, page Page, sel Selectors) (*RawObservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("adapter: read page: %w", err)
	}
	doc, err := extract.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("adapter: parse page: %w", err)
	}

	sel = sel.withDefaults(genericDefaults)
	raw := &RawObservation{}

	if title, ok := extract.FirstText(doc, sel.Title); ok {
		raw.Title = title
	}
	if priceText, ok := extract.FirstText(doc, sel.Price); ok {
		raw.PriceText = priceText
		raw.Price = ParsePrice(priceText)
	}

	if avail, ok := extract.FirstText(doc, sel.Availability); ok {
		raw.AvailabilityText = avail
		raw.InStock = InferAvailability(avail)
	} else {
		// Absence of evidence is not evidence of absence: default to in
		// stock and record the gap.
		raw.AvailabilityText = "Unknown"
		inStock := true
		raw.InStock = &inStock
	}

	if raw.Title == "" && raw.PriceText == "" {
		return nil, ErrNoContent
	}
	return raw, nil
}
