package adapter

import (
	"context"
	"fmt"

	"github.com/quellen/pricewatch/tracker/internal/extract"
)

var tescoDefaults = Selectors{
	Price: []string{
		"[data-testid=price-details] .value",
		".price-per-sellable-unit .value",
		".price-current .value",
		".beans-price__text",
		".price-per-quantity-weight .value",
	},
	Title: []string{
		"[data-testid=product-title]",
		".product-title h1",
		".product-details-tile h1",
	},
	Availability: []string{
		"[data-testid=product-availability]",
		".product-availability",
		".availability-message",
		".stock-status",
	},
	Consent: []string{
		"[data-testid=cookie-consent-accept]",
		"#accept-cookies",
		".cookie-consent-accept",
	},
}

// Tesco extracts from Tesco product pages: it dismisses the cookie consent
// dialog before reading, uses Tesco's selector lists, and collects extra
// page metadata (brand, pack size, promotions).
type Tesco struct{}

func (t *Tesco) Name() string { return "tesco" }

func (t *Tesco) Extract(ctx context.Context, page Page, sel Selectors) (*RawObservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sel = sel.withDefaults(tescoDefaults)

	// Consent dismissal is best effort: the dialog is not always shown.
	for _, consentSel := range sel.Consent {
		if err := page.Click(consentSel); err == nil {
			break
		}
	}

	body, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("adapter: read page: %w", err)
	}
	doc, err := extract.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("adapter: parse page: %w", err)
	}

	raw := &RawObservation{Extra: map[string]string{}}

	if title, ok := extract.FirstText(doc, sel.Title); ok {
		raw.Title = title
	}
	if priceText, ok := extract.FirstText(doc, sel.Price); ok {
		raw.PriceText = priceText
		raw.Price = ParsePrice(priceText)
	} else if priceText, ok := extract.FirstText(doc, []string{"[data-testid=price-details]"}); ok {
		// Fall back to the whole price block when the value node moved.
		raw.PriceText = priceText
		raw.Price = ParsePrice(priceText)
	}

	if avail, ok := extract.FirstText(doc, sel.Availability); ok {
		raw.AvailabilityText = avail
		raw.InStock = InferAvailability(avail)
	} else if extract.Exists(doc, []string{"[data-testid=add-to-trolley]"}) {
		raw.AvailabilityText = "Available"
		inStock := true
		raw.InStock = &inStock
	} else {
		raw.AvailabilityText = "Unknown"
		inStock := true
		raw.InStock = &inStock
	}

	for key, metaSel := range map[string]string{
		"brand":     ".product-brand",
		"pack_size": ".product-pack-size",
		"promotion": ".promotion-message",
	} {
		if v, ok := extract.FirstText(doc, []string{metaSel}); ok {
			raw.Extra[key] = v
		}
	}

	if raw.Title == "" && raw.PriceText == "" {
		return nil, ErrNoContent
	}
	return raw, nil
}
