package validate

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/quellen/pricewatch/tracker/internal/adapter"
)

func boolPtr(b bool) *bool      { return &b }
func f64Ptr(f float64) *float64 { return &f }

// goodRaw returns a raw observation that passes every rule.
func goodRaw() *adapter.RawObservation {
	return &adapter.RawObservation{
		Title:            "Nurofen Ibuprofen 200mg 16 Tablets",
		PriceText:        "£4.99",
		Price:            f64Ptr(4.99),
		AvailabilityText: "In stock",
		InStock:          boolPtr(true),
		ResponseTime:     2.5,
	}
}

func TestValidObservation(t *testing.T) {
	// WHAT: A well-formed raw observation validates with a clean record.
	// WHY: The happy path must produce exactly the persisted fields.
	res := Observation(goodRaw(), Limits{})
	if !res.Valid {
		t.Fatalf("violations: %v", res.Violations)
	}
	if res.Record.Price != 4.99 {
		t.Errorf("price = %v", res.Record.Price)
	}
	if !res.Record.InStock {
		t.Error("in_stock = false")
	}
	if res.Record.Title != "Nurofen Ibuprofen 200mg 16 Tablets" {
		t.Errorf("title = %q", res.Record.Title)
	}
}

func TestPriceBounds(t *testing.T) {
	// WHAT: Prices inside (0.01, 1000.00) validate and round to 2 decimal
	// places; zero, negative, too-large and missing prices do not.
	// WHY: Out-of-range prices are scrape noise, not data.
	tests := []struct {
		price *float64
		valid bool
		want  float64
	}{
		{f64Ptr(0.02), true, 0.02},
		{f64Ptr(4.999), true, 5.00},
		{f64Ptr(999.99), true, 999.99},
		{f64Ptr(1000.00), false, 0},
		{f64Ptr(1200.00), false, 0},
		{f64Ptr(0), false, 0},
		{f64Ptr(-1.50), false, 0},
		{nil, false, 0},
	}
	for _, tt := range tests {
		raw := goodRaw()
		raw.Price = tt.price
		res := Observation(raw, Limits{})
		if res.Valid != tt.valid {
			t.Errorf("price %v: valid = %v, want %v (violations %v)",
				tt.price, res.Valid, tt.valid, res.Violations)
			continue
		}
		if tt.valid && res.Record.Price != tt.want {
			t.Errorf("price %v: rounded = %v, want %v", *tt.price, res.Record.Price, tt.want)
		}
	}
}

func TestAvailabilityCoercion(t *testing.T) {
	// WHAT: Explicit flags win; string forms and keywords coerce; anything
	// else invalidates.
	// WHY: Availability arrives as a bool, a literal, or free text.
	tests := []struct {
		name    string
		inStock *bool
		text    string
		valid   bool
		want    bool
	}{
		{"explicit true", boolPtr(true), "whatever", true, true},
		{"explicit false", boolPtr(false), "in stock", true, false},
		{"literal true", nil, "true", true, true},
		{"literal 1", nil, "1", true, true},
		{"literal yes", nil, "yes", true, true},
		{"literal in stock", nil, "In Stock", true, true},
		{"literal false", nil, "false", true, false},
		{"literal 0", nil, "0", true, false},
		{"literal out of stock", nil, "Out of stock", true, false},
		{"keyword inference", nil, "Sorry, this item is sold out", true, false},
		{"keyword add to basket", nil, "Add to basket now", true, true},
		{"unresolvable", nil, "lorem ipsum", false, false},
		{"empty", nil, "", false, false},
	}
	for _, tt := range tests {
		raw := goodRaw()
		raw.InStock = tt.inStock
		raw.AvailabilityText = tt.text
		res := Observation(raw, Limits{})
		if res.Valid != tt.valid {
			t.Errorf("%s: valid = %v, want %v (violations %v)",
				tt.name, res.Valid, tt.valid, res.Violations)
			continue
		}
		if tt.valid && res.Record.InStock != tt.want {
			t.Errorf("%s: in_stock = %v, want %v", tt.name, res.Record.InStock, tt.want)
		}
	}
}

func TestTitleRules(t *testing.T) {
	// WHAT: Short titles invalidate; long titles clip at 500 without a
	// violation; surrounding whitespace is trimmed first.
	// WHY: Clipping is cleanup, not rejection.
	raw := goodRaw()
	raw.Title = "  ab  "
	res := Observation(raw, Limits{})
	if res.Valid {
		t.Error("two-character title should invalidate")
	}

	raw = goodRaw()
	raw.Title = strings.Repeat("x", 600)
	res = Observation(raw, Limits{})
	if !res.Valid {
		t.Fatalf("long title should clip, not invalidate: %v", res.Violations)
	}
	if len(res.Record.Title) != 500 {
		t.Errorf("title length = %d, want 500", len(res.Record.Title))
	}
}

func TestTitleBoundsCountRunes(t *testing.T) {
	// WHAT: The minimum counts characters, so a two-rune multi-byte
	// title invalidates even at four bytes; the clip lands on a rune
	// boundary and never persists broken UTF-8.
	// WHY: Retailer titles carry accents and currency signs; byte
	// arithmetic would let short titles through and split runes.
	raw := goodRaw()
	raw.Title = "éé"
	if res := Observation(raw, Limits{}); res.Valid {
		t.Error("two-rune title should invalidate")
	}

	raw = goodRaw()
	raw.Title = strings.Repeat("x", 499) + strings.Repeat("£", 10)
	res := Observation(raw, Limits{})
	if !res.Valid {
		t.Fatalf("long title should clip, not invalidate: %v", res.Violations)
	}
	if got := utf8.RuneCountInString(res.Record.Title); got != 500 {
		t.Errorf("clipped rune count = %d, want 500", got)
	}
	if !utf8.ValidString(res.Record.Title) {
		t.Errorf("clipped title is invalid UTF-8: % x", res.Record.Title[490:])
	}
	if !strings.HasSuffix(res.Record.Title, "£") {
		t.Errorf("clip should end on a whole rune, got tail % x", res.Record.Title[495:])
	}
}

func TestResponseTimeBounds(t *testing.T) {
	// WHAT: Response times outside [0.1, 300] seconds invalidate.
	// WHY: Guards against clock errors and hung fetches passing as valid.
	for _, rt := range []float64{0.1, 1.0, 300.0} {
		raw := goodRaw()
		raw.ResponseTime = rt
		if res := Observation(raw, Limits{}); !res.Valid {
			t.Errorf("response time %v should be valid: %v", rt, res.Violations)
		}
	}
	for _, rt := range []float64{0, 0.05, 300.1, -1} {
		raw := goodRaw()
		raw.ResponseTime = rt
		if res := Observation(raw, Limits{}); res.Valid {
			t.Errorf("response time %v should invalidate", rt)
		}
	}
}

func TestAllViolationsReported(t *testing.T) {
	// WHAT: A record failing several rules reports every violation.
	// WHY: Rules are evaluated independently for diagnostics.
	raw := &adapter.RawObservation{
		Title:            "ab",
		Price:            nil,
		AvailabilityText: "meaningless",
		ResponseTime:     0,
	}
	res := Observation(raw, Limits{})
	if res.Valid {
		t.Fatal("expected invalid")
	}
	if len(res.Violations) != 4 {
		t.Fatalf("violations = %v, want 4 entries", res.Violations)
	}
}

func TestCustomLimits(t *testing.T) {
	// WHAT: Configured bounds override the defaults.
	// WHY: Price bounds are a stated configuration surface.
	raw := goodRaw()
	raw.Price = f64Ptr(40.00)
	res := Observation(raw, Limits{PriceMax: 20.00})
	if res.Valid {
		t.Error("price above configured max should invalidate")
	}
}
