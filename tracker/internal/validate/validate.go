// Package validate normalizes and bounds-checks raw observations.
//
// Validation is a pure function with no I/O. Every rule is evaluated
// independently so a bad record reports all of its violations, not just
// the first.
package validate

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/quellen/pricewatch/tracker/internal/adapter"
)

// Limits are the validation bounds. Zero values are replaced by defaults.
type Limits struct {
	PriceMin float64 // inclusive, default 0.01
	PriceMax float64 // exclusive, default 1000.00

	TitleMinLen int // default 3
	TitleMaxLen int // clip length, default 500

	ResponseTimeMin float64 // seconds, default 0.1
	ResponseTimeMax float64 // seconds, default 300
}

// DefaultLimits returns the standard validation bounds.
func DefaultLimits() Limits {
	return Limits{
		PriceMin:        0.01,
		PriceMax:        1000.00,
		TitleMinLen:     3,
		TitleMaxLen:     500,
		ResponseTimeMin: 0.1,
		ResponseTimeMax: 300.0,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.PriceMin == 0 {
		l.PriceMin = d.PriceMin
	}
	if l.PriceMax == 0 {
		l.PriceMax = d.PriceMax
	}
	if l.TitleMinLen == 0 {
		l.TitleMinLen = d.TitleMinLen
	}
	if l.TitleMaxLen == 0 {
		l.TitleMaxLen = d.TitleMaxLen
	}
	if l.ResponseTimeMin == 0 {
		l.ResponseTimeMin = d.ResponseTimeMin
	}
	if l.ResponseTimeMax == 0 {
		l.ResponseTimeMax = d.ResponseTimeMax
	}
	return l
}

// Record is a cleaned, typed observation ready to persist.
type Record struct {
	Price            float64
	InStock          bool
	AvailabilityText string
	Title            string
}

// Result carries the validation outcome. Violations lists every rule that
// failed; Record is fully populated only when Valid.
type Result struct {
	Valid      bool
	Violations []string
	Record     Record
}

// Observation validates a raw observation against the limits.
func Observation(raw *adapter.RawObservation, limits Limits) Result {
	limits = limits.withDefaults()
	var res Result

	price, priceOK := validPrice(raw, limits)
	if priceOK {
		res.Record.Price = price
	} else {
		res.Violations = append(res.Violations, priceViolation(raw, limits))
	}

	inStock, availOK := validAvailability(raw)
	if availOK {
		res.Record.InStock = inStock
		res.Record.AvailabilityText = strings.TrimSpace(raw.AvailabilityText)
	} else {
		res.Violations = append(res.Violations, "availability: unresolvable signal")
	}

	// Title bounds count characters, not bytes, so multi-byte runes
	// neither shrink the minimum nor get split by the clip.
	title := strings.TrimSpace(raw.Title)
	if utf8.RuneCountInString(title) < limits.TitleMinLen {
		res.Violations = append(res.Violations,
			fmt.Sprintf("title: shorter than %d characters", limits.TitleMinLen))
	} else {
		// Clipping is not a violation.
		res.Record.Title = clipRunes(title, limits.TitleMaxLen)
	}

	if raw.ResponseTime < limits.ResponseTimeMin || raw.ResponseTime > limits.ResponseTimeMax {
		res.Violations = append(res.Violations,
			fmt.Sprintf("response_time: %.3fs outside [%.1f, %.1f]",
				raw.ResponseTime, limits.ResponseTimeMin, limits.ResponseTimeMax))
	}

	res.Valid = len(res.Violations) == 0
	return res
}

// clipRunes truncates s to at most n characters on a rune boundary.
func clipRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func validPrice(raw *adapter.RawObservation, limits Limits) (float64, bool) {
	if raw.Price == nil {
		return 0, false
	}
	rounded := math.Round(*raw.Price*100) / 100
	if rounded < limits.PriceMin || rounded >= limits.PriceMax {
		return 0, false
	}
	return rounded, true
}

func priceViolation(raw *adapter.RawObservation, limits Limits) string {
	if raw.Price == nil {
		return "price: no price extracted"
	}
	return fmt.Sprintf("price: %.2f outside [%.2f, %.2f)", *raw.Price, limits.PriceMin, limits.PriceMax)
}

// String boolean forms accepted for availability coercion.
var availTrue = map[string]bool{
	"true": true, "1": true, "yes": true, "available": true, "in stock": true,
}
var availFalse = map[string]bool{
	"false": true, "0": true, "no": true, "unavailable": true, "out of stock": true,
}

func validAvailability(raw *adapter.RawObservation) (bool, bool) {
	if raw.InStock != nil {
		return *raw.InStock, true
	}
	lower := strings.ToLower(strings.TrimSpace(raw.AvailabilityText))
	if availTrue[lower] {
		return true, true
	}
	if availFalse[lower] {
		return false, true
	}
	if inferred := adapter.InferAvailability(raw.AvailabilityText); inferred != nil {
		return *inferred, true
	}
	return false, false
}
