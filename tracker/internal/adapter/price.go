package adapter

import (
	"regexp"
	"strconv"
	"strings"
)

var numericToken = regexp.MustCompile(`\d+\.?\d*`)

// ParsePrice extracts the first decimal-or-integer numeric token from price
// text, after stripping currency symbols and thousands separators. NBSP
// normalizes to a plain space so it keeps separating tokens. Unparsable
// text yields nil, never an error.
func ParsePrice(text string) *float64 {
	cleaned := strings.NewReplacer(
		"£", "", "$", "", "€", "",
		",", "", "\u00a0", " ",
	).Replace(text)

	token := numericToken.FindString(cleaned)
	if token == "" {
		return nil
	}
	v, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return nil
	}
	return &v
}

var outOfStockKeywords = []string{
	"out of stock",
	"sold out",
	"unavailable",
	"not available",
	"no longer stocked",
}

var inStockKeywords = []string{
	"in stock",
	"available",
	"add to basket",
	"add to cart",
	"add to trolley",
}

// InferAvailability maps availability text to an in-stock flag.
// Out-of-stock keywords are checked first since "currently unavailable"
// must not match "available". Returns nil when the text carries no signal.
func InferAvailability(text string) *bool {
	lower := strings.ToLower(text)
	for _, kw := range outOfStockKeywords {
		if strings.Contains(lower, kw) {
			f := false
			return &f
		}
	}
	for _, kw := range inStockKeywords {
		if strings.Contains(lower, kw) {
			tr := true
			return &tr
		}
	}
	return nil
}
