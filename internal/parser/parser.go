// Package parser extracts usable values from the loosely-typed fields of
// raw scrape payloads. Parsing is defensive throughout: garbage in yields
// nil or empty out, never an error, because a bad field must not discard an
// otherwise usable product.
package parser

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Price converts a raw price-like value to a decimal, or nil when the value
// is missing or not numeric. Accepted shapes: Go numbers, json.Number, and
// strings in common retail formats ("3.50", "3,50", "3,50 €", "1.234,56").
func Price(v any) *decimal.Decimal {
	switch x := v.(type) {
	case nil:
		return nil
	case decimal.Decimal:
		return &x
	case *decimal.Decimal:
		return x
	case float64:
		d := decimal.NewFromFloat(x)
		return &d
	case float32:
		d := decimal.NewFromFloat32(x)
		return &d
	case int:
		d := decimal.NewFromInt(int64(x))
		return &d
	case int64:
		d := decimal.NewFromInt(x)
		return &d
	case json.Number:
		return priceFromString(x.String())
	case string:
		return priceFromString(x)
	}
	return nil
}

func priceFromString(s string) *decimal.Decimal {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "€$")
	s = strings.TrimSuffix(strings.TrimSuffix(s, "EUR"), "eur")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return nil
	}
	// European formats use the comma as decimal separator, optionally with
	// dots as thousands separators.
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}

// Clean trims whitespace; pure-whitespace values collapse to "".
func Clean(s string) string {
	return strings.TrimSpace(s)
}

// AbsoluteURL resolves a possibly relative URL against a source's base URL.
// Already-absolute URLs pass through; with no base, the raw value is kept.
func AbsoluteURL(raw, base string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	if base == "" {
		return raw
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(raw, "/")
}
