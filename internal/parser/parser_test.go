package parser

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestPrice_Numbers(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{3.5, "3.5"},
		{float32(2), "2"},
		{7, "7"},
		{int64(12), "12"},
		{json.Number("3.50"), "3.5"},
		{decimal.RequireFromString("1.99"), "1.99"},
	}
	for _, c := range cases {
		got := Price(c.in)
		if got == nil {
			t.Errorf("Price(%v) = nil", c.in)
			continue
		}
		if !got.Equal(decimal.RequireFromString(c.want)) {
			t.Errorf("Price(%v) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestPrice_Strings(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"3.50", "3.5"},
		{"3,50", "3.5"},
		{"3,50 €", "3.5"},
		{"€3.50", "3.5"},
		{"3.50 EUR", "3.5"},
		{"1.234,56", "1234.56"},
		{" 0,99 ", "0.99"},
	}
	for _, c := range cases {
		got := Price(c.in)
		if got == nil {
			t.Errorf("Price(%q) = nil", c.in)
			continue
		}
		if !got.Equal(decimal.RequireFromString(c.want)) {
			t.Errorf("Price(%q) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestPrice_Garbage(t *testing.T) {
	for _, in := range []any{nil, "", "   ", "n/a", "precio", true, []int{1}} {
		if got := Price(in); got != nil {
			t.Errorf("Price(%v) = %s, want nil", in, got)
		}
	}
}

func TestClean(t *testing.T) {
	if got := Clean("  Aceite  "); got != "Aceite" {
		t.Errorf("Clean = %q", got)
	}
	if got := Clean("   "); got != "" {
		t.Errorf("Clean whitespace = %q, want empty", got)
	}
}

func TestAbsoluteURL(t *testing.T) {
	cases := []struct {
		raw, base, want string
	}{
		{"https://www.dia.es/p/112", "https://www.dia.es", "https://www.dia.es/p/112"},
		{"/p/112", "https://www.dia.es", "https://www.dia.es/p/112"},
		{"p/112", "https://www.dia.es/", "https://www.dia.es/p/112"},
		{"/p/112", "", "/p/112"},
		{"", "https://www.dia.es", ""},
	}
	for _, c := range cases {
		if got := AbsoluteURL(c.raw, c.base); got != c.want {
			t.Errorf("AbsoluteURL(%q, %q) = %q, want %q", c.raw, c.base, got, c.want)
		}
	}
}
