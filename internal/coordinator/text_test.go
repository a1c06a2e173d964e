package coordinator

import (
	"encoding/json"
	"testing"

	"github.com/szaher/airbnb-assistant/internal/mcp"
)

func TestParseFallbackQuery(t *testing.T) {
	tests := []struct {
		text         string
		wantLocation string
		wantLimit    int
	}{
		{"Find a place near Lake Tahoe, California", "lake tahoe", 2},
		{"three homes near Boston. Thanks", "boston", 3},
		{"4 rentals near Miami and Orlando", "miami", 4},
		{"somewhere nice please", "San Francisco", 2},
		{"two or three places", "San Francisco", 2},
		{"a cabin near Portland", "portland", 2},
		{"somewhere near Anderson and Greenville", "anderson", 2},
		{"anything nearby Austin", "San Francisco", 2},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			loc, limit := parseFallbackQuery(tt.text, "San Francisco")
			if loc != tt.wantLocation {
				t.Errorf("location = %q, want %q", loc, tt.wantLocation)
			}
			if limit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", limit, tt.wantLimit)
			}
		})
	}
}

func TestFormatBrief(t *testing.T) {
	listings := []mcp.Listing{
		{Name: "Loft", Price: "$100", Rating: "4.9"},
	}
	got := formatBrief(3, "Austin", listings)
	want := "Here are 3 Airbnb rentals in Austin:\n\n1. Loft\n   Price: $100\n   Rating: 4.9\n\n"
	if got != want {
		t.Errorf("formatBrief = %q, want %q", got, want)
	}
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		v    any
		want bool
	}{
		{nil, false},
		{"", false},
		{"x", true},
		{float64(0), false},
		{float64(2), true},
		{json.Number("0"), false},
		{json.Number("0.0"), false},
		{json.Number("1037416418838431230"), true},
		{false, false},
		{true, true},
		{[]any{}, false},
		{map[string]any{"a": 1}, true},
	}
	for _, tt := range tests {
		if got := truthy(tt.v); got != tt.want {
			t.Errorf("truthy(%#v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestSearchFilters(t *testing.T) {
	got := searchFilters(map[string]any{
		"location": "Austin",
		"adults":   nil,
		"children": float64(1),
		"infants":  float64(0),
		"unknown":  "x",
	})
	if len(got) != 1 || got["children"] != float64(1) {
		t.Errorf("searchFilters = %v, want only children", got)
	}

	got = searchFilters(map[string]any{"location": "Austin"})
	if got["adults"] != 2 {
		t.Errorf("adults = %v, want default 2", got["adults"])
	}
}

func TestIntParam(t *testing.T) {
	params := map[string]any{
		"a": float64(3), "b": float64(0), "c": "5",
		"d": json.Number("4"), "e": json.Number("3.0"), "f": json.Number("0"),
	}
	for key, want := range map[string]int{"a": 3, "d": 4, "e": 3} {
		if got := intParam(params, key, 2); got != want {
			t.Errorf("%s = %d, want %d", key, got, want)
		}
	}
	for _, key := range []string{"b", "c", "f", "missing"} {
		if got := intParam(params, key, 2); got != 2 {
			t.Errorf("%s = %d, want default", key, got)
		}
	}
}

func TestStringParam(t *testing.T) {
	params := map[string]any{
		"text":   "42",
		"number": json.Number("1037416418838431230"),
		"zero":   json.Number("0"),
		"empty":  "",
		"bool":   true,
	}
	tests := []struct {
		key    string
		want   string
		wantOK bool
	}{
		{"text", "42", true},
		{"number", "1037416418838431230", true},
		{"zero", "", false},
		{"empty", "", false},
		{"bool", "true", true},
		{"missing", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := stringParam(params, tt.key)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("stringParam(%q) = %q, %v, want %q, %v", tt.key, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
