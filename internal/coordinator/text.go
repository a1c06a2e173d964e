package coordinator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/samber/lo"

	"github.com/szaher/airbnb-assistant/internal/mcp"
)

const promptTemplate = `Extract the Airbnb request information from this message:

"%s"

The user wants to get Airbnb information. Extract:
1. The request_type: One of "search" or "details"
2. The parameters required for that request type:

   For search requests:
   - location: The location to search for listings
   - checkin: Check-in date (YYYY-MM-DD) if specified
   - checkout: Check-out date (YYYY-MM-DD) if specified
   - adults: Number of adults if specified (default: 2)
   - children: Number of children if specified
   - infants: Number of infants if specified
   - pets: Number of pets if specified
   - minPrice: Minimum price if specified
   - maxPrice: Maximum price if specified

   For details requests:
   - id: The ID of the Airbnb listing
   - checkin: Check-in date (YYYY-MM-DD) if specified
   - checkout: Check-out date (YYYY-MM-DD) if specified

Only include parameters that are mentioned or can be reasonably inferred.

If the user asks for details about a specific listing, classify as "details".
If the user is looking for listings in a location, classify as "search".
`

const (
	defaultAdults      = 2
	defaultDirectLimit = 2
)

var (
	nearWord    = regexp.MustCompile(`\bnear\b`)
	locationEnd = regexp.MustCompile(`[,.]|\band\b`)

	searchFilterKeys  = []string{"checkin", "checkout", "adults", "children", "infants", "pets", "minPrice", "maxPrice"}
	detailsFilterKeys = []string{"checkin", "checkout"}
)

func buildPrompt(text string) string {
	return fmt.Sprintf(promptTemplate, text)
}

// formatBrief renders the short listing summary used by fallbacks and the
// direct API.
func formatBrief(limit int, location string, listings []mcp.Listing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Here are %d Airbnb rentals in %s:\n\n", limit, location)
	for i, l := range lo.Slice(listings, 0, limit) {
		fmt.Fprintf(&b, "%d. %s\n", i+1, l.Name)
		fmt.Fprintf(&b, "   Price: %s\n", l.Price)
		fmt.Fprintf(&b, "   Rating: %s\n\n", l.Rating)
	}
	return b.String()
}

// parseFallbackQuery pulls a location and a result count out of raw user
// text. The location is whatever follows the word "near", up to the first
// comma, period or the word "and". Without "near" it is defaultLocation.
func parseFallbackQuery(text, defaultLocation string) (string, int) {
	lower := strings.ToLower(text)

	location := defaultLocation
	if m := nearWord.FindStringIndex(lower); m != nil {
		part := lower[m[1]:]
		if end := locationEnd.FindStringIndex(part); end != nil {
			part = part[:end[0]]
		}
		location = strings.TrimSpace(part)
	}

	limit := 2
	switch {
	case strings.Contains(text, "2") || strings.Contains(lower, "two"):
		limit = 2
	case strings.Contains(text, "3") || strings.Contains(lower, "three"):
		limit = 3
	case strings.Contains(text, "4") || strings.Contains(lower, "four"):
		limit = 4
	}
	return location, limit
}

// truthy mirrors the loose presence check applied to extracted parameters:
// nil, false, zero and empty values count as absent.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case json.Number:
		f, err := x.Float64()
		return err == nil && f != 0
	case float64:
		return x != 0
	case int:
		return x != 0
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	default:
		return true
	}
}

// stringParam returns params[key] as a string when it is present and truthy.
func stringParam(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok || !truthy(v) {
		return "", false
	}
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	}
	return fmt.Sprint(v), true
}

// pickFilters keeps the truthy values of keys.
func pickFilters(params map[string]any, keys []string) map[string]any {
	return lo.PickBy(lo.PickByKeys(params, keys), func(_ string, v any) bool {
		return truthy(v)
	})
}

// searchFilters builds tool filters for an extracted search. Adults
// defaults to two when the extractor left it out.
func searchFilters(params map[string]any) map[string]any {
	withDefaults := lo.Assign(map[string]any{}, params)
	if _, ok := withDefaults["adults"]; !ok {
		withDefaults["adults"] = defaultAdults
	}
	return pickFilters(withDefaults, searchFilterKeys)
}

// intParam reads a positive integer parameter, falling back to def.
func intParam(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil && n >= 1 {
			return int(n)
		}
		if f, err := v.Float64(); err == nil && f >= 1 {
			return int(f)
		}
	case float64:
		if v >= 1 {
			return int(v)
		}
	case int:
		if v >= 1 {
			return v
		}
	}
	return def
}
