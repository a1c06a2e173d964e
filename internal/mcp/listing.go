package mcp

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"
)

var (
	errParseJSON      = errors.New("Error parsing JSON response")
	errNoContent      = errors.New("No valid content found in response")
	errMissingResults = errors.New("Unexpected response format: missing searchResults")
	errNotObject      = errors.New("Unexpected response format: expected a listing object")
)

const (
	maxAmenities       = 5
	maxDescriptionRune = 200
)

// Placeholders for fields missing from the tool payload.
const (
	UnnamedListing = "Unnamed Listing"
	NoPrice        = "Price not available"
	NotRated       = "Not rated"
	NotAvailable   = "N/A"
	NoDescription  = "No description available"
	UnknownAmenity = "Unknown Amenity"
)

// Listing is the projection of one search result.
type Listing struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Price  string `json:"price"`
	Rating string `json:"rating"`
	URL    string `json:"url"`
}

// ListingDetail is the projection of a listing details payload.
type ListingDetail struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Bedrooms    string   `json:"bedrooms"`
	Bathrooms   string   `json:"bathrooms"`
	Guests      string   `json:"guests"`
	Price       string   `json:"price"`
	Amenities   []string `json:"amenities"`
}

func field(r gjson.Result, path, fallback string) string {
	v := r.Get(path)
	if !v.Exists() || v.Type == gjson.Null {
		return fallback
	}
	return v.String()
}

func parseSearch(text, location string, limit int, logger *slog.Logger) (SearchOutcome, error) {
	if !gjson.Valid(text) {
		return SearchOutcome{}, errParseJSON
	}
	results := gjson.Get(text, "searchResults")
	if !results.IsArray() {
		return SearchOutcome{}, errMissingResults
	}

	entries := results.Array()
	shown := entries[:min(limit, len(entries))]

	listings := make([]Listing, 0, len(shown))
	for i, entry := range shown {
		if !entry.IsObject() {
			logger.Warn("skipping malformed listing", "index", i, "type", entry.Type.String())
			continue
		}
		listings = append(listings, Listing{
			ID:     field(entry, "id", NotAvailable),
			Name:   field(entry, "demandStayListing.description.name.localizedStringWithTranslationPreference", UnnamedListing),
			Price:  field(entry, "structuredDisplayPrice.primaryLine.accessibilityLabel", NoPrice),
			Rating: field(entry, "avgRatingA11yLabel", NotRated),
			URL:    field(entry, "url", NotAvailable),
		})
	}

	return SearchOutcome{
		Success:         true,
		Message:         "Successfully retrieved listings",
		FormattedOutput: formatSearch(location, len(entries), listings),
		Listings:        listings,
		TotalListings:   len(entries),
	}, nil
}

func formatSearch(location string, total int, listings []Listing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "AIRBNB LISTINGS IN %s\n\n", strings.ToUpper(location))
	fmt.Fprintf(&b, "Found %d listings. Showing top %d:\n\n", total, len(listings))
	for i, l := range listings {
		fmt.Fprintf(&b, "%d. %s\n", i+1, l.Name)
		fmt.Fprintf(&b, "   Price: %s\n", l.Price)
		fmt.Fprintf(&b, "   Rating: %s\n", l.Rating)
		fmt.Fprintf(&b, "   ID: %s\n", l.ID)
		fmt.Fprintf(&b, "   URL: %s\n\n", l.URL)
	}
	return b.String()
}

func parseDetails(text string) (DetailsOutcome, error) {
	if !gjson.Valid(text) {
		return DetailsOutcome{}, errParseJSON
	}
	doc := gjson.Parse(text)
	if !doc.IsObject() {
		return DetailsOutcome{}, errNotObject
	}

	amenities := doc.Get("amenities").Array()
	names := lo.Map(amenities[:min(maxAmenities, len(amenities))], func(a gjson.Result, _ int) string {
		return field(a, "name", UnknownAmenity)
	})

	d := &ListingDetail{
		Name:        field(doc, "name", NotAvailable),
		Description: field(doc, "description", NoDescription),
		Bedrooms:    field(doc, "bedrooms", NotAvailable),
		Bathrooms:   field(doc, "bathrooms", NotAvailable),
		Guests:      field(doc, "maxGuests", NotAvailable),
		Price:       field(doc, "price.rate", NotAvailable),
		Amenities:   names,
	}

	return DetailsOutcome{
		Success:         true,
		Message:         "Successfully retrieved listing details",
		FormattedOutput: formatDetails(d),
		Details:         d,
	}, nil
}

func formatDetails(d *ListingDetail) string {
	var b strings.Builder
	fmt.Fprintf(&b, "DETAILS FOR LISTING: %s\n\n", d.Name)
	fmt.Fprintf(&b, "Bedrooms: %s\n", d.Bedrooms)
	fmt.Fprintf(&b, "Bathrooms: %s\n", d.Bathrooms)
	fmt.Fprintf(&b, "Max Guests: %s\n", d.Guests)
	fmt.Fprintf(&b, "Price: %s\n\n", d.Price)

	if len(d.Amenities) > 0 {
		b.WriteString("Top Amenities:\n")
		for _, a := range d.Amenities {
			fmt.Fprintf(&b, "- %s\n", a)
		}
	}

	fmt.Fprintf(&b, "\nDescription: %s\n", truncate(d.Description, maxDescriptionRune))
	return b.String()
}
