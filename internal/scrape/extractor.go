// Package scrape turns a company website into bounded text for the
// qualification classifier.
package scrape

import (
	"context"
	"fmt"
	"strings"
)

// Limits applied to extracted content.
const (
	MaxNavItems      = 20
	MaxFooterChars   = 1000
	MaxMainChars     = 50000
	MainExcerptChars = 2000
	MaxProducts      = 20
	MaxBrandSignals  = 10
)

// Page is the structured content extracted from a website's landing page.
type Page struct {
	URL             string
	Title           string
	Navigation      string
	Footer          string
	MainContent     string
	ProductListings string
	// BrandPositive holds multi-brand retailer signals, BrandNegative holds
	// manufacturer signals.
	BrandPositive   string
	BrandNegative   string
	MetaDescription string
	Source          string
}

// Extractor fetches one URL and extracts its content.
type Extractor interface {
	Extract(ctx context.Context, url string) (*Page, error)
	Name() string
	Supports(url string) bool
}

// NormalizeURL trims the URL and adds an https scheme when none is given.
// Returns "" for empty or placeholder values.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "n/a") {
		return ""
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	return raw
}

// Format renders a Page as the text block sent to the classifier.
func Format(p *Page) string {
	if p == nil {
		return ""
	}
	or := func(v, fallback string) string {
		if strings.TrimSpace(v) == "" {
			return fallback
		}
		return v
	}

	var b strings.Builder
	b.WriteString("WEBSITE CONTENT ANALYSIS:\n\n")
	fmt.Fprintf(&b, "URL: %s\n", or(p.URL, "N/A"))
	fmt.Fprintf(&b, "Page Title: %s\n\n", or(p.Title, "N/A"))
	fmt.Fprintf(&b, "NAVIGATION MENU ITEMS:\n%s\n\n", or(p.Navigation, "Not found"))
	fmt.Fprintf(&b, "FOOTER CONTENT:\n%s\n\n", or(p.Footer, "Not found"))
	b.WriteString("BRAND INDICATORS:\n")
	fmt.Fprintf(&b, "Positive (Multi-brand retailer signs): %s\n", or(p.BrandPositive, "None found"))
	fmt.Fprintf(&b, "Negative (Manufacturer signs): %s\n\n", or(p.BrandNegative, "None found"))
	fmt.Fprintf(&b, "PRODUCT LISTINGS:\n%s\n\n", or(p.ProductListings, "Not found"))
	fmt.Fprintf(&b, "MAIN CONTENT (excerpt):\n%s\n\n", or(truncate(p.MainContent, MainExcerptChars, ""), "Not found"))
	fmt.Fprintf(&b, "META DESCRIPTION:\n%s\n", or(p.MetaDescription, "Not found"))
	return b.String()
}

// truncate cuts s to at most n runes, appending suffix when cut.
func truncate(s string, n int, suffix string) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + suffix
}
