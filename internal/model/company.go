package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Origin identifies the run and trigger that produced a record.
type Origin struct {
	RunID          string `json:"run_id"`
	SlackUserID    string `json:"slack_user_id,omitempty"`
	SlackChannelID string `json:"slack_channel_id,omitempty"`
	TriggerID      string `json:"trigger_id,omitempty"`
	// ResponseURL is where the run summary is posted. Never persisted.
	ResponseURL string `json:"-"`
}

// CompanyKey identifies a company by provider id, falling back to domain
// and then name when the provider omits an id.
type CompanyKey struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
	Domain string `json:"domain,omitempty"`
}

// String returns the most specific identity string of the key.
func (k CompanyKey) String() string {
	if a := k.Aliases(); len(a) > 0 {
		return a[0]
	}
	return ""
}

// Aliases returns every identity string of the key, most specific first.
func (k CompanyKey) Aliases() []string {
	var out []string
	if k.ID != "" {
		out = append(out, "id:"+k.ID)
	}
	if d := k.DomainKey(); d != "" {
		out = append(out, "domain:"+d)
	}
	if n := k.NameKey(); n != "" {
		out = append(out, "name:"+n)
	}
	return out
}

// DomainKey returns the normalized domain, or "" when the key has none.
func (k CompanyKey) DomainKey() string {
	return NormalizeDomain(k.Domain)
}

// NameKey returns the case-folded name, or "" when the key has none.
func (k CompanyKey) NameKey() string {
	return strings.ToLower(strings.TrimSpace(k.Name))
}

// Same reports whether two keys identify the same company. Ids decide when
// both keys carry one, then domains, then names.
func (k CompanyKey) Same(o CompanyKey) bool {
	if k.ID != "" && o.ID != "" {
		return k.ID == o.ID
	}
	if d1, d2 := k.DomainKey(), o.DomainKey(); d1 != "" && d2 != "" {
		return d1 == d2
	}
	n1, n2 := k.NameKey(), o.NameKey()
	return n1 != "" && n1 == n2
}

// IsZero reports whether the key carries no identifying value.
func (k CompanyKey) IsZero() bool {
	return k.ID == "" && k.Name == "" && k.Domain == ""
}

// NormalizeDomain strips scheme, www prefix, path and case from a domain or URL.
func NormalizeDomain(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimPrefix(s, "www.")
}

// Company represents one business entity returned by company discovery.
type Company struct {
	// StoreID is the row id assigned by the lead store.
	StoreID string `json:"store_id,omitempty"`

	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Domain      string `json:"domain,omitempty"`
	Website     string `json:"website,omitempty"`
	Industry    string `json:"industry,omitempty"`
	Size        string `json:"size,omitempty"`
	Location    string `json:"location,omitempty"`
	LinkedInURL string `json:"linkedin_url,omitempty"`

	ScrapedContent string     `json:"scraped_content,omitempty"`
	ScrapedAt      *time.Time `json:"scraped_at,omitempty"`

	WholesaleCheck    *bool      `json:"wholesale_check,omitempty"`
	WholesaleResponse string     `json:"wholesale_response,omitempty"`
	KeywordCheck      *bool      `json:"keyword_check,omitempty"`
	KeywordResponse   string     `json:"keyword_response,omitempty"`
	ProductCategories []string   `json:"product_categories,omitempty"`
	MarketSegments    []string   `json:"market_segments,omitempty"`
	IsQualified       bool       `json:"is_qualified"`
	QualifiedAt       *time.Time `json:"qualified_at,omitempty"`

	Origin         Origin          `json:"origin"`
	SearchCriteria string          `json:"search_criteria,omitempty"`
	Raw            json.RawMessage `json:"raw,omitempty"`
}

// Key returns the identity key of the company.
func (c *Company) Key() CompanyKey {
	return CompanyKey{ID: c.ID, Name: c.Name, Domain: c.Domain}
}

// URL returns the best address for scraping the company website.
func (c *Company) URL() string {
	if c.Website != "" {
		return c.Website
	}
	return c.Domain
}

// ApplyVerdict copies classification results onto the company and derives
// IsQualified and QualifiedAt from them.
func (c *Company) ApplyVerdict(v CompanyVerdict, now time.Time) {
	v = v.Normalize()
	c.WholesaleCheck = v.WholesaleCheck
	c.WholesaleResponse = v.WholesaleResponse
	c.KeywordCheck = v.KeywordCheck
	c.KeywordResponse = v.KeywordResponse
	c.ProductCategories = v.ProductCategories
	c.MarketSegments = v.MarketSegments
	c.ScrapedContent = v.ScrapedContent
	c.ScrapedAt = v.ScrapedAt
	c.IsQualified = v.IsQualified()
	if c.IsQualified {
		t := now.UTC()
		c.QualifiedAt = &t
	} else {
		c.QualifiedAt = nil
	}
}

// CompanyVerdict is the set of qualification fields written back to the
// store once classification of a company completes.
type CompanyVerdict struct {
	WholesaleCheck    *bool      `json:"wholesale_check"`
	WholesaleResponse string     `json:"wholesale_response"`
	KeywordCheck      *bool      `json:"keyword_check"`
	KeywordResponse   string     `json:"keyword_response"`
	ProductCategories []string   `json:"product_categories"`
	MarketSegments    []string   `json:"market_segments"`
	ScrapedContent    string     `json:"scraped_content"`
	ScrapedAt         *time.Time `json:"scraped_at"`
}

// Normalize enforces that the keyword check can only pass when the
// wholesale check passed.
func (v CompanyVerdict) Normalize() CompanyVerdict {
	if !IsTrue(v.WholesaleCheck) && IsTrue(v.KeywordCheck) {
		v.KeywordCheck = Bool(false)
	}
	return v
}

// IsQualified reports whether both checks passed.
func (v CompanyVerdict) IsQualified() bool {
	return IsTrue(v.WholesaleCheck) && IsTrue(v.KeywordCheck)
}

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// IsTrue reports whether b is set and true.
func IsTrue(b *bool) bool { return b != nil && *b }

// IsFalse reports whether b is set and false.
func IsFalse(b *bool) bool { return b != nil && !*b }
