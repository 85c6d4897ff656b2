package model

import "encoding/json"

// Person is a contact at exactly one company.
type Person struct {
	StoreID string `json:"store_id,omitempty"`

	ID          string `json:"id"`
	Name        string `json:"name"`
	Title       string `json:"title,omitempty"`
	LinkedInURL string `json:"linkedin_url,omitempty"`
	Email       string `json:"email,omitempty"`

	CompanyID     string `json:"company_id,omitempty"`
	CompanyName   string `json:"company_name,omitempty"`
	CompanyDomain string `json:"company_domain,omitempty"`

	// IsQualified is inherited from the owning company.
	IsQualified   bool `json:"is_qualified"`
	EmailEnriched bool `json:"email_enriched"`

	// QualificationResponse is the product-fit classifier response of the
	// owning company, kept with the person for audit.
	QualificationResponse string `json:"qualification_response,omitempty"`

	Origin Origin          `json:"origin"`
	Raw    json.RawMessage `json:"raw,omitempty"`
}

// CompanyKey returns the identity of the person's company.
func (p *Person) CompanyKey() CompanyKey {
	return CompanyKey{ID: p.CompanyID, Name: p.CompanyName, Domain: p.CompanyDomain}
}

// AttachCompany copies the company back-reference onto the person.
func (p *Person) AttachCompany(c *Company) {
	p.CompanyID = c.ID
	p.CompanyName = c.Name
	p.CompanyDomain = c.Domain
	p.IsQualified = c.IsQualified
	p.QualificationResponse = c.KeywordResponse
}

// PersonUpdate holds the fields changed on a person after enrichment.
type PersonUpdate struct {
	Email       string `json:"email"`
	IsQualified bool   `json:"is_qualified"`
}

// Lead is a qualified, enriched person together with its company.
type Lead struct {
	Person  Person  `json:"person"`
	Company Company `json:"company"`
}
