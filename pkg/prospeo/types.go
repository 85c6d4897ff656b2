package prospeo

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// Company is a company record returned by /search-company.
type Company struct {
	ID          string
	Name        string
	Domain      string
	Website     string
	Description string
	Industry    string
	Size        string
	Location    string
	LinkedInURL string
	Raw         json.RawMessage
}

// Person is a contact returned by /search-person.
type Person struct {
	ID          string
	Name        string
	Title       string
	LinkedInURL string
	Email       string
	Raw         json.RawMessage
}

// CompanyFilters are the company-level discovery filters. Seniority is
// never part of company search.
type CompanyFilters struct {
	Industries        []string
	Keywords          []string
	VerifiedEmailOnly bool
}

// DefaultKeywords are sent when no other company filter is given; the API
// rejects an empty filter set.
var DefaultKeywords = []string{"software"}

// Build returns the request "filters" object.
func (f CompanyFilters) Build() map[string]any {
	out := make(map[string]any)
	if inds := nonEmpty(f.Industries); len(inds) > 0 {
		out["company_industry"] = includeFilter{Include: inds}
	}
	if kws := nonEmpty(f.Keywords); len(kws) > 0 {
		out["company_keywords"] = includeFilter{Include: kws}
	}
	if len(out) == 0 {
		out["company_keywords"] = includeFilter{Include: DefaultKeywords}
	}
	if f.VerifiedEmailOnly {
		out["only_verified_email"] = true
	}
	return out
}

// CompanyRef scopes a person search to one company. The name is only sent
// when no id is known.
type CompanyRef struct {
	ID     string
	Name   string
	Domain string
}

// CompanyPage is one page of company search results.
type CompanyPage struct {
	Page      int
	Companies []Company
	HasMore   bool
}

// PersonPage is one page of person search results.
type PersonPage struct {
	Persons []Person
	HasMore bool
}

type includeFilter struct {
	Include []string `json:"include"`
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// searchResponse covers both the current and the legacy response envelope.
type searchResponse struct {
	Error      bool              `json:"error"`
	ErrorCode  string            `json:"error_code"`
	Message    string            `json:"message"`
	Results    []json.RawMessage `json:"results"`
	Data       []json.RawMessage `json:"data"`
	Pagination *struct {
		CurrentPage int   `json:"current_page"`
		TotalPage   int   `json:"total_page"`
		HasMore     *bool `json:"has_more"`
	} `json:"pagination"`
	Meta *struct {
		HasMore *bool `json:"has_more"`
	} `json:"meta"`
}

func (r *searchResponse) items() []json.RawMessage {
	if len(r.Results) > 0 {
		return r.Results
	}
	return r.Data
}

// hasMore reports whether another page exists. A response without
// pagination info is treated as having more pages; the caller stops on
// an empty page.
func (r *searchResponse) hasMore(page int) bool {
	switch {
	case r.Meta != nil && r.Meta.HasMore != nil:
		return *r.Meta.HasMore
	case r.Pagination != nil && r.Pagination.HasMore != nil:
		return *r.Pagination.HasMore
	case r.Pagination != nil && r.Pagination.TotalPage > 0:
		return page < r.Pagination.TotalPage
	default:
		return true
	}
}

// rawCompany accepts the flat and the nested {"company": {...}} shapes.
type rawCompany struct {
	ID          string          `json:"id"`
	CompanyID   string          `json:"company_id"`
	Name        string          `json:"name"`
	Domain      string          `json:"domain"`
	Website     string          `json:"website"`
	Description string          `json:"description"`
	Industry    string          `json:"industry"`
	Size        flexString      `json:"size"`
	Employees   flexString      `json:"employee_range"`
	Location    json.RawMessage `json:"location"`
	LinkedInURL string          `json:"linkedin_url"`
}

func decodeCompany(raw json.RawMessage) (Company, error) {
	var wrapped struct {
		Company json.RawMessage `json:"company"`
	}
	body := raw
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Company) > 0 && wrapped.Company[0] == '{' {
		body = wrapped.Company
	}
	var rc rawCompany
	if err := json.Unmarshal(body, &rc); err != nil {
		return Company{}, err
	}
	return Company{
		ID:          firstNonEmpty(rc.CompanyID, rc.ID),
		Name:        rc.Name,
		Domain:      rc.Domain,
		Website:     rc.Website,
		Description: rc.Description,
		Industry:    rc.Industry,
		Size:        firstNonEmpty(string(rc.Size), string(rc.Employees)),
		Location:    formatLocation(rc.Location),
		LinkedInURL: rc.LinkedInURL,
		Raw:         raw,
	}, nil
}

type rawPerson struct {
	ID          string          `json:"id"`
	PersonID    string          `json:"person_id"`
	Name        string          `json:"full_name"`
	ShortName   string          `json:"name"`
	FirstName   string          `json:"first_name"`
	LastName    string          `json:"last_name"`
	Title       string          `json:"title"`
	JobTitle    string          `json:"current_job_title"`
	LinkedInURL string          `json:"linkedin_url"`
	Email       json.RawMessage `json:"email"`
}

func decodePerson(raw json.RawMessage) (Person, error) {
	var wrapped struct {
		Person json.RawMessage `json:"person"`
	}
	body := raw
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Person) > 0 && wrapped.Person[0] == '{' {
		body = wrapped.Person
	}
	var rp rawPerson
	if err := json.Unmarshal(body, &rp); err != nil {
		return Person{}, err
	}
	name := firstNonEmpty(rp.Name, rp.ShortName)
	if name == "" {
		name = strings.TrimSpace(rp.FirstName + " " + rp.LastName)
	}
	return Person{
		ID:          firstNonEmpty(rp.PersonID, rp.ID),
		Name:        name,
		Title:       firstNonEmpty(rp.Title, rp.JobTitle),
		LinkedInURL: rp.LinkedInURL,
		Email:       emailValue(rp.Email),
		Raw:         raw,
	}, nil
}

// emailValue reads an email given either as a string or as an object with
// an "email" field.
func emailValue(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.TrimSpace(obj.Email)
	}
	return ""
}

// formatLocation flattens a string or {city, state, country} object.
func formatLocation(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var loc struct {
		City    string `json:"city"`
		State   string `json:"state"`
		Country string `json:"country"`
	}
	if err := json.Unmarshal(raw, &loc); err != nil {
		return ""
	}
	var parts []string
	for _, p := range []string{loc.City, loc.State, loc.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// flexString decodes a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return eris.Errorf("prospeo: expected string or number, got %s", string(b))
	}
	*f = flexString(n.String())
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
