package export

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sells-group/lead-magnet/internal/model"
)

// Row is one exported lead. Column order follows field order.
type Row struct {
	PersonName            string `csv:"person_name"`
	PersonEmail           string `csv:"person_email"`
	PersonTitle           string `csv:"person_title"`
	PersonLinkedInURL     string `csv:"person_linkedin_url"`
	CompanyName           string `csv:"company_name"`
	CompanyDomain         string `csv:"company_domain"`
	CompanyWebsite        string `csv:"company_website"`
	CompanyDescription    string `csv:"company_description"`
	CompanyIndustry       string `csv:"company_industry"`
	CompanySize           string `csv:"company_size"`
	CompanyLocation       string `csv:"company_location"`
	QualifiedAt           string `csv:"qualified_at"`
	SearchCriteria        string `csv:"search_criteria"`
	QualificationCriteria string `csv:"qualification_criteria"`
}

// Columns lists the exported column names in order.
var Columns = []string{
	"person_name", "person_email", "person_title", "person_linkedin_url",
	"company_name", "company_domain", "company_website", "company_description",
	"company_industry", "company_size", "company_location",
	"qualified_at", "search_criteria", "qualification_criteria",
}

// Values returns the row cells in column order.
func (r Row) Values() []string {
	return []string{
		r.PersonName, r.PersonEmail, r.PersonTitle, r.PersonLinkedInURL,
		r.CompanyName, r.CompanyDomain, r.CompanyWebsite, r.CompanyDescription,
		r.CompanyIndustry, r.CompanySize, r.CompanyLocation,
		r.QualifiedAt, r.SearchCriteria, r.QualificationCriteria,
	}
}

// BuildRows flattens the leads of res into sanitized rows.
func BuildRows(res *model.RunResult) []Row {
	search := res.Request.CriteriaJSON()
	qual := qualificationCriteria(res.Request)

	rows := make([]Row, 0, len(res.Leads))
	for _, l := range res.Leads {
		p, c := l.Person, l.Company
		var qualifiedAt string
		if c.QualifiedAt != nil {
			qualifiedAt = c.QualifiedAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, Row{
			PersonName:            sanitize(p.Name),
			PersonEmail:           sanitize(p.Email),
			PersonTitle:           sanitize(p.Title),
			PersonLinkedInURL:     sanitize(p.LinkedInURL),
			CompanyName:           sanitize(c.Name),
			CompanyDomain:         sanitize(c.Domain),
			CompanyWebsite:        sanitize(c.Website),
			CompanyDescription:    sanitize(c.Description),
			CompanyIndustry:       sanitize(c.Industry),
			CompanySize:           sanitize(c.Size),
			CompanyLocation:       sanitize(c.Location),
			QualifiedAt:           qualifiedAt,
			SearchCriteria:        sanitize(search),
			QualificationCriteria: sanitize(qual),
		})
	}
	return rows
}

func qualificationCriteria(req model.SearchRequest) string {
	b, err := json.Marshal(struct {
		Keywords          []string `json:"keywords,omitempty"`
		OurCompanyContext string   `json:"our_company_context,omitempty"`
	}{req.Keywords, req.OurCompanyContext})
	if err != nil {
		return "{}"
	}
	return string(b)
}

var sanitizer = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", "")

// sanitize flattens newlines so each lead stays on one line.
func sanitize(s string) string {
	return sanitizer.Replace(s)
}
