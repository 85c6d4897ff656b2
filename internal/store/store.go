// Package store persists companies, contacts and qualification verdicts.
// Companies and persons share one table; company rows have an empty
// person_id.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-magnet/internal/model"
)

// LeadStore defines the persistence interface for the qualification loop.
type LeadStore interface {
	// Companies
	GetCompany(ctx context.Context, key model.CompanyKey) (*model.Company, error)
	UpsertCompany(ctx context.Context, c *model.Company) (string, error)
	UpdateCompanyVerdict(ctx context.Context, id string, v model.CompanyVerdict) error
	ListWholesaleCompanies(ctx context.Context) ([]model.Company, error)

	// Persons
	SavePerson(ctx context.Context, p *model.Person) (string, error)
	UpdatePerson(ctx context.Context, id string, u model.PersonUpdate) error
	ListQualifiedPersons(ctx context.Context, key model.CompanyKey) ([]model.Person, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const companyColumns = `id, company_id, company_name, company_description, company_domain,
	company_website, company_industry, company_size, company_location, company_linkedin_url,
	scraped_content, scraped_at, wholesale_check, wholesale_response, keyword_check,
	keyword_response, product_categories, market_segments, is_qualified, qualified_at,
	search_criteria, run_id, slack_user_id, slack_channel_id, slack_trigger_id, raw_prospeo_data`

const personColumns = `id, person_id, person_name, person_email, person_title, person_linkedin_url,
	email_enriched, company_id, company_name, company_domain, is_qualified, openrouter_response,
	run_id, slack_user_id, slack_channel_id, slack_trigger_id, raw_prospeo_data`

type scannable interface {
	Scan(dest ...any) error
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

func scanCompany(row scannable) (*model.Company, error) {
	var (
		c                                         model.Company
		companyID, description, domain, website   sql.NullString
		industry, size, location, linkedIn        sql.NullString
		content, wholesaleResp, keywordResp       sql.NullString
		categories, segments, criteria, raw       sql.NullString
		runID, slackUser, slackChannel, triggerID sql.NullString
		scrapedAt, qualifiedAt                    sql.NullTime
		wholesale, keyword                        sql.NullBool
	)

	err := row.Scan(
		&c.StoreID, &companyID, &c.Name, &description, &domain,
		&website, &industry, &size, &location, &linkedIn,
		&content, &scrapedAt, &wholesale, &wholesaleResp, &keyword,
		&keywordResp, &categories, &segments, &c.IsQualified, &qualifiedAt,
		&criteria, &runID, &slackUser, &slackChannel, &triggerID, &raw,
	)
	if err != nil {
		return nil, err
	}

	c.ID = companyID.String
	c.Description = description.String
	c.Domain = domain.String
	c.Website = website.String
	c.Industry = industry.String
	c.Size = size.String
	c.Location = location.String
	c.LinkedInURL = linkedIn.String
	c.ScrapedContent = content.String
	c.ScrapedAt = timePtr(scrapedAt)
	c.WholesaleCheck = boolPtr(wholesale)
	c.WholesaleResponse = wholesaleResp.String
	c.KeywordCheck = boolPtr(keyword)
	c.KeywordResponse = keywordResp.String
	c.QualifiedAt = timePtr(qualifiedAt)
	c.SearchCriteria = criteria.String
	c.Origin = model.Origin{
		RunID:          runID.String,
		SlackUserID:    slackUser.String,
		SlackChannelID: slackChannel.String,
		TriggerID:      triggerID.String,
	}
	if raw.Valid && raw.String != "" {
		c.Raw = json.RawMessage(raw.String)
	}
	if c.ProductCategories, err = decodeList(categories); err != nil {
		return nil, eris.Wrap(err, "decode product_categories")
	}
	if c.MarketSegments, err = decodeList(segments); err != nil {
		return nil, eris.Wrap(err, "decode market_segments")
	}
	return &c, nil
}

func scanPerson(row scannable) (*model.Person, error) {
	var (
		p                                         model.Person
		name, email, title, linkedIn              sql.NullString
		companyID, companyName, companyDomain     sql.NullString
		response, raw                             sql.NullString
		runID, slackUser, slackChannel, triggerID sql.NullString
	)

	err := row.Scan(
		&p.StoreID, &p.ID, &name, &email, &title, &linkedIn,
		&p.EmailEnriched, &companyID, &companyName, &companyDomain, &p.IsQualified, &response,
		&runID, &slackUser, &slackChannel, &triggerID, &raw,
	)
	if err != nil {
		return nil, err
	}

	p.Name = name.String
	p.Email = email.String
	p.Title = title.String
	p.LinkedInURL = linkedIn.String
	p.CompanyID = companyID.String
	p.CompanyName = companyName.String
	p.CompanyDomain = companyDomain.String
	p.QualificationResponse = response.String
	p.Origin = model.Origin{
		RunID:          runID.String,
		SlackUserID:    slackUser.String,
		SlackChannelID: slackChannel.String,
		TriggerID:      triggerID.String,
	}
	if raw.Valid && raw.String != "" {
		p.Raw = json.RawMessage(raw.String)
	}
	return &p, nil
}

// companyKey returns the stored identity key, rejecting companies with no
// identifying field.
func companyKey(k model.CompanyKey) (string, error) {
	s := k.String()
	if s == "" {
		return "", eris.New("company has no id, name or domain")
	}
	return s, nil
}

// matchArgs returns the id, domain key and name key used to locate the row
// of a company.
func matchArgs(k model.CompanyKey) (id, domain, name any) {
	return nullString(k.ID), nullString(k.DomainKey()), nullString(k.NameKey())
}

// preferredKey picks the more specific of two identity strings, keeping the
// stored one on a tie.
func preferredKey(stored, incoming string) string {
	if keyRank(incoming) < keyRank(stored) {
		return incoming
	}
	return stored
}

func keyRank(k string) int {
	switch {
	case strings.HasPrefix(k, "id:"):
		return 0
	case strings.HasPrefix(k, "domain:"):
		return 1
	default:
		return 2
	}
}

// encodeList stores a nil slice as NULL and anything else as a JSON array.
func encodeList(v []string) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func decodeList(s sql.NullString) ([]string, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s.String), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(raw json.RawMessage) any {
	if len(raw) == 0 || !json.Valid(raw) {
		return nil
	}
	return string(raw)
}

func nullBool(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func boolPtr(b sql.NullBool) *bool {
	if !b.Valid {
		return nil
	}
	return model.Bool(b.Bool)
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

// classifierResponse picks the response stored in openrouter_response: the
// product-fit answer when one exists, otherwise the wholesale answer.
func classifierResponse(v model.CompanyVerdict) string {
	if v.KeywordResponse != "" {
		return v.KeywordResponse
	}
	return v.WholesaleResponse
}
