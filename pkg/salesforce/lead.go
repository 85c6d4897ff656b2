package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// maxBatchSize is the Salesforce Collections API limit per request.
const maxBatchSize = 200

// emailQueryChunk bounds the IN list of a single duplicate lookup.
const emailQueryChunk = 100

// Lead is a Salesforce Lead record built from a qualified contact.
type Lead struct {
	FirstName   string
	LastName    string
	Email       string
	Title       string
	Company     string
	Website     string
	Industry    string
	Description string
	LeadSource  string
}

// Fields returns the record as an sObject field map. LastName and Company
// are required by Salesforce and get placeholders when empty.
func (l Lead) Fields() map[string]any {
	f := map[string]any{
		"LastName": orPlaceholder(l.LastName),
		"Company":  orPlaceholder(l.Company),
	}
	set := func(k, v string) {
		if v != "" {
			f[k] = v
		}
	}
	set("FirstName", l.FirstName)
	set("Email", l.Email)
	set("Title", l.Title)
	set("Website", l.Website)
	set("Industry", l.Industry)
	set("Description", truncate(l.Description, 32000))
	set("LeadSource", l.LeadSource)
	return f
}

// SplitName splits a full name into first and last name. A single word is
// treated as the last name.
func SplitName(full string) (first, last string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return "", parts[0]
	default:
		return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
	}
}

type leadEmail struct {
	ID    string `json:"Id"`
	Email string `json:"Email"`
}

// ExistingLeadEmails implements Client. Blank emails are not looked up.
func (c *leadClient) ExistingLeadEmails(ctx context.Context, emails []string) (map[string]bool, error) {
	found := make(map[string]bool)
	wanted := make([]string, 0, len(emails))
	for _, e := range emails {
		if e = strings.TrimSpace(e); e != "" {
			wanted = append(wanted, e)
		}
	}
	for start := 0; start < len(wanted); start += emailQueryChunk {
		end := min(start+emailQueryChunk, len(wanted))
		quoted := make([]string, 0, end-start)
		for _, e := range wanted[start:end] {
			quoted = append(quoted, "'"+escapeSoql(e)+"'")
		}
		soql := fmt.Sprintf("SELECT Id, Email FROM Lead WHERE Email IN (%s)", strings.Join(quoted, ", "))

		var rows []leadEmail
		if err := c.api.query(ctx, soql, &rows); err != nil {
			return nil, eris.Wrap(err, "sf: find existing leads")
		}
		for _, r := range rows {
			found[strings.ToLower(r.Email)] = true
		}
	}
	return found, nil
}

// InsertSummary counts the outcome of InsertLeads.
type InsertSummary struct {
	Created int
	Failed  int
	Errors  []string
}

// InsertLeads implements Client. Per-record failures are counted in the
// summary; a failed batch request aborts.
func (c *leadClient) InsertLeads(ctx context.Context, leads []Lead) (InsertSummary, error) {
	var sum InsertSummary
	for start := 0; start < len(leads); start += maxBatchSize {
		end := min(start+maxBatchSize, len(leads))
		records := make([]map[string]any, 0, end-start)
		for _, l := range leads[start:end] {
			records = append(records, l.Fields())
		}

		results, err := c.api.insertCollection(ctx, "Lead", records)
		if err != nil {
			return sum, eris.Wrapf(err, "sf: insert leads batch %d-%d", start, end)
		}
		for _, r := range results {
			if r.Success {
				sum.Created++
				continue
			}
			sum.Failed++
			sum.Errors = append(sum.Errors, r.Errors...)
		}
	}
	return sum, nil
}

// escapeSoql escapes single quotes in SOQL string literals.
func escapeSoql(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}

func orPlaceholder(s string) string {
	if strings.TrimSpace(s) == "" {
		return "[not provided]"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
