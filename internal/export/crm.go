package export

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-magnet/internal/model"
	"github.com/sells-group/lead-magnet/pkg/notion"
	"github.com/sells-group/lead-magnet/pkg/salesforce"
)

// LeadKey identifies a lead across runs.
func LeadKey(l model.Lead) string {
	return l.Company.Key().String() + "|" + l.Person.ID
}

// NotionSink creates one page per lead in a Notion database. Leads already
// present (by lead key) are skipped.
type NotionSink struct {
	client notion.Client
}

// NewNotionSink creates a NotionSink writing through client.
func NewNotionSink(client notion.Client) *NotionSink {
	return &NotionSink{client: client}
}

// Name implements Sink.
func (s *NotionSink) Name() string { return "notion" }

// Write implements Sink.
func (s *NotionSink) Write(ctx context.Context, res *model.RunResult) (string, error) {
	var created, existing int
	for _, l := range res.Leads {
		key := LeadKey(l)
		found, err := s.client.HasLead(ctx, key)
		if err != nil {
			return fmt.Sprintf("%d pages created", created), eris.Wrap(err, "export: notion lookup")
		}
		if found {
			existing++
			continue
		}
		if _, err := s.client.CreateLead(ctx, notion.LeadPage{
			Key:         key,
			Name:        l.Person.Name,
			Email:       l.Person.Email,
			Title:       l.Person.Title,
			Company:     l.Company.Name,
			Website:     l.Company.URL(),
			LinkedIn:    l.Person.LinkedInURL,
			Industry:    l.Company.Industry,
			Categories:  l.Company.ProductCategories,
			RunID:       res.Request.Origin.RunID,
			QualifiedAt: l.Company.QualifiedAt,
		}); err != nil {
			return fmt.Sprintf("%d pages created", created), eris.Wrap(err, "export: notion create")
		}
		created++
	}
	if existing > 0 {
		zap.L().Debug("export: notion skipped existing leads", zap.Int("existing", existing))
	}
	return fmt.Sprintf("%d pages created, %d already present", created, existing), nil
}

// SalesforceSink creates a Lead sObject per lead, skipping emails that
// already exist as Leads.
type SalesforceSink struct {
	client     salesforce.Client
	leadSource string
}

// NewSalesforceSink creates a SalesforceSink tagging records with leadSource.
func NewSalesforceSink(client salesforce.Client, leadSource string) *SalesforceSink {
	return &SalesforceSink{client: client, leadSource: leadSource}
}

// Name implements Sink.
func (s *SalesforceSink) Name() string { return "salesforce" }

// Write implements Sink.
func (s *SalesforceSink) Write(ctx context.Context, res *model.RunResult) (string, error) {
	emails := make([]string, 0, len(res.Leads))
	for _, l := range res.Leads {
		emails = append(emails, l.Person.Email)
	}
	existing, err := s.client.ExistingLeadEmails(ctx, emails)
	if err != nil {
		return "", eris.Wrap(err, "export: salesforce lookup")
	}

	seen := make(map[string]bool, len(res.Leads))
	var records []salesforce.Lead
	for _, l := range res.Leads {
		email := strings.ToLower(l.Person.Email)
		if existing[email] || seen[email] {
			continue
		}
		seen[email] = true
		first, last := salesforce.SplitName(l.Person.Name)
		records = append(records, salesforce.Lead{
			FirstName:   first,
			LastName:    last,
			Email:       l.Person.Email,
			Title:       l.Person.Title,
			Company:     l.Company.Name,
			Website:     l.Company.URL(),
			Industry:    l.Company.Industry,
			Description: l.Company.KeywordResponse,
			LeadSource:  s.leadSource,
		})
	}

	skipped := len(res.Leads) - len(records)
	if len(records) == 0 {
		return fmt.Sprintf("0 leads created, %d already present", skipped), nil
	}

	sum, err := s.client.InsertLeads(ctx, records)
	if err != nil {
		return fmt.Sprintf("%d leads created", sum.Created), eris.Wrap(err, "export: salesforce insert")
	}
	if sum.Failed > 0 {
		zap.L().Warn("export: salesforce rejected leads",
			zap.Int("failed", sum.Failed),
			zap.Strings("errors", sum.Errors))
	}
	return fmt.Sprintf("%d leads created, %d failed, %d already present", sum.Created, sum.Failed, skipped), nil
}
