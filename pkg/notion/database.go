package notion

import (
	"context"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// Property names of the lead database.
const (
	PropName       = "Name"
	PropEmail      = "Email"
	PropTitle      = "Title"
	PropCompany    = "Company"
	PropWebsite    = "Website"
	PropLinkedIn   = "LinkedIn"
	PropIndustry   = "Industry"
	PropCategories = "Categories"
	PropRunID      = "Run ID"
	PropLeadKey    = "Lead Key"
	PropQualified  = "Qualified At"
)

// LeadPage is one row of the lead database.
type LeadPage struct {
	// Key identifies the lead across runs and is used to skip duplicates.
	Key         string
	Name        string
	Email       string
	Title       string
	Company     string
	Website     string
	LinkedIn    string
	Industry    string
	Categories  []string
	RunID       string
	QualifiedAt *time.Time
}

// HasLead implements Client.
func (c *leadDB) HasLead(ctx context.Context, key string) (bool, error) {
	if err := c.wait(ctx); err != nil {
		return false, err
	}
	resp, err := c.api.Query(ctx, c.dbID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: PropLeadKey,
			RichText: &notionapi.TextFilterCondition{Equals: key},
		},
		PageSize: 1,
	})
	if err != nil {
		return false, eris.Wrapf(err, "notion: find lead in %s", c.dbID)
	}
	return len(resp.Results) > 0, nil
}

// CreateLead implements Client.
func (c *leadDB) CreateLead(ctx context.Context, lead LeadPage) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	page, err := c.api.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: c.dbID,
		},
		Properties: leadProperties(lead),
	})
	if err != nil {
		return "", eris.Wrapf(err, "notion: create lead %s", lead.Key)
	}
	return string(page.ID), nil
}

func leadProperties(l LeadPage) notionapi.Properties {
	props := notionapi.Properties{
		PropName:    notionapi.TitleProperty{Title: richText(l.Name)},
		PropLeadKey: notionapi.RichTextProperty{RichText: richText(l.Key)},
	}
	if l.Email != "" {
		props[PropEmail] = notionapi.EmailProperty{Email: l.Email}
	}
	if l.Title != "" {
		props[PropTitle] = notionapi.RichTextProperty{RichText: richText(l.Title)}
	}
	if l.Company != "" {
		props[PropCompany] = notionapi.RichTextProperty{RichText: richText(l.Company)}
	}
	if l.Website != "" {
		props[PropWebsite] = notionapi.URLProperty{URL: l.Website}
	}
	if l.LinkedIn != "" {
		props[PropLinkedIn] = notionapi.URLProperty{URL: l.LinkedIn}
	}
	if l.Industry != "" {
		props[PropIndustry] = notionapi.RichTextProperty{RichText: richText(l.Industry)}
	}
	if len(l.Categories) > 0 {
		opts := make([]notionapi.Option, 0, len(l.Categories))
		for _, c := range l.Categories {
			opts = append(opts, notionapi.Option{Name: c})
		}
		props[PropCategories] = notionapi.MultiSelectProperty{MultiSelect: opts}
	}
	if l.RunID != "" {
		props[PropRunID] = notionapi.RichTextProperty{RichText: richText(l.RunID)}
	}
	if l.QualifiedAt != nil {
		d := notionapi.Date(*l.QualifiedAt)
		props[PropQualified] = notionapi.DateProperty{Date: &notionapi.DateObject{Start: &d}}
	}
	return props
}

// richText returns a single text block; Notion caps one block at 2000 chars.
func richText(s string) []notionapi.RichText {
	r := []rune(s)
	if len(r) > 2000 {
		s = string(r[:2000])
	}
	return []notionapi.RichText{{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}}}
}
