package leads

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-magnet/internal/model"
	"github.com/sells-group/lead-magnet/pkg/prospeo"
)

// collectPersons searches persons at a qualified company, stores each one
// and enriches it. Only persons with an enriched email become leads. A
// rejected person filter is returned; other search errors skip the company.
func (p *Processor) collectPersons(ctx context.Context, r *run, c *model.Company) error {
	domain := c.Domain
	if domain == "" {
		domain = c.Website
	}
	ref := prospeo.CompanyRef{ID: c.ID, Name: c.Name, Domain: domain}

	page, err := p.discover.SearchPersons(ctx, ref, r.req.Seniority, p.opts.PersonLimit)
	if err != nil {
		if prospeo.IsFilterError(err) {
			return eris.Wrap(err, "leads: person search rejected filters")
		}
		r.log.Error("leads: person search failed", zap.String("company", c.Name), zap.Error(err))
		return nil
	}
	if page == nil || len(page.Persons) == 0 {
		r.log.Info("leads: no persons found", zap.String("company", c.Name))
		return nil
	}

	added := 0
	for _, pp := range page.Persons {
		if r.targetReached() || ctx.Err() != nil {
			break
		}
		if pp.ID == "" {
			r.log.Debug("leads: skipping person without id", zap.String("name", pp.Name))
			continue
		}

		person := model.Person{
			ID:          pp.ID,
			Name:        pp.Name,
			Title:       pp.Title,
			LinkedInURL: pp.LinkedInURL,
			Origin:      r.req.Origin,
			Raw:         pp.Raw,
		}
		person.AttachCompany(c)

		var serr error
		if person.StoreID, serr = p.store.SavePerson(ctx, &person); serr != nil {
			r.log.Warn("leads: save person failed", zap.String("person", person.Name), zap.Error(serr))
		}

		email, err := p.enrich.EnrichPerson(ctx, person.ID)
		if err != nil {
			r.log.Warn("leads: enrich person failed", zap.String("person", person.Name), zap.Error(err))
			continue
		}
		if email == "" {
			r.log.Debug("leads: no email for person", zap.String("person", person.Name))
			continue
		}

		person.Email = email
		person.EmailEnriched = true
		if person.StoreID != "" {
			if err := p.store.UpdatePerson(ctx, person.StoreID, model.PersonUpdate{Email: email, IsQualified: true}); err != nil {
				r.log.Warn("leads: update person failed", zap.String("person", person.Name), zap.Error(err))
			}
		}
		if r.addLead(person, *c) {
			added++
		}
	}

	r.log.Info("leads: collected persons",
		zap.String("company", c.Name),
		zap.Int("found", len(page.Persons)),
		zap.Int("enriched", added),
		zap.Int("total_leads", len(r.result.Leads)),
	)
	return nil
}
