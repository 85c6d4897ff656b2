package leads

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/lead-magnet/internal/model"
	"github.com/sells-group/lead-magnet/internal/qualify"
)

// precheckResult partitions the stored wholesale companies by how well
// their product categories match the current keywords.
type precheckResult struct {
	// Skip holds strong matches; they are not rediscovered.
	Skip *model.CompanySet
	// NoMatch holds wholesale companies whose categories matched no
	// keyword; if rediscovered, only the product-fit check runs.
	NoMatch *model.CompanySet
	// Strong lists the strong-match companies in store order.
	Strong []model.Company
}

// precheck reads stored wholesale companies and quick-matches them against
// keywords. It only reads the store, so repeated calls over the same data
// return the same sets. Store errors yield empty sets.
func (p *Processor) precheck(ctx context.Context, keywords []string) precheckResult {
	res := precheckResult{
		Skip:    model.NewCompanySet(),
		NoMatch: model.NewCompanySet(),
	}

	companies, err := p.store.ListWholesaleCompanies(ctx)
	if err != nil {
		zap.L().Warn("leads: pre-check failed, continuing without cache", zap.Error(err))
		return res
	}

	for _, c := range companies {
		if c.Key().IsZero() || len(c.ProductCategories) == 0 {
			continue
		}
		m := qualify.QuickMatch(keywords, c.ProductCategories)
		switch m.Outcome {
		case qualify.StrongMatch:
			if res.Skip.Add(c.Key()) {
				res.Strong = append(res.Strong, c)
			}
		case qualify.NoMatch:
			res.NoMatch.Add(c.Key())
		}
	}

	zap.L().Info("leads: pre-check complete",
		zap.Int("wholesale_companies", len(companies)),
		zap.Int("skip", res.Skip.Len()),
		zap.Int("no_match", res.NoMatch.Len()),
	)
	return res
}

// resurface adds stored leads of strong-match companies to the result until
// the target is reached. A company contributing at least one lead counts as
// qualified for this run.
func (p *Processor) resurface(ctx context.Context, r *run, strong []model.Company) {
	for i := range strong {
		if r.targetReached() || ctx.Err() != nil {
			return
		}
		c := strong[i]
		c.IsQualified = true

		persons, err := p.store.ListQualifiedPersons(ctx, c.Key())
		if err != nil {
			r.log.Warn("leads: list stored persons failed",
				zap.String("company", c.Name), zap.Error(err))
			continue
		}

		added := 0
		for _, person := range persons {
			if r.targetReached() {
				break
			}
			if r.addLead(person, c) {
				added++
			}
		}
		if added == 0 {
			continue
		}
		r.result.Companies = append(r.result.Companies, c)
		r.result.Stats.CachedPersons += added
		r.log.Info("leads: reused stored leads",
			zap.String("company", c.Name), zap.Int("persons", added))
	}
}
