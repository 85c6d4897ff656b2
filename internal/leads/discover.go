package leads

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-magnet/internal/model"
	"github.com/sells-group/lead-magnet/pkg/prospeo"
)

const (
	skipNotWholesale = "SKIP (not wholesale partner)"
	skipNoKeywords   = "SKIP (no keywords or industries to match)"
)

// discoverCompanies pages through company search until the target or the
// processed ceiling is reached, the provider runs out of pages, or the page
// limit is hit. Only a filter error from either search is returned; other
// page errors are logged and the next page is tried.
func (p *Processor) discoverCompanies(ctx context.Context, r *run) error {
	if r.targetReached() {
		r.log.Info("leads: target met from stored leads, skipping discovery")
		return nil
	}
	if len(r.req.Locations) > 0 {
		r.log.Debug("leads: location filter not sent to discovery", zap.Strings("locations", r.req.Locations))
	}

	filters := prospeo.CompanyFilters{
		Industries:        r.req.Industries,
		Keywords:          r.req.Keywords,
		VerifiedEmailOnly: r.req.VerifiedEmailOnly,
	}

	pageErrors := 0
	for page := 1; page <= p.opts.MaxPages; page++ {
		if ctx.Err() != nil {
			return nil
		}

		res, err := p.discover.SearchCompanies(ctx, page, p.opts.PageSize, filters)
		if err != nil {
			if prospeo.IsFilterError(err) {
				return eris.Wrap(err, "leads: company search rejected filters")
			}
			if ctx.Err() != nil {
				return nil
			}
			pageErrors++
			r.log.Error("leads: fetch company page failed",
				zap.Int("page", page), zap.Int("consecutive_errors", pageErrors), zap.Error(err))
			if pageErrors >= p.opts.MaxPageErrors {
				r.log.Error("leads: too many page errors, stopping discovery")
				return nil
			}
			continue
		}
		pageErrors = 0
		r.result.Stats.PagesProcessed++

		if res == nil || len(res.Companies) == 0 {
			r.log.Info("leads: no more companies", zap.Int("page", page))
			return nil
		}
		r.log.Info("leads: fetched company page",
			zap.Int("page", page), zap.Int("companies", len(res.Companies)))

		for _, pc := range res.Companies {
			if r.targetReached() || ctx.Err() != nil {
				return nil
			}

			c := p.newCompany(r, pc)
			if r.seen.Has(c.Key()) || r.skip.Has(c.Key()) {
				r.result.Stats.CompaniesSkipped++
				continue
			}
			r.seen.Add(c.Key())

			if r.ceilingReached() {
				r.log.Warn("leads: kill switch reached", zap.Int("processed", r.processed))
				return nil
			}
			r.processed++

			if err := p.processCompany(ctx, r, c); err != nil {
				return err
			}
		}

		if r.targetReached() {
			r.log.Info("leads: target reached", zap.Int("target", r.req.TargetCount))
			return nil
		}
		if r.ceilingReached() {
			r.log.Warn("leads: kill switch reached", zap.Int("processed", r.processed))
			return nil
		}
		if !res.HasMore {
			r.log.Info("leads: provider reports no more pages", zap.Int("page", page))
			return nil
		}
	}
	r.log.Warn("leads: page safety limit reached", zap.Int("max_pages", p.opts.MaxPages))
	return nil
}

func (p *Processor) newCompany(r *run, pc prospeo.Company) *model.Company {
	return &model.Company{
		ID:             pc.ID,
		Name:           pc.Name,
		Description:    pc.Description,
		Domain:         pc.Domain,
		Website:        pc.Website,
		Industry:       pc.Industry,
		Size:           pc.Size,
		Location:       pc.Location,
		LinkedInURL:    pc.LinkedInURL,
		Origin:         r.req.Origin,
		SearchCriteria: r.criteria,
		Raw:            pc.Raw,
	}
}

// processCompany persists, classifies and, when qualified, collects persons
// for one company. Store failures are logged and do not stop the company.
func (p *Processor) processCompany(ctx context.Context, r *run, c *model.Company) error {
	key := c.Key().String()
	log := r.log.With(zap.String("company", c.Name), zap.String("key", key))
	log.Info("leads: processing company", zap.Int("n", r.processed))

	unlock := p.locks.Lock(key)
	defer unlock()

	var prior *model.Company
	if key != "" {
		var err error
		if prior, err = p.store.GetCompany(ctx, c.Key()); err != nil {
			log.Warn("leads: load stored company failed", zap.Error(err))
		}
		if c.StoreID, err = p.store.UpsertCompany(ctx, c); err != nil {
			log.Warn("leads: save company failed", zap.Error(err))
		}
	}

	content, scrapedAt := p.websiteContent(ctx, c, prior)
	v := p.verdict(ctx, r, c, prior, content)
	v.ScrapedContent = content
	if content != "" {
		v.ScrapedAt = &scrapedAt
	}

	c.ApplyVerdict(v, p.opts.Clock())
	if c.StoreID != "" {
		if err := p.store.UpdateCompanyVerdict(ctx, c.StoreID, v); err != nil {
			log.Warn("leads: save verdict failed", zap.Error(err))
		}
	}

	if !c.IsQualified {
		log.Info("leads: company not qualified",
			zap.Bool("wholesale", model.IsTrue(c.WholesaleCheck)))
		return nil
	}

	log.Info("leads: company qualified", zap.Strings("categories", c.ProductCategories))
	r.result.Companies = append(r.result.Companies, *c)
	return p.collectPersons(ctx, r, c)
}

// websiteContent returns stored content younger than the TTL, otherwise
// freshly extracted content. The time is when the content was scraped.
func (p *Processor) websiteContent(ctx context.Context, c *model.Company, prior *model.Company) (string, time.Time) {
	now := p.opts.Clock()
	if c.URL() == "" {
		return "", now
	}
	if prior != nil && prior.ScrapedContent != "" && prior.ScrapedAt != nil &&
		now.Sub(*prior.ScrapedAt) < p.opts.ContentTTL {
		return prior.ScrapedContent, *prior.ScrapedAt
	}
	return p.extract.Content(ctx, c.URL()), now
}

// verdict decides which checks to run from the stored record and the
// pre-check, then runs them.
func (p *Processor) verdict(ctx context.Context, r *run, c *model.Company, prior *model.Company, content string) model.CompanyVerdict {
	var v model.CompanyVerdict

	switch {
	case r.noMatch.Has(c.Key()):
		v.WholesaleCheck = model.Bool(true)
		v.WholesaleResponse = "Previously determined wholesale partner (from store pre-check)"
	case prior != nil && model.IsFalse(prior.WholesaleCheck):
		v.WholesaleCheck = model.Bool(false)
		v.WholesaleResponse = orDefault(prior.WholesaleResponse, "Previously failed wholesale check.")
		v.KeywordCheck = model.Bool(false)
		v.KeywordResponse = skipNotWholesale
		return v
	case prior != nil && model.IsTrue(prior.WholesaleCheck):
		v.WholesaleCheck = model.Bool(true)
		v.WholesaleResponse = orDefault(prior.WholesaleResponse, "Previously passed wholesale check.")
	default:
		w := p.classify.CheckWholesale(ctx, c, content)
		v.WholesaleCheck = model.Bool(w.Passed)
		v.WholesaleResponse = w.Response
		if !w.Passed {
			v.KeywordCheck = model.Bool(false)
			v.KeywordResponse = skipNotWholesale
			return v
		}
	}

	terms := r.req.Keywords
	if len(terms) == 0 {
		terms = r.req.Industries
	}
	if len(terms) == 0 {
		v.KeywordCheck = model.Bool(false)
		v.KeywordResponse = skipNoKeywords
		return v
	}

	fit := p.classify.CheckProductFit(ctx, c, content, terms, r.req.OurCompanyContext)
	v.KeywordCheck = model.Bool(fit.Verdict.Matched)
	v.KeywordResponse = fit.Response
	v.ProductCategories = fit.Verdict.Categories
	v.MarketSegments = fit.Verdict.Segments
	return v
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
