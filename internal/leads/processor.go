// Package leads runs the company-first qualification loop: discover
// companies, qualify them, then find and enrich contacts at the ones that
// pass.
package leads

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-magnet/internal/model"
	"github.com/sells-group/lead-magnet/internal/qualify"
	"github.com/sells-group/lead-magnet/internal/store"
	"github.com/sells-group/lead-magnet/pkg/prospeo"
)

// Discoverer searches companies and the persons working at them.
type Discoverer interface {
	SearchCompanies(ctx context.Context, page, limit int, filters prospeo.CompanyFilters) (*prospeo.CompanyPage, error)
	SearchPersons(ctx context.Context, company prospeo.CompanyRef, seniority []string, limit int) (*prospeo.PersonPage, error)
}

// Enricher resolves a person id to a verified email, "" when none exists.
type Enricher interface {
	EnrichPerson(ctx context.Context, personID string) (string, error)
}

// Classifier runs the wholesale and product-fit checks. Both degrade to a
// false verdict on failure.
type Classifier interface {
	CheckWholesale(ctx context.Context, company *model.Company, content string) qualify.WholesaleResult
	CheckProductFit(ctx context.Context, company *model.Company, content string, keywords []string, ourContext string) qualify.ProductFitResult
}

// Extractor returns classifier-ready website text, "" on failure.
type Extractor interface {
	Content(ctx context.Context, url string) string
}

// Options tunes the loop.
type Options struct {
	PageSize    int
	PersonLimit int
	// MaxPages bounds pagination when the provider never reports the end.
	MaxPages int
	// MaxPageErrors stops discovery after this many consecutive failed
	// page fetches.
	MaxPageErrors int
	// ContentTTL is how long stored website content is reused.
	ContentTTL time.Duration
	// ResurfaceCached adds the stored leads of companies skipped by the
	// pre-check to the result.
	ResurfaceCached bool
	Clock           func() time.Time
}

// DefaultOptions returns the loop defaults.
func DefaultOptions() Options {
	return Options{
		PageSize:        25,
		PersonLimit:     100,
		MaxPages:        100,
		MaxPageErrors:   5,
		ContentTTL:      180 * 24 * time.Hour,
		ResurfaceCached: true,
		Clock:           time.Now,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.PageSize <= 0 {
		o.PageSize = d.PageSize
	}
	if o.PersonLimit <= 0 {
		o.PersonLimit = d.PersonLimit
	}
	if o.MaxPages <= 0 {
		o.MaxPages = d.MaxPages
	}
	if o.MaxPageErrors <= 0 {
		o.MaxPageErrors = d.MaxPageErrors
	}
	if o.ContentTTL <= 0 {
		o.ContentTTL = d.ContentTTL
	}
	if o.Clock == nil {
		o.Clock = d.Clock
	}
	return o
}

// Processor runs qualification loops. It is safe for concurrent runs;
// classification of one company identity is serialized across them.
type Processor struct {
	discover Discoverer
	enrich   Enricher
	classify Classifier
	extract  Extractor
	store    store.LeadStore
	opts     Options
	locks    *keyLock
}

// New creates a Processor. A nil store disables persistence and the
// pre-check.
func New(d Discoverer, e Enricher, c Classifier, x Extractor, st store.LeadStore, opts Options) *Processor {
	if st == nil {
		st = noStore{}
	}
	return &Processor{
		discover: d,
		enrich:   e,
		classify: c,
		extract:  x,
		store:    st,
		opts:     opts.withDefaults(),
		locks:    newKeyLock(),
	}
}

// run holds the state of one Run call.
type run struct {
	req      model.SearchRequest
	log      *zap.Logger
	result   *model.RunResult
	criteria string

	seen     *model.CompanySet
	skip     *model.CompanySet
	noMatch  *model.CompanySet
	leadKeys map[string]bool

	processed int
}

func (r *run) targetReached() bool {
	return len(r.result.Leads) >= r.req.TargetCount
}

func (r *run) ceilingReached() bool {
	return r.processed >= r.req.MaxProcessed
}

func (r *run) addLead(p model.Person, c model.Company) bool {
	k := c.Key().String() + "|" + p.ID
	if p.ID != "" && r.leadKeys[k] {
		return false
	}
	r.leadKeys[k] = true
	r.result.Leads = append(r.result.Leads, model.Lead{Person: p, Company: c})
	return true
}

// Run executes one qualification loop. It always returns the leads and
// companies collected so far. The error is non-nil when the request is
// invalid, the provider rejected the filters, or ctx was cancelled.
func (p *Processor) Run(ctx context.Context, req model.SearchRequest) (*model.RunResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	start := p.opts.Clock()
	r := &run{
		req:      req,
		log:      zap.L().With(zap.String("run_id", req.Origin.RunID)),
		result:   &model.RunResult{Request: req},
		criteria: req.CriteriaJSON(),
		seen:     model.NewCompanySet(),
		leadKeys: make(map[string]bool),
	}
	r.log.Info("leads: starting run",
		zap.Strings("industries", req.Industries),
		zap.Strings("keywords", req.Keywords),
		zap.Strings("seniority", req.Seniority),
		zap.Int("target", req.TargetCount),
		zap.Int("max_processed", req.MaxProcessed),
	)

	pre := p.precheck(ctx, req.Keywords)
	r.skip, r.noMatch = pre.Skip, pre.NoMatch
	if p.opts.ResurfaceCached {
		p.resurface(ctx, r, pre.Strong)
	}

	err := p.discoverCompanies(ctx, r)
	p.finish(r, start)

	if err != nil {
		return r.result, err
	}
	if ctx.Err() != nil {
		return r.result, eris.Wrap(ctx.Err(), "leads: run cancelled")
	}
	return r.result, nil
}

func (p *Processor) finish(r *run, start time.Time) {
	s := &r.result.Stats
	s.QualifiedPersons = len(r.result.Leads)
	s.QualifiedCompanies = len(r.result.Companies)
	s.CompaniesProcessed = r.processed
	s.TargetReached = r.targetReached()
	s.KillSwitchActivated = r.ceilingReached()
	s.Duration = p.opts.Clock().Sub(start)

	r.log.Info("leads: run complete",
		zap.Int("qualified_persons", s.QualifiedPersons),
		zap.Int("qualified_companies", s.QualifiedCompanies),
		zap.Int("companies_processed", s.CompaniesProcessed),
		zap.Int("companies_skipped", s.CompaniesSkipped),
		zap.Int("pages", s.PagesProcessed),
		zap.Bool("target_reached", s.TargetReached),
		zap.Bool("kill_switch", s.KillSwitchActivated),
		zap.Duration("duration", s.Duration),
	)
}

// noStore is used when no database is configured.
type noStore struct{}

func (noStore) GetCompany(context.Context, model.CompanyKey) (*model.Company, error) {
	return nil, nil
}

func (noStore) UpsertCompany(context.Context, *model.Company) (string, error) {
	return "", nil
}

func (noStore) UpdateCompanyVerdict(context.Context, string, model.CompanyVerdict) error {
	return nil
}

func (noStore) ListWholesaleCompanies(context.Context) ([]model.Company, error) {
	return nil, nil
}

func (noStore) SavePerson(context.Context, *model.Person) (string, error) {
	return "", nil
}

func (noStore) UpdatePerson(context.Context, string, model.PersonUpdate) error {
	return nil
}

func (noStore) ListQualifiedPersons(context.Context, model.CompanyKey) ([]model.Person, error) {
	return nil, nil
}

func (noStore) Migrate(context.Context) error { return nil }

func (noStore) Close() error { return nil }
