// Package salesforce writes qualified leads to Salesforce as Lead records.
package salesforce

import (
	"context"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client creates Lead records and checks which lead emails already exist.
type Client interface {
	// ExistingLeadEmails returns the lowercased subset of emails that
	// already belong to a Lead.
	ExistingLeadEmails(ctx context.Context, emails []string) (map[string]bool, error)
	// InsertLeads creates the leads in batches of 200.
	InsertLeads(ctx context.Context, leads []Lead) (InsertSummary, error)
}

// CollectionResult is the outcome of a single record in a collection insert.
type CollectionResult struct {
	ID      string
	Success bool
	Errors  []string
}

// sobjects is the part of the REST API the lead client calls.
type sobjects interface {
	query(ctx context.Context, soql string, out any) error
	insertCollection(ctx context.Context, sObjectName string, records []map[string]any) ([]CollectionResult, error)
}

// ClientOption configures the Salesforce client.
type ClientOption func(*restAPI)

// WithRateLimit sets a per-second rate limit for SF API calls.
func WithRateLimit(rps float64) ClientOption {
	return func(a *restAPI) {
		if rps > 0 {
			a.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

type leadClient struct {
	api sobjects
}

// NewClient creates a Client around an authenticated go-salesforce instance.
func NewClient(sf *salesforce.Salesforce, opts ...ClientOption) Client {
	a := &restAPI{sf: sf}
	for _, opt := range opts {
		opt(a)
	}
	return &leadClient{api: a}
}

// restAPI calls go-salesforce. The library takes no context, so ctx only
// bounds the rate limiter wait.
type restAPI struct {
	sf      *salesforce.Salesforce
	limiter *rate.Limiter
}

func (a *restAPI) wait(ctx context.Context) error {
	if a.limiter == nil {
		return nil
	}
	return a.limiter.Wait(ctx)
}

func (a *restAPI) query(ctx context.Context, soql string, out any) error {
	if err := a.wait(ctx); err != nil {
		return eris.Wrap(err, "sf: rate limit")
	}
	if err := a.sf.Query(soql, out); err != nil {
		return eris.Wrap(err, "sf: query")
	}
	return nil
}

func (a *restAPI) insertCollection(ctx context.Context, sObjectName string, records []map[string]any) ([]CollectionResult, error) {
	if err := a.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "sf: rate limit")
	}
	res, err := a.sf.InsertCollection(sObjectName, records, maxBatchSize)
	if err != nil {
		return nil, eris.Wrapf(err, "sf: insert collection %s", sObjectName)
	}

	out := make([]CollectionResult, len(res.Results))
	for i, r := range res.Results {
		var errs []string
		for _, e := range r.Errors {
			errs = append(errs, e.Message)
		}
		out[i] = CollectionResult{ID: r.Id, Success: r.Success, Errors: errs}
	}
	return out, nil
}
