// Package notion writes qualified leads into a Notion database.
package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client reads and writes the lead pages of one Notion database.
type Client interface {
	// HasLead reports whether a page with the lead key already exists.
	HasLead(ctx context.Context, key string) (bool, error)
	// CreateLead adds a lead page and returns its id.
	CreateLead(ctx context.Context, lead LeadPage) (string, error)
}

// pageAPI is the part of the Notion API the lead database uses.
type pageAPI interface {
	Query(ctx context.Context, id notionapi.DatabaseID, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	Create(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
}

// sdkPages joins the SDK's database and page services.
type sdkPages struct {
	inner *notionapi.Client
}

func (p sdkPages) Query(ctx context.Context, id notionapi.DatabaseID, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	return p.inner.Database.Query(ctx, id, req)
}

func (p sdkPages) Create(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	return p.inner.Page.Create(ctx, req)
}

// ClientOption configures the Notion client.
type ClientOption func(*leadDB)

// WithRateLimit overrides the default rate limit of 3 req/s. A non-positive
// rate disables limiting.
func WithRateLimit(rps float64) ClientOption {
	return func(c *leadDB) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

type leadDB struct {
	api     pageAPI
	dbID    notionapi.DatabaseID
	limiter *rate.Limiter
}

// NewClient creates a Client for the lead database dbID using the
// integration token.
func NewClient(token, dbID string, opts ...ClientOption) Client {
	c := &leadDB{
		api:     sdkPages{inner: notionapi.NewClient(notionapi.Token(token))},
		dbID:    notionapi.DatabaseID(dbID),
		limiter: rate.NewLimiter(3, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *leadDB) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "notion: rate limit")
	}
	return nil
}
