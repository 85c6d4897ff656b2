package scrape

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Chain tries extractors in priority order, returning the first success.
type Chain struct {
	extractors []Extractor
}

// NewChain creates a Chain. Extractors are tried in order.
func NewChain(extractors ...Extractor) *Chain {
	return &Chain{extractors: extractors}
}

// Extract tries each extractor for a URL. Returns the first successful
// page, or an error if all fail.
func (c *Chain) Extract(ctx context.Context, rawURL string) (*Page, error) {
	targetURL := NormalizeURL(rawURL)
	if targetURL == "" {
		return nil, eris.New("scrape: no url")
	}

	var lastErr error
	for _, e := range c.extractors {
		if !e.Supports(targetURL) {
			continue
		}
		page, err := e.Extract(ctx, targetURL)
		if err == nil && page != nil {
			return page, nil
		}
		if err != nil {
			zap.L().Debug("scrape: extractor failed, trying next",
				zap.String("extractor", e.Name()),
				zap.String("url", targetURL),
				zap.Error(err),
			)
			lastErr = err
		}
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "scrape: cancelled")
		}
	}
	if lastErr != nil {
		return nil, eris.Wrap(lastErr, "scrape: all extractors failed")
	}
	return nil, eris.Errorf("scrape: no suitable extractor for url: %s", targetURL)
}

// Content returns the classifier-ready text for a website. Failures are
// logged and yield "", so qualification proceeds without website content.
func (c *Chain) Content(ctx context.Context, rawURL string) string {
	if NormalizeURL(rawURL) == "" {
		return ""
	}
	page, err := c.Extract(ctx, rawURL)
	if err != nil {
		zap.L().Info("scrape: website content unavailable",
			zap.String("url", rawURL),
			zap.Error(err),
		)
		return ""
	}
	return Format(page)
}
