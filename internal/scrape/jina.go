package scrape

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-magnet/internal/resilience"
	"github.com/sells-group/lead-magnet/pkg/jina"
)

var challengeSignatures = []string{
	"checking your browser",
	"enable javascript",
	"please enable cookies",
	"access denied",
	"403 forbidden",
	"just a moment",
	"cloudflare",
	"attention required",
}

// JinaExtractor reads a site through Jina Reader. It sits behind a circuit
// breaker: repeated failures skip it until the reset timeout elapses.
type JinaExtractor struct {
	client  jina.Client
	breaker *resilience.CircuitBreaker
}

// NewJinaExtractor wraps a Jina client. Three consecutive failures open the
// circuit for a minute.
func NewJinaExtractor(client jina.Client) *JinaExtractor {
	return &JinaExtractor{
		client: client,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: 3,
			ResetTimeout:     time.Minute,
			OnStateChange: func(from, to resilience.CircuitState) {
				zap.L().Warn("scrape: jina circuit state changed",
					zap.Stringer("from", from),
					zap.Stringer("to", to),
				)
			},
		}),
	}
}

func (j *JinaExtractor) Name() string { return "jina" }

// Supports returns false while the circuit is open.
func (j *JinaExtractor) Supports(_ string) bool {
	return j.breaker.State() != resilience.CircuitOpen
}

// Extract reads the page and maps the reader output onto a Page. Reader
// output is markdown, so it lands in MainContent.
func (j *JinaExtractor) Extract(ctx context.Context, targetURL string) (*Page, error) {
	return resilience.ExecuteVal(ctx, j.breaker, func(ctx context.Context) (*Page, error) {
		resp, err := j.client.Read(ctx, targetURL)
		if err != nil {
			return nil, err
		}
		if needsFallback(resp) {
			return nil, eris.Errorf("jina: unusable content for %s", targetURL)
		}
		return &Page{
			URL:             targetURL,
			Title:           resp.Data.Title,
			MainContent:     truncate(strings.TrimSpace(resp.Data.Content), MaxMainChars, "..."),
			MetaDescription: resp.Data.Description,
			Source:          j.Name(),
		}, nil
	})
}

// needsFallback reports whether a reader response is empty, an error, or a
// bot challenge page.
func needsFallback(resp *jina.ReadResponse) bool {
	if resp == nil {
		return true
	}
	if resp.Code != 0 && resp.Code != 200 {
		return true
	}

	content := strings.TrimSpace(resp.Data.Content)
	if len(content) < 100 {
		return true
	}

	lower := strings.ToLower(content)
	for _, sig := range challengeSignatures {
		if strings.Contains(lower, sig) && len(content) < 1000 {
			return true
		}
	}
	return false
}
