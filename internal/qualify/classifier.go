package qualify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-magnet/internal/model"
	"github.com/sells-group/lead-magnet/internal/resilience"
	"github.com/sells-group/lead-magnet/pkg/anthropic"
	"github.com/sells-group/lead-magnet/pkg/openrouter"
)

// maxBundleContent caps the scraped text placed in a prompt.
const maxBundleContent = 12000

// Completer sends one system/user prompt pair to a language model.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
	Name() string
}

// OpenRouterCompleter runs prompts through OpenRouter chat completions.
type OpenRouterCompleter struct {
	Client      openrouter.Client
	Model       string
	MaxTokens   int
	Temperature float64
}

// Complete implements Completer.
func (o *OpenRouterCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := o.Client.Chat(ctx, openrouter.ChatRequest{
		Model:       o.Model,
		System:      system,
		User:        user,
		MaxTokens:   o.MaxTokens,
		Temperature: o.Temperature,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Name implements Completer.
func (o *OpenRouterCompleter) Name() string { return "openrouter:" + o.Model }

// AnthropicCompleter runs prompts through the Anthropic Messages API.
type AnthropicCompleter struct {
	Client      anthropic.Client
	Model       string
	MaxTokens   int64
	Temperature float64
}

// Complete implements Completer.
func (a *AnthropicCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	temp := a.Temperature
	resp, err := a.Client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       a.Model,
		MaxTokens:   a.MaxTokens,
		System:      system,
		Messages:    []anthropic.Message{{Role: "user", Content: user}},
		Temperature: &temp,
	})
	if err != nil {
		return "", err
	}
	resp.Usage.LogCost(a.Model, "qualify")
	return resp.Text(), nil
}

// Name implements Completer.
func (a *AnthropicCompleter) Name() string { return "anthropic:" + a.Model }

// WholesaleResult is the outcome of the wholesale check.
type WholesaleResult struct {
	Passed   bool
	Response string
}

// ProductFitResult is the outcome of the keyword/product-fit check.
type ProductFitResult struct {
	Verdict  model.QualificationVerdict
	Response string
}

// Classifier runs the two qualification checks against a Completer. Any
// failure degrades to a false verdict carrying the error text.
type Classifier struct {
	completer Completer
	prompts   *Prompts
	breaker   *resilience.CircuitBreaker
	retry     resilience.RetryConfig
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithRetry overrides the retry policy for classifier calls.
func WithRetry(cfg resilience.RetryConfig) ClassifierOption {
	return func(c *Classifier) { c.retry = cfg }
}

// WithBreaker overrides the circuit breaker guarding classifier calls.
func WithBreaker(cb *resilience.CircuitBreaker) ClassifierOption {
	return func(c *Classifier) { c.breaker = cb }
}

// NewClassifier creates a Classifier. Nil prompts fall back to the embedded
// defaults.
func NewClassifier(completer Completer, prompts *Prompts, opts ...ClassifierOption) (*Classifier, error) {
	if prompts == nil {
		p, err := DefaultPrompts()
		if err != nil {
			return nil, err
		}
		prompts = p
	}
	c := &Classifier{
		completer: completer,
		prompts:   prompts,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     time.Minute,
			OnStateChange: func(from, to resilience.CircuitState) {
				zap.L().Warn("qualify: classifier circuit state changed",
					zap.String("backend", completer.Name()),
					zap.Stringer("from", from),
					zap.Stringer("to", to),
				)
			},
		}),
		retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: 2 * time.Second,
			MaxBackoff:     30 * time.Second,
			Multiplier:     2,
			JitterFraction: 0.1,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger(completer.Name(), "classify")
	}
	return c, nil
}

// CheckWholesale asks whether the company resells multiple brands.
func (c *Classifier) CheckWholesale(ctx context.Context, company *model.Company, content string) WholesaleResult {
	text, err := c.ask(ctx, &c.prompts.Wholesale, promptData{Company: CompanyBundle(company, content)})
	if err != nil {
		zap.L().Warn("qualify: wholesale check failed",
			zap.String("company", company.Name),
			zap.Error(err),
		)
		return WholesaleResult{Passed: false, Response: "classifier error: " + err.Error()}
	}
	return WholesaleResult{Passed: ParseWholesale(text), Response: text}
}

// CheckProductFit asks whether the company's products fit the keywords.
func (c *Classifier) CheckProductFit(ctx context.Context, company *model.Company, content string, keywords []string, ourContext string) ProductFitResult {
	text, err := c.ask(ctx, &c.prompts.ProductFit, promptData{
		Company:    CompanyBundle(company, content),
		Keywords:   strings.Join(keywords, ", "),
		OurCompany: strings.TrimSpace(ourContext),
	})
	if err != nil {
		zap.L().Warn("qualify: product fit check failed",
			zap.String("company", company.Name),
			zap.Error(err),
		)
		return ProductFitResult{
			Verdict:  model.QualificationVerdict{Categories: []string{}, Segments: []string{}},
			Response: "classifier error: " + err.Error(),
		}
	}
	return ProductFitResult{Verdict: ParseVerdict(text), Response: text}
}

func (c *Classifier) ask(ctx context.Context, pair *PromptPair, data promptData) (string, error) {
	user, err := pair.render(data)
	if err != nil {
		return "", err
	}
	text, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (string, error) {
		return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (string, error) {
			return c.completer.Complete(ctx, pair.System, user)
		})
	})
	if err != nil {
		return "", eris.Wrapf(err, "qualify: %s", c.completer.Name())
	}
	if strings.TrimSpace(text) == "" {
		return "", eris.Errorf("qualify: %s returned an empty response", c.completer.Name())
	}
	return text, nil
}

// CompanyBundle renders the company fields and scraped content as the
// description block sent to the classifier.
func CompanyBundle(c *model.Company, content string) string {
	var b strings.Builder
	line := func(label, v string) {
		if v = strings.TrimSpace(v); v != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, v)
		}
	}
	line("Company", c.Name)
	line("Website", c.URL())
	line("Industry", c.Industry)
	line("Size", c.Size)
	line("Location", c.Location)
	line("Description", c.Description)

	content = strings.TrimSpace(content)
	if len(content) > maxBundleContent {
		content = truncateRunes(content, maxBundleContent)
	}
	if content != "" {
		b.WriteString("\n")
		b.WriteString(content)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

// truncateRunes cuts s to at most n bytes without splitting a rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
