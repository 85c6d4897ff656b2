package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-magnet/internal/export"
	"github.com/sells-group/lead-magnet/internal/model"
	"github.com/sells-group/lead-magnet/internal/resilience"
	"github.com/sells-group/lead-magnet/pkg/prospeo"
)

// Notifier posts a message back to the user who triggered a run.
type Notifier interface {
	Post(ctx context.Context, responseURL, text string) error
}

// Message is the response_url payload.
type Message struct {
	Text         string `json:"text"`
	ResponseType string `json:"response_type,omitempty"`
}

// Option configures the response_url notifier.
type Option func(*ResponseNotifier)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(n *ResponseNotifier) {
		n.http = hc
	}
}

// WithRetry overrides the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(n *ResponseNotifier) {
		n.retry = cfg
	}
}

// ResponseNotifier posts ephemeral messages to a slash command response_url.
type ResponseNotifier struct {
	http  *http.Client
	retry resilience.RetryConfig
}

// NewResponseNotifier creates a ResponseNotifier.
func NewResponseNotifier(opts ...Option) *ResponseNotifier {
	n := &ResponseNotifier{
		http: &http.Client{Timeout: 5 * time.Second},
		retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Second,
			MaxBackoff:     4 * time.Second,
			Multiplier:     2,
		},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Post sends text to responseURL. An empty URL is a no-op.
func (n *ResponseNotifier) Post(ctx context.Context, responseURL, text string) error {
	if responseURL == "" {
		return nil
	}
	body, err := json.Marshal(Message{Text: text, ResponseType: "ephemeral"})
	if err != nil {
		return eris.Wrap(err, "slack: marshal message")
	}

	err = resilience.Do(ctx, n.retry, func(ctx context.Context) error {
		return n.post(ctx, responseURL, body)
	})
	return eris.Wrap(err, "slack: post to response_url")
}

func (n *ResponseNotifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "slack: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "slack: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	statusErr := eris.Errorf("slack: unexpected status %d", resp.StatusCode)
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return resilience.NewTransientError(statusErr, resp.StatusCode)
	}
	return statusErr
}

// FormatSummary renders the final run message.
func FormatSummary(res *model.RunResult, sinks []export.Report) string {
	s := res.Stats
	var b strings.Builder

	switch {
	case s.TargetReached:
		fmt.Fprintf(&b, "Lead search complete: target of %d reached.\n", res.Request.TargetCount)
	case s.KillSwitchActivated:
		fmt.Fprintf(&b, "Lead search stopped after evaluating %d companies (max reached).\n", s.CompaniesProcessed)
	default:
		b.WriteString("Lead search complete: no more matching companies.\n")
	}
	fmt.Fprintf(&b, "• Qualified leads: %d\n", s.QualifiedPersons)
	fmt.Fprintf(&b, "• Qualified companies: %d\n", s.QualifiedCompanies)
	fmt.Fprintf(&b, "• Companies evaluated: %d (skipped %d)\n", s.CompaniesProcessed, s.CompaniesSkipped)
	if s.CachedPersons > 0 {
		fmt.Fprintf(&b, "• Reused from earlier searches: %d\n", s.CachedPersons)
	}
	fmt.Fprintf(&b, "• Duration: %s\n", s.Duration.Round(time.Second))

	for _, sink := range sinks {
		if sink.Err != nil {
			fmt.Fprintf(&b, "• %s export failed: %s\n", sink.Name, sink.Err.Error())
			continue
		}
		if sink.Location != "" {
			fmt.Fprintf(&b, "• %s: %s\n", sink.Name, sink.Location)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatError renders a run failure. Filter errors get corrective guidance.
func FormatError(err error) string {
	if prospeo.IsFilterError(err) {
		return "Prospeo rejected the search filters: " + rootMessage(err) +
			"\n\nCheck the values against https://prospeo.io/api-docs/enum/industries or the dashboard \"API JSON\" builder, then try again."
	}
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.Error()
	}
	return "Lead search failed: " + rootMessage(err)
}

func rootMessage(err error) string {
	var fe *prospeo.FilterError
	if errors.As(err, &fe) {
		return fe.Message
	}
	return err.Error()
}
