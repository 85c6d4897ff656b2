// Package prospeo provides a client for the Prospeo company search, person
// search and email enrichment APIs.
package prospeo

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
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/lead-magnet/internal/resilience"
)

const defaultBaseURL = "https://api.prospeo.io"

// Client defines the Prospeo operations used by the qualification loop.
type Client interface {
	// SearchCompanies fetches one page of companies matching filters.
	SearchCompanies(ctx context.Context, page, limit int, filters CompanyFilters) (*CompanyPage, error)
	// SearchPersons fetches persons at one company, optionally filtered by
	// seniority.
	SearchPersons(ctx context.Context, company CompanyRef, seniority []string, limit int) (*PersonPage, error)
	// EnrichPerson returns the verified email of a person, or "" when none
	// is available.
	EnrichPerson(ctx context.Context, personID string) (string, error)
}

// FilterError reports filter values the API rejected. Retrying cannot fix
// it; the caller should surface it to the user.
type FilterError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("prospeo: invalid filters (%s): %s", e.Code, e.Message)
}

// IsFilterError reports whether err wraps a *FilterError.
func IsFilterError(err error) bool {
	var fe *FilterError
	return errors.As(err, &fe)
}

// Option configures the Prospeo client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		if url != "" {
			c.baseURL = strings.TrimSuffix(url, "/")
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRateLimit paces requests to rps per second. Zero disables pacing.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

// WithRetry overrides the retry policy for rate limits and server errors.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) { c.retry = cfg }
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates a Prospeo client. Requests are paced at 2 req/s and
// 429/5xx responses are retried with bounded exponential backoff.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(2, 1),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger("prospeo", "request")
	}
	return c
}

func (c *httpClient) SearchCompanies(ctx context.Context, page, limit int, filters CompanyFilters) (*CompanyPage, error) {
	payload := map[string]any{
		"page":    page,
		"limit":   limit,
		"filters": filters.Build(),
	}
	var resp searchResponse
	if err := c.post(ctx, "/search-company", payload, &resp); err != nil {
		return nil, eris.Wrapf(err, "prospeo: search companies page %d", page)
	}

	items := resp.items()
	out := &CompanyPage{Page: page, Companies: make([]Company, 0, len(items)), HasMore: resp.hasMore(page)}
	for _, raw := range items {
		co, err := decodeCompany(raw)
		if err != nil {
			zap.L().Warn("prospeo: skipping undecodable company", zap.Int("page", page), zap.Error(err))
			continue
		}
		out.Companies = append(out.Companies, co)
	}
	return out, nil
}

func (c *httpClient) SearchPersons(ctx context.Context, company CompanyRef, seniority []string, limit int) (*PersonPage, error) {
	scope := map[string]any{}
	switch {
	case company.ID != "":
		scope["ids"] = []string{company.ID}
	case company.Name != "":
		scope["names"] = []string{company.Name}
	}
	if company.Domain != "" {
		scope["websites"] = []string{company.Domain}
	}
	if len(scope) == 0 {
		return nil, eris.New("prospeo: search persons needs a company id, name or domain")
	}

	filters := map[string]any{"company": scope}
	if s := nonEmpty(seniority); len(s) > 0 {
		filters["person_seniority"] = includeFilter{Include: s}
	}
	payload := map[string]any{
		"page":    1,
		"limit":   limit,
		"filters": filters,
	}

	var resp searchResponse
	if err := c.post(ctx, "/search-person", payload, &resp); err != nil {
		return nil, eris.Wrapf(err, "prospeo: search persons at %s", firstNonEmpty(company.ID, company.Name, company.Domain))
	}

	items := resp.items()
	out := &PersonPage{Persons: make([]Person, 0, len(items)), HasMore: resp.hasMore(1)}
	for _, raw := range items {
		p, err := decodePerson(raw)
		if err != nil {
			zap.L().Warn("prospeo: skipping undecodable person", zap.Error(err))
			continue
		}
		out.Persons = append(out.Persons, p)
	}
	return out, nil
}

func (c *httpClient) EnrichPerson(ctx context.Context, personID string) (string, error) {
	if personID == "" {
		return "", eris.New("prospeo: enrich person requires an id")
	}
	var resp struct {
		Error  bool            `json:"error"`
		Email  json.RawMessage `json:"email"`
		Person *struct {
			Email json.RawMessage `json:"email"`
		} `json:"person"`
	}
	if err := c.post(ctx, "/enrich-person", map[string]any{"person_id": personID}, &resp); err != nil {
		return "", eris.Wrapf(err, "prospeo: enrich person %s", personID)
	}
	if resp.Person != nil {
		if email := emailValue(resp.Person.Email); email != "" {
			return email, nil
		}
	}
	return emailValue(resp.Email), nil
}

// post sends a JSON request with pacing and bounded retry, decoding the
// response into out.
func (c *httpClient) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "marshal request")
	}

	data, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "rate limit")
			}
		}
		return c.do(ctx, path, body)
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "decode response")
	}
	return nil
}

func (c *httpClient) do(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("X-KEY", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "post %s", path)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "read response body")
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}

	if fe := parseFilterError(resp.StatusCode, data); fe != nil {
		return nil, fe
	}
	statusErr := eris.Errorf("%s: status %d: %s", path, resp.StatusCode, truncate(string(data), 300))
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		te := resilience.NewTransientError(statusErr, resp.StatusCode)
		te.RetryAfter = resilience.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		return nil, te
	}
	return nil, statusErr
}

// parseFilterError recognizes the API's invalid-filter responses.
func parseFilterError(status int, body []byte) *FilterError {
	if status != http.StatusBadRequest {
		return nil
	}
	var e struct {
		ErrorCode string `json:"error_code"`
		Message   string `json:"message"`
		FilterErr string `json:"filter_error"`
	}
	_ = json.Unmarshal(body, &e)
	text := string(body)
	if e.ErrorCode != "INVALID_FILTERS" && e.FilterErr == "" && !strings.Contains(text, "filter_error") && !strings.Contains(text, "INVALID_FILTERS") {
		return nil
	}
	msg := firstNonEmpty(e.FilterErr, e.Message, truncate(text, 300))
	return &FilterError{StatusCode: status, Code: firstNonEmpty(e.ErrorCode, "INVALID_FILTERS"), Message: msg}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
