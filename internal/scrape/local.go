package scrape

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// DefaultUserAgent is a desktop browser UA; many storefronts reject bots.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

var (
	navSelectors  = []string{"nav", "header nav", ".navigation", ".menu", "#menu", ".navbar"}
	mainSelectors = []string{"main", ".main-content", "#main", ".content", "article", "body"}
	productSels   = []string{".product", ".item", `[class*="product"]`, `[class*="item"]`}

	positiveBrandTerms = []string{"brands", "companies we carry", "shop by brand", "all brands"}
	negativeBrandTerms = []string{"dealer sign up", "become a distributor", "where to buy", "stockists", "retail partners"}
)

// LocalExtractor fetches HTML directly and parses it with goquery.
type LocalExtractor struct {
	client    *http.Client
	userAgent string
	maxBody   int64
}

// LocalOption configures a LocalExtractor.
type LocalOption func(*LocalExtractor)

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) LocalOption {
	return func(l *LocalExtractor) {
		if d > 0 {
			l.client.Timeout = d
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) LocalOption {
	return func(l *LocalExtractor) {
		if ua != "" {
			l.userAgent = ua
		}
	}
}

// WithMaxBodyBytes caps how much of the response body is read.
func WithMaxBodyBytes(n int64) LocalOption {
	return func(l *LocalExtractor) {
		if n > 0 {
			l.maxBody = n
		}
	}
}

// NewLocalExtractor creates a LocalExtractor with a 10s timeout.
func NewLocalExtractor(opts ...LocalOption) *LocalExtractor {
	l := &LocalExtractor{
		client:    &http.Client{Timeout: 10 * time.Second},
		userAgent: DefaultUserAgent,
		maxBody:   2 << 20,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *LocalExtractor) Name() string           { return "local_http" }
func (l *LocalExtractor) Supports(_ string) bool { return true }

// Extract fetches a URL, rejects bot challenges and parses the landing page.
func (l *LocalExtractor) Extract(ctx context.Context, targetURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: create request")
	}
	req.Header.Set("User-Agent", l.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBody))
	if err != nil {
		return nil, eris.Wrap(err, "local_http: read body")
	}

	if blocked, kind := DetectBlock(resp, body); blocked {
		return nil, eris.Errorf("local_http: blocked (%s)", kind)
	}
	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("local_http: status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "local_http: parse html")
	}

	page := ParseDocument(doc)
	page.URL = targetURL
	page.Source = l.Name()
	if page.Title == "" && page.MainContent == "" && page.MetaDescription == "" {
		return nil, eris.New("local_http: empty page")
	}
	return page, nil
}

// ParseDocument extracts a Page from a parsed HTML document. The main
// content pass removes script, style, nav, footer and header elements from
// doc, so the other sections are read first.
func ParseDocument(doc *goquery.Document) *Page {
	p := &Page{
		Title:           strings.TrimSpace(doc.Find("title").First().Text()),
		Navigation:      extractNavigation(doc),
		Footer:          extractFooter(doc),
		ProductListings: extractProducts(doc),
		MetaDescription: strings.TrimSpace(doc.Find(`meta[name="description"]`).AttrOr("content", "")),
	}
	p.BrandPositive, p.BrandNegative = extractBrandSignals(doc)
	p.MainContent = extractMainContent(doc)
	return p
}

func extractNavigation(doc *goquery.Document) string {
	var items []string
	seen := make(map[string]bool)
	add := func(text string) {
		if text != "" && !seen[text] {
			seen[text] = true
			items = append(items, text)
		}
	}
	for _, sel := range navSelectors {
		nav := doc.Find(sel).First()
		nav.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			add(collapse(a.Text()))
		})
	}
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		class := strings.ToLower(a.AttrOr("class", ""))
		if strings.Contains(class, "menu") || strings.Contains(class, "nav") {
			add(collapse(a.Text()))
		}
	})
	if len(items) > MaxNavItems {
		items = items[:MaxNavItems]
	}
	return strings.Join(items, " | ")
}

func extractFooter(doc *goquery.Document) string {
	footer := doc.Find("footer").First()
	if footer.Length() == 0 {
		return ""
	}
	return truncate(joinText(footer, " | "), MaxFooterChars, "")
}

func extractMainContent(doc *goquery.Document) string {
	doc.Find("script, style, noscript, nav, footer, header").Remove()
	var best string
	for _, sel := range mainSelectors {
		el := doc.Find(sel).First()
		if el.Length() == 0 {
			continue
		}
		if text := joinText(el, " "); len(text) > len(best) {
			best = text
		}
	}
	return truncate(best, MaxMainChars, "...")
}

func extractProducts(doc *goquery.Document) string {
	var out []string
	seen := make(map[string]bool)
	for _, sel := range productSels {
		matches := doc.Find(sel)
		matches.Slice(0, min(matches.Length(), 10)).Each(func(_ int, item *goquery.Selection) {
			title := collapse(item.Find("h1, h2, h3, h4, .title, .name, a").First().Text())
			if title != "" && !seen[title] {
				seen[title] = true
				out = append(out, title)
			}
		})
	}
	if len(out) > MaxProducts {
		out = out[:MaxProducts]
	}
	return strings.Join(out, " | ")
}

// extractBrandSignals finds multi-brand retailer links and brand filters
// (positive) and dealer or stockist language typical of manufacturers
// (negative).
func extractBrandSignals(doc *goquery.Document) (positive, negative string) {
	var pos []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		text := collapse(a.Text())
		lt := strings.ToLower(text)
		href := strings.ToLower(a.AttrOr("href", ""))
		for _, term := range positiveBrandTerms {
			if strings.Contains(lt, term) || strings.Contains(href, term) {
				pos = append(pos, text)
				break
			}
		}
	})
	doc.Find("select").Each(func(_ int, s *goquery.Selection) {
		name := strings.ToLower(s.AttrOr("name", "") + " " + s.AttrOr("id", ""))
		if !strings.Contains(name, "brand") {
			return
		}
		if n := s.Find("option").Length(); n > 1 {
			pos = append(pos, "Brand filter with "+strconv.Itoa(n)+" options")
		}
	})

	var neg []string
	doc.Find("body").Find("*").Contents().Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) != "#text" {
			return
		}
		text := strings.TrimSpace(s.Text())
		lt := strings.ToLower(text)
		for _, term := range negativeBrandTerms {
			if strings.Contains(lt, term) {
				neg = append(neg, truncate(text, 100, ""))
				break
			}
		}
	})

	if len(pos) > MaxBrandSignals {
		pos = pos[:MaxBrandSignals]
	}
	if len(neg) > MaxBrandSignals {
		neg = neg[:MaxBrandSignals]
	}
	return strings.Join(pos, " | "), strings.Join(neg, " | ")
}

// joinText concatenates the trimmed text nodes under sel with sep.
func joinText(sel *goquery.Selection, sep string) string {
	var parts []string
	var walk func(s *goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			switch goquery.NodeName(c) {
			case "#text":
				if t := collapse(c.Text()); t != "" {
					parts = append(parts, t)
				}
			case "script", "style", "noscript", "#comment":
			default:
				walk(c)
			}
		})
	}
	walk(sel)
	return strings.Join(parts, sep)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// DetectBlock reports whether a response looks like an anti-bot challenge
// rather than the site itself.
func DetectBlock(resp *http.Response, body []byte) (bool, string) {
	if resp == nil {
		return false, ""
	}
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		if resp.Header.Get("cf-ray") != "" || strings.EqualFold(resp.Header.Get("server"), "cloudflare") {
			return true, "cloudflare"
		}
	}

	lower := strings.ToLower(string(body))
	switch {
	case strings.Contains(lower, "checking your browser"),
		strings.Contains(lower, "cf-browser-verification"),
		strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge"):
		return true, "cloudflare"
	case strings.Contains(lower, "g-recaptcha"), strings.Contains(lower, "h-captcha"),
		strings.Contains(lower, "complete the captcha"), strings.Contains(lower, "complete the recaptcha"):
		return true, "captcha"
	}
	if len(body) < 2000 && strings.Contains(lower, "<noscript") && strings.Contains(lower, "enable javascript") {
		return true, "js_shell"
	}
	return false, ""
}
