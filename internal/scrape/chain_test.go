package scrape

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockExtractor struct {
	name     string
	supports bool
	page     *Page
	err      error
	calls    int
	lastURL  string
}

func (m *mockExtractor) Name() string           { return m.name }
func (m *mockExtractor) Supports(_ string) bool { return m.supports }
func (m *mockExtractor) Extract(_ context.Context, url string) (*Page, error) {
	m.calls++
	m.lastURL = url
	return m.page, m.err
}

func TestChain_Extract_FirstSuccess(t *testing.T) {
	e1 := &mockExtractor{name: "primary", supports: true, page: &Page{Title: "Home", Source: "primary"}}
	e2 := &mockExtractor{name: "fallback", supports: true}

	page, err := NewChain(e1, e2).Extract(context.Background(), "acme.com")

	require.NoError(t, err)
	assert.Equal(t, "primary", page.Source)
	assert.Equal(t, "https://acme.com", e1.lastURL)
	assert.Zero(t, e2.calls)
}

func TestChain_Extract_FallbackOnError(t *testing.T) {
	e1 := &mockExtractor{name: "primary", supports: true, err: errors.New("blocked")}
	e2 := &mockExtractor{name: "fallback", supports: true, page: &Page{Source: "fallback"}}

	page, err := NewChain(e1, e2).Extract(context.Background(), "https://acme.com")

	require.NoError(t, err)
	assert.Equal(t, "fallback", page.Source)
	assert.Equal(t, 1, e1.calls)
}

func TestChain_Extract_SkipsUnsupported(t *testing.T) {
	e1 := &mockExtractor{name: "open-circuit", supports: false, page: &Page{Source: "open-circuit"}}
	e2 := &mockExtractor{name: "local", supports: true, page: &Page{Source: "local"}}

	page, err := NewChain(e1, e2).Extract(context.Background(), "https://acme.com")

	require.NoError(t, err)
	assert.Equal(t, "local", page.Source)
	assert.Zero(t, e1.calls)
}

func TestChain_Extract_AllFail(t *testing.T) {
	e1 := &mockExtractor{name: "a", supports: true, err: errors.New("a down")}
	e2 := &mockExtractor{name: "b", supports: true, err: errors.New("b down")}

	_, err := NewChain(e1, e2).Extract(context.Background(), "https://acme.com")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "all extractors failed")
	assert.Contains(t, err.Error(), "b down")
}

func TestChain_Extract_NoSupportingExtractor(t *testing.T) {
	e1 := &mockExtractor{name: "a", supports: false}

	_, err := NewChain(e1).Extract(context.Background(), "https://acme.com")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no suitable extractor")
}

func TestChain_Extract_EmptyURL(t *testing.T) {
	e1 := &mockExtractor{name: "a", supports: true, page: &Page{}}

	_, err := NewChain(e1).Extract(context.Background(), "  ")

	require.Error(t, err)
	assert.Zero(t, e1.calls)
}

func TestChain_Extract_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e1 := &mockExtractor{name: "a", supports: true, err: context.Canceled}
	e2 := &mockExtractor{name: "b", supports: true, page: &Page{}}

	_, err := NewChain(e1, e2).Extract(ctx, "https://acme.com")

	require.Error(t, err)
	assert.Zero(t, e2.calls)
}

func TestChain_Content(t *testing.T) {
	e1 := &mockExtractor{name: "a", supports: true, page: &Page{
		URL:         "https://acme.com",
		Title:       "Acme Vapor",
		Navigation:  "Shop | Brands",
		MainContent: "We carry 40 brands.",
	}}

	got := NewChain(e1).Content(context.Background(), "acme.com")

	assert.Contains(t, got, "WEBSITE CONTENT ANALYSIS:")
	assert.Contains(t, got, "Page Title: Acme Vapor")
	assert.Contains(t, got, "NAVIGATION MENU ITEMS:\nShop | Brands")
	assert.Contains(t, got, "FOOTER CONTENT:\nNot found")
}

func TestChain_Content_FailureYieldsEmpty(t *testing.T) {
	e1 := &mockExtractor{name: "a", supports: true, err: errors.New("timeout")}

	assert.Empty(t, NewChain(e1).Content(context.Background(), "acme.com"))
}

func TestChain_Content_PlaceholderURL(t *testing.T) {
	e1 := &mockExtractor{name: "a", supports: true, page: &Page{}}

	assert.Empty(t, NewChain(e1).Content(context.Background(), "N/A"))
	assert.Zero(t, e1.calls)
}
