package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-magnet/internal/config"
)

func TestInitExporter_FileSinks(t *testing.T) {
	c := &config.Config{Output: config.OutputConfig{
		Dir:       t.TempDir(),
		CSVPrefix: "qualified_leads",
		Formats:   []string{"CSV", " xlsx "},
	}}
	e, err := initExporter(c)
	require.NoError(t, err)
	assert.Equal(t, []string{"csv", "xlsx"}, e.Sinks())

	c.Output.Formats = nil
	e, err = initExporter(c)
	require.NoError(t, err)
	assert.Equal(t, []string{"csv"}, e.Sinks())
}

func TestInitExporter_NotionNeedsConfig(t *testing.T) {
	c := &config.Config{Output: config.OutputConfig{Formats: []string{"notion"}}}
	_, err := initExporter(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notion.lead_db")

	c.Notion = config.NotionConfig{Token: "secret", LeadDB: "db-1", RPS: 3}
	e, err := initExporter(c)
	require.NoError(t, err)
	assert.Equal(t, []string{"csv", "notion"}, e.Sinks())
}

func TestInitSalesforce_RequiresClientID(t *testing.T) {
	_, err := initSalesforce(config.SalesforceConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client ID is required")

	_, err = initSalesforce(config.SalesforceConfig{ClientID: "id", KeyPath: filepath.Join(t.TempDir(), "missing.pem")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read salesforce JWT private key")
}

func TestInitClassifier(t *testing.T) {
	c := &config.Config{
		Classifier: config.ClassifierConfig{Backend: "openrouter", MaxTokens: 512},
		OpenRouter: config.OpenRouterConfig{Key: "k", BaseURL: "http://localhost", Model: "m"},
	}
	cl, err := initClassifier(c)
	require.NoError(t, err)
	assert.NotNil(t, cl)

	c.Classifier.Backend = "anthropic"
	c.Anthropic = config.AnthropicConfig{Key: "k", Model: "m"}
	cl, err = initClassifier(c)
	require.NoError(t, err)
	assert.NotNil(t, cl)

	c.Classifier.Backend = "llama"
	_, err = initClassifier(c)
	assert.Error(t, err)
}

func TestInitExtractor(t *testing.T) {
	c := &config.Config{Scrape: config.ScrapeConfig{TimeoutSecs: 5, JinaFallback: true}}
	assert.NotNil(t, initExtractor(c))
	assert.Equal(t, "", initExtractor(c).Content(context.Background(), ""))
}

func TestInitStore(t *testing.T) {
	orig := cfg
	t.Cleanup(func() { cfg = orig })

	cfg = &config.Config{Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "leads.db")}}
	st, err := initStore(context.Background())
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	require.NoError(t, st.Close())

	cfg = &config.Config{Store: config.StoreConfig{Driver: "mysql"}}
	_, err = initStore(context.Background())
	assert.ErrorContains(t, err, "unsupported store driver")
}
