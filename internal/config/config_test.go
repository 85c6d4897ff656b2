package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Server.MaxConcurrentRuns)
	assert.Equal(t, "https://api.prospeo.io", cfg.Prospeo.BaseURL)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.OpenRouter.BaseURL)
	assert.Equal(t, "openai/gpt-oss-20b", cfg.OpenRouter.Model)
	assert.Equal(t, "openrouter", cfg.Classifier.Backend)
	assert.Equal(t, 50, cfg.Loop.TargetCount)
	assert.Equal(t, 500, cfg.Loop.MaxProcessed)
	assert.Equal(t, 25, cfg.Loop.PageSize)
	assert.Equal(t, 100, cfg.Loop.PersonLimit)
	assert.Equal(t, 100, cfg.Loop.MaxPages)
	assert.Equal(t, 180, cfg.Loop.ContentTTLDays)
	assert.True(t, cfg.Loop.ResurfaceCached)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 60000, cfg.Retry.InitialBackoffMs)
	assert.Equal(t, 10, cfg.Scrape.TimeoutSecs)
	assert.Equal(t, "./output", cfg.Output.Dir)
	assert.Equal(t, "qualified_leads", cfg.Output.CSVPrefix)
	assert.Equal(t, []string{"csv"}, cfg.Output.Formats)
	assert.Equal(t, "https://login.salesforce.com", cfg.Salesforce.LoginURL)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
  format: console
loop:
  target_count: 10
  max_processed: 40
output:
  formats: [csv, xlsx]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 10, cfg.Loop.TargetCount)
	assert.Equal(t, 40, cfg.Loop.MaxProcessed)
	assert.True(t, cfg.Output.HasFormat("xlsx"))
	assert.True(t, cfg.Output.HasFormat("CSV"))
	assert.False(t, cfg.Output.HasFormat("notion"))
	// Defaults still apply for unset values
	assert.Equal(t, 25, cfg.Loop.PageSize)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("LEADMAGNET_STORE_DRIVER", "postgres")
	t.Setenv("LEADMAGNET_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func validConfig() *Config {
	return &Config{
		Store:      StoreConfig{Driver: "sqlite"},
		Prospeo:    ProspeoConfig{Key: "pk"},
		OpenRouter: OpenRouterConfig{Key: "ok"},
		Classifier: ClassifierConfig{Backend: "openrouter"},
		Slack:      SlackConfig{SigningSecret: "secret"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		mode    string
		wantErr string
	}{
		{name: "valid run", mutate: func(c *Config) {}, mode: "run"},
		{name: "valid serve", mutate: func(c *Config) {}, mode: "serve"},
		{name: "missing prospeo key", mutate: func(c *Config) { c.Prospeo.Key = "" }, mode: "run", wantErr: "prospeo.key"},
		{name: "missing openrouter key", mutate: func(c *Config) { c.OpenRouter.Key = "" }, mode: "run", wantErr: "openrouter.key"},
		{
			name: "anthropic backend needs anthropic key",
			mutate: func(c *Config) {
				c.Classifier.Backend = "anthropic"
			},
			mode:    "run",
			wantErr: "anthropic.key",
		},
		{name: "unknown backend", mutate: func(c *Config) { c.Classifier.Backend = "bard" }, mode: "run", wantErr: "unknown classifier backend"},
		{
			name: "postgres needs url",
			mutate: func(c *Config) {
				c.Store.Driver = "postgres"
			},
			mode:    "run",
			wantErr: "store.database_url",
		},
		{name: "serve needs signing secret", mutate: func(c *Config) { c.Slack.SigningSecret = "" }, mode: "serve", wantErr: "slack.signing_secret"},
		{name: "run ignores signing secret", mutate: func(c *Config) { c.Slack.SigningSecret = "" }, mode: "run"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate(tt.mode)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
