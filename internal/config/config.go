package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Prospeo    ProspeoConfig    `yaml:"prospeo" mapstructure:"prospeo"`
	OpenRouter OpenRouterConfig `yaml:"openrouter" mapstructure:"openrouter"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Classifier ClassifierConfig `yaml:"classifier" mapstructure:"classifier"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Scrape     ScrapeConfig     `yaml:"scrape" mapstructure:"scrape"`
	Loop       LoopConfig       `yaml:"loop" mapstructure:"loop"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Slack      SlackConfig      `yaml:"slack" mapstructure:"slack"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ProspeoConfig holds Prospeo API settings.
type ProspeoConfig struct {
	Key        string  `yaml:"key" mapstructure:"key"`
	BaseURL    string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit  float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSec int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// OpenRouterConfig holds OpenRouter (OpenAI-compatible) settings.
type OpenRouterConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
	Referer string `yaml:"referer" mapstructure:"referer"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// ClassifierConfig selects and tunes the qualification classifier.
type ClassifierConfig struct {
	// Backend is "openrouter" or "anthropic".
	Backend     string  `yaml:"backend" mapstructure:"backend"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	PromptsPath string  `yaml:"prompts_path" mapstructure:"prompts_path"`
}

// JinaConfig holds Jina AI Reader settings (scrape fallback).
type JinaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// ScrapeConfig configures website content extraction.
type ScrapeConfig struct {
	TimeoutSecs  int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent    string `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes int64  `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	JinaFallback bool   `yaml:"jina_fallback" mapstructure:"jina_fallback"`
}

// LoopConfig configures the qualification loop.
type LoopConfig struct {
	TargetCount     int  `yaml:"target_count" mapstructure:"target_count"`
	MaxProcessed    int  `yaml:"max_processed" mapstructure:"max_processed"`
	PageSize        int  `yaml:"page_size" mapstructure:"page_size"`
	PersonLimit     int  `yaml:"person_limit" mapstructure:"person_limit"`
	MaxPages        int  `yaml:"max_pages" mapstructure:"max_pages"`
	ContentTTLDays  int  `yaml:"content_ttl_days" mapstructure:"content_ttl_days"`
	ResurfaceCached bool `yaml:"resurface_cached" mapstructure:"resurface_cached"`
}

// RetryConfig configures provider retry behavior on rate limits.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// SlackConfig holds Slack app credentials.
type SlackConfig struct {
	SigningSecret string `yaml:"signing_secret" mapstructure:"signing_secret"`
	BotToken      string `yaml:"bot_token" mapstructure:"bot_token"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port              int      `yaml:"port" mapstructure:"port"`
	MaxConcurrentRuns int      `yaml:"max_concurrent_runs" mapstructure:"max_concurrent_runs"`
	AllowedOrigins    []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	APIKey            string   `yaml:"api_key" mapstructure:"api_key"`
}

// OutputConfig configures lead export sinks.
type OutputConfig struct {
	Dir       string   `yaml:"dir" mapstructure:"dir"`
	CSVPrefix string   `yaml:"csv_prefix" mapstructure:"csv_prefix"`
	Formats   []string `yaml:"formats" mapstructure:"formats"`
}

// NotionConfig holds Notion API credentials for the lead export sink.
type NotionConfig struct {
	Token  string  `yaml:"token" mapstructure:"token"`
	LeadDB string  `yaml:"lead_db" mapstructure:"lead_db"`
	RPS    float64 `yaml:"rps" mapstructure:"rps"`
}

// SalesforceConfig holds Salesforce JWT auth settings for the lead export sink.
type SalesforceConfig struct {
	ClientID   string `yaml:"client_id" mapstructure:"client_id"`
	Username   string `yaml:"username" mapstructure:"username"`
	KeyPath    string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL   string `yaml:"login_url" mapstructure:"login_url"`
	LeadSource string `yaml:"lead_source" mapstructure:"lead_source"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADMAGNET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.max_concurrent_runs", 4)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("prospeo.base_url", "https://api.prospeo.io")
	v.SetDefault("prospeo.rate_limit", 2.0)
	v.SetDefault("prospeo.timeout_secs", 30)
	v.SetDefault("openrouter.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("openrouter.model", "openai/gpt-oss-20b")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("classifier.backend", "openrouter")
	v.SetDefault("classifier.max_tokens", 1024)
	v.SetDefault("classifier.temperature", 0.0)
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("scrape.timeout_secs", 10)
	v.SetDefault("scrape.user_agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("scrape.max_body_bytes", 2<<20)
	v.SetDefault("scrape.jina_fallback", true)
	v.SetDefault("loop.target_count", 50)
	v.SetDefault("loop.max_processed", 500)
	v.SetDefault("loop.page_size", 25)
	v.SetDefault("loop.person_limit", 100)
	v.SetDefault("loop.max_pages", 100)
	v.SetDefault("loop.content_ttl_days", 180)
	v.SetDefault("loop.resurface_cached", true)
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.initial_backoff_ms", 60000)
	v.SetDefault("retry.max_backoff_ms", 300000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.1)
	v.SetDefault("output.dir", "./output")
	v.SetDefault("output.csv_prefix", "qualified_leads")
	v.SetDefault("output.formats", []string{"csv"})
	v.SetDefault("notion.rps", 3.0)
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.lead_source", "Lead Magnet")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the keys required by the given mode are present.
// Modes: "run" (one-off CLI search) and "serve" (Slack server).
func (c *Config) Validate(mode string) error {
	var missing []string
	if c.Prospeo.Key == "" {
		missing = append(missing, "prospeo.key")
	}
	switch c.Classifier.Backend {
	case "openrouter":
		if c.OpenRouter.Key == "" {
			missing = append(missing, "openrouter.key")
		}
	case "anthropic":
		if c.Anthropic.Key == "" {
			missing = append(missing, "anthropic.key")
		}
	default:
		return eris.Errorf("config: unknown classifier backend %q", c.Classifier.Backend)
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		missing = append(missing, "store.database_url")
	}
	if mode == "serve" && c.Slack.SigningSecret == "" {
		missing = append(missing, "slack.signing_secret")
	}
	if len(missing) > 0 {
		return eris.Errorf("config: missing required keys for %s: %s", mode, strings.Join(missing, ", "))
	}
	return nil
}

// HasFormat reports whether the named export format is enabled.
func (o OutputConfig) HasFormat(name string) bool {
	for _, f := range o.Formats {
		if strings.EqualFold(strings.TrimSpace(f), name) {
			return true
		}
	}
	return false
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
