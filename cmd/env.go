package main

import (
	"context"
	"os"
	"time"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-magnet/internal/config"
	"github.com/sells-group/lead-magnet/internal/db"
	"github.com/sells-group/lead-magnet/internal/dispatch"
	"github.com/sells-group/lead-magnet/internal/export"
	"github.com/sells-group/lead-magnet/internal/leads"
	"github.com/sells-group/lead-magnet/internal/qualify"
	"github.com/sells-group/lead-magnet/internal/resilience"
	"github.com/sells-group/lead-magnet/internal/scrape"
	"github.com/sells-group/lead-magnet/internal/slack"
	"github.com/sells-group/lead-magnet/internal/store"
	anthropicpkg "github.com/sells-group/lead-magnet/pkg/anthropic"
	"github.com/sells-group/lead-magnet/pkg/jina"
	"github.com/sells-group/lead-magnet/pkg/notion"
	"github.com/sells-group/lead-magnet/pkg/openrouter"
	"github.com/sells-group/lead-magnet/pkg/prospeo"
	sfpkg "github.com/sells-group/lead-magnet/pkg/salesforce"
)

// appEnv holds everything the serve and run commands need.
type appEnv struct {
	Store      store.LeadStore
	Processor  *leads.Processor
	Exporter   *export.Exporter
	Dispatcher *dispatch.Dispatcher
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initApp validates config for mode, opens and migrates the store, and wires
// the qualification loop, exporters and dispatcher. Callers should defer
// env.Close().
func initApp(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	retry := resilience.FromConfig(cfg.Retry)
	retry.OnRetry = resilience.RetryLogger("prospeo", "request")
	prospeoClient := prospeo.NewClient(cfg.Prospeo.Key,
		prospeo.WithBaseURL(cfg.Prospeo.BaseURL),
		prospeo.WithRateLimit(cfg.Prospeo.RateLimit),
		prospeo.WithRetry(retry),
	)

	classifier, err := initClassifier(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	exporter, err := initExporter(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	proc := leads.New(prospeoClient, prospeoClient, classifier, initExtractor(cfg), st, loopOptions(cfg.Loop))

	disp := dispatch.New(proc, exporter, slack.NewResponseNotifier(), dispatch.Options{
		MaxConcurrent: cfg.Server.MaxConcurrentRuns,
	})

	zap.L().Info("lead magnet ready",
		zap.String("store", cfg.Store.Driver),
		zap.String("classifier", cfg.Classifier.Backend),
		zap.Strings("exports", exporter.Sinks()),
	)

	return &appEnv{Store: st, Processor: proc, Exporter: exporter, Dispatcher: disp}, nil
}

func initStore(ctx context.Context) (store.LeadStore, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "lead-magnet.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, db.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initClassifier(c *config.Config) (*qualify.Classifier, error) {
	var prompts *qualify.Prompts
	var err error
	if c.Classifier.PromptsPath != "" {
		prompts, err = qualify.LoadPrompts(c.Classifier.PromptsPath)
	} else {
		prompts, err = qualify.DefaultPrompts()
	}
	if err != nil {
		return nil, err
	}

	var completer qualify.Completer
	switch c.Classifier.Backend {
	case "anthropic":
		completer = &qualify.AnthropicCompleter{
			Client:      anthropicpkg.NewClient(c.Anthropic.Key),
			Model:       c.Anthropic.Model,
			MaxTokens:   int64(c.Classifier.MaxTokens),
			Temperature: c.Classifier.Temperature,
		}
	case "openrouter":
		completer = &qualify.OpenRouterCompleter{
			Client: openrouter.NewClient(c.OpenRouter.Key,
				openrouter.WithBaseURL(c.OpenRouter.BaseURL),
				openrouter.WithAppInfo(c.OpenRouter.Referer, "Lead Magnet"),
			),
			Model:       c.OpenRouter.Model,
			MaxTokens:   c.Classifier.MaxTokens,
			Temperature: c.Classifier.Temperature,
		}
	default:
		return nil, eris.Errorf("unknown classifier backend %q", c.Classifier.Backend)
	}

	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		OnStateChange: func(from, to resilience.CircuitState) {
			zap.L().Warn("classifier circuit changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return qualify.NewClassifier(completer, prompts,
		qualify.WithRetry(resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: 2 * time.Second,
			MaxBackoff:     20 * time.Second,
			Multiplier:     2,
			JitterFraction: 0.1,
		}),
		qualify.WithBreaker(breaker),
	)
}

// initExtractor builds the website content chain: local fetch first, Jina
// Reader as fallback when enabled.
func initExtractor(c *config.Config) *scrape.Chain {
	extractors := []scrape.Extractor{
		scrape.NewLocalExtractor(
			scrape.WithTimeout(time.Duration(c.Scrape.TimeoutSecs)*time.Second),
			scrape.WithUserAgent(c.Scrape.UserAgent),
			scrape.WithMaxBodyBytes(c.Scrape.MaxBodyBytes),
		),
	}
	if c.Scrape.JinaFallback {
		extractors = append(extractors, scrape.NewJinaExtractor(
			jina.NewClient(c.Jina.Key, jina.WithBaseURL(c.Jina.BaseURL)),
		))
	}
	return scrape.NewChain(extractors...)
}

func initExporter(c *config.Config) (*export.Exporter, error) {
	// CSV is always written; other formats are opt-in.
	sinks := []export.Sink{export.NewCSVSink(c.Output.Dir, c.Output.CSVPrefix)}
	if c.Output.HasFormat("xlsx") {
		sinks = append(sinks, export.NewXLSXSink(c.Output.Dir, c.Output.CSVPrefix))
	}
	if c.Output.HasFormat("notion") {
		if c.Notion.Token == "" || c.Notion.LeadDB == "" {
			return nil, eris.New("notion export requires notion.token and notion.lead_db")
		}
		sinks = append(sinks, export.NewNotionSink(
			notion.NewClient(c.Notion.Token, c.Notion.LeadDB, notion.WithRateLimit(c.Notion.RPS)),
		))
	}
	if c.Output.HasFormat("salesforce") {
		sf, err := initSalesforce(c.Salesforce)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, export.NewSalesforceSink(sf, c.Salesforce.LeadSource))
	}
	return export.New(sinks...), nil
}

func initSalesforce(c config.SalesforceConfig) (sfpkg.Client, error) {
	if c.ClientID == "" {
		return nil, eris.New("salesforce client ID is required (LEADMAGNET_SALESFORCE_CLIENT_ID)")
	}

	pemData, err := os.ReadFile(c.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         c.LoginURL,
		Username:       c.Username,
		ConsumerKey:    c.ClientID,
		ConsumerRSAPem: string(pemData),
	})
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}

	return sfpkg.NewClient(sf), nil
}

func loopOptions(c config.LoopConfig) leads.Options {
	opts := leads.DefaultOptions()
	opts.PageSize = c.PageSize
	opts.PersonLimit = c.PersonLimit
	opts.MaxPages = c.MaxPages
	opts.ContentTTL = time.Duration(c.ContentTTLDays) * 24 * time.Hour
	opts.ResurfaceCached = c.ResurfaceCached
	return opts
}

func commandDefaults(c config.LoopConfig) slack.Defaults {
	return slack.Defaults{TargetCount: c.TargetCount, MaxProcessed: c.MaxProcessed}
}
