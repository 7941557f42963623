package answer

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/quickanswer/internal/browser"
	"github.com/sells-group/quickanswer/internal/config"
	"github.com/sells-group/quickanswer/internal/extract"
	"github.com/sells-group/quickanswer/internal/fetch"
	"github.com/sells-group/quickanswer/internal/poll"
	"github.com/sells-group/quickanswer/internal/resilience"
	"github.com/sells-group/quickanswer/internal/rules"
	"github.com/sells-group/quickanswer/internal/target"
	"github.com/sells-group/quickanswer/internal/validate"
)

// Build wires a Service from configuration. Callers should defer Close.
func Build(cfg *config.Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	set, err := rules.Load(cfg.Rules.File)
	if err != nil {
		return nil, err
	}

	chainOpts := []extract.Option{
		extract.WithSelectors(cfg.Extract.PrimarySelectors...),
		extract.WithRules(set),
	}
	if len(cfg.Extract.Strategies) > 0 {
		strategies, err := extract.ParseStrategies(cfg.Extract.Strategies)
		if err != nil {
			return nil, err
		}
		chainOpts = append(chainOpts, extract.WithStrategies(strategies...))
	}
	chain, err := extract.NewChain(chainOpts...)
	if err != nil {
		return nil, err
	}

	templates := make([]target.Template, 0, len(cfg.Target.Endpoints))
	for _, ep := range cfg.Target.Endpoints {
		templates = append(templates, target.Template{Name: ep.Name, URL: ep.URL})
	}
	resolver, err := target.NewResolver(templates)
	if err != nil {
		return nil, err
	}

	base, closer, err := buildFetcher(cfg)
	if err != nil {
		return nil, err
	}
	guarded := fetch.NewGuarded(base, resilience.BreakerConfig{
		Failures: cfg.Fetch.CircuitFailures,
		Cooldown: cfg.Fetch.CircuitReset,
	})

	pollCfg := poll.Config{
		MaxAttempts:    cfg.Poll.MaxAttempts,
		Interval:       cfg.Poll.Interval,
		PerCallTimeout: cfg.Poll.PerCallTimeout,
	}
	poller := poll.NewPoller(guarded, chain, validate.New(set))

	all := append([]Option{WithBreakers(guarded), WithCloser(closer)}, opts...)
	return New(resolver, poller, pollCfg, all...), nil
}

func buildFetcher(cfg *config.Config) (fetch.Fetcher, func() error, error) {
	switch cfg.Fetch.Mode {
	case config.FetchModeHTTP:
		return fetch.NewHTTPFetcher(fetch.HTTPOptions{
			UserAgent:    cfg.Fetch.UserAgent,
			Timeout:      cfg.Poll.PerCallTimeout,
			MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
			RatePerSec:   cfg.Fetch.RatePerSec,
		}), nil, nil
	case config.FetchModeBrowser:
		retry := resilience.DefaultRetryConfig()
		retry.Attempts = cfg.Browser.LaunchAttempts
		retry.Backoff = time.Second
		sess := browser.NewSession(browser.Options{
			Headless:  cfg.Browser.Headless,
			UserAgent: cfg.Fetch.UserAgent,
			Settle:    cfg.Browser.Settle,
			BinPath:   cfg.Browser.BinPath,
			Launch:    retry,
		}, nil)
		return fetch.NewBrowserFetcher(sess), sess.Close, nil
	default:
		return nil, nil, eris.Errorf("answer: unknown fetch mode %q", cfg.Fetch.Mode)
	}
}
