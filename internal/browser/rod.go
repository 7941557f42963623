package browser

import (
	"context"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rotisserie/eris"

	"github.com/sells-group/quickanswer/internal/resilience"
)

// rodEngine drives a local Chrome over CDP. Each render opens a fresh
// stealth tab and closes it afterwards.
type rodEngine struct {
	browser *rod.Browser
	lnch    *launcher.Launcher
	opts    Options
}

// LaunchRod starts a local headless Chrome with automation markers hidden.
// The browser process outlives ctx; Session.Close stops it. Start failures
// are marked transient so the session's launch retry tries again.
func LaunchRod(ctx context.Context, opts Options) (Engine, error) {
	l := launcher.New().
		Context(context.WithoutCancel(ctx)).
		Headless(opts.Headless).
		Set("disable-blink-features", "AutomationControlled")
	if opts.BinPath != "" {
		l = l.Bin(opts.BinPath)
	}

	u, err := l.Launch()
	if err != nil {
		return nil, resilience.Transient(eris.Wrap(err, "rod: launch"))
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, resilience.Transient(eris.Wrap(err, "rod: connect"))
	}
	return &rodEngine{browser: b, lnch: l, opts: opts}, nil
}

// Render implements Engine.
func (e *rodEngine) Render(ctx context.Context, url string) (string, error) {
	page, err := stealth.Page(e.browser)
	if err != nil {
		return "", &FaultError{Err: eris.Wrap(err, "rod: open tab")}
	}
	defer func() { _ = page.Close() }()

	if e.opts.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: e.opts.UserAgent}); err != nil {
			return "", eris.Wrap(err, "rod: set user agent")
		}
	}

	p := page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return "", eris.Wrap(err, "rod: navigate")
	}
	if err := p.WaitLoad(); err != nil {
		return "", eris.Wrap(err, "rod: wait load")
	}

	if e.opts.Settle > 0 {
		select {
		case <-ctx.Done():
			return "", eris.Wrap(ctx.Err(), "rod: settle")
		case <-time.After(e.opts.Settle):
		}
	}

	res, err := p.Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", eris.Wrap(err, "rod: read document")
	}
	return res.Value.Str(), nil
}

// Close implements Engine.
func (e *rodEngine) Close() error {
	err := e.browser.Close()
	e.lnch.Cleanup()
	if err != nil {
		return eris.Wrap(err, "rod: close browser")
	}
	return nil
}
