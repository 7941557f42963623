package fetch

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/quickanswer/internal/browser"
	"github.com/sells-group/quickanswer/internal/model"
)

// BrowserFetcher renders endpoints in the shared browser session so content
// injected by client-side scripts is visible.
type BrowserFetcher struct {
	session *browser.Session
}

var _ Leaser = (*BrowserFetcher)(nil)

// NewBrowserFetcher creates a BrowserFetcher over session.
func NewBrowserFetcher(session *browser.Session) *BrowserFetcher {
	return &BrowserFetcher{session: session}
}

// Name implements Fetcher.
func (f *BrowserFetcher) Name() string { return "browser" }

// Lease implements Leaser. It also starts the browser under ctx, so the
// launch is bounded by the lease holder's deadline rather than by the first
// attempt's per-call timeout.
func (f *BrowserFetcher) Lease(ctx context.Context) (func(), error) {
	release, err := f.session.Acquire(ctx)
	if err != nil {
		return nil, TransportError(err)
	}
	if err := f.session.Start(ctx); err != nil {
		release()
		return nil, TransportError(err)
	}
	return release, nil
}

// Fetch implements Fetcher. Render failures are transport errors; a rendered
// anti-bot page is a status error.
func (f *BrowserFetcher) Fetch(ctx context.Context, ep model.Endpoint) (*model.Snapshot, error) {
	html, err := f.session.Render(ctx, ep.URL)
	if err != nil {
		return nil, TransportError(err)
	}
	body := []byte(html)
	if block := DetectBlock(nil, body); block != BlockNone {
		e := StatusError(0, eris.New("browser: anti-bot page"))
		e.Block = block
		return nil, e
	}
	return &model.Snapshot{
		Endpoint:    ep,
		URL:         ep.URL,
		ContentType: "text/html; charset=utf-8",
		HTML:        body,
		FetchedAt:   time.Now().UTC(),
		Source:      f.Name(),
	}, nil
}
