package fetch

import (
	"context"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/time/rate"

	"github.com/sells-group/quickanswer/internal/model"
)

// DefaultUserAgent is a current desktop Chrome. Answer pages serve reduced
// markup to unknown agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// HTTPOptions configures an HTTPFetcher.
type HTTPOptions struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int64
	// RatePerSec limits outbound requests. Zero disables limiting.
	RatePerSec float64
	Client     *http.Client
}

// Limiter is a rate.Limiter that slows down after the remote answers 429 and
// recovers gradually on success.
type Limiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	initial rate.Limit
	current rate.Limit
}

// NewLimiter creates a Limiter allowing perSec requests per second.
func NewLimiter(perSec float64) *Limiter {
	l := rate.Limit(perSec)
	return &Limiter{limiter: rate.NewLimiter(l, 1), initial: l, current: l}
}

// Wait blocks until a request may be sent.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Throttled halves the rate, down to a quarter of the initial rate.
func (l *Limiter) Throttled() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.current = max(l.current/2, l.initial/4)
	l.limiter.SetLimit(l.current)
	zap.L().Warn("fetch: remote throttling, reducing request rate",
		zap.Float64("rate_per_sec", float64(l.current)),
	)
}

// Succeeded raises the rate by a fifth, up to the initial rate.
func (l *Limiter) Succeeded() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.current = min(l.current*1.2, l.initial)
	l.limiter.SetLimit(l.current)
}

// Limit returns the current rate.
func (l *Limiter) Limit() rate.Limit {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// HTTPFetcher retrieves raw HTML with a plain GET. It does not run scripts,
// so it sees whatever the server renders before client-side hydration.
type HTTPFetcher struct {
	client  *http.Client
	opts    HTTPOptions
	limiter *Limiter
}

// NewHTTPFetcher creates an HTTPFetcher.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 2 << 20
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	f := &HTTPFetcher{client: client, opts: opts}
	if opts.RatePerSec > 0 {
		f.limiter = NewLimiter(opts.RatePerSec)
	}
	return f
}

// Name implements Fetcher.
func (f *HTTPFetcher) Name() string { return "http" }

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, ep model.Endpoint) (*model.Snapshot, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, TransportError(eris.Wrap(err, "http: rate limiter wait"))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.URL, nil)
	if err != nil {
		return nil, TransportError(eris.Wrap(err, "http: create request"))
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, TransportError(eris.Wrap(err, "http: request"))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes))
	if err != nil {
		return nil, TransportError(eris.Wrap(err, "http: read body"))
	}

	if block := DetectBlock(resp, body); block != BlockNone {
		if block == BlockRateLimit && f.limiter != nil {
			f.limiter.Throttled()
		}
		e := StatusError(resp.StatusCode, eris.New("http: anti-bot page"))
		e.Block = block
		return nil, e
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, StatusError(resp.StatusCode, eris.Errorf("http: unexpected status %s", resp.Status))
	}
	if f.limiter != nil {
		f.limiter.Succeeded()
	}

	contentType := resp.Header.Get("Content-Type")
	return &model.Snapshot{
		Endpoint:    ep,
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		HTML:        decodeBody(body, contentType),
		FetchedAt:   time.Now().UTC(),
		Source:      f.Name(),
	}, nil
}

// decodeBody converts a declared non-UTF-8 charset to UTF-8. Unknown or
// undecodable charsets leave the body as received.
func decodeBody(body []byte, contentType string) []byte {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return body
	}
	cs := strings.ToLower(strings.TrimSpace(params["charset"]))
	if cs == "" || cs == "utf-8" || cs == "utf8" {
		return body
	}
	enc, err := htmlindex.Get(cs)
	if err != nil {
		zap.L().Debug("fetch: unknown charset", zap.String("charset", cs))
		return body
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return body
	}
	return out
}
