package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/quickanswer/internal/browser"
	"github.com/sells-group/quickanswer/internal/model"
	"github.com/sells-group/quickanswer/internal/resilience"
)

type scriptedFetcher struct {
	calls atomic.Int32
	err   func(n int32) error
}

func (f *scriptedFetcher) Name() string { return "scripted" }

func (f *scriptedFetcher) Fetch(_ context.Context, ep model.Endpoint) (*model.Snapshot, error) {
	n := f.calls.Add(1)
	if f.err != nil {
		if err := f.err(n); err != nil {
			return nil, err
		}
	}
	return &model.Snapshot{Endpoint: ep, HTML: []byte(answerPage)}, nil
}

func TestGuarded_OpensOnTransportFailures(t *testing.T) {
	next := &scriptedFetcher{err: func(int32) error { return TransportError(errors.New("connection refused")) }}
	g := NewGuarded(next, resilience.BreakerConfig{Failures: 2, Cooldown: time.Minute})
	ctx := context.Background()
	ep := endpoint("https://www.bing.com/search?q=x")

	for range 2 {
		_, err := g.Fetch(ctx, ep)
		require.Error(t, err)
	}
	require.Equal(t, int32(2), next.calls.Load())

	_, err := g.Fetch(ctx, ep)
	fe := requireFetchError(t, err)
	assert.Equal(t, model.ErrorKindTransport, fe.Kind)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), next.calls.Load(), "open breaker must not reach the network")
	assert.Equal(t, resilience.Open, g.States()["test"])
}

func TestGuarded_PlainStatusDoesNotTrip(t *testing.T) {
	next := &scriptedFetcher{err: func(int32) error { return StatusError(404, errors.New("not found")) }}
	g := NewGuarded(next, resilience.BreakerConfig{Failures: 1, Cooldown: time.Minute})

	for range 3 {
		_, err := g.Fetch(context.Background(), endpoint("https://example.com"))
		assert.Equal(t, model.ErrorKindStatus, requireFetchError(t, err).Kind)
	}
	assert.Equal(t, int32(3), next.calls.Load())
}

func TestGuarded_AnswerMentioningRateLimitsStaysClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(rateLimitArticle))
	}))
	defer srv.Close()

	g := NewGuarded(NewHTTPFetcher(HTTPOptions{}), resilience.BreakerConfig{Failures: 1, Cooldown: time.Minute})
	for range 3 {
		_, err := g.Fetch(context.Background(), endpoint(srv.URL))
		require.NoError(t, err)
	}
	assert.Equal(t, resilience.Closed, g.States()["test"])
}

func TestGuarded_PerEndpoint(t *testing.T) {
	next := &scriptedFetcher{err: func(int32) error { return TransportError(errors.New("i/o timeout")) }}
	g := NewGuarded(next, resilience.BreakerConfig{Failures: 1, Cooldown: time.Minute})
	ctx := context.Background()

	_, _ = g.Fetch(ctx, model.Endpoint{Name: "primary", URL: "https://a.example"})
	_, _ = g.Fetch(ctx, model.Endpoint{Name: "fallback", URL: "https://b.example"})
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestTripsBreaker(t *testing.T) {
	blocked := StatusError(403, errors.New("anti-bot page"))
	blocked.Block = BlockCaptcha

	assert.False(t, tripsBreaker(nil))
	assert.False(t, tripsBreaker(TransportError(context.Canceled)))
	assert.True(t, tripsBreaker(TransportError(errors.New("no such host"))))
	assert.True(t, tripsBreaker(StatusError(503, errors.New("unavailable"))))
	assert.True(t, tripsBreaker(blocked))
	assert.False(t, tripsBreaker(StatusError(404, errors.New("gone"))))
}

type pageEngine struct {
	html string
	err  error
}

func (e pageEngine) Render(context.Context, string) (string, error) { return e.html, e.err }
func (e pageEngine) Close() error                                   { return nil }

func browserSession(eng pageEngine) *browser.Session {
	return browser.NewSession(browser.Options{}, func(context.Context, browser.Options) (browser.Engine, error) {
		return eng, nil
	})
}

func TestBrowserFetcher(t *testing.T) {
	f := NewBrowserFetcher(browserSession(pageEngine{html: answerPage}))
	snap, err := f.Fetch(context.Background(), endpoint("https://www.bing.com/search?q=capital"))
	require.NoError(t, err)
	assert.Equal(t, answerPage, string(snap.HTML))
	assert.Equal(t, "browser", snap.Source)
	assert.Equal(t, "https://www.bing.com/search?q=capital", snap.URL)
}

func TestBrowserFetcher_Errors(t *testing.T) {
	f := NewBrowserFetcher(browserSession(pageEngine{err: errors.New("net::ERR_TIMED_OUT")}))
	_, err := f.Fetch(context.Background(), endpoint("https://example.com"))
	assert.Equal(t, model.ErrorKindTransport, requireFetchError(t, err).Kind)

	f = NewBrowserFetcher(browserSession(pageEngine{html: `<form id="challenge-form" class="cf-challenge"></form>`}))
	_, err = f.Fetch(context.Background(), endpoint("https://example.com"))
	fe := requireFetchError(t, err)
	assert.Equal(t, model.ErrorKindStatus, fe.Kind)
	assert.Equal(t, BlockCloudflare, fe.Block)
}

func TestLease(t *testing.T) {
	release, err := Lease(context.Background(), NewHTTPFetcher(HTTPOptions{}))
	require.NoError(t, err)
	release()

	bf := NewBrowserFetcher(browserSession(pageEngine{html: answerPage}))
	g := NewGuarded(bf, resilience.DefaultBreakerConfig())

	release, err = Lease(context.Background(), g)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = Lease(ctx, bf)
	assert.Equal(t, model.ErrorKindTransport, requireFetchError(t, err).Kind)

	release()
	release, err = Lease(context.Background(), bf)
	require.NoError(t, err)
	release()
}

func TestLease_StartsBrowserBeforeFirstFetch(t *testing.T) {
	session := browser.NewSession(browser.Options{}, func(ctx context.Context, _ browser.Options) (browser.Engine, error) {
		select {
		case <-time.After(100 * time.Millisecond):
			return pageEngine{html: answerPage}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	bf := NewBrowserFetcher(session)

	release, err := Lease(context.Background(), bf)
	require.NoError(t, err)
	defer release()
	assert.Equal(t, browser.Ready, session.State())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	snap, err := bf.Fetch(ctx, endpoint("https://www.bing.com/search?q=capital"))
	require.NoError(t, err)
	assert.Equal(t, answerPage, string(snap.HTML))
}

func TestLease_LaunchFailureReleases(t *testing.T) {
	session := browser.NewSession(browser.Options{
		Launch: resilience.RetryConfig{Attempts: 1},
	}, func(context.Context, browser.Options) (browser.Engine, error) {
		return nil, errors.New("chrome: executable not found")
	})
	bf := NewBrowserFetcher(session)

	_, err := Lease(context.Background(), bf)
	assert.Equal(t, model.ErrorKindTransport, requireFetchError(t, err).Kind)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	release, err := session.Acquire(ctx)
	require.NoError(t, err, "a failed start must not keep the lease")
	release()
}
