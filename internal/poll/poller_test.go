package poll

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/quickanswer/internal/extract"
	"github.com/sells-group/quickanswer/internal/fetch"
	"github.com/sells-group/quickanswer/internal/model"
	"github.com/sells-group/quickanswer/internal/validate"
)

const (
	loadingPage = `<html><body><div class="b_ans"><p>Thinking about your question...</p></div></body></html>`
	answerPage  = `<html><body><div class="b_ans"><p>Paris is the capital of France.</p>` +
		`<span>Email this answer</span> <span>Share Answer</span></div></body></html>`
)

// stubFetcher answers each call from a script keyed by 1-based call number.
type stubFetcher struct {
	mu     sync.Mutex
	calls  []model.Endpoint
	script func(call int, ep model.Endpoint) (string, error)
}

func (f *stubFetcher) Name() string { return "stub" }

func (f *stubFetcher) Fetch(_ context.Context, ep model.Endpoint) (*model.Snapshot, error) {
	f.mu.Lock()
	f.calls = append(f.calls, ep)
	n := len(f.calls)
	f.mu.Unlock()

	html, err := f.script(n, ep)
	if err != nil {
		return nil, err
	}
	return &model.Snapshot{Endpoint: ep, URL: ep.URL, StatusCode: 200, HTML: []byte(html)}, nil
}

func (f *stubFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func pagesFrom(pages ...string) func(int, model.Endpoint) (string, error) {
	return func(call int, _ model.Endpoint) (string, error) {
		if call > len(pages) {
			return pages[len(pages)-1], nil
		}
		return pages[call-1], nil
	}
}

func newTarget(t *testing.T, eps ...model.Endpoint) model.Target {
	t.Helper()
	q, err := model.NewQuery("capital of France")
	require.NoError(t, err)
	if len(eps) == 0 {
		eps = []model.Endpoint{{Name: "bing", URL: "https://www.bing.com/search?q=capital%20of%20France&form=QBRE"}}
	}
	return model.Target{Query: q, Endpoints: eps}
}

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.sleeps = append(r.sleeps, d)
	r.mu.Unlock()
	return ctx.Err()
}

func newPoller(t *testing.T, f fetch.Fetcher, opts ...Option) *Poller {
	t.Helper()
	chain, err := extract.NewChain()
	require.NoError(t, err)
	return NewPoller(f, chain, validate.New(nil), opts...)
}

func TestRun_SucceedsOnThirdAttempt(t *testing.T) {
	f := &stubFetcher{script: pagesFrom(loadingPage, loadingPage, answerPage)}
	rec := &sleepRecorder{}
	s := NewSession("s1", newTarget(t), Config{MaxAttempts: 5, Interval: time.Second, PerCallTimeout: 500 * time.Millisecond})

	require.NoError(t, newPoller(t, f, WithSleep(rec.sleep)).Run(context.Background(), s))

	assert.Equal(t, StateSucceeded, s.State())
	assert.Equal(t, 3, f.count(), "no fetch after acceptance")
	assert.Equal(t, []time.Duration{time.Second, time.Second}, rec.sleeps)

	accepted, ok := s.Accepted()
	require.True(t, ok)
	assert.Equal(t, 3, accepted.Index)
	assert.Equal(t, "Paris is the capital of France.", accepted.Candidate.Text)
	assert.Equal(t, string(extract.PrimaryContainer), accepted.Candidate.Strategy)

	history := s.History()
	require.Len(t, history, 3)
	for i, h := range history {
		assert.Equal(t, i+1, h.Index)
	}
	assert.Equal(t, model.ReasonLoading, history[0].Verdict.Reason)
	assert.Equal(t, model.ReasonLoading, history[1].Verdict.Reason)
	assert.Empty(t, s.Reason())
}

func TestRun_ExhaustsWithZeroInterval(t *testing.T) {
	f := &stubFetcher{script: pagesFrom(loadingPage)}
	s := NewSession("s2", newTarget(t), Config{MaxAttempts: 3, Interval: 0, PerCallTimeout: time.Second})

	require.NoError(t, newPoller(t, f).Run(context.Background(), s))

	assert.Equal(t, StateExhausted, s.State())
	assert.Equal(t, model.FailureExhausted, s.Reason())
	assert.Equal(t, 3, s.Attempts())
	assert.Equal(t, 3, f.count())
	_, ok := s.Accepted()
	assert.False(t, ok)
}

func TestRun_FetchErrorsAreRecorded(t *testing.T) {
	f := &stubFetcher{script: func(call int, _ model.Endpoint) (string, error) {
		switch call {
		case 1:
			return "", fetch.TransportError(errors.New("connection refused"))
		case 2:
			return "", fetch.StatusError(503, errors.New("unavailable"))
		case 3:
			return `<html><body><p>nothing here</p></body></html>`, nil
		}
		return answerPage, nil
	}}
	s := NewSession("s3", newTarget(t), Config{MaxAttempts: 5, Interval: 0, PerCallTimeout: time.Second})

	require.NoError(t, newPoller(t, f).Run(context.Background(), s))
	require.Equal(t, StateSucceeded, s.State())

	h := s.History()
	require.Len(t, h, 4)
	assert.Equal(t, model.ErrorKindTransport, h[0].Fetch.Kind)
	assert.False(t, h[0].Fetch.OK)
	assert.Equal(t, model.ErrorKindStatus, h[1].Fetch.Kind)
	assert.Equal(t, 503, h[1].Fetch.StatusCode)
	assert.True(t, h[2].Fetch.OK)
	assert.Nil(t, h[2].Candidate)
	assert.Equal(t, "no_candidate", h[2].Diagnostic())
	assert.True(t, h[3].Accepted())
}

func TestRun_CancelledBeforeFirstAttempt(t *testing.T) {
	f := &stubFetcher{script: pagesFrom(answerPage)}
	s := NewSession("s4", newTarget(t), DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, newPoller(t, f).Run(ctx, s))

	assert.Equal(t, StateCancelled, s.State())
	assert.Equal(t, model.FailureCancelled, s.Reason())
	assert.Equal(t, 0, f.count())
}

func TestRun_CancelledDuringWait(t *testing.T) {
	f := &stubFetcher{script: pagesFrom(loadingPage)}
	s := NewSession("s5", newTarget(t), Config{MaxAttempts: 5, Interval: time.Hour, PerCallTimeout: time.Second})

	p := newPoller(t, f)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, s) }()

	require.Eventually(t, func() bool { return s.Attempts() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not observe cancellation")
	}
	assert.Equal(t, StateCancelled, s.State())
	assert.Equal(t, 1, f.count())
}

func TestRun_DeadlineExceeded(t *testing.T) {
	// The fetch ignores its context and outlives the whole session budget.
	f := &stubFetcher{script: func(int, model.Endpoint) (string, error) {
		time.Sleep(150 * time.Millisecond)
		return loadingPage, nil
	}}
	s := NewSession("s6", newTarget(t), Config{MaxAttempts: 1, Interval: 30 * time.Millisecond, PerCallTimeout: 10 * time.Millisecond})

	require.NoError(t, newPoller(t, f).Run(context.Background(), s))

	assert.Equal(t, StateExhausted, s.State())
	assert.Equal(t, model.FailureDeadlineExceeded, s.Reason())
	assert.Equal(t, 1, s.Attempts())
}

func TestRun_PerCallTimeout(t *testing.T) {
	var remaining time.Duration
	f := &deadlineFetcher{seen: &remaining}
	s := NewSession("s7", newTarget(t), Config{MaxAttempts: 1, Interval: time.Second, PerCallTimeout: 200 * time.Millisecond})

	require.NoError(t, newPoller(t, f).Run(context.Background(), s))

	assert.Greater(t, remaining, time.Duration(0))
	assert.LessOrEqual(t, remaining, 200*time.Millisecond)
	h := s.History()
	require.Len(t, h, 1)
	assert.Equal(t, model.ErrorKindTransport, h[0].Fetch.Kind)
}

type deadlineFetcher struct {
	seen *time.Duration
}

func (f *deadlineFetcher) Name() string { return "deadline" }

func (f *deadlineFetcher) Fetch(ctx context.Context, _ model.Endpoint) (*model.Snapshot, error) {
	if dl, ok := ctx.Deadline(); ok {
		*f.seen = time.Until(dl)
	}
	<-ctx.Done()
	return nil, fetch.TransportError(ctx.Err())
}

func TestRun_EndpointsInOrder(t *testing.T) {
	primary := model.Endpoint{Name: "primary", URL: "https://a.example/?q=x"}
	fallback := model.Endpoint{Name: "fallback", URL: "https://b.example/?q=x"}
	f := &stubFetcher{script: func(_ int, ep model.Endpoint) (string, error) {
		if ep.Name == "primary" {
			return "", fetch.StatusError(404, errors.New("not found"))
		}
		return answerPage, nil
	}}
	s := NewSession("s8", newTarget(t, primary, fallback), Config{MaxAttempts: 3, Interval: 0, PerCallTimeout: time.Second})

	require.NoError(t, newPoller(t, f).Run(context.Background(), s))

	require.Equal(t, StateSucceeded, s.State())
	assert.Equal(t, []model.Endpoint{primary, fallback}, f.calls)
	accepted, ok := s.Accepted()
	require.True(t, ok)
	assert.Equal(t, 1, accepted.Index)
	assert.Equal(t, "fallback", accepted.Endpoint.Name)
}

type leasingFetcher struct {
	stubFetcher
	leases, releases int
}

func (f *leasingFetcher) Lease(context.Context) (func(), error) {
	f.leases++
	return func() { f.releases++ }, nil
}

func TestRun_LeasesOncePerSession(t *testing.T) {
	f := &leasingFetcher{stubFetcher: stubFetcher{script: pagesFrom(loadingPage)}}
	s := NewSession("s9", newTarget(t), Config{MaxAttempts: 4, Interval: 0, PerCallTimeout: time.Second})

	require.NoError(t, newPoller(t, f).Run(context.Background(), s))
	assert.Equal(t, 4, f.count())
	assert.Equal(t, 1, f.leases)
	assert.Equal(t, 1, f.releases)
}

func TestRun_Misuse(t *testing.T) {
	f := &stubFetcher{script: pagesFrom(answerPage)}
	p := newPoller(t, f)
	cfg := Config{MaxAttempts: 1, Interval: 0, PerCallTimeout: time.Second}

	s := NewSession("once", newTarget(t), cfg)
	require.NoError(t, p.Run(context.Background(), s))
	require.Error(t, p.Run(context.Background(), s), "a session runs once")

	err := p.Run(context.Background(), NewSession("bad", newTarget(t), Config{}))
	require.Error(t, err)

	empty := newTarget(t)
	empty.Endpoints = nil
	require.Error(t, p.Run(context.Background(), NewSession("none", empty, cfg)))
}

func TestRun_FixedPastClock(t *testing.T) {
	fixed := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	f := &stubFetcher{script: pagesFrom(loadingPage, answerPage)}
	s := NewSession("frozen", newTarget(t), Config{MaxAttempts: 3, Interval: 0, PerCallTimeout: time.Second})

	require.NoError(t, newPoller(t, f, WithClock(func() time.Time { return fixed })).Run(context.Background(), s))

	assert.Equal(t, StateSucceeded, s.State())
	assert.Equal(t, 2, f.count())
	assert.Equal(t, fixed.Add(s.Config.Budget()), s.Deadline())
}

func TestRun_Clock(t *testing.T) {
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tick := 0
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	f := &stubFetcher{script: pagesFrom(answerPage)}
	s := NewSession("clock", newTarget(t), Config{MaxAttempts: 2, Interval: 0, PerCallTimeout: time.Second})
	require.NoError(t, newPoller(t, f, WithClock(clock)).Run(context.Background(), s))

	// start, attempt timestamp, finish
	assert.Equal(t, base.Add(time.Second), s.StartedAt())
	assert.Equal(t, base.Add(time.Second).Add(s.Config.Budget()), s.Deadline())
	assert.Equal(t, 2*time.Second, s.Elapsed())
	assert.Equal(t, base.Add(2*time.Second), s.History()[0].Timestamp)
}
