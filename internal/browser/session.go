// Package browser owns the headless browser used to render answer pages
// whose content only appears after client-side scripts run. There is one
// Session per process; callers lease it exclusively and it relaunches the
// browser after a crash.
package browser

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/quickanswer/internal/resilience"
)

// State is the lifecycle position of a Session.
type State int

const (
	Uninitialized State = iota
	Ready
	Failed
	Reinitializing
	Closed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	case Reinitializing:
		return "reinitializing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrClosed is returned by a Session after Close.
var ErrClosed = eris.New("browser: session closed")

// Engine renders a URL to its settled HTML.
type Engine interface {
	Render(ctx context.Context, url string) (string, error)
	Close() error
}

// Launcher starts an Engine.
type Launcher func(ctx context.Context, opts Options) (Engine, error)

// Options configures the browser.
type Options struct {
	Headless  bool
	UserAgent string
	// Settle is how long to wait after the load event for late content.
	Settle time.Duration
	// BinPath overrides the browser executable. Empty uses the launcher's
	// managed download.
	BinPath string
	// Launch bounds retries when starting the browser.
	Launch resilience.RetryConfig
}

// Session is the single owned browser resource.
type Session struct {
	opts   Options
	launch Launcher
	lease  chan struct{}

	mu       sync.Mutex
	state    State
	engine   Engine
	restarts int
}

// NewSession creates an uninitialized Session. The browser starts on first
// render. A nil launch uses go-rod.
func NewSession(opts Options, launch Launcher) *Session {
	if launch == nil {
		launch = LaunchRod
	}
	return &Session{
		opts:   opts,
		launch: launch,
		lease:  make(chan struct{}, 1),
	}
}

// Acquire blocks until the caller holds the session exclusively or ctx is
// done. release is idempotent.
func (s *Session) Acquire(ctx context.Context) (release func(), err error) {
	select {
	case s.lease <- struct{}{}:
	case <-ctx.Done():
		return nil, eris.Wrap(ctx.Err(), "browser: acquire session")
	}
	var once sync.Once
	return func() { once.Do(func() { <-s.lease }) }, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Restarts returns how many times the browser was relaunched after a fault.
func (s *Session) Restarts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}

// Start launches the browser if it is not already live. Callers pass a
// context that covers the whole query so a cold start is not bounded by a
// single render's timeout. Callers must hold the lease.
func (s *Session) Start(ctx context.Context) error {
	_, err := s.ready(ctx)
	return err
}

// Render returns the document HTML for url, starting or restarting the
// browser first if needed. Callers must hold the lease. A session fault
// marks the session failed so the next Render relaunches.
func (s *Session) Render(ctx context.Context, url string) (string, error) {
	eng, err := s.ready(ctx)
	if err != nil {
		return "", err
	}

	html, err := eng.Render(ctx, url)
	if err == nil {
		return html, nil
	}
	if ctx.Err() == nil && IsSessionFault(err) {
		s.fail(eng, err)
	}
	return "", eris.Wrapf(err, "browser: render %s", url)
}

// Close shuts the browser down. Later calls to Render return ErrClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Closed
	if s.engine == nil {
		return nil
	}
	err := s.engine.Close()
	s.engine = nil
	if err != nil {
		return eris.Wrap(err, "browser: close")
	}
	return nil
}

// ready returns a live engine, launching one while holding the state lock.
func (s *Session) ready(ctx context.Context) (Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Ready:
		return s.engine, nil
	case Closed:
		return nil, ErrClosed
	case Failed:
		s.state = Reinitializing
		zap.L().Info("browser: reinitializing after fault", zap.Int("restarts", s.restarts))
	}

	retry := s.opts.Launch
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.LogRetry("browser launch")
	}
	eng, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (Engine, error) {
		return s.launch(ctx, s.opts)
	})
	if err != nil {
		s.state = Failed
		return nil, eris.Wrap(err, "browser: launch")
	}
	if s.state == Reinitializing {
		s.restarts++
	}
	s.engine = eng
	s.state = Ready
	zap.L().Debug("browser: ready", zap.Bool("headless", s.opts.Headless))
	return eng, nil
}

func (s *Session) fail(eng Engine, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine != eng || s.state != Ready {
		return
	}
	zap.L().Warn("browser: session fault", zap.Error(cause))
	if err := eng.Close(); err != nil {
		zap.L().Debug("browser: close faulted engine", zap.Error(err))
	}
	s.engine = nil
	s.state = Failed
}

var faultMessages = []string{
	"websocket",
	"connection closed",
	"browser has disconnected",
	"target closed",
	"session closed",
	"context destroyed",
	"broken pipe",
	"connection reset",
	"use of closed network connection",
	"eof",
}

// IsSessionFault reports whether err means the browser itself is unusable,
// as opposed to a single page failing to load.
func IsSessionFault(err error) bool {
	if err == nil {
		return false
	}
	var f *FaultError
	if errors.As(err, &f) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range faultMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// FaultError marks an engine error as fatal to the browser process.
type FaultError struct {
	Err error
}

func (e *FaultError) Error() string { return "browser fault: " + e.Err.Error() }

func (e *FaultError) Unwrap() error { return e.Err }
