// Package poll drives repeated fetch, extract, and validate attempts against
// a document that fills in asynchronously, stopping at the first accepted
// answer, when the attempt budget runs out, or on cancellation.
package poll

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/quickanswer/internal/model"
)

// State is a session's position in the polling state machine.
type State string

const (
	StateIdle      State = "idle"
	StatePolling   State = "polling"
	StateSucceeded State = "succeeded"
	StateExhausted State = "exhausted"
	StateCancelled State = "cancelled"
)

// Terminal reports whether no further attempts can happen.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateExhausted || s == StateCancelled
}

var transitions = map[State][]State{
	StateIdle:    {StatePolling, StateCancelled, StateExhausted},
	StatePolling: {StateSucceeded, StateExhausted, StateCancelled},
}

// Config is the session-level polling budget.
type Config struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	Interval       time.Duration `mapstructure:"interval"`
	PerCallTimeout time.Duration `mapstructure:"per_call_timeout"`
}

// DefaultConfig polls ten times, two seconds apart.
func DefaultConfig() Config {
	return Config{MaxAttempts: 10, Interval: 2 * time.Second, PerCallTimeout: 1500 * time.Millisecond}
}

// Validate checks the budget. A per-call timeout must be shorter than a
// non-zero interval so one hung fetch cannot swallow the wait.
func (c Config) Validate() error {
	if c.MaxAttempts <= 0 {
		return eris.Errorf("poll: max_attempts must be positive, got %d", c.MaxAttempts)
	}
	if c.Interval < 0 {
		return eris.Errorf("poll: interval must not be negative, got %s", c.Interval)
	}
	if c.PerCallTimeout <= 0 {
		return eris.Errorf("poll: per_call_timeout must be positive, got %s", c.PerCallTimeout)
	}
	if c.Interval > 0 && c.PerCallTimeout >= c.Interval {
		return eris.Errorf("poll: per_call_timeout (%s) must be less than interval (%s)", c.PerCallTimeout, c.Interval)
	}
	return nil
}

// Budget is the overall session deadline measured from the start.
func (c Config) Budget() time.Duration {
	return time.Duration(c.MaxAttempts)*c.Interval + c.PerCallTimeout
}

// Session is one query's polling run. Its history only grows, and attempt
// indices strictly increase from 1.
type Session struct {
	ID     string
	Target model.Target
	Config Config

	mu         sync.Mutex
	state      State
	reason     model.FailureReason
	history    []model.AttemptRecord
	startedAt  time.Time
	deadline   time.Time
	finishedAt time.Time
}

// NewSession creates an idle session.
func NewSession(id string, target model.Target, cfg Config) *Session {
	return &Session{ID: id, Target: target, Config: cfg, state: StateIdle}
}

// Query returns the session's query.
func (s *Session) Query() model.Query { return s.Target.Query }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Reason is set once the session ends without an answer.
func (s *Session) Reason() model.FailureReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// History returns a copy of the attempt records.
func (s *Session) History() []model.AttemptRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.AttemptRecord(nil), s.history...)
}

// Attempts returns the number of recorded attempts.
func (s *Session) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// Accepted returns the accepting attempt, if any.
func (s *Session) Accepted() (model.AttemptRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.history); n > 0 && s.history[n-1].Accepted() {
		return s.history[n-1], true
	}
	return model.AttemptRecord{}, false
}

// StartedAt returns when polling began.
func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// Deadline returns the overall deadline on the session clock. Run enforces
// the budget with a timer, so an injected clock never shortens it.
func (s *Session) Deadline() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadline
}

// FinishedAt returns when the session reached a terminal state.
func (s *Session) FinishedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishedAt
}

// Elapsed is the wall time from start to finish.
func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startedAt.IsZero() || s.finishedAt.IsZero() {
		return 0
	}
	return s.finishedAt.Sub(s.startedAt)
}

func (s *Session) start(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.moveLocked(StatePolling); err != nil {
		return err
	}
	s.startedAt = now
	s.deadline = now.Add(s.Config.Budget())
	return nil
}

func (s *Session) record(rec model.AttemptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePolling {
		return eris.Errorf("poll: cannot record attempt in state %s", s.state)
	}
	if n := len(s.history); n > 0 && rec.Index <= s.history[n-1].Index {
		return eris.Errorf("poll: attempt index %d not after %d", rec.Index, s.history[n-1].Index)
	}
	s.history = append(s.history, rec)
	return nil
}

func (s *Session) finish(to State, reason model.FailureReason, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.moveLocked(to); err != nil {
		return err
	}
	if s.startedAt.IsZero() {
		s.startedAt = now
	}
	s.reason = reason
	s.finishedAt = now
	return nil
}

func (s *Session) moveLocked(to State) error {
	for _, allowed := range transitions[s.state] {
		if allowed == to {
			s.state = to
			return nil
		}
	}
	return eris.Errorf("poll: invalid transition %s -> %s", s.state, to)
}
