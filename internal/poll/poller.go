package poll

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/quickanswer/internal/fetch"
	"github.com/sells-group/quickanswer/internal/model"
)

// Extractor finds a candidate answer in a snapshot.
type Extractor interface {
	Extract(snap *model.Snapshot) (model.Candidate, bool)
}

// Validator classifies a candidate's text.
type Validator interface {
	Check(text string) model.Verdict
}

// Poller runs sessions. Attempts within a session are strictly sequential.
type Poller struct {
	fetcher   fetch.Fetcher
	extractor Extractor
	validator Validator

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Poller.
type Option func(*Poller)

// WithClock replaces time.Now for timestamps and elapsed time.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// WithSleep replaces the inter-attempt wait.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Poller) { p.sleep = sleep }
}

// NewPoller creates a Poller.
func NewPoller(f fetch.Fetcher, e Extractor, v Validator, opts ...Option) *Poller {
	p := &Poller{fetcher: f, extractor: e, validator: v, now: time.Now, sleep: sleepCtx}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run polls until the session reaches a terminal state. Outcomes, including
// cancellation, are recorded on the session; the error is only for misuse
// such as running a session twice.
func (p *Poller) Run(ctx context.Context, s *Session) error {
	if err := s.Config.Validate(); err != nil {
		return err
	}
	if len(s.Target.Endpoints) == 0 {
		return eris.New("poll: target has no endpoints")
	}
	if err := s.start(p.now()); err != nil {
		return err
	}
	log := zap.L().With(zap.String("session", s.ID), zap.String("query", s.Query().String()))

	runCtx, cancel := context.WithTimeout(ctx, s.Config.Budget())
	defer cancel()

	release, err := fetch.Lease(runCtx, p.fetcher)
	if err != nil {
		log.Warn("poll: could not lease fetcher", zap.Error(err))
		return p.stop(ctx, s, log)
	}
	defer release()

	for idx := 1; idx <= s.Config.MaxAttempts; idx++ {
		if runCtx.Err() != nil {
			return p.stop(ctx, s, log)
		}

		rec := p.attempt(runCtx, s, idx, log)
		if err := s.record(rec); err != nil {
			return err
		}
		if rec.Accepted() {
			log.Info("poll: answer accepted",
				zap.Int("attempt", idx),
				zap.String("strategy", rec.Candidate.Strategy),
				zap.String("endpoint", rec.Endpoint.Name),
			)
			return s.finish(StateSucceeded, "", p.now())
		}

		if idx < s.Config.MaxAttempts {
			if err := p.sleep(runCtx, s.Config.Interval); err != nil {
				return p.stop(ctx, s, log)
			}
		}
	}

	if runCtx.Err() != nil {
		return p.stop(ctx, s, log)
	}
	log.Info("poll: attempts exhausted", zap.Int("attempts", s.Config.MaxAttempts))
	return s.finish(StateExhausted, model.FailureExhausted, p.now())
}

// stop ends a session whose context is done, telling caller cancellation
// apart from the session's own deadline.
func (p *Poller) stop(parent context.Context, s *Session, log *zap.Logger) error {
	if parent.Err() != nil {
		log.Info("poll: cancelled", zap.Int("attempts", s.Attempts()), zap.Error(parent.Err()))
		return s.finish(StateCancelled, model.FailureCancelled, p.now())
	}
	log.Info("poll: deadline exceeded", zap.Int("attempts", s.Attempts()))
	return s.finish(StateExhausted, model.FailureDeadlineExceeded, p.now())
}

// attempt tries each endpoint in order and returns the record of the last
// one evaluated, which is the accepting one when an answer was found.
func (p *Poller) attempt(ctx context.Context, s *Session, idx int, log *zap.Logger) model.AttemptRecord {
	var rec model.AttemptRecord
	for _, ep := range s.Target.Endpoints {
		rec = p.evaluate(ctx, s.Config.PerCallTimeout, idx, ep)
		log.Debug("poll: attempt",
			zap.Int("attempt", idx),
			zap.String("endpoint", ep.Name),
			zap.Bool("fetched", rec.Fetch.OK),
			zap.Duration("fetch_duration", rec.Fetch.Duration),
			zap.String("outcome", outcome(rec)),
		)
		if rec.Accepted() || ctx.Err() != nil {
			break
		}
	}
	return rec
}

func (p *Poller) evaluate(ctx context.Context, timeout time.Duration, idx int, ep model.Endpoint) model.AttemptRecord {
	rec := model.AttemptRecord{Index: idx, Timestamp: p.now(), Endpoint: ep}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	start := time.Now()
	snap, err := p.fetcher.Fetch(callCtx, ep)
	cancel()
	rec.Fetch.Duration = time.Since(start)

	if err != nil {
		kind, status := fetch.Classify(err)
		rec.Fetch.Kind = kind
		rec.Fetch.StatusCode = status
		rec.Fetch.Error = err.Error()
		return rec
	}
	rec.Fetch.OK = true
	rec.Fetch.StatusCode = snap.StatusCode

	cand, ok := p.extractor.Extract(snap)
	if !ok {
		return rec
	}
	verdict := p.validator.Check(cand.Text)
	rec.Candidate = &cand
	rec.Verdict = &verdict
	return rec
}

func outcome(rec model.AttemptRecord) string {
	if rec.Accepted() {
		return string(model.ReasonAccepted)
	}
	return rec.Diagnostic()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
