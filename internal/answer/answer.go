// Package answer is the entry point for asking one question: it resolves the
// query to endpoints, polls them until an answer settles, and returns the
// assembled Result.
package answer

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/quickanswer/internal/model"
	"github.com/sells-group/quickanswer/internal/poll"
	"github.com/sells-group/quickanswer/internal/resilience"
	"github.com/sells-group/quickanswer/internal/result"
	"github.com/sells-group/quickanswer/internal/target"
)

// BreakerReporter exposes per-endpoint circuit state.
type BreakerReporter interface {
	States() map[string]resilience.State
}

// Service answers queries. It is safe for concurrent use; a browser-backed
// fetcher serializes sessions through its lease.
type Service struct {
	resolver *target.Resolver
	poller   *poll.Poller
	cfg      poll.Config

	newID    func() string
	breakers BreakerReporter
	closers  []func() error
}

// Option configures a Service.
type Option func(*Service)

// WithIDs replaces the session id generator.
func WithIDs(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// WithBreakers reports circuit state from r in Health.
func WithBreakers(r BreakerReporter) Option {
	return func(s *Service) { s.breakers = r }
}

// WithCloser registers a resource released by Close.
func WithCloser(fn func() error) Option {
	return func(s *Service) {
		if fn != nil {
			s.closers = append(s.closers, fn)
		}
	}
}

// New creates a Service.
func New(resolver *target.Resolver, poller *poll.Poller, cfg poll.Config, opts ...Option) *Service {
	s := &Service{resolver: resolver, poller: poller, cfg: cfg, newID: uuid.NewString}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Ask polls for the answer to raw. Not finding an answer is a Result with
// Success false; the error is reserved for an empty query and wiring faults.
func (s *Service) Ask(ctx context.Context, raw string) (model.Result, error) {
	q, err := model.NewQuery(raw)
	if err != nil {
		return model.Result{}, err
	}
	tgt, err := s.resolver.Resolve(q)
	if err != nil {
		return model.Result{}, eris.Wrap(err, "answer: resolve target")
	}

	sess := poll.NewSession(s.newID(), tgt, s.cfg)
	log := zap.L().With(zap.String("session", sess.ID))
	log.Info("answer: polling", zap.String("query", q.String()), zap.Int("endpoints", len(tgt.Endpoints)))

	if err := s.poller.Run(ctx, sess); err != nil {
		return model.Result{}, eris.Wrap(err, "answer: run session")
	}
	res, err := result.Assemble(sess)
	if err != nil {
		return model.Result{}, err
	}

	if res.Success {
		log.Info("answer: found",
			zap.Int("attempt", res.Attempt),
			zap.String("strategy", res.Strategy),
			zap.String("source", res.Source),
			zap.Duration("elapsed", res.Elapsed),
		)
	} else {
		log.Info("answer: not found",
			zap.String("reason", string(res.Reason)),
			zap.Int("attempts", res.AttemptsExhausted),
			zap.String("last_rejection", res.LastRejection),
			zap.Duration("elapsed", res.Elapsed),
		)
	}
	return res, nil
}

// Health reports each endpoint's circuit state by name. Endpoints that were
// never fetched are absent.
func (s *Service) Health() map[string]string {
	out := make(map[string]string)
	if s.breakers == nil {
		return out
	}
	for name, st := range s.breakers.States() {
		out[name] = st.String()
	}
	return out
}

// Close releases the fetcher's resources.
func (s *Service) Close() error {
	var errs []error
	for _, fn := range s.closers {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
