package fetch

import (
	"context"
	"errors"

	"github.com/sells-group/quickanswer/internal/model"
	"github.com/sells-group/quickanswer/internal/resilience"
)

// Guarded puts a circuit breaker per endpoint in front of a Fetcher. An open
// breaker fails fast with a transport error so the poller records the attempt
// and moves on without touching the network.
type Guarded struct {
	next     Fetcher
	breakers *resilience.Breakers
}

var _ Leaser = (*Guarded)(nil)

// NewGuarded wraps next. Only transport failures and throttling count toward
// opening a breaker; an ordinary 404 says nothing about the upstream's health.
func NewGuarded(next Fetcher, cfg resilience.BreakerConfig) *Guarded {
	if cfg.Trips == nil {
		cfg.Trips = tripsBreaker
	}
	return &Guarded{next: next, breakers: resilience.NewBreakers(cfg)}
}

// Name implements Fetcher.
func (g *Guarded) Name() string { return g.next.Name() }

// Fetch implements Fetcher.
func (g *Guarded) Fetch(ctx context.Context, ep model.Endpoint) (*model.Snapshot, error) {
	snap, err := resilience.Call(ctx, g.breakers.Get(ep.Name), func(ctx context.Context) (*model.Snapshot, error) {
		return g.next.Fetch(ctx, ep)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, TransportError(err)
	}
	return snap, err
}

// Lease forwards to the wrapped fetcher when it holds a resource.
func (g *Guarded) Lease(ctx context.Context) (func(), error) {
	return Lease(ctx, g.next)
}

// States reports each endpoint's breaker state.
func (g *Guarded) States() map[string]resilience.State {
	return g.breakers.States()
}

func tripsBreaker(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var fe *Error
	if errors.As(err, &fe) && fe.Kind == model.ErrorKindStatus {
		return fe.Block != BlockNone || resilience.IsTransientStatus(fe.StatusCode)
	}
	return true
}
