package main

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sells-group/quickanswer/internal/model"
)

// fakeAsker answers from a function and tracks concurrent calls.
type fakeAsker struct {
	ask    func(ctx context.Context, q string) (model.Result, error)
	health map[string]string

	inFlight atomic.Int32
	maxSeen  atomic.Int32
	calls    atomic.Int32
}

func (f *fakeAsker) Ask(ctx context.Context, q string) (model.Result, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	return f.ask(ctx, q)
}

func (f *fakeAsker) Health() map[string]string {
	if f.health == nil {
		return map[string]string{}
	}
	return f.health
}

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func found(q string) model.Result {
	return model.Result{
		Success:   true,
		Text:      "Paris is the capital of France.",
		Attempt:   2,
		Strategy:  "primary_container",
		Source:    "bing",
		Elapsed:   1500 * time.Millisecond,
		Query:     q,
		Timestamp: testTime,
	}
}

func notFound(q string) model.Result {
	return model.Result{
		Reason:            model.FailureExhausted,
		AttemptsExhausted: 3,
		LastRejection:     "loading",
		Elapsed:           6 * time.Second,
		Query:             q,
		Timestamp:         testTime,
	}
}

func cancelled(q string) model.Result {
	return model.Result{Reason: model.FailureCancelled, Query: q, Timestamp: testTime}
}
