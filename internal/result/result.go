// Package result turns a finished poll session into its output record.
package result

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/quickanswer/internal/model"
	"github.com/sells-group/quickanswer/internal/poll"
)

// Assemble builds the Result for a session in a terminal state.
func Assemble(s *poll.Session) (model.Result, error) {
	state := s.State()
	if !state.Terminal() {
		return model.Result{}, eris.Errorf("result: session %s is still %s", s.ID, state)
	}

	r := model.Result{
		Elapsed:   s.Elapsed(),
		Query:     s.Query().String(),
		Timestamp: s.FinishedAt().UTC(),
	}

	if state == poll.StateSucceeded {
		rec, ok := s.Accepted()
		if !ok {
			return model.Result{}, eris.Errorf("result: session %s succeeded without an accepted attempt", s.ID)
		}
		r.Success = true
		r.Text = rec.Candidate.Text
		r.Attempt = rec.Index
		r.Strategy = rec.Candidate.Strategy
		r.Source = rec.Endpoint.Name
		return r, nil
	}

	history := s.History()
	r.Reason = s.Reason()
	r.AttemptsExhausted = len(history)
	if n := len(history); n > 0 {
		r.LastRejection = history[n-1].Diagnostic()
	}
	return r, nil
}
