package model

import (
	"encoding/json"
	"time"
)

// FailureReason explains why a session ended without an answer.
type FailureReason string

const (
	FailureExhausted        FailureReason = "exhausted"
	FailureDeadlineExceeded FailureReason = "deadline_exceeded"
	FailureCancelled        FailureReason = "cancelled"
)

// Result is the single output record of a poll session.
type Result struct {
	Success bool

	// Set on success.
	Text     string
	Attempt  int
	Strategy string
	Source   string

	// Set on failure.
	Reason            FailureReason
	AttemptsExhausted int
	LastRejection     string

	Elapsed   time.Duration
	Query     string
	Timestamp time.Time
}

// Cancelled reports whether the caller cancelled the session.
func (r Result) Cancelled() bool {
	return !r.Success && r.Reason == FailureCancelled
}

// ElapsedMs returns the session duration in whole milliseconds.
func (r Result) ElapsedMs() int64 { return r.Elapsed.Milliseconds() }

type successJSON struct {
	Success   bool      `json:"success"`
	Text      string    `json:"text"`
	Attempt   int       `json:"attempt"`
	ElapsedMs int64     `json:"elapsedMs"`
	Strategy  string    `json:"strategy,omitempty"`
	Source    string    `json:"source,omitempty"`
	Query     string    `json:"query"`
	Timestamp time.Time `json:"timestamp"`
}

type failureJSON struct {
	Success           bool          `json:"success"`
	Reason            FailureReason `json:"reason"`
	AttemptsExhausted int           `json:"attemptsExhausted"`
	ElapsedMs         int64         `json:"elapsedMs"`
	LastRejection     string        `json:"lastRejection,omitempty"`
	Query             string        `json:"query"`
	Timestamp         time.Time     `json:"timestamp"`
}

// MarshalJSON emits the success or failure shape; the two never mix.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Success {
		return json.Marshal(successJSON{
			Success:   true,
			Text:      r.Text,
			Attempt:   r.Attempt,
			ElapsedMs: r.ElapsedMs(),
			Strategy:  r.Strategy,
			Source:    r.Source,
			Query:     r.Query,
			Timestamp: r.Timestamp,
		})
	}
	return json.Marshal(failureJSON{
		Reason:            r.Reason,
		AttemptsExhausted: r.AttemptsExhausted,
		ElapsedMs:         r.ElapsedMs(),
		LastRejection:     r.LastRejection,
		Query:             r.Query,
		Timestamp:         r.Timestamp,
	})
}
