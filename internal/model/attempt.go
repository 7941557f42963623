package model

import (
	"strings"
	"time"
)

// Reason classifies a validation verdict.
type Reason string

const (
	ReasonAccepted    Reason = "accepted"
	ReasonLoading     Reason = "loading"
	ReasonUINoise     Reason = "ui_noise"
	ReasonTooShort    Reason = "too_short"
	ReasonNoCandidate Reason = "no_candidate" // no strategy produced text
)

// Verdict is the validator's decision about a candidate.
type Verdict struct {
	Accepted bool   `json:"accepted"`
	Reason   Reason `json:"reason"`
}

// Accept returns an accepting verdict.
func Accept() Verdict { return Verdict{Accepted: true, Reason: ReasonAccepted} }

// Reject returns a rejecting verdict with the given reason.
func Reject(r Reason) Verdict { return Verdict{Reason: r} }

// Candidate is text extracted by one strategy from one snapshot.
type Candidate struct {
	Text     string `json:"text"`
	Strategy string `json:"strategy"`
	Locator  string `json:"locator"`
}

// ErrorKind tags fetch failures.
type ErrorKind string

const (
	ErrorKindNone      ErrorKind = ""
	ErrorKindTransport ErrorKind = "transport"
	ErrorKindStatus    ErrorKind = "status"
)

// FetchOutcome summarizes the fetch step of an attempt.
type FetchOutcome struct {
	OK         bool          `json:"ok"`
	Kind       ErrorKind     `json:"kind,omitempty"`
	StatusCode int           `json:"status_code,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// AttemptRecord is one immutable entry in a poll session's history.
type AttemptRecord struct {
	Index     int          `json:"index"`
	Timestamp time.Time    `json:"timestamp"`
	Endpoint  Endpoint     `json:"endpoint"`
	Fetch     FetchOutcome `json:"fetch"`
	Candidate *Candidate   `json:"candidate,omitempty"`
	Verdict   *Verdict     `json:"verdict,omitempty"`
}

// Accepted reports whether this attempt produced an accepted candidate.
func (a AttemptRecord) Accepted() bool {
	return a.Candidate != nil && a.Verdict != nil && a.Verdict.Accepted
}

// Diagnostic returns a short description of why the attempt did not succeed.
func (a AttemptRecord) Diagnostic() string {
	switch {
	case !a.Fetch.OK:
		kind := string(a.Fetch.Kind)
		switch {
		case a.Fetch.Error == "":
			return kind
		case strings.HasPrefix(a.Fetch.Error, kind):
			return a.Fetch.Error
		default:
			return kind + ": " + a.Fetch.Error
		}
	case a.Verdict != nil:
		return string(a.Verdict.Reason)
	default:
		return string(ReasonNoCandidate)
	}
}
