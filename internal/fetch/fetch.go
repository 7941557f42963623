// Package fetch retrieves document snapshots from answer endpoints. Fetchers
// never retry: one call is one observation, and the poller decides what
// happens next.
package fetch

import (
	"context"
	"errors"
	"fmt"

	"github.com/sells-group/quickanswer/internal/model"
)

// Fetcher retrieves the current state of an endpoint's document.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, ep model.Endpoint) (*model.Snapshot, error)
}

// Leaser is implemented by fetchers backed by an exclusive resource. Callers
// lease once per session and call release when the session ends.
type Leaser interface {
	Lease(ctx context.Context) (release func(), err error)
}

// Lease acquires f's resource if it has one. The returned release is never nil.
func Lease(ctx context.Context, f Fetcher) (func(), error) {
	l, ok := f.(Leaser)
	if !ok {
		return func() {}, nil
	}
	return l.Lease(ctx)
}

// Error is a classified fetch failure.
type Error struct {
	Kind       model.ErrorKind
	StatusCode int
	Block      BlockType
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Block != BlockNone:
		return fmt.Sprintf("%s: blocked (%s): %v", e.Kind, e.Block, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s %d: %v", e.Kind, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// TransportError tags err as a network, timeout, or renderer failure.
func TransportError(err error) *Error {
	return &Error{Kind: model.ErrorKindTransport, Err: err}
}

// StatusError tags err as an unusable response with the given status.
func StatusError(code int, err error) *Error {
	return &Error{Kind: model.ErrorKindStatus, StatusCode: code, Err: err}
}

// Classify maps any fetch error to an outcome. Untagged errors are treated
// as transport failures.
func Classify(err error) (kind model.ErrorKind, status int) {
	if err == nil {
		return model.ErrorKindNone, 0
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, fe.StatusCode
	}
	return model.ErrorKindTransport, 0
}
