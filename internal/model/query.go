package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// ErrEmptyQuery is returned when a query contains no searchable text.
var ErrEmptyQuery = eris.New("query is empty")

// Query is the caller's natural-language question. It is immutable once built.
type Query struct {
	text string
}

// NewQuery trims the input and rejects empty queries.
func NewQuery(raw string) (Query, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Query{}, ErrEmptyQuery
	}
	return Query{text: text}, nil
}

// String returns the query text.
func (q Query) String() string { return q.text }

// IsZero reports whether the query was never initialized.
func (q Query) IsZero() bool { return q.text == "" }

// Endpoint is one remote location that may hold the answer document.
type Endpoint struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Target is the resolved set of endpoints for one query, tried in order.
type Target struct {
	Query     Query      `json:"-"`
	Endpoints []Endpoint `json:"endpoints"`
}

// Primary returns the first endpoint, or the zero Endpoint if none are set.
func (t Target) Primary() Endpoint {
	if len(t.Endpoints) == 0 {
		return Endpoint{}
	}
	return t.Endpoints[0]
}
