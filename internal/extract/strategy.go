// Package extract locates answer text inside a fetched document. Strategies
// run in a fixed priority order; the first one yielding a sanitized region of
// at least rules.MinChars runes wins.
package extract

import "github.com/rotisserie/eris"

// Strategy identifies how a candidate was located.
type Strategy string

const (
	// PrimaryContainer reads configured answer containers.
	PrimaryContainer Strategy = "primary_container"
	// StructuredData walks embedded JSON-LD and JSON blocks.
	StructuredData Strategy = "structured_data"
	// Metadata reads description meta tags.
	Metadata Strategy = "metadata"
	// ContentScan scans main content regions for sentence-like spans.
	ContentScan Strategy = "content_scan"
)

// Order is the fixed strategy priority.
var Order = []Strategy{PrimaryContainer, StructuredData, Metadata, ContentScan}

// DefaultSelectors are the primary answer containers.
var DefaultSelectors = []string{".b_ans", ".b_focusTextLarge", "#answer", "[data-answer]"}

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	for _, o := range Order {
		if s == o {
			return true
		}
	}
	return false
}

func (s Strategy) String() string { return string(s) }

// ParseStrategies converts configured names to strategies.
func ParseStrategies(names []string) ([]Strategy, error) {
	out := make([]Strategy, 0, len(names))
	for _, n := range names {
		s := Strategy(n)
		if !s.Valid() {
			return nil, eris.Errorf("extract: unknown strategy %q", n)
		}
		out = append(out, s)
	}
	return out, nil
}
