// Package sanitize reduces raw region text to a clean answer candidate by
// removing styling code, footnote markers, URLs, UI phrases, and progress
// placeholders.
package sanitize

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/quickanswer/internal/rules"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Sanitizer applies a rule set. It is safe for concurrent use.
type Sanitizer struct {
	removals []*regexp.Regexp
	label    *regexp.Regexp
}

// New builds a Sanitizer from a rule set. A nil set uses the defaults.
func New(set *rules.Set) *Sanitizer {
	if set == nil {
		set = rules.Default()
	}
	var removals []*regexp.Regexp
	removals = append(removals, set.Styling...)
	removals = append(removals, set.URLs...)
	removals = append(removals, set.Footnotes...)
	removals = append(removals, set.LoadingNoise...)
	if re := rules.PhraseRegexp(set.UIPhrases); re != nil {
		removals = append(removals, re)
	}

	s := &Sanitizer{removals: removals}
	if len(set.Labels) > 0 {
		alts := make([]string, len(set.Labels))
		for i, l := range set.Labels {
			alts[i] = regexp.QuoteMeta(l)
		}
		s.label = regexp.MustCompile(`(?i)^(?:(?:` + strings.Join(alts, "|") + `)\s*:\s*)+`)
	}
	return s
}

// Clean returns the sanitized text. Passes repeat until the text stops
// changing, so Clean(Clean(x)) == Clean(x).
func (s *Sanitizer) Clean(text string) string {
	for {
		next := s.pass(text)
		if next == text {
			return text
		}
		text = next
	}
}

// pass never lengthens its input: every removal is replaced by at most one
// space and whitespace runs collapse.
func (s *Sanitizer) pass(text string) string {
	text = norm.NFKC.String(text)
	for _, re := range s.removals {
		text = re.ReplaceAllString(text, " ")
	}
	text = strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
	if s.label != nil {
		text = s.label.ReplaceAllString(text, "")
	}
	return text
}
