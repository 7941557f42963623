// Package validate classifies sanitized candidates as plausible answers or as
// loading placeholders and UI residue. The checks are heuristics over rule
// tables; callers must tolerate false accepts and rejects.
package validate

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sells-group/quickanswer/internal/model"
	"github.com/sells-group/quickanswer/internal/rules"
)

// Validator applies a rule set. It is safe for concurrent use.
type Validator struct {
	set *rules.Set
}

// New builds a Validator. A nil set uses the defaults.
func New(set *rules.Set) *Validator {
	if set == nil {
		set = rules.Default()
	}
	return &Validator{set: set}
}

// Check classifies text. Checks run in a fixed order: length, loading
// vocabulary, technical-token ratio, function words.
func (v *Validator) Check(text string) model.Verdict {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < v.set.MinChars {
		return model.Reject(model.ReasonTooShort)
	}

	lower := strings.ToLower(text)
	for _, re := range v.set.Loading {
		if re.MatchString(lower) {
			return model.Reject(model.ReasonLoading)
		}
	}

	if TechnicalRatio(text, v.set) > v.set.TechnicalRatio {
		return model.Reject(model.ReasonUINoise)
	}

	if !hasFunctionWord(lower, v.set.FunctionWords) {
		return model.Reject(model.ReasonUINoise)
	}
	return model.Accept()
}

// TechnicalRatio returns the share of whitespace-separated tokens that match
// any technical pattern. Empty text has ratio 0.
func TechnicalRatio(text string, set *rules.Set) float64 {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return 0
	}
	technical := 0
	for _, tok := range tokens {
		for _, re := range set.Technical {
			if re.MatchString(tok) {
				technical++
				break
			}
		}
	}
	return float64(technical) / float64(len(tokens))
}

func hasFunctionWord(lower string, words map[string]struct{}) bool {
	for _, w := range strings.FieldsFunc(lower, func(r rune) bool { return !unicode.IsLetter(r) && r != '\'' }) {
		if _, ok := words[strings.Trim(w, "'")]; ok {
			return true
		}
	}
	return false
}
