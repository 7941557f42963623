// Package rules holds the data tables behind text sanitization and content
// validation: noise patterns, UI and loading vocabularies, function words, and
// the thresholds both stages share. Callers extend the tables with a YAML file
// instead of touching control flow.
package rules

import (
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

const (
	// MinChars is the shortest accepted answer, in runes. The chain's
	// pre-filter and the validator use the same value.
	MinChars = 20

	// TechnicalRatio is the largest fraction of technical tokens an accepted
	// answer may contain.
	TechnicalRatio = 0.3
)

// Set is a compiled rule table.
type Set struct {
	MinChars       int
	TechnicalRatio float64

	// Sanitizer tables.
	Styling   []*regexp.Regexp
	Footnotes []*regexp.Regexp
	URLs      []*regexp.Regexp
	UIPhrases []string
	// LoadingNoise removes ellipsis-terminated progress phrases.
	LoadingNoise []*regexp.Regexp
	Labels       []string

	// Validator tables.
	Loading       []*regexp.Regexp
	Technical     []*regexp.Regexp
	FunctionWords map[string]struct{}
}

var defaultStyling = []string{
	`(?is)@(?:-webkit-|-moz-)?keyframes\s+[\w-]+\s*\{(?:[^{}]*\{[^{}]*\})*[^{}]*\}`,
	`(?is)@(?:media|supports|font-face)[^{]*\{(?:[^{}]*\{[^{}]*\})*[^{}]*\}`,
	`(?s)(?:[.#]?[\w-]+(?:[:.#][\w-]+)*\s*(?:[,>+~]\s*[.#]?[\w-]+(?:[:.#][\w-]+)*\s*)*)?\{[^{}]*[:;][^{}]*\}`,
	`(?i)\b(?:animation|transition|transform|opacity|display|position|z-index|font-family|background(?:-color)?)\s*:\s*[^;{}]{1,80};`,
}

var defaultFootnotes = []string{
	`\[\d+(?:\s*[,–-]\s*\d+)*\]`,
	`(?i)\[(?:citation needed|source|note \d+|edit)\]`,
}

var defaultURLs = []string{
	`(?i)\bhttps?://[^\s<>"'\])]+`,
	`(?i)\bwww\.[^\s<>"'\])]+`,
}

var defaultUIPhrases = []string{
	"email this answer",
	"share answer",
	"share this answer",
	"copy link",
	"copy to clipboard",
	"copied to clipboard",
	"ask a follow-up",
	"ask follow-up",
	"was this helpful?",
	"is this helpful?",
	"thumbs up",
	"thumbs down",
	"report an issue",
	"give feedback",
	"show more",
	"see more",
	"read more",
	"learn more",
	"related searches",
	"people also ask",
	"powered by bing",
	"powered by ai",
	"answered by ai",
	"generated by ai",
	"ai-generated answer",
	"explore more",
}

var defaultLoadingNoise = []string{
	`(?i)\b(?:loading|thinking|searching|please\s+wait|one\s+moment|working\s+on\s+it|still\s+thinking|generating(?:\s+(?:your|an?|the))?(?:\s+(?:answer|response))?)\s*(?:\.{2,}|…)`,
}

var defaultLabels = []string{"answer", "response", "result"}

var defaultLoading = []string{
	`^(?:thinking|loading|searching|generating|please wait|one moment|hang tight|working on it)\b`,
	`\bstill (?:thinking|loading|working)\b`,
	`\bgenerating (?:your |an? |the )?(?:answer|response)\b`,
	`^(?:powered|answered|generated|provided) by [\w .&-]+\.?$`,
}

var defaultTechnical = []string{
	`[{};<>=|\\]`,
	`^[#.][\w-]+$`,
	`^-?\d*\.?\d+(?:px|em|rem|ms|vh|vw|pt|deg)$`,
	`^[\w$.-]+\(.*$`,
	`^--[\w-]+`,
	`^[a-z]+(?:-[a-z0-9]+){2,}$`,
	`^[a-z]+[A-Z][A-Za-z0-9]*$`,
	`^\w+_\w+$`,
	`^(?:function|var|const|let|return|=>|null|undefined|nan|typeof)$`,
}

var defaultFunctionWords = []string{
	"a", "an", "the",
	"and", "or", "but", "nor", "so", "yet",
	"is", "are", "was", "were", "be", "been", "being",
	"has", "have", "had", "do", "does", "did",
	"can", "could", "will", "would", "may", "might", "should",
	"of", "in", "on", "at", "to", "for", "with", "by", "from", "as", "into", "about", "than",
	"it", "its", "this", "that", "these", "those", "there", "their", "they",
	"he", "she", "his", "her", "which", "who", "not", "also",
}

// Default returns the built-in rule set.
func Default() *Set {
	s, err := compile(overlay{})
	if err != nil {
		// Built-in patterns are constants; a compile failure is a programming error.
		panic(err)
	}
	return s
}

func compile(o overlay) (*Set, error) {
	s := &Set{
		MinChars:       MinChars,
		TechnicalRatio: TechnicalRatio,
		UIPhrases:      appendLower(defaultUIPhrases, o.UIPhrases),
		Labels:         appendLower(defaultLabels, o.Labels),
		FunctionWords:  make(map[string]struct{}),
	}
	if o.MinChars != nil {
		if *o.MinChars <= 0 {
			return nil, eris.Errorf("rules: min_chars must be positive, got %d", *o.MinChars)
		}
		s.MinChars = *o.MinChars
	}
	if o.TechnicalRatio != nil {
		if *o.TechnicalRatio <= 0 || *o.TechnicalRatio > 1 {
			return nil, eris.Errorf("rules: technical_ratio must be in (0,1], got %v", *o.TechnicalRatio)
		}
		s.TechnicalRatio = *o.TechnicalRatio
	}

	var err error
	if s.Styling, err = compileAll("styling", defaultStyling, o.Styling); err != nil {
		return nil, err
	}
	if s.Footnotes, err = compileAll("footnotes", defaultFootnotes, o.Footnotes); err != nil {
		return nil, err
	}
	if s.URLs, err = compileAll("urls", defaultURLs, o.URLs); err != nil {
		return nil, err
	}
	if s.LoadingNoise, err = compileAll("loading_noise", defaultLoadingNoise, o.LoadingNoise); err != nil {
		return nil, err
	}
	if s.Loading, err = compileAll("loading", defaultLoading, o.Loading); err != nil {
		return nil, err
	}
	if s.Technical, err = compileAll("technical", defaultTechnical, o.Technical); err != nil {
		return nil, err
	}
	for _, w := range appendLower(defaultFunctionWords, o.FunctionWords) {
		s.FunctionWords[w] = struct{}{}
	}
	return s, nil
}

func compileAll(table string, base, extra []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(base)+len(extra))
	for _, p := range append(append([]string{}, base...), extra...) {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, eris.Wrapf(err, "rules: compile %s pattern %q", table, p)
		}
		out = append(out, re)
	}
	return out, nil
}

func appendLower(base, extra []string) []string {
	out := make([]string, 0, len(base)+len(extra))
	seen := make(map[string]bool, len(base)+len(extra))
	for _, v := range append(append([]string{}, base...), extra...) {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// PhraseRegexp builds one case-insensitive alternation over literal phrases.
// Longer phrases come first so "share this answer" wins over "share answer".
// Word boundaries are only asserted where the phrase edge is a word character.
func PhraseRegexp(phrases []string) *regexp.Regexp {
	if len(phrases) == 0 {
		return nil
	}
	sorted := append([]string{}, phrases...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })

	alts := make([]string, 0, len(sorted))
	for _, p := range sorted {
		alt := regexp.QuoteMeta(p)
		if isWordByte(p[0]) {
			alt = `\b` + alt
		}
		if isWordByte(p[len(p)-1]) {
			alt += `\b`
		}
		alts = append(alts, alt)
	}
	return regexp.MustCompile(`(?i)(?:` + strings.Join(alts, "|") + `)`)
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
