package extract

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// answerKeys is the fixed priority for answer-shaped JSON fields.
var answerKeys = []string{"acceptedAnswer", "suggestedAnswer", "answer", "text", "abstract", "snippet", "description"}

const jsonScripts = `script[type="application/ld+json"], script[type="application/json"]`

// structuredRegions walks embedded JSON blocks. Fields are visited key by key
// in priority order, so an acceptedAnswer anywhere beats a description
// anywhere.
func structuredRegions(doc *goquery.Document) []region {
	var docs []any
	doc.Find(jsonScripts).Each(func(i int, s *goquery.Selection) {
		var v any
		if err := json.Unmarshal([]byte(s.Text()), &v); err != nil {
			zap.L().Debug("extract: skip malformed json block", zap.Int("block", i), zap.Error(err))
			docs = append(docs, nil)
			return
		}
		docs = append(docs, v)
	})

	var out []region
	seen := make(map[string]bool)
	for _, key := range answerKeys {
		for i, v := range docs {
			walkKey(v, key, func(val any) {
				text, ok := answerText(val)
				if !ok {
					return
				}
				text = stripMarkup(text)
				if text == "" || seen[text] {
					return
				}
				seen[text] = true
				out = append(out, region{text: text, locator: fmt.Sprintf("json[%d].%s", i, key)})
			})
		}
	}
	return out
}

// walkKey calls fn for every value stored under key, depth first. Object keys
// are visited in sorted order so results are deterministic.
func walkKey(v any, key string, fn func(any)) {
	switch t := v.(type) {
	case map[string]any:
		if val, ok := t[key]; ok {
			fn(val)
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walkKey(t[k], key, fn)
		}
	case []any:
		for _, e := range t {
			walkKey(e, key, fn)
		}
	}
}

// answerText reduces a field value to a string. Objects such as schema.org
// Answer nodes resolve through the same key priority.
func answerText(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, t != ""
	case map[string]any:
		for _, k := range answerKeys {
			if s, ok := answerText(t[k]); ok {
				return s, true
			}
		}
	case []any:
		for _, e := range t {
			if s, ok := answerText(e); ok {
				return s, true
			}
		}
	}
	return "", false
}
