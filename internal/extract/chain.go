package extract

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/quickanswer/internal/model"
	"github.com/sells-group/quickanswer/internal/rules"
	"github.com/sells-group/quickanswer/internal/sanitize"
)

// region is one raw text span proposed by a strategy.
type region struct {
	text    string
	locator string
}

// Chain runs strategies in priority order. It does no validation: it only
// guarantees the returned text is sanitized and long enough to judge.
type Chain struct {
	selectors  []string
	strategies []Strategy
	sanitizer  *sanitize.Sanitizer
	minChars   int
}

// Option configures a Chain.
type Option func(*Chain)

// WithSelectors replaces the primary container selectors.
func WithSelectors(selectors ...string) Option {
	return func(c *Chain) {
		if len(selectors) > 0 {
			c.selectors = selectors
		}
	}
}

// WithRules uses set for sanitizing and the length pre-filter.
func WithRules(set *rules.Set) Option {
	return func(c *Chain) {
		if set != nil {
			c.sanitizer = sanitize.New(set)
			c.minChars = set.MinChars
		}
	}
}

// WithStrategies restricts the chain to the given strategies. Priority order
// is preserved regardless of argument order.
func WithStrategies(strategies ...Strategy) Option {
	return func(c *Chain) {
		want := make(map[Strategy]bool, len(strategies))
		for _, s := range strategies {
			want[s] = true
		}
		c.strategies = c.strategies[:0]
		for _, s := range Order {
			if want[s] {
				c.strategies = append(c.strategies, s)
			}
		}
	}
}

// NewChain creates a Chain with default selectors and rules unless overridden.
func NewChain(opts ...Option) (*Chain, error) {
	c := &Chain{
		selectors:  DefaultSelectors,
		strategies: append([]Strategy(nil), Order...),
		sanitizer:  sanitize.New(nil),
		minChars:   rules.MinChars,
	}
	for _, o := range opts {
		o(c)
	}
	for _, sel := range c.selectors {
		if _, err := cascadia.ParseGroup(sel); err != nil {
			return nil, eris.Wrapf(err, "extract: invalid selector %q", sel)
		}
	}
	if len(c.strategies) == 0 {
		return nil, eris.New("extract: no strategies enabled")
	}
	return c, nil
}

// Extract returns the first qualifying candidate, or false when no strategy
// produced one.
func (c *Chain) Extract(snap *model.Snapshot) (model.Candidate, bool) {
	if snap.Empty() {
		return model.Candidate{}, false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(snap.HTML))
	if err != nil {
		zap.L().Debug("extract: parse document", zap.String("url", snap.URL), zap.Error(err))
		return model.Candidate{}, false
	}

	for _, s := range c.strategies {
		for _, r := range c.regions(doc, s) {
			text := c.sanitizer.Clean(r.text)
			if utf8.RuneCountInString(text) < c.minChars {
				continue
			}
			return model.Candidate{Text: text, Strategy: string(s), Locator: r.locator}, true
		}
		zap.L().Debug("extract: strategy found nothing",
			zap.String("strategy", string(s)),
			zap.String("url", snap.URL),
		)
	}
	return model.Candidate{}, false
}

func (c *Chain) regions(doc *goquery.Document, s Strategy) []region {
	switch s {
	case PrimaryContainer:
		return c.primaryRegions(doc)
	case StructuredData:
		return structuredRegions(doc)
	case Metadata:
		return metadataRegions(doc)
	case ContentScan:
		return contentRegions(doc)
	}
	return nil
}

// primaryRegions yields, per matching container, its visible paragraph and
// list-item descendants followed by the container's whole text.
func (c *Chain) primaryRegions(doc *goquery.Document) []region {
	var out []region
	for _, sel := range c.selectors {
		doc.Find(sel).Each(func(i int, container *goquery.Selection) {
			visible(container.Find("p, li"), container).Each(func(j int, sub *goquery.Selection) {
				out = append(out, region{
					text:    regionText(sub),
					locator: fmt.Sprintf("%s[%d] %s[%d]", sel, i, goquery.NodeName(sub), j),
				})
			})
			out = append(out, region{
				text:    regionText(container),
				locator: fmt.Sprintf("%s[%d]", sel, i),
			})
		})
	}
	return out
}

var metaSelectors = []string{
	`meta[name="description"]`,
	`meta[property="og:description"]`,
	`meta[name="twitter:description"]`,
}

func metadataRegions(doc *goquery.Document) []region {
	var out []region
	for _, sel := range metaSelectors {
		doc.Find(sel).Each(func(_ int, m *goquery.Selection) {
			if content, ok := m.Attr("content"); ok {
				out = append(out, region{text: stripMarkup(content), locator: sel})
			}
		})
	}
	return out
}
