package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// skipSelector matches elements whose text never belongs to an answer.
const skipSelector = "script, style, noscript, svg, button, nav, footer, aside, form, template"

var skipTags = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Svg:      true,
	atom.Button:   true,
	atom.Nav:      true,
	atom.Footer:   true,
	atom.Aside:    true,
	atom.Form:     true,
	atom.Template: true,
}

var blockTags = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Li: true, atom.Br: true,
	atom.Ul: true, atom.Ol: true, atom.Tr: true, atom.Td: true, atom.Th: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Header: true, atom.Blockquote: true,
	atom.Dd: true, atom.Dt: true, atom.Table: true,
}

// regionText returns the visible text of a selection. Block boundaries become
// spaces so adjacent paragraphs do not run together.
func regionText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		collectText(n, &b)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func collectText(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.CommentNode:
		return
	case html.ElementNode:
		if skipTags[n.DataAtom] {
			return
		}
		if blockTags[n.DataAtom] {
			b.WriteByte(' ')
			defer b.WriteByte(' ')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}

// visible drops nodes nested in a skipped element below root.
func visible(sel, root *goquery.Selection) *goquery.Selection {
	return sel.FilterFunction(func(_ int, s *goquery.Selection) bool {
		if s.Is(skipSelector) {
			return false
		}
		return s.ParentsUntilSelection(root).Filter(skipSelector).Length() == 0
	})
}

var strictPolicy = bluemonday.StrictPolicy()

// stripMarkup removes tags from an attribute or JSON value and decodes the
// entities bluemonday leaves escaped.
func stripMarkup(s string) string {
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(s)))
}
