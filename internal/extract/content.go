package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	contentAreas     = "main, article, section"
	contentBlocks    = "p, li, blockquote, dd"
	minSentenceWords = 3
)

// contentRegions yields sentence-like blocks from the main content areas,
// falling back to the body when the page has none.
func contentRegions(doc *goquery.Document) []region {
	areas := doc.Find(contentAreas)
	if areas.Length() == 0 {
		areas = doc.Find("body")
	}

	var out []region
	seen := make(map[*html.Node]bool)
	areas.Each(func(i int, area *goquery.Selection) {
		visible(area.Find(contentBlocks), area).Each(func(j int, block *goquery.Selection) {
			n := block.Get(0)
			if seen[n] {
				return
			}
			seen[n] = true
			text := regionText(block)
			if len(strings.Fields(text)) < minSentenceWords {
				return
			}
			out = append(out, region{
				text:    text,
				locator: fmt.Sprintf("%s[%d] %s[%d]", goquery.NodeName(area), i, goquery.NodeName(block), j),
			})
		})
	})
	return out
}
