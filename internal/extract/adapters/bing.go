package adapters

import (
	"strings"

	"github.com/ppiankov/ranger/internal/model"
	"golang.org/x/net/html"
)

// BingParser reads Bing web results
type BingParser struct {
	BaseAdapter
}

// NewBingParser creates a Bing result parser
func NewBingParser() *BingParser {
	return &BingParser{}
}

// Name returns the parser name
func (p *BingParser) Name() string {
	return "bing"
}

// CanParse checks if this is a Bing endpoint
func (p *BingParser) CanParse(searchURL string) bool {
	return strings.Contains(hostOf(searchURL), "bing.com")
}

// ParseResults reads li.b_algo blocks: the h2 link is the hit, the first paragraph the snippet
func (p *BingParser) ParseResults(doc *html.Node, pageURL string) []model.SearchResult {
	var results []model.SearchResult

	blocks := p.FindAll(doc, func(n *html.Node) bool {
		return p.IsElement(n, "li") && p.HasClass(n, "b_algo")
	})

	for _, block := range blocks {
		heading := p.FindFirst(block, func(n *html.Node) bool { return p.IsElement(n, "h2") })
		if heading == nil {
			continue
		}
		link := p.FindFirst(heading, func(n *html.Node) bool { return p.IsElement(n, "a") })
		if link == nil {
			continue
		}

		target := absoluteURL(pageURL, p.GetAttribute(link, "href"))
		if target == "" {
			continue
		}

		snippet := p.FindFirst(block, func(n *html.Node) bool { return p.IsElement(n, "p") })

		results = append(results, model.SearchResult{
			Title:   p.ExtractText(heading),
			URL:     target,
			Snippet: p.ExtractText(snippet),
		})
	}

	return dedupeResults(results)
}
