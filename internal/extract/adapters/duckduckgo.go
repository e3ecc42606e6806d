package adapters

import (
	"net/url"
	"strings"

	"github.com/ppiankov/ranger/internal/model"
	"golang.org/x/net/html"
)

// DuckDuckGoParser reads the html.duckduckgo.com results page
type DuckDuckGoParser struct {
	BaseAdapter
}

// NewDuckDuckGoParser creates a DuckDuckGo result parser
func NewDuckDuckGoParser() *DuckDuckGoParser {
	return &DuckDuckGoParser{}
}

// Name returns the parser name
func (p *DuckDuckGoParser) Name() string {
	return "duckduckgo"
}

// CanParse checks if this is a DuckDuckGo endpoint
func (p *DuckDuckGoParser) CanParse(searchURL string) bool {
	return strings.Contains(hostOf(searchURL), "duckduckgo.com")
}

// ParseResults reads div.result blocks
func (p *DuckDuckGoParser) ParseResults(doc *html.Node, pageURL string) []model.SearchResult {
	var results []model.SearchResult

	blocks := p.FindAll(doc, func(n *html.Node) bool {
		return p.IsElement(n, "div") && p.HasClass(n, "result")
	})

	for _, block := range blocks {
		title := p.FindFirst(block, func(n *html.Node) bool {
			return p.IsElement(n, "a") && p.HasClass(n, "result__a")
		})
		if title == nil {
			continue
		}

		target := unwrapRedirect(absoluteURL(pageURL, p.GetAttribute(title, "href")))
		if target == "" {
			continue
		}

		snippet := p.FindFirst(block, func(n *html.Node) bool {
			return n.Type == html.ElementNode && p.HasClass(n, "result__snippet")
		})

		results = append(results, model.SearchResult{
			Title:   p.ExtractText(title),
			URL:     target,
			Snippet: p.ExtractText(snippet),
		})
	}

	return dedupeResults(results)
}

// unwrapRedirect decodes the uddg parameter of DuckDuckGo's /l/ click-through links
func unwrapRedirect(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	if strings.HasSuffix(u.Hostname(), "duckduckgo.com") && strings.HasPrefix(u.Path, "/l/") {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
	}
	return rawURL
}
