package adapters

import (
	"net/url"
	"strings"

	"github.com/ppiankov/ranger/internal/model"
	"golang.org/x/net/html"
)

// GoogleParser reads Google's non-JavaScript results page
type GoogleParser struct {
	BaseAdapter
}

// NewGoogleParser creates a Google result parser
func NewGoogleParser() *GoogleParser {
	return &GoogleParser{}
}

// Name returns the parser name
func (p *GoogleParser) Name() string {
	return "google"
}

// CanParse checks if this is a Google endpoint
func (p *GoogleParser) CanParse(searchURL string) bool {
	host := hostOf(searchURL)
	return host == "google.com" || strings.HasSuffix(host, ".google.com")
}

// ParseResults reads anchors wrapping an h3 title. Snippets come from the VwiC3b
// container when present.
func (p *GoogleParser) ParseResults(doc *html.Node, pageURL string) []model.SearchResult {
	var results []model.SearchResult

	links := p.FindAll(doc, func(n *html.Node) bool {
		if !p.IsElement(n, "a") {
			return false
		}
		return p.FindFirst(n, func(c *html.Node) bool { return p.IsElement(c, "h3") }) != nil
	})

	for _, link := range links {
		target := unwrapGoogleRedirect(absoluteURL(pageURL, p.GetAttribute(link, "href")))
		if target == "" || strings.HasSuffix(hostOf(target), "google.com") {
			continue
		}

		title := p.FindFirst(link, func(c *html.Node) bool { return p.IsElement(c, "h3") })

		var snippet string
		if block := p.enclosingResult(link); block != nil {
			snippet = p.ExtractText(p.FindFirst(block, func(n *html.Node) bool {
				return n.Type == html.ElementNode && p.HasClass(n, "VwiC3b")
			}))
		}

		results = append(results, model.SearchResult{
			Title:   p.ExtractText(title),
			URL:     target,
			Snippet: snippet,
		})
	}

	return dedupeResults(results)
}

// enclosingResult walks up to the div.g that holds a hit
func (p *GoogleParser) enclosingResult(n *html.Node) *html.Node {
	for cur := n.Parent; cur != nil; cur = cur.Parent {
		if p.IsElement(cur, "div") && p.HasClass(cur, "g") {
			return cur
		}
	}
	return nil
}

// unwrapGoogleRedirect decodes /url?q= click-through links
func unwrapGoogleRedirect(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	if strings.HasSuffix(u.Hostname(), "google.com") && u.Path == "/url" {
		if target := u.Query().Get("q"); target != "" {
			return target
		}
	}
	return rawURL
}
