package adapters

import (
	"net/url"
	"strings"

	"github.com/ppiankov/ranger/internal/model"
	"golang.org/x/net/html"
)

// ResultParser turns a search engine results page into hits
type ResultParser interface {
	// Name returns the parser name
	Name() string

	// CanParse checks if this parser understands pages from the given search endpoint
	CanParse(searchURL string) bool

	// ParseResults extracts hits from the results page, in page order
	ParseResults(doc *html.Node, pageURL string) []model.SearchResult
}

// ContentExtractor pulls the readable article text out of a fetched page
type ContentExtractor interface {
	// Name returns the extractor name
	Name() string

	// CanHandle checks if this extractor can handle the given URL/content
	CanHandle(url string, contentType string) bool

	// ExtractContent returns plain text with markup stripped
	ExtractContent(doc *html.Node, url string) string
}

// Registry manages result parsers and content extractors
type Registry struct {
	parsers    []ResultParser
	extractors []ContentExtractor

	genericParser    ResultParser
	genericExtractor ContentExtractor
}

// NewRegistry creates a registry with the built-in engines and sites
func NewRegistry() *Registry {
	registry := &Registry{}

	registry.RegisterParser(NewDuckDuckGoParser())
	registry.RegisterParser(NewBingParser())
	registry.RegisterParser(NewGoogleParser())
	registry.RegisterExtractor(NewWikipediaExtractor())

	// Generic implementations are the fallback
	registry.genericParser = NewGenericParser()
	registry.genericExtractor = NewGenericExtractor()

	return registry
}

// RegisterParser registers a search result parser
func (r *Registry) RegisterParser(p ResultParser) {
	r.parsers = append(r.parsers, p)
}

// RegisterExtractor registers a content extractor
func (r *Registry) RegisterExtractor(e ContentExtractor) {
	r.extractors = append(r.extractors, e)
}

// FindParser finds the parser for a search endpoint
func (r *Registry) FindParser(searchURL string) ResultParser {
	for _, p := range r.parsers {
		if p.CanParse(searchURL) {
			return p
		}
	}
	return r.genericParser
}

// FindExtractor finds the best extractor for the given URL and content type
func (r *Registry) FindExtractor(url string, contentType string) ContentExtractor {
	for _, e := range r.extractors {
		if e.CanHandle(url, contentType) {
			return e
		}
	}
	return r.genericExtractor
}

// BaseAdapter provides common functionality for parsers and extractors
type BaseAdapter struct{}

// ExtractText extracts text content from a node with whitespace collapsed
func (b *BaseAdapter) ExtractText(n *html.Node) string {
	if n == nil {
		return ""
	}
	if n.Type == html.TextNode {
		return strings.TrimSpace(n.Data)
	}
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript":
			return ""
		}
	}

	var buf strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		buf.WriteString(b.ExtractText(c))
		buf.WriteString(" ")
	}
	return strings.Join(strings.Fields(buf.String()), " ")
}

// HasClass checks if a node has a specific CSS class
func (b *BaseAdapter) HasClass(n *html.Node, className string) bool {
	if n.Type != html.ElementNode {
		return false
	}

	for _, attr := range n.Attr {
		if attr.Key == "class" {
			for _, class := range strings.Fields(attr.Val) {
				if class == className {
					return true
				}
			}
		}
	}
	return false
}

// GetAttribute gets an attribute value from a node
func (b *BaseAdapter) GetAttribute(n *html.Node, attrKey string) string {
	for _, attr := range n.Attr {
		if attr.Key == attrKey {
			return attr.Val
		}
	}
	return ""
}

// IsElement reports whether n is an element with the given tag
func (b *BaseAdapter) IsElement(n *html.Node, tag string) bool {
	return n.Type == html.ElementNode && n.Data == tag
}

// FindAll finds all nodes matching a predicate
func (b *BaseAdapter) FindAll(n *html.Node, predicate func(*html.Node) bool) []*html.Node {
	var results []*html.Node

	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if predicate(node) {
			results = append(results, node)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)
	return results
}

// FindFirst finds the first node matching a predicate
func (b *BaseAdapter) FindFirst(n *html.Node, predicate func(*html.Node) bool) *html.Node {
	var result *html.Node

	var walk func(*html.Node) bool
	walk = func(node *html.Node) bool {
		if predicate(node) {
			result = node
			return true
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}

	walk(n)
	return result
}

// absoluteURL resolves href against the page it appeared on
func absoluteURL(pageURL, href string) string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}

// hostOf returns the host of rawURL, or "" when it does not parse
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func dedupeResults(results []model.SearchResult) []model.SearchResult {
	seen := make(map[string]bool)
	var unique []model.SearchResult

	for _, r := range results {
		if r.URL != "" && !seen[r.URL] {
			seen[r.URL] = true
			unique = append(unique, r)
		}
	}

	return unique
}
