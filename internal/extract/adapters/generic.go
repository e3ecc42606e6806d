package adapters

import (
	"regexp"
	"strings"

	"github.com/ppiankov/ranger/internal/extract"
	"github.com/ppiankov/ranger/internal/model"
	"golang.org/x/net/html"
)

// GenericParser is the fallback for unknown search endpoints: every outbound link is a hit
type GenericParser struct {
	BaseAdapter
}

// NewGenericParser creates a new generic result parser
func NewGenericParser() *GenericParser {
	return &GenericParser{}
}

// Name returns the parser name
func (p *GenericParser) Name() string {
	return "generic"
}

// CanParse always returns true (fallback parser)
func (p *GenericParser) CanParse(searchURL string) bool {
	return true
}

// ParseResults keeps off-site links that carry anchor text
func (p *GenericParser) ParseResults(doc *html.Node, pageURL string) []model.SearchResult {
	links, err := extract.ExtractLinks(doc, pageURL)
	if err != nil {
		return nil
	}

	var results []model.SearchResult
	for _, l := range links {
		if l.SameHost || l.Text == "" {
			continue
		}
		results = append(results, model.SearchResult{Title: l.Text, URL: l.URL})
	}
	return results
}

// contentSelectors are tried in order; the first match is the main content
var contentSelectors = []struct {
	tag, class, id string
}{
	{tag: "main"},
	{tag: "article"},
	{class: "content"},
	{class: "main-content"},
	{id: "content"},
	{id: "main"},
	{class: "post-content"},
	{class: "entry-content"},
}

var specialChars = regexp.MustCompile(`[^\p{L}\p{N}_\s.,!?\-]`)

// GenericExtractor is the fallback content extractor for unknown sites
type GenericExtractor struct {
	BaseAdapter
}

// NewGenericExtractor creates a new generic content extractor
func NewGenericExtractor() *GenericExtractor {
	return &GenericExtractor{}
}

// Name returns the extractor name
func (e *GenericExtractor) Name() string {
	return "generic"
}

// CanHandle always returns true (fallback extractor)
func (e *GenericExtractor) CanHandle(url string, contentType string) bool {
	return true
}

// ExtractContent finds the main content container, falling back to body
func (e *GenericExtractor) ExtractContent(doc *html.Node, url string) string {
	var root *html.Node
	for _, sel := range contentSelectors {
		root = e.FindFirst(doc, func(n *html.Node) bool {
			if n.Type != html.ElementNode {
				return false
			}
			switch {
			case sel.tag != "":
				return n.Data == sel.tag
			case sel.class != "":
				return e.HasClass(n, sel.class)
			default:
				return e.GetAttribute(n, "id") == sel.id
			}
		})
		if root != nil {
			break
		}
	}

	if root == nil {
		root = e.FindFirst(doc, func(n *html.Node) bool { return e.IsElement(n, "body") })
	}
	if root == nil {
		root = doc
	}

	return CleanText(extract.VisibleText(root))
}

// CleanText collapses whitespace and drops symbols other than sentence punctuation and hyphens
func CleanText(text string) string {
	text = specialChars.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}
