package adapters

import (
	"strings"

	"golang.org/x/net/html"
)

// WikipediaExtractor extracts article prose from Wikipedia pages
type WikipediaExtractor struct {
	BaseAdapter
}

// NewWikipediaExtractor creates a new Wikipedia content extractor
func NewWikipediaExtractor() *WikipediaExtractor {
	return &WikipediaExtractor{}
}

// Name returns the extractor name
func (a *WikipediaExtractor) Name() string {
	return "wikipedia"
}

// CanHandle checks if this is a Wikipedia URL
func (a *WikipediaExtractor) CanHandle(rawURL string, contentType string) bool {
	return strings.HasSuffix(hostOf(rawURL), "wikipedia.org")
}

// ExtractContent returns the lead section followed by the remaining paragraphs,
// without infoboxes, navigation boxes or citation markers
func (a *WikipediaExtractor) ExtractContent(doc *html.Node, rawURL string) string {
	// Find the main content area
	content := a.FindFirst(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "div" &&
			(a.HasClass(n, "mw-parser-output") || a.GetAttribute(n, "id") == "mw-content-text")
	})
	if content == nil {
		content = doc
	}

	lead, rest := a.splitParagraphs(content)

	var parts []string
	for _, p := range append(lead, rest...) {
		if text := a.paragraphText(p); text != "" {
			parts = append(parts, text)
		}
	}

	return CleanText(strings.Join(parts, " "))
}

// splitParagraphs separates paragraphs before the first h2 from the rest,
// skipping infobox and navbox tables
func (a *WikipediaExtractor) splitParagraphs(content *html.Node) (lead, rest []*html.Node) {
	inLead := true

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "h2":
				inLead = false
			case n.Data == "table" && (a.HasClass(n, "infobox") || a.HasClass(n, "navbox")):
				return
			case n.Data == "p":
				if inLead {
					lead = append(lead, n)
				} else {
					rest = append(rest, n)
				}
				return
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(content)
	return lead, rest
}

// paragraphText is the text of p without sup.reference markers like [1]
func (a *WikipediaExtractor) paragraphText(p *html.Node) string {
	var buf strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "sup" && a.HasClass(n, "reference") {
			return
		}
		if n.Type == html.ElementNode && (n.Data == "style" || n.Data == "script") {
			return
		}
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(p)
	return strings.Join(strings.Fields(buf.String()), " ")
}
