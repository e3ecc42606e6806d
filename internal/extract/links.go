package extract

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// Link is an outbound anchor found in a page
type Link struct {
	URL      string
	Host     string
	Text     string
	SameHost bool
}

// ExtractLinks returns the resolved http(s) anchors of an HTML document in page order
func ExtractLinks(doc *html.Node, sourceURL string) ([]Link, error) {
	baseURL, err := url.Parse(sourceURL)
	if err != nil {
		return nil, err
	}

	var links []Link
	var walk func(*html.Node)

	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			href := ""
			for _, attr := range n.Attr {
				if attr.Key == "href" {
					href = strings.TrimSpace(attr.Val)
				}
			}

			if resolved := ResolveURL(baseURL, href); resolved != "" {
				host := ""
				if parsed, err := url.Parse(resolved); err == nil {
					host = parsed.Host
				}

				links = append(links, Link{
					URL:      resolved,
					Host:     host,
					Text:     strings.Join(strings.Fields(VisibleText(n)), " "),
					SameHost: host == baseURL.Host,
				})
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(doc)

	return dedupeLinks(links), nil
}

// ResolveURL resolves href against base, keeping only http and https targets
func ResolveURL(base *url.URL, href string) string {
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}

	if strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return ""
	}

	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}

	resolved := base.ResolveReference(parsed)

	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}

	return resolved.String()
}

func dedupeLinks(links []Link) []Link {
	seen := make(map[string]bool)
	var unique []Link

	for _, l := range links {
		if !seen[l.URL] {
			seen[l.URL] = true
			unique = append(unique, l)
		}
	}

	return unique
}
