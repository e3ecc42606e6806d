package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVisibleText(t *testing.T) {
	page := `<html><head><style>p{}</style><script>var x = 1;</script></head>
	<body><h1>Title</h1><p>First   line.</p><noscript>enable js</noscript><p>Second</p></body></html>`

	doc, err := ParseHTML(page)
	require.NoError(t, err)
	assert.Equal(t, "Title First line. Second", strings.Join(strings.Fields(VisibleText(doc)), " "))
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		desc string
		in   string
		n    int
		want string
	}{
		{"short", "hello", 10, "hello"},
		{"word boundary", "hello wonderful world", 12, "hello"},
		{"hard cut", "abcdefghij", 4, "abcd"},
		{"zero", "abc", 0, "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			assert.Equal(t, tt.want, Truncate(tt.in, tt.n))
		})
	}
}

func TestExtractLinks(t *testing.T) {
	page := `<html><body>
		<a href="/wiki/Paris">Paris</a>
		<a href="https://other.org/x"><b>Other</b> site</a>
		<a href="#top">top</a>
		<a href="mailto:a@b.c">mail</a>
		<a href="/wiki/Paris">again</a>
	</body></html>`

	doc, err := ParseHTML(page)
	require.NoError(t, err)

	links, err := ExtractLinks(doc, "https://en.wikipedia.org/wiki/France")
	require.NoError(t, err)
	require.Len(t, links, 2)

	assert.Equal(t, "https://en.wikipedia.org/wiki/Paris", links[0].URL)
	assert.True(t, links[0].SameHost)
	assert.Equal(t, "Other site", links[1].Text)
	assert.Equal(t, "other.org", links[1].Host)
	assert.False(t, links[1].SameHost)
}
