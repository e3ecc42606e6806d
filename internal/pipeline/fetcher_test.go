package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/ranger/internal/cache"
	"github.com/ppiankov/ranger/internal/model"
)

func testHTTPConfig(engines ...string) model.HTTPConfig {
	return model.HTTPConfig{
		Timeout:         5 * time.Second,
		UserAgent:       "ranger-test",
		MaxBodyBytes:    1 << 20,
		SearchEngines:   engines,
		MaxResults:      5,
		MaxContentChars: 2000,
	}
}

func resultsPage(n int) string {
	var b strings.Builder
	b.WriteString(`<html><body><a href="/about">About this engine</a>`)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `<div><a href="https://en.wikipedia.org/wiki/Page_%d">Result %d</a></div>`, i, i)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

func TestHTTPFetcher_Search_FallsThroughFailingEngine(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer broken.Close()

	var query string
	working := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprint(w, resultsPage(7))
	}))
	defer working.Close()

	f := NewHTTPFetcher(testHTTPConfig(broken.URL+"/search", working.URL+"/search"), nil, nil, nil, nil)

	results, err := f.Search(context.Background(), "jupiter moons")
	require.NoError(t, err)
	assert.Equal(t, "jupiter moons", query)
	require.Len(t, results, 5)
	assert.Equal(t, "Result 0", results[0].Title)
	assert.Equal(t, "https://en.wikipedia.org/wiki/Page_0", results[0].URL)
}

func TestHTTPFetcher_Search_AllEnginesFail(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	f := NewHTTPFetcher(testHTTPConfig(broken.URL), nil, nil, nil, nil)

	_, err := f.Search(context.Background(), "anything")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrTransientFetch))
}

func TestHTTPFetcher_Search_NoResults(t *testing.T) {
	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, "<html><body>No results</body></html>")
	}))
	defer empty.Close()

	f := NewHTTPFetcher(testHTTPConfig(empty.URL), nil, nil, nil, nil)

	results, err := f.Search(context.Background(), "zzzz")
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = f.Search(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHTTPFetcher_Search_Cached(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = fmt.Fprint(w, resultsPage(2))
	}))
	defer server.Close()

	c := cache.NewLayeredCache(time.Minute, "", 0, nil)
	f := NewHTTPFetcher(testHTTPConfig(server.URL), c, nil, nil, nil)

	first, err := f.Search(context.Background(), "saturn")
	require.NoError(t, err)
	second, err := f.Search(context.Background(), "saturn")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPFetcher_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			http.NotFound(w, r)
		case "/plain":
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = fmt.Fprint(w, "  plain\n\ttext body  ")
		default:
			w.Header().Set("Content-Type", "text/html")
			_, _ = fmt.Fprint(w, `<html><body><nav>Menu</nav><main><h1>Jupiter</h1>
<p>Jupiter is the fifth planet from the Sun.</p><script>var x = 1;</script></main></body></html>`)
		}
	}))
	defer server.Close()

	cfg := testHTTPConfig()
	cfg.RespectRobots = true
	f := NewHTTPFetcher(cfg, nil, nil, nil, nil)

	text, err := f.Fetch(context.Background(), server.URL+"/jupiter")
	require.NoError(t, err)
	assert.Equal(t, "Jupiter Jupiter is the fifth planet from the Sun.", text)

	text, err = f.Fetch(context.Background(), server.URL+"/plain")
	require.NoError(t, err)
	assert.Equal(t, "plain text body", text)
}

func TestHTTPFetcher_Fetch_Truncates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `<html><body><p>alpha beta gamma delta epsilon zeta eta theta</p></body></html>`)
	}))
	defer server.Close()

	cfg := testHTTPConfig()
	cfg.MaxContentChars = 20
	f := NewHTTPFetcher(cfg, nil, nil, nil, nil)

	text, err := f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "alpha beta gamma...", text)
}

func TestHTTPFetcher_Fetch_RobotsDisallow(t *testing.T) {
	var pageHits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
			return
		}
		pageHits.Add(1)
		_, _ = fmt.Fprint(w, "<html><body>secret</body></html>")
	}))
	defer server.Close()

	cfg := testHTTPConfig()
	cfg.RespectRobots = true
	f := NewHTTPFetcher(cfg, nil, nil, nil, nil)

	_, err := f.Fetch(context.Background(), server.URL+"/private/page")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrRejectedInput))
	assert.Equal(t, int32(0), pageHits.Load())
}

func TestHTTPFetcher_Fetch_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	f := NewHTTPFetcher(testHTTPConfig(), nil, nil, nil, nil)

	_, err := f.Fetch(context.Background(), server.URL+"/missing")
	assert.True(t, errors.Is(err, model.ErrTransientFetch))

	_, err = f.Fetch(context.Background(), "ftp://example.com/file")
	assert.True(t, errors.Is(err, model.ErrRejectedInput))
}
