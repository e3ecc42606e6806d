package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/ranger/internal/cache"
	"github.com/ppiankov/ranger/internal/extract"
	"github.com/ppiankov/ranger/internal/extract/adapters"
	"github.com/ppiankov/ranger/internal/logging"
	"github.com/ppiankov/ranger/internal/metrics"
	"github.com/ppiankov/ranger/internal/model"
	"github.com/ppiankov/ranger/internal/util"
	"github.com/ppiankov/ranger/internal/worker"
)

// HTTPFetcher searches the configured engines and fetches page text over HTTP.
// It satisfies validate.ContentFetcher.
type HTTPFetcher struct {
	httpClient      *http.Client
	robots          *util.RobotsChecker // nil when robots.txt is ignored
	registry        *adapters.Registry
	cache           cache.Cache // nil disables caching
	limiter         *worker.Limiter
	userAgent       string
	maxBytes        int64
	engines         []string
	maxResults      int
	maxContentChars int
	logger          *zap.Logger
	metrics         *metrics.Metrics
}

// NewHTTPFetcher creates a fetcher from the HTTP config. A nil limiter is built from the config.
func NewHTTPFetcher(cfg model.HTTPConfig, c cache.Cache, limiter *worker.Limiter, logger *zap.Logger, m *metrics.Metrics) *HTTPFetcher {
	client := util.NewHTTPClient(util.ClientOptions{
		Timeout:     cfg.Timeout,
		HTTPProxy:   cfg.HTTPProxy,
		HTTPSProxy:  cfg.HTTPSProxy,
		NoProxy:     cfg.NoProxy,
		InsecureTLS: cfg.InsecureTLS,
	})

	if limiter == nil {
		limiter = worker.NewLimiter(cfg.RequestsPerSecond, cfg.Burst)
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 2_000_000
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}

	f := &HTTPFetcher{
		httpClient:      client,
		registry:        adapters.NewRegistry(),
		cache:           c,
		limiter:         limiter,
		userAgent:       cfg.UserAgent,
		maxBytes:        cfg.MaxBodyBytes,
		engines:         cfg.SearchEngines,
		maxResults:      cfg.MaxResults,
		maxContentChars: cfg.MaxContentChars,
		logger:          logging.OrNop(logger).Named("fetcher"),
		metrics:         m,
	}
	if cfg.RespectRobots {
		f.robots = util.NewRobotsChecker(cfg.UserAgent, cfg.Timeout, client)
	}

	return f
}

// Registry exposes the parser registry so callers can add engines or sites
func (f *HTTPFetcher) Registry() *adapters.Registry {
	return f.registry
}

// Search queries each engine in order and returns the first non-empty result list,
// capped to the configured maximum. It fails only when every engine failed.
func (f *HTTPFetcher) Search(ctx context.Context, query string) ([]model.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []model.SearchResult{}, nil
	}

	key := cache.Key("search", query)
	if cached, ok := f.cacheGet(key); ok {
		var results []model.SearchResult
		if err := json.Unmarshal(cached, &results); err == nil {
			return results, nil
		}
	}

	var errs []error
	for _, engine := range f.engines {
		results, err := f.searchEngine(ctx, engine, query)
		if err != nil {
			f.logger.Warn("search engine failed", zap.String("engine", engine), zap.Error(err))
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if len(results) == 0 {
			continue
		}

		if len(results) > f.maxResults {
			results = results[:f.maxResults]
		}
		if data, err := json.Marshal(results); err == nil {
			f.cacheSet(key, data)
		}
		return results, nil
	}

	if len(errs) > 0 && len(errs) == len(f.engines) {
		return nil, fmt.Errorf("%w: %w", model.ErrTransientFetch, errors.Join(errs...))
	}
	return []model.SearchResult{}, nil
}

func (f *HTTPFetcher) searchEngine(ctx context.Context, engine, query string) (results []model.SearchResult, err error) {
	start := time.Now()
	defer func() { f.metrics.ObserveFetch("search", start, err) }()

	u, err := url.Parse(engine)
	if err != nil {
		return nil, fmt.Errorf("parse engine URL: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("num", strconv.Itoa(f.maxResults))
	u.RawQuery = q.Encode()
	searchURL := u.String()

	if err := f.limiter.Wait(ctx, searchURL); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	body, _, finalURL, err := f.get(ctx, searchURL)
	if err != nil {
		return nil, err
	}

	doc, err := extract.ParseHTML(body)
	if err != nil {
		return nil, fmt.Errorf("parse results page: %w", err)
	}

	parser := f.registry.FindParser(engine)
	results = parser.ParseResults(doc, finalURL)
	f.logger.Debug("search parsed",
		zap.String("parser", parser.Name()),
		zap.String("query", query),
		zap.Int("results", len(results)))

	return results, nil
}

// Fetch returns the readable text of a page, truncated to the configured length.
// An empty string with a nil error means the page had no extractable text.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (text string, err error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", model.Reject("unsupported URL", map[string]any{"url": rawURL})
	}

	key := cache.Key("page", rawURL)
	if cached, ok := f.cacheGet(key); ok {
		return string(cached), nil
	}

	start := time.Now()
	defer func() { f.metrics.ObserveFetch("page", start, err) }()

	var crawlDelay time.Duration
	if f.robots != nil {
		allowed, delay, err := f.robots.CanFetch(ctx, rawURL)
		if err != nil {
			return "", fmt.Errorf("check robots.txt: %w", err)
		}
		if !allowed {
			return "", model.Reject("disallowed by robots.txt", map[string]any{"url": rawURL})
		}
		crawlDelay = delay
	}

	if err := f.limiter.WaitCrawlDelay(ctx, rawURL, crawlDelay); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}

	body, contentType, finalURL, err := f.get(ctx, rawURL)
	if err != nil {
		return "", err
	}

	if strings.HasPrefix(contentType, "text/plain") {
		text = strings.Join(strings.Fields(body), " ")
	} else {
		doc, err := extract.ParseHTML(body)
		if err != nil {
			return "", fmt.Errorf("parse page: %w", err)
		}
		extractor := f.registry.FindExtractor(finalURL, contentType)
		text = extractor.ExtractContent(doc, finalURL)
	}

	if f.maxContentChars > 0 && len([]rune(text)) > f.maxContentChars {
		text = extract.Truncate(text, f.maxContentChars) + "..."
	}

	if text != "" {
		f.cacheSet(key, []byte(text))
	}
	return text, nil
}

// get performs a GET and returns the size-limited body, content type and final URL
func (f *HTTPFetcher) get(ctx context.Context, rawURL string) (string, string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", "", "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,text/plain;q=0.8,*/*;q=0.5")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", "", "", fmt.Errorf("%w: %w", model.ErrTransientFetch, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", "", fmt.Errorf("%w: unexpected status %d from %s", model.ErrTransientFetch, resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return "", "", "", fmt.Errorf("%w: read body: %w", model.ErrTransientFetch, err)
	}

	return string(body), resp.Header.Get("Content-Type"), resp.Request.URL.String(), nil
}

func (f *HTTPFetcher) cacheGet(key string) ([]byte, bool) {
	if f.cache == nil {
		return nil, false
	}
	return f.cache.Get(key)
}

func (f *HTTPFetcher) cacheSet(key string, value []byte) {
	if f.cache == nil {
		return
	}
	if err := f.cache.Set(key, value, 0); err != nil {
		f.logger.Debug("cache write failed", zap.Error(err))
	}
}
