package validate

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/ranger/internal/metrics"
	"github.com/ppiankov/ranger/internal/model"
)

const (
	queryContentChars = 100
	defaultWorkers    = 4
)

// ContentFetcher searches the web and returns page text with markup stripped
type ContentFetcher interface {
	Search(ctx context.Context, query string) ([]model.SearchResult, error)
	Fetch(ctx context.Context, url string) (string, error)
}

// Options tunes a Verifier
type Options struct {
	Timeout            time.Duration
	Workers            int
	TrustedDomains     []string
	SuspiciousKeywords []string
	VerifiedThreshold  float64
	SourceThreshold    float64
	ExcerptLength      int
}

// OptionsFromConfig maps the verification config onto Options
func OptionsFromConfig(cfg model.VerificationConfig, workers int) Options {
	return Options{
		Timeout:            cfg.Timeout,
		Workers:            workers,
		TrustedDomains:     cfg.TrustedDomains,
		SuspiciousKeywords: cfg.SuspiciousKeywords,
		VerifiedThreshold:  cfg.VerifiedThreshold,
		SourceThreshold:    cfg.SourceThreshold,
		ExcerptLength:      cfg.ExcerptLength,
	}
}

// TrustedContent is the page text chosen as evidence for a query
type TrustedContent struct {
	URL   string
	Trust float64
	Text  string
}

// Verifier checks claims against trusted web content
type Verifier struct {
	fetcher ContentFetcher
	trust   *TrustScorer
	timeout atomic.Int64 // time.Duration

	workers           int
	verifiedThreshold float64
	sourceThreshold   float64
	excerptLength     int

	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu    sync.Mutex
	stats model.VerificationStats
}

// NewVerifier creates a verifier. Zero-valued options fall back to the defaults.
func NewVerifier(fetcher ContentFetcher, opts Options, logger *zap.Logger, m *metrics.Metrics) *Verifier {
	def := model.DefaultConfig().Verification
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.TrustedDomains == nil {
		opts.TrustedDomains = def.TrustedDomains
	}
	if opts.SuspiciousKeywords == nil {
		opts.SuspiciousKeywords = def.SuspiciousKeywords
	}
	if opts.VerifiedThreshold <= 0 {
		opts.VerifiedThreshold = def.VerifiedThreshold
	}
	if opts.SourceThreshold <= 0 {
		opts.SourceThreshold = def.SourceThreshold
	}
	if opts.ExcerptLength <= 0 {
		opts.ExcerptLength = def.ExcerptLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	v := &Verifier{
		fetcher:           fetcher,
		trust:             NewTrustScorer(opts.TrustedDomains, opts.SuspiciousKeywords),
		workers:           opts.Workers,
		verifiedThreshold: opts.VerifiedThreshold,
		sourceThreshold:   opts.SourceThreshold,
		excerptLength:     opts.ExcerptLength,
		logger:            logger.Named("verifier"),
		metrics:           m,
		now:               time.Now,
	}
	v.timeout.Store(int64(opts.Timeout))
	return v
}

// Trust exposes the domain scorer
func (v *Verifier) Trust() *TrustScorer {
	return v.trust
}

// SetTimeout changes the bound applied to each verification
func (v *Verifier) SetTimeout(d time.Duration) {
	if d > 0 {
		v.timeout.Store(int64(d))
	}
}

// Timeout returns the current verification bound
func (v *Verifier) Timeout() time.Duration {
	return time.Duration(v.timeout.Load())
}

// UpdateTrustedDomains merges domains into the trusted list
func (v *Verifier) UpdateTrustedDomains(domains []string) {
	v.trust.UpdateTrustedDomains(domains)
	v.logger.Info("updated trusted domains", zap.Strings("domains", v.trust.TrustedDomains()))
}

// Verify checks a claim against the most trusted content found for it.
// Missing or unreachable content yields an unverified result, never an error.
func (v *Verifier) Verify(ctx context.Context, claim model.KnowledgeClaim) model.VerificationResult {
	if strings.TrimSpace(claim.Topic) == "" || strings.TrimSpace(claim.Content) == "" {
		return model.Unverified(v.now())
	}

	query := claim.Topic + " " + prefix(claim.Content, queryContentChars)

	content, ok := v.SearchWeb(ctx, query)
	if !ok {
		res := model.Unverified(v.now())
		v.record(res, false)
		return res
	}

	similarity := Jaccard(claim.Content, content.Text)

	res := model.VerificationResult{
		IsVerified: similarity > v.verifiedThreshold,
		Confidence: similarity,
		Sources:    []string{},
		Method:     model.VerificationMethodWeb,
		Timestamp:  v.now(),
	}
	if similarity > v.sourceThreshold {
		res.Sources = append(res.Sources, prefix(content.Text, v.excerptLength)+"...")
	}

	v.logger.Debug("verified claim",
		zap.String("topic", claim.Topic),
		zap.String("source", content.URL),
		zap.Float64("similarity", similarity),
		zap.Bool("verified", res.IsVerified))

	v.record(res, true)
	return res
}

// SearchWeb searches for query and returns the highest-trust content among fetchable results.
// The whole search is bounded by the verifier timeout; there are no retries.
func (v *Verifier) SearchWeb(ctx context.Context, query string) (TrustedContent, bool) {
	ctx, cancel := context.WithTimeout(ctx, v.Timeout())
	defer cancel()

	results, err := v.fetcher.Search(ctx, query)
	if err != nil {
		v.logger.Warn("search failed", zap.String("query", query), zap.Error(err))
		return TrustedContent{}, false
	}

	type candidate struct {
		url   string
		trust float64
	}
	var candidates []candidate
	for _, r := range results {
		score := v.trust.Score(r.URL)
		if v.trust.Fetchable(score) {
			candidates = append(candidates, candidate{url: r.URL, trust: score})
		}
	}
	if len(candidates) == 0 {
		return TrustedContent{}, false
	}

	texts := make([]string, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.workers)
	for i, c := range candidates {
		g.Go(func() error {
			text, err := v.fetcher.Fetch(gctx, c.url)
			if err != nil {
				// A failed page is skipped; the others may still serve
				v.logger.Debug("fetch failed", zap.String("url", c.url), zap.Error(err))
				return nil
			}
			texts[i] = strings.TrimSpace(text)
			return nil
		})
	}
	_ = g.Wait()

	// Highest trust wins; ties keep result order
	best := -1
	for i, c := range candidates {
		if texts[i] == "" {
			continue
		}
		if best < 0 || c.trust > candidates[best].trust {
			best = i
		}
	}
	if best < 0 {
		return TrustedContent{}, false
	}

	return TrustedContent{
		URL:   candidates[best].url,
		Trust: candidates[best].trust,
		Text:  texts[best],
	}, true
}

// Stats returns verification counters since the verifier was created
func (v *Verifier) Stats() model.VerificationStats {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stats
}

func (v *Verifier) record(res model.VerificationResult, usedSource bool) {
	v.mu.Lock()
	s := &v.stats
	s.AverageConfidence = (s.AverageConfidence*float64(s.Total) + res.Confidence) / float64(s.Total+1)
	s.Total++
	if res.IsVerified {
		s.Verified++
	}
	if usedSource {
		s.TrustedSources++
	}
	v.mu.Unlock()

	v.metrics.ObserveVerification(res.IsVerified)
}

// prefix returns the first n runes of s
func prefix(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
