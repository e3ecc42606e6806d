package worker

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultBurst = 5

// Limiter paces outbound search and page requests with one token bucket per host
type Limiter struct {
	mu           sync.Mutex
	hosts        map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
}

// NewLimiter creates a limiter allowing requestsPerSecond per host. A non-positive
// rate disables limiting.
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	l := &Limiter{
		hosts:        make(map[string]*rate.Limiter),
		defaultRate:  rate.Inf,
		defaultBurst: burst,
	}
	if requestsPerSecond > 0 {
		l.defaultRate = rate.Limit(requestsPerSecond)
	}
	if l.defaultBurst <= 0 {
		l.defaultBurst = defaultBurst
	}
	return l
}

// Wait blocks until the host of rawURL has a token or ctx ends
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	return l.WaitCrawlDelay(ctx, rawURL, 0)
}

// WaitCrawlDelay is Wait for a host that announced a robots.txt crawl delay.
// The host's bucket drops to one request per delay when that is stricter.
func (l *Limiter) WaitCrawlDelay(ctx context.Context, rawURL string, crawlDelay time.Duration) error {
	bucket, err := l.bucket(rawURL)
	if err != nil {
		return err
	}
	if crawlDelay > 0 {
		if every := rate.Every(crawlDelay); every < bucket.Limit() {
			bucket.SetLimit(every)
			bucket.SetBurst(1)
		}
	}
	return bucket.Wait(ctx)
}

// Allow reports whether a request may go out now, consuming a token if so
func (l *Limiter) Allow(rawURL string) bool {
	bucket, err := l.bucket(rawURL)
	return err == nil && bucket.Allow()
}

// SetHostRate replaces the bucket for host. A non-positive burst keeps the default.
func (l *Limiter) SetHostRate(host string, requestsPerSecond float64, burst int) {
	if burst <= 0 {
		burst = l.defaultBurst
	}
	l.mu.Lock()
	l.hosts[strings.ToLower(host)] = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	l.mu.Unlock()
}

func (l *Limiter) bucket(rawURL string) (*rate.Limiter, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("rate limit %q: %w", rawURL, err)
	}
	host := strings.ToLower(u.Host)

	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.hosts[host]
	if !ok {
		b = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.hosts[host] = b
	}
	return b, nil
}
