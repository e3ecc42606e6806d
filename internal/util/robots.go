package util

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/temoto/robotstxt"
)

const (
	// robotsTTL bounds how long a host's robots.txt is trusted
	robotsTTL = 24 * time.Hour

	// unreachableTTL is how long a host whose robots.txt could not be fetched is
	// treated as allowing everything before we ask again
	unreachableTTL = 10 * time.Minute
)

// allowAll stands in for hosts whose robots.txt is unreachable
var allowAll, _ = robotstxt.FromString("")

// RobotsChecker answers robots.txt questions per host, caching each host's rules
type RobotsChecker struct {
	rules     *gocache.Cache
	client    *http.Client
	userAgent string
}

// NewRobotsChecker creates a checker. A nil client gets a plain one with timeout.
func NewRobotsChecker(userAgent string, timeout time.Duration, client *http.Client) *RobotsChecker {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &RobotsChecker{
		rules:     gocache.New(robotsTTL, time.Hour),
		client:    client,
		userAgent: userAgent,
	}
}

// CanFetch reports whether rawURL may be fetched and the crawl delay the host
// asks of our user agent
func (r *RobotsChecker) CanFetch(ctx context.Context, rawURL string) (bool, time.Duration, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, 0, fmt.Errorf("parse URL: %w", err)
	}

	data := r.hostRules(ctx, u)
	allowed := data.TestAgent(u.Path, r.userAgent)

	var delay time.Duration
	if group := data.FindGroup(r.userAgent); group != nil {
		delay = group.CrawlDelay
	}
	return allowed, delay, nil
}

func (r *RobotsChecker) hostRules(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	if cached, ok := r.rules.Get(u.Host); ok {
		return cached.(*robotstxt.RobotsData)
	}

	data, err := r.fetch(ctx, u.Scheme+"://"+u.Host+"/robots.txt")
	if err != nil {
		r.rules.Set(u.Host, allowAll, unreachableTTL)
		return allowAll
	}
	r.rules.SetDefault(u.Host, data)
	return data
}

func (r *RobotsChecker) fetch(ctx context.Context, robotsURL string) (*robotstxt.RobotsData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	// 4xx means no rules, 5xx means keep out
	return robotstxt.FromResponse(resp)
}

// Clear forgets every cached host
func (r *RobotsChecker) Clear() {
	r.rules.Flush()
}
