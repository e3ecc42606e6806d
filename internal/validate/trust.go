package validate

import (
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
)

const (
	trustedDomainScore  = 0.8
	institutionBonus    = 0.2 // .edu and .gov
	organizationBonus   = 0.1 // .org
	suspiciousPenalty   = 0.3
	fetchTrustThreshold = 0.5 // Only sources scoring above this are fetched
)

// trustSnapshot is an immutable view of the scoring tables
type trustSnapshot struct {
	trusted    []string
	suspicious []string
}

// TrustScorer scores source domains. Tables are swapped atomically, so scoring
// never observes a half-updated list.
type TrustScorer struct {
	mu       sync.Mutex // serializes writers
	snapshot atomic.Pointer[trustSnapshot]
}

// NewTrustScorer creates a scorer from trusted domains and suspicious keywords
func NewTrustScorer(trusted, suspicious []string) *TrustScorer {
	s := &TrustScorer{}
	s.snapshot.Store(&trustSnapshot{
		trusted:    normalize(trusted),
		suspicious: normalize(suspicious),
	})
	return s
}

// Score returns the trust of a host or URL in [0, 1]
func (s *TrustScorer) Score(hostOrURL string) float64 {
	host := hostname(hostOrURL)
	if host == "" {
		return 0
	}
	snap := s.snapshot.Load()

	score := 0.0

	// First matching trusted entry wins, entries do not stack
	for _, d := range snap.trusted {
		if domainMatches(host, d) {
			score += trustedDomainScore
			break
		}
	}

	switch {
	case strings.HasSuffix(host, ".edu"), strings.HasSuffix(host, ".gov"):
		score += institutionBonus
	case strings.HasSuffix(host, ".org"):
		score += organizationBonus
	}

	for _, kw := range snap.suspicious {
		if strings.Contains(host, kw) {
			score -= suspiciousPenalty
		}
	}

	return clamp01(score)
}

// Fetchable reports whether content from the source should be fetched
func (s *TrustScorer) Fetchable(score float64) bool {
	return score > fetchTrustThreshold
}

// TrustedDomains returns a copy of the trusted domain list
func (s *TrustScorer) TrustedDomains() []string {
	snap := s.snapshot.Load()
	return append([]string(nil), snap.trusted...)
}

// UpdateTrustedDomains merges domains into the trusted list, dropping duplicates
func (s *TrustScorer) UpdateTrustedDomains(domains []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.snapshot.Load()
	merged := normalize(append(append([]string(nil), old.trusted...), domains...))
	s.snapshot.Store(&trustSnapshot{trusted: merged, suspicious: old.suspicious})
}

// domainMatches matches the host itself or any of its parent domains, so a bare
// label like "edu" matches every .edu host
func domainMatches(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// hostname accepts either a bare host or a URL
func hostname(hostOrURL string) string {
	s := strings.TrimSpace(strings.ToLower(hostOrURL))
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		return u.Hostname()
	}
	if idx := strings.IndexAny(s, ":/"); idx > 0 {
		s = s[:idx]
	}
	return s
}

func normalize(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, d := range in {
		d = strings.Trim(strings.ToLower(strings.TrimSpace(d)), ".")
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
