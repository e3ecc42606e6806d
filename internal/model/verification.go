package model

import "time"

// VerificationMethodWeb marks results produced by searching external content
const VerificationMethodWeb = "web_search"

// VerificationResult is the outcome of checking a claim against external content
type VerificationResult struct {
	IsVerified bool      `json:"is_verified"`
	Confidence float64   `json:"confidence"` // Jaccard similarity of claim and best content
	Sources    []string  `json:"sources"`    // Excerpts of supporting content (ordered)
	Method     string    `json:"verification_method"`
	Timestamp  time.Time `json:"timestamp"`
}

// Unverified returns the result used when no trusted content could be found
func Unverified(now time.Time) VerificationResult {
	return VerificationResult{
		IsVerified: false,
		Confidence: 0,
		Sources:    []string{},
		Method:     VerificationMethodWeb,
		Timestamp:  now,
	}
}

// SearchResult is one hit returned by a content search
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// TrustTier buckets a trust score for display
type TrustTier int

const (
	TierUnknown   TrustTier = 0
	TierTrusted   TrustTier = 1 // score > 0.5, content is fetched
	TierNeutral   TrustTier = 2 // 0 < score <= 0.5
	TierUntrusted TrustTier = 3 // score == 0
)

func (t TrustTier) String() string {
	switch t {
	case TierTrusted:
		return "trusted"
	case TierNeutral:
		return "neutral"
	case TierUntrusted:
		return "untrusted"
	default:
		return "unknown"
	}
}

// TierForScore maps a trust score onto a tier
func TierForScore(score float64) TrustTier {
	switch {
	case score > 0.5:
		return TierTrusted
	case score > 0:
		return TierNeutral
	default:
		return TierUntrusted
	}
}

// VerificationStats summarizes verifier activity since process start
type VerificationStats struct {
	Total             int64   `json:"total_verifications" yaml:"total_verifications"`
	Verified          int64   `json:"successful_verifications" yaml:"successful_verifications"`
	AverageConfidence float64 `json:"average_confidence" yaml:"average_confidence"`
	TrustedSources    int64   `json:"trusted_sources_used" yaml:"trusted_sources_used"`
}
