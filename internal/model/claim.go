package model

// ClaimSource records where a claim came from
type ClaimSource string

const (
	SourceConversation    ClaimSource = "conversation"     // Extracted from chat traffic
	SourceWebSearch       ClaimSource = "web_search"       // Learned on request from the web
	SourceActiveExpansion ClaimSource = "active_expansion" // Learned to close a knowledge gap
)

// Valid reports whether s is one of the known sources
func (s ClaimSource) Valid() bool {
	switch s {
	case SourceConversation, SourceWebSearch, SourceActiveExpansion:
		return true
	}
	return false
}

// ExtractionMethod names the heuristic that produced a claim
type ExtractionMethod string

const (
	MethodPattern     ExtractionMethod = "pattern"      // Fact-announcement template matched
	MethodSemantic    ExtractionMethod = "semantic"     // Low-subjectivity sentence fallback
	MethodWebLearning ExtractionMethod = "web_learning" // Page text learned for a topic
)

// Sentiment is a polarity/subjectivity pair
type Sentiment struct {
	Polarity     float64 `json:"polarity"`     // [-1, 1]
	Subjectivity float64 `json:"subjectivity"` // [0, 1]
}

// KnowledgeClaim is a candidate fact with a provisional confidence
type KnowledgeClaim struct {
	Topic      string           `json:"topic"`
	Content    string           `json:"content"`
	Source     ClaimSource      `json:"source"`
	Method     ExtractionMethod `json:"extraction_method"`
	Confidence float64          `json:"confidence"`
	Tags       []string         `json:"tags,omitempty"`
	Metadata   map[string]any   `json:"metadata,omitempty"`
	Sentiment  Sentiment        `json:"sentiment"`
}

// AddTag appends a tag if it is not already present, keeping insertion order
func (c *KnowledgeClaim) AddTag(tag string) {
	for _, t := range c.Tags {
		if t == tag {
			return
		}
	}
	c.Tags = append(c.Tags, tag)
}

// ClampConfidence limits v to [0, 1]
func ClampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
