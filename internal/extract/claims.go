package extract

import (
	"regexp"
	"strings"
	"sync"

	"github.com/ppiankov/ranger/internal/analyze"
	"github.com/ppiankov/ranger/internal/model"
)

// DefaultMinConfidence is the surfacing threshold for extracted claims
const DefaultMinConfidence = 0.6

const (
	minPatternContent   = 10 // Pattern matches must be longer than this
	minSentenceChars    = 20 // Semantic extraction skips shorter sentences
	minContentTokens    = 5  // Semantic sentences need more content tokens than this
	maxFactSubjectivity = 0.3
	maxFactPolarity     = 0.3
)

// template is one fact-announcement phrasing. group selects the submatch used as
// content; 0 keeps the whole match.
type template struct {
	name  string
	re    *regexp.Regexp
	group int
}

var templates = []template{
	{"announcement", regexp.MustCompile(`(?i)\b(?:did you know|fun fact|interesting|learned that)\s+(.+)`), 1},
	{"copula", regexp.MustCompile(`(?i)(?:the\s+)?(.+?)\s+(?:is|are|was|were)\s+(.+)`), 0},
	{"belief", regexp.MustCompile(`(?i)\b(?:I\s+)?(?:think|believe|know)\s+(?:that\s+)?(.+)`), 1},
	{"attribution", regexp.MustCompile(`(?i)\b(?:according\s+to|sources\s+say|research\s+shows)\s+(.+)`), 1},
	{"assertion", regexp.MustCompile(`(?i)\b(?:fact|truth|reality)\s+(?:is|about)\s+(.+)`), 1},
}

var (
	urlPattern     = regexp.MustCompile(`https?://\S+`)
	mentionPattern = regexp.MustCompile(`<@!?\d+>|@\w+`)
	symbolPattern  = regexp.MustCompile(`[^\p{L}\p{N}_\s.,!?]`)
)

// ClaimExtractor turns free-form text into at most one candidate claim
type ClaimExtractor struct {
	mu            sync.RWMutex
	minConfidence float64

	sentiment *analyze.SentimentAnalyzer
	stopwords map[string]bool
}

// NewClaimExtractor creates an extractor sharing the feature extractor's lexicon and stopwords
func NewClaimExtractor(features *analyze.FeatureExtractor, minConfidence float64) *ClaimExtractor {
	if features == nil {
		features = analyze.NewFeatureExtractor(nil)
	}
	e := &ClaimExtractor{
		sentiment: features.Sentiment(),
		stopwords: features.Stopwords(),
	}
	e.SetMinConfidence(minConfidence)
	return e
}

// SetMinConfidence changes the surfacing threshold, clamped to [0, 1]
func (e *ClaimExtractor) SetMinConfidence(v float64) {
	e.mu.Lock()
	e.minConfidence = model.ClampConfidence(v)
	e.mu.Unlock()
}

// MinConfidence returns the current surfacing threshold
func (e *ClaimExtractor) MinConfidence() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.minConfidence
}

// Extract returns a claim when text announces a fact with enough confidence.
// The bool is false for low-confidence or claim-free input; that is not an error.
func (e *ClaimExtractor) Extract(text string, convo model.ConversationContext) (model.KnowledgeClaim, bool) {
	cleaned := Preprocess(text)
	if cleaned == "" {
		return model.KnowledgeClaim{}, false
	}

	claim, ok := e.matchTemplates(cleaned)
	if !ok {
		claim, ok = e.matchSentences(cleaned)
	}
	if !ok {
		return model.KnowledgeClaim{}, false
	}

	claim.Source = model.SourceConversation
	if !convo.Empty() {
		claim.Metadata = map[string]any{
			"channel_id":       convo.ChannelID,
			"context_messages": convo.MessageCount,
			"dominant_emotion": convo.DominantEmotion,
		}
	}
	claim.Confidence = Confidence(claim, !convo.Empty())

	if claim.Confidence < e.MinConfidence() {
		return model.KnowledgeClaim{}, false
	}
	claim.AddTag(string(claim.Method))
	return claim, true
}

// matchTemplates keeps the longest match across every template
func (e *ClaimExtractor) matchTemplates(text string) (model.KnowledgeClaim, bool) {
	best := ""
	for _, t := range templates {
		for _, m := range t.re.FindAllStringSubmatch(text, -1) {
			candidate := strings.TrimSpace(m[t.group])
			if len(candidate) > len(best) {
				best = candidate
			}
		}
	}

	if len(best) <= minPatternContent {
		return model.KnowledgeClaim{}, false
	}

	return model.KnowledgeClaim{
		Topic:     e.Topic(best),
		Content:   best,
		Method:    model.MethodPattern,
		Sentiment: e.sentiment.Analyze(best),
	}, true
}

// matchSentences keeps the first sentence that reads as a neutral statement
func (e *ClaimExtractor) matchSentences(text string) (model.KnowledgeClaim, bool) {
	for _, sentence := range analyze.SplitSentences(text) {
		if len(sentence) < minSentenceChars {
			continue
		}

		s := e.sentiment.Analyze(sentence)
		if s.Subjectivity >= maxFactSubjectivity || abs(s.Polarity) >= maxFactPolarity {
			continue
		}

		tokens := 0
		for _, w := range analyze.LowerWords(sentence) {
			if !e.stopwords[w] {
				tokens++
			}
		}
		if tokens <= minContentTokens {
			continue
		}

		return model.KnowledgeClaim{
			Topic:     e.Topic(sentence),
			Content:   sentence,
			Method:    model.MethodSemantic,
			Sentiment: s,
		}, true
	}
	return model.KnowledgeClaim{}, false
}

// Topic picks a representative token: first noun as written, else first verb, else first token
func (e *ClaimExtractor) Topic(text string) string {
	var words []string
	for _, w := range analyze.LowerWords(text) {
		if len(w) > 2 && !e.stopwords[w] {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return "unknown"
	}

	firstVerb := ""
	for _, w := range words {
		switch analyze.TagWord(w) {
		case analyze.TagNoun:
			return w
		case analyze.TagVerb:
			if firstVerb == "" {
				firstVerb = w
			}
		}
	}
	if firstVerb != "" {
		return firstVerb
	}
	return words[0]
}

// Confidence scores a claim. The sentiment factors reward neutral, objective content.
func Confidence(c model.KnowledgeClaim, hasContext bool) float64 {
	score := 0.5

	switch c.Method {
	case model.MethodPattern:
		score += 0.2
	case model.MethodSemantic:
		score += 0.1
	}

	switch n := len(c.Content); {
	case n > 50:
		score += 0.1
	case n > 20:
		score += 0.05
	}

	if c.Sentiment.Subjectivity < 0.2 {
		score += 0.1
	}
	if abs(c.Sentiment.Polarity) < 0.2 {
		score += 0.1
	}
	if hasContext {
		score += 0.05
	}

	return model.ClampConfidence(score)
}

// Preprocess strips URLs, mentions and symbols, keeping sentence punctuation
func Preprocess(text string) string {
	text = urlPattern.ReplaceAllString(text, "")
	text = mentionPattern.ReplaceAllString(text, "")
	text = symbolPattern.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
