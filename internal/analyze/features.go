package analyze

import (
	"sort"
	"strings"

	"github.com/ppiankov/ranger/internal/model"
)

// FeatureExtractor turns raw text into a feature bundle using a taxonomy.
// It holds no mutable state after construction and is safe for concurrent use.
type FeatureExtractor struct {
	taxonomy  *model.Taxonomy
	stopwords map[string]bool
	sentiment *SentimentAnalyzer
}

// NewFeatureExtractor creates an extractor. A nil taxonomy uses the built-in one.
func NewFeatureExtractor(t *model.Taxonomy) *FeatureExtractor {
	if t == nil {
		t = model.DefaultTaxonomy()
	}
	return &FeatureExtractor{
		taxonomy:  t,
		stopwords: t.StopwordSet(),
		sentiment: NewSentimentAnalyzer(),
	}
}

// Sentiment exposes the analyzer used for the bundle
func (e *FeatureExtractor) Sentiment() *SentimentAnalyzer {
	return e.sentiment
}

// Stopwords returns the stopword lookup of the active taxonomy
func (e *FeatureExtractor) Stopwords() map[string]bool {
	return e.stopwords
}

// Extract computes the feature bundle of text
func (e *FeatureExtractor) Extract(text string) model.Features {
	words := LowerWords(text)
	sentences := SplitSentences(text)
	lower := strings.ToLower(text)

	f := model.Features{
		WordCount:     len(words),
		CharCount:     len([]rune(text)),
		SentenceCount: len(sentences),
		Sentiment:     e.sentiment.Analyze(text),
		Emotion:       e.emotion(text, words, lower),
		Topics:        e.topics(words, lower),
		Keywords:      e.keywords(words),
		HasQuestion:   e.hasQuestion(text, words),
		HasCommand:    containsAnyPhrase(words, lower, e.taxonomy.CommandPhrases),
		HasMention:    strings.Contains(text, "@"),
		Complexity:    complexity(words, sentences),
	}
	if f.Topics == nil {
		f.Topics = []string{}
	}
	if f.Keywords == nil {
		f.Keywords = []string{}
	}

	return f
}

// emotion checks emoji sets before keyword sets; the first matching set wins
func (e *FeatureExtractor) emotion(text string, words []string, lower string) string {
	for _, set := range e.taxonomy.EmojiSets {
		for _, emoji := range set.Words {
			if strings.Contains(text, emoji) {
				return set.Name
			}
		}
	}
	for _, set := range e.taxonomy.EmotionWords {
		if containsAnyPhrase(words, lower, set.Words) {
			return set.Name
		}
	}
	return model.EmotionNeutral
}

func (e *FeatureExtractor) topics(words []string, lower string) []string {
	var out []string
	for _, set := range e.taxonomy.Topics {
		if containsAnyPhrase(words, lower, set.Words) {
			out = append(out, set.Name)
		}
	}
	return out
}

// keywords ranks non-stopword tokens by frequency, ties by first occurrence
func (e *FeatureExtractor) keywords(words []string) []string {
	type entry struct {
		word  string
		count int
		first int
	}

	index := make(map[string]int)
	var entries []entry
	for i, w := range words {
		if len(w) < 3 || e.stopwords[w] || isNumber(w) {
			continue
		}
		if j, ok := index[w]; ok {
			entries[j].count++
			continue
		}
		index[w] = len(entries)
		entries = append(entries, entry{word: w, count: 1, first: i})
	}

	sort.SliceStable(entries, func(a, b int) bool {
		if entries[a].count != entries[b].count {
			return entries[a].count > entries[b].count
		}
		return entries[a].first < entries[b].first
	})

	limit := 5
	if len(entries) < limit {
		limit = len(entries)
	}
	out := make([]string, 0, limit)
	for _, en := range entries[:limit] {
		out = append(out, en.word)
	}
	return out
}

func (e *FeatureExtractor) hasQuestion(text string, words []string) bool {
	if strings.Contains(text, "?") {
		return true
	}
	if len(words) == 0 {
		return false
	}
	for _, q := range e.taxonomy.QuestionWords {
		if words[0] == q {
			return true
		}
	}
	return false
}

// containsAnyPhrase matches single words as whole tokens and multi-word phrases as substrings
func containsAnyPhrase(words []string, lower string, phrases []string) bool {
	for _, p := range phrases {
		p = strings.ToLower(p)
		if strings.Contains(p, " ") {
			if strings.Contains(lower, p) {
				return true
			}
			continue
		}
		for _, w := range words {
			if w == p {
				return true
			}
		}
	}
	return false
}

func complexity(words, sentences []string) float64 {
	if len(words) == 0 || len(sentences) == 0 {
		return 0
	}

	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		unique[w] = struct{}{}
	}

	avgSentence := float64(len(words)) / float64(len(sentences))
	uniqueRatio := float64(len(unique)) / float64(len(words))

	score := avgSentence/20 + uniqueRatio*0.5
	if score > 1 {
		return 1
	}
	return score
}
