package model

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TaxonomyVersion is the schema version written by DefaultTaxonomy
const TaxonomyVersion = 1

// KeywordSet is a named, ordered list of trigger words or emoji
type KeywordSet struct {
	Name  string   `yaml:"name" json:"name"`
	Words []string `yaml:"words" json:"words"`
}

// Taxonomy holds the lexical tables used by feature extraction.
// Set order is significant: the first matching set wins.
type Taxonomy struct {
	Version        int          `yaml:"version" json:"version"`
	EmojiSets      []KeywordSet `yaml:"emoji_sets" json:"emoji_sets"`
	EmotionWords   []KeywordSet `yaml:"emotion_words" json:"emotion_words"`
	Topics         []KeywordSet `yaml:"topics" json:"topics"`
	QuestionWords  []string     `yaml:"question_words" json:"question_words"`
	CommandPhrases []string     `yaml:"command_phrases" json:"command_phrases"`
	Stopwords      []string     `yaml:"stopwords" json:"stopwords"`
}

// Validate checks the structural requirements of a loaded taxonomy
func (t *Taxonomy) Validate() error {
	if t.Version < 1 {
		return fmt.Errorf("taxonomy version must be >= 1, got %d", t.Version)
	}
	for _, group := range [][]KeywordSet{t.EmojiSets, t.EmotionWords, t.Topics} {
		for _, set := range group {
			if set.Name == "" {
				return fmt.Errorf("taxonomy set without a name")
			}
			if len(set.Words) == 0 {
				return fmt.Errorf("taxonomy set %q has no words", set.Name)
			}
		}
	}
	return nil
}

// StopwordSet returns the stopwords as a lookup map
func (t *Taxonomy) StopwordSet() map[string]bool {
	set := make(map[string]bool, len(t.Stopwords))
	for _, w := range t.Stopwords {
		set[w] = true
	}
	return set
}

// LoadTaxonomy reads a YAML taxonomy file
func LoadTaxonomy(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}

	var t Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse taxonomy: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	// Missing stopwords fall back to the built-in list
	if len(t.Stopwords) == 0 {
		t.Stopwords = DefaultTaxonomy().Stopwords
	}

	return &t, nil
}

// DefaultTaxonomy returns the built-in emotion, topic and stopword tables
func DefaultTaxonomy() *Taxonomy {
	return &Taxonomy{
		Version: TaxonomyVersion,
		EmojiSets: []KeywordSet{
			{Name: "happy", Words: []string{"😊", "😄", "😃", "😁", "😆", "😅", "😂", "🤣", "😋", "😎"}},
			{Name: "sad", Words: []string{"😢", "😭", "😔", "😞", "😟", "😕", "😣", "😖", "😫", "😩"}},
			{Name: "angry", Words: []string{"😠", "😡", "🤬", "😤", "😾", "💢", "😈", "👿"}},
			{Name: "surprised", Words: []string{"😲", "😳", "😱", "😨", "😰", "😯", "😦", "😧"}},
			{Name: "love", Words: []string{"😍", "🥰", "😘", "😗", "😙", "😚", "💕", "💖", "💗", "💘"}},
		},
		EmotionWords: []KeywordSet{
			{Name: "happy", Words: []string{"happy", "joy", "excited", "great", "awesome", "amazing"}},
			{Name: "sad", Words: []string{"sad", "depressed", "unhappy", "terrible", "awful", "horrible"}},
			{Name: "angry", Words: []string{"angry", "mad", "furious", "annoyed", "irritated"}},
			{Name: "surprised", Words: []string{"surprised", "shocked", "amazed", "wow", "incredible"}},
			{Name: "love", Words: []string{"love", "adore", "like", "heart", "cute", "sweet"}},
		},
		Topics: []KeywordSet{
			{Name: "technology", Words: []string{"computer", "programming", "code", "software", "hardware", "ai", "machine learning"}},
			{Name: "science", Words: []string{"science", "research", "experiment", "theory", "discovery"}},
			{Name: "politics", Words: []string{"politics", "government", "election", "policy", "democracy"}},
			{Name: "sports", Words: []string{"sports", "game", "team", "player", "match", "tournament"}},
			{Name: "entertainment", Words: []string{"movie", "music", "book", "show", "entertainment", "celebrity"}},
			{Name: "food", Words: []string{"food", "cooking", "recipe", "restaurant", "meal", "cuisine"}},
			{Name: "travel", Words: []string{"travel", "vacation", "trip", "destination", "hotel", "flight"}},
		},
		QuestionWords:  []string{"what", "how", "why", "when", "where", "who"},
		CommandPhrases: []string{"please", "can you", "could you", "would you"},
		Stopwords: []string{
			"i", "me", "my", "myself", "we", "our", "ours", "ourselves", "you", "your", "yours",
			"yourself", "yourselves", "he", "him", "his", "himself", "she", "her", "hers", "herself",
			"it", "its", "itself", "they", "them", "their", "theirs", "themselves", "what", "which",
			"who", "whom", "this", "that", "these", "those", "am", "is", "are", "was", "were", "be",
			"been", "being", "have", "has", "had", "having", "do", "does", "did", "doing", "a", "an",
			"the", "and", "but", "if", "or", "because", "as", "until", "while", "of", "at", "by",
			"for", "with", "about", "against", "between", "into", "through", "during", "before",
			"after", "above", "below", "to", "from", "up", "down", "in", "out", "on", "off", "over",
			"under", "again", "further", "then", "once", "here", "there", "when", "where", "why",
			"how", "all", "any", "both", "each", "few", "more", "most", "other", "some", "such", "no",
			"nor", "not", "only", "own", "same", "so", "than", "too", "very", "s", "t", "can", "will",
			"just", "don", "should", "now", "d", "ll", "m", "o", "re", "ve", "y",
		},
	}
}
