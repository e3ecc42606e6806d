package model

import "time"

// EmotionNeutral is reported when no emoji or keyword set matches
const EmotionNeutral = "neutral"

// Features is the structured bundle derived from one piece of text
type Features struct {
	WordCount     int       `json:"word_count"`
	CharCount     int       `json:"char_count"`
	SentenceCount int       `json:"sentence_count"`
	Sentiment     Sentiment `json:"sentiment"`
	Emotion       string    `json:"emotion"`
	Topics        []string  `json:"topics"`
	Keywords      []string  `json:"keywords"`
	HasQuestion   bool      `json:"has_question"`
	HasCommand    bool      `json:"has_command"`
	HasMention    bool      `json:"has_mention"`
	Complexity    float64   `json:"complexity_score"`
}

// Message is an inbound chat event delivered by a transport
type Message struct {
	ChannelID string    `json:"channel_id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationContext summarizes the recent window of a channel
type ConversationContext struct {
	ChannelID        string   `json:"channel_id"`
	MessageCount     int      `json:"message_count"`
	Participants     int      `json:"participants"`
	DominantEmotion  string   `json:"dominant_emotion"`
	RecentTopics     []string `json:"recent_topics"`
	AverageSentiment float64  `json:"average_sentiment"`
}

// Empty reports whether the context carries no prior conversation
func (c *ConversationContext) Empty() bool {
	return c == nil || c.MessageCount == 0
}

// ConversationStats aggregates stored message analyses over a time window
type ConversationStats struct {
	Messages         int64            `json:"total_messages" yaml:"total_messages"`
	AverageSentiment float64          `json:"average_sentiment" yaml:"average_sentiment"`
	Emotions         map[string]int64 `json:"emotion_distribution" yaml:"emotion_distribution"`
	QuestionRatio    float64          `json:"question_ratio" yaml:"question_ratio"`
	CommandRatio     float64          `json:"command_ratio" yaml:"command_ratio"`
	TopTopics        []string         `json:"top_topics" yaml:"top_topics"`
}

// UserPatterns summarizes one user's stored messages
type UserPatterns struct {
	UserID           string   `json:"user_id"`
	Messages         int64    `json:"total_messages"`
	DominantEmotion  string   `json:"dominant_emotion"`
	AverageSentiment float64  `json:"average_sentiment"`
	QuestionRatio    float64  `json:"question_ratio"`
	CommandRatio     float64  `json:"command_ratio"`
	FavoriteTopics   []string `json:"favorite_topics"`
}
