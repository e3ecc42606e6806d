package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/ranger/internal/model"
)

const (
	userPatternWindow = 100
	topTopicCount     = 5
)

// SaveAnalysis stores the feature bundle of one inbound message
func (s *Store) SaveAnalysis(ctx context.Context, msg model.Message, f model.Features) error {
	topics, err := json.Marshal(nonNil(f.Topics))
	if err != nil {
		return fmt.Errorf("encode topics: %w", err)
	}
	keywords, err := json.Marshal(nonNil(f.Keywords))
	if err != nil {
		return fmt.Errorf("encode keywords: %w", err)
	}

	created := s.timestamp()
	if !msg.Timestamp.IsZero() {
		created = formatTime(msg.Timestamp)
	}
	emotion := f.Emotion
	if emotion == "" {
		emotion = model.EmotionNeutral
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversation_analysis (channel_id, user_id, content, polarity, subjectivity, emotion,
			topics, keywords, message_length, word_count, has_question, has_command, has_mention,
			complexity, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ChannelID, msg.UserID, msg.Content, f.Sentiment.Polarity, f.Sentiment.Subjectivity, emotion,
		string(topics), string(keywords), f.CharCount, f.WordCount, boolToInt(f.HasQuestion),
		boolToInt(f.HasCommand), boolToInt(f.HasMention), f.Complexity, created)
	if err != nil {
		return s.unavailable("save analysis", err)
	}
	return nil
}

type analysisRow struct {
	polarity    float64
	emotion     string
	topics      []string
	hasQuestion bool
	hasCommand  bool
}

// ConversationStats aggregates analyses stored since the given time.
// An empty channelID covers every channel.
func (s *Store) ConversationStats(ctx context.Context, channelID string, since time.Time) (model.ConversationStats, error) {
	q := `SELECT polarity, emotion, topics, has_question, has_command FROM conversation_analysis WHERE created_at > ?`
	args := []any{formatTime(since)}
	if channelID != "" {
		q += ` AND channel_id = ?`
		args = append(args, channelID)
	}

	rows, err := s.queryAnalyses(ctx, q, args...)
	if err != nil {
		return model.ConversationStats{}, err
	}

	stats := model.ConversationStats{
		Messages:  int64(len(rows)),
		Emotions:  make(map[string]int64),
		TopTopics: []string{},
	}
	if len(rows) == 0 {
		return stats, nil
	}

	var sentiment float64
	var questions, commands int
	topicCounts := make(map[string]int)
	for _, r := range rows {
		sentiment += r.polarity
		stats.Emotions[r.emotion]++
		if r.hasQuestion {
			questions++
		}
		if r.hasCommand {
			commands++
		}
		for _, t := range r.topics {
			topicCounts[t]++
		}
	}

	n := float64(len(rows))
	stats.AverageSentiment = round3(sentiment / n)
	stats.QuestionRatio = float64(questions) / n
	stats.CommandRatio = float64(commands) / n
	stats.TopTopics = topByCount(topicCounts, topTopicCount)
	return stats, nil
}

// UserPatterns summarizes a user's most recent messages
func (s *Store) UserPatterns(ctx context.Context, userID string) (model.UserPatterns, error) {
	rows, err := s.queryAnalyses(ctx, `
		SELECT polarity, emotion, topics, has_question, has_command
		FROM conversation_analysis
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, userID, userPatternWindow)
	if err != nil {
		return model.UserPatterns{}, err
	}

	patterns := model.UserPatterns{
		UserID:          userID,
		Messages:        int64(len(rows)),
		DominantEmotion: model.EmotionNeutral,
		FavoriteTopics:  []string{},
	}
	if len(rows) == 0 {
		return patterns, nil
	}

	var sentiment float64
	var questions, commands int
	emotions := make(map[string]int)
	topicCounts := make(map[string]int)
	for _, r := range rows {
		sentiment += r.polarity
		emotions[r.emotion]++
		if r.hasQuestion {
			questions++
		}
		if r.hasCommand {
			commands++
		}
		for _, t := range r.topics {
			topicCounts[t]++
		}
	}

	n := float64(len(rows))
	patterns.AverageSentiment = round3(sentiment / n)
	patterns.QuestionRatio = float64(questions) / n
	patterns.CommandRatio = float64(commands) / n
	patterns.DominantEmotion = topByCount(emotions, 1)[0]
	patterns.FavoriteTopics = topByCount(topicCounts, topTopicCount)
	return patterns, nil
}

func (s *Store) queryAnalyses(ctx context.Context, q string, args ...any) ([]analysisRow, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, s.unavailable("query analyses", err)
	}
	defer func() { _ = rows.Close() }()

	var result []analysisRow
	for rows.Next() {
		var (
			r                   analysisRow
			topicsJSON          string
			hasQuestion, hasCmd int
		)
		if err := rows.Scan(&r.polarity, &r.emotion, &topicsJSON, &hasQuestion, &hasCmd); err != nil {
			return nil, s.unavailable("scan analysis", err)
		}
		_ = json.Unmarshal([]byte(topicsJSON), &r.topics)
		r.hasQuestion = hasQuestion == 1
		r.hasCommand = hasCmd == 1
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, s.unavailable("iterate analyses", err)
	}
	return result, nil
}

// RecordLearningEvent stores a learning signal such as a search miss or user feedback
func (s *Store) RecordLearningEvent(ctx context.Context, typ model.LearningEventType, data map[string]any) error {
	if strings.TrimSpace(string(typ)) == "" {
		return model.Reject("learning event type is empty", nil)
	}
	if data == nil {
		data = map[string]any{}
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode learning event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO learning_events (type, data, created_at) VALUES (?, ?, ?)
	`, string(typ), string(encoded), s.timestamp()); err != nil {
		return s.unavailable("record learning event", err)
	}
	return nil
}

// LearningStats counts recorded learning events by type
func (s *Store) LearningStats(ctx context.Context) (model.LearningStats, error) {
	stats := model.LearningStats{ByType: make(map[model.LearningEventType]int64)}

	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM learning_events GROUP BY type`)
	if err != nil {
		return stats, s.unavailable("learning stats", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var typ string
		var n int64
		if err := rows.Scan(&typ, &n); err != nil {
			return stats, s.unavailable("scan learning stats", err)
		}
		stats.ByType[model.LearningEventType(typ)] = n
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return stats, s.unavailable("iterate learning stats", err)
	}
	return stats, nil
}

// topByCount returns up to n keys by descending count, ties alphabetical
func topByCount(counts map[string]int, n int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
