package analyze

import (
	"sort"
	"sync"

	"github.com/ppiankov/ranger/internal/model"
)

// DefaultWindow is the number of messages kept per channel
const DefaultWindow = 10

// statsSpan is how many of the most recent messages feed the context summary
const statsSpan = 5

type observed struct {
	userID    string
	sentiment float64
	emotion   string
	topics    []string
}

// Tracker keeps a sliding window of analyzed messages per channel
type Tracker struct {
	mu       sync.Mutex
	window   int
	channels map[string][]observed
}

// NewTracker creates a tracker; window <= 0 uses DefaultWindow
func NewTracker(window int) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Tracker{
		window:   window,
		channels: make(map[string][]observed),
	}
}

// Observe returns the context formed by the channel's previous messages,
// then records msg into the window. The first message of a channel gets an empty context.
func (t *Tracker) Observe(msg model.Message, f model.Features) model.ConversationContext {
	t.mu.Lock()
	defer t.mu.Unlock()

	history := t.channels[msg.ChannelID]
	ctx := summarize(msg.ChannelID, history)

	history = append(history, observed{
		userID:    msg.UserID,
		sentiment: f.Sentiment.Polarity,
		emotion:   f.Emotion,
		topics:    f.Topics,
	})
	if len(history) > t.window {
		history = history[len(history)-t.window:]
	}
	t.channels[msg.ChannelID] = history

	return ctx
}

// Context returns the current summary of a channel without recording anything
func (t *Tracker) Context(channelID string) model.ConversationContext {
	t.mu.Lock()
	defer t.mu.Unlock()
	return summarize(channelID, t.channels[channelID])
}

func summarize(channelID string, history []observed) model.ConversationContext {
	ctx := model.ConversationContext{
		ChannelID:       channelID,
		DominantEmotion: model.EmotionNeutral,
		RecentTopics:    []string{},
	}
	if len(history) == 0 {
		return ctx
	}

	ctx.MessageCount = len(history)

	users := make(map[string]struct{})
	for _, h := range history {
		users[h.userID] = struct{}{}
	}
	ctx.Participants = len(users)

	recent := history
	if len(recent) > statsSpan {
		recent = recent[len(recent)-statsSpan:]
	}

	var sum float64
	emotions := make(map[string]int)
	seen := make(map[string]bool)
	for _, h := range recent {
		sum += h.sentiment
		emotions[h.emotion]++
		for _, topic := range h.topics {
			if !seen[topic] {
				seen[topic] = true
				ctx.RecentTopics = append(ctx.RecentTopics, topic)
			}
		}
	}
	ctx.AverageSentiment = sum / float64(len(recent))
	ctx.DominantEmotion = dominant(emotions)

	return ctx
}

func dominant(counts map[string]int) string {
	if len(counts) == 0 {
		return model.EmotionNeutral
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	best := names[0]
	for _, name := range names[1:] {
		if counts[name] > counts[best] {
			best = name
		}
	}
	return best
}
