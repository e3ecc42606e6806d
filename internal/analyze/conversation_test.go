package analyze

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/ranger/internal/model"
)

func msg(channel, user, content string) model.Message {
	return model.Message{ChannelID: channel, UserID: user, Content: content}
}

func TestObserve_FirstMessageHasEmptyContext(t *testing.T) {
	tr := NewTracker(0)

	ctx := tr.Observe(msg("c1", "u1", "hi"), model.Features{Emotion: "happy"})
	assert.True(t, ctx.Empty())
	assert.Equal(t, model.EmotionNeutral, ctx.DominantEmotion)
}

func TestObserve_ContextFromPriorMessages(t *testing.T) {
	tr := NewTracker(0)

	tr.Observe(msg("c1", "u1", "a"), model.Features{Emotion: "happy", Topics: []string{"food"}, Sentiment: model.Sentiment{Polarity: 0.4}})
	tr.Observe(msg("c1", "u2", "b"), model.Features{Emotion: "happy", Topics: []string{"travel", "food"}, Sentiment: model.Sentiment{Polarity: 0.2}})
	ctx := tr.Observe(msg("c1", "u1", "c"), model.Features{Emotion: "sad"})

	assert.Equal(t, 2, ctx.MessageCount)
	assert.Equal(t, 2, ctx.Participants)
	assert.Equal(t, "happy", ctx.DominantEmotion)
	assert.Equal(t, []string{"food", "travel"}, ctx.RecentTopics)
	assert.InDelta(t, 0.3, ctx.AverageSentiment, 1e-9)
}

func TestObserve_ChannelsAreIndependent(t *testing.T) {
	tr := NewTracker(0)
	tr.Observe(msg("c1", "u1", "a"), model.Features{})

	ctx := tr.Observe(msg("c2", "u1", "b"), model.Features{})
	assert.True(t, ctx.Empty())
}

func TestObserve_WindowBound(t *testing.T) {
	tr := NewTracker(3)
	for i := 0; i < 10; i++ {
		tr.Observe(msg("c1", fmt.Sprintf("u%d", i), "x"), model.Features{})
	}

	ctx := tr.Context("c1")
	require.Equal(t, 3, ctx.MessageCount)
	assert.Equal(t, 3, ctx.Participants)
}
