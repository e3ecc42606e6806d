package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/ranger/internal/model"
)

func newExtractor() *ClaimExtractor {
	return NewClaimExtractor(nil, DefaultMinConfidence)
}

func TestExtract_PatternClaim(t *testing.T) {
	claim, ok := newExtractor().Extract("The Eiffel Tower is 330 meters tall", model.ConversationContext{})
	require.True(t, ok)

	assert.Equal(t, model.MethodPattern, claim.Method)
	assert.Equal(t, model.SourceConversation, claim.Source)
	assert.Equal(t, "The Eiffel Tower is 330 meters tall", claim.Content)
	assert.Equal(t, "eiffel", claim.Topic)
	assert.GreaterOrEqual(t, claim.Confidence, 0.6)
	assert.InDelta(t, 0.95, claim.Confidence, 1e-9)
	assert.Equal(t, []string{"pattern"}, claim.Tags)
}

func TestExtract_PrefixTemplateCapturesRemainder(t *testing.T) {
	claim, ok := newExtractor().Extract("Did you know honey never spoils", model.ConversationContext{})
	require.True(t, ok)

	assert.Equal(t, "honey never spoils", claim.Content)
	assert.Equal(t, "honey", claim.Topic)
	assert.Equal(t, model.MethodPattern, claim.Method)
}

func TestExtract_SemanticFallback(t *testing.T) {
	text := "Water boils at one hundred degrees Celsius near sea level."
	claim, ok := newExtractor().Extract(text, model.ConversationContext{})
	require.True(t, ok)

	assert.Equal(t, model.MethodSemantic, claim.Method)
	assert.Equal(t, text, claim.Content)
	assert.Equal(t, "water", claim.Topic)
	assert.InDelta(t, 0.9, claim.Confidence, 1e-9)
}

func TestExtract_NoClaim(t *testing.T) {
	tests := []struct {
		desc string
		text string
	}{
		{"empty", ""},
		{"only url", "https://example.com/page"},
		{"greeting", "hi there"},
		{"short pattern", "it is ok"},
		{"opinion", "Honestly I loved that awful boring film so much"},
	}

	e := newExtractor()
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			_, ok := e.Extract(tt.text, model.ConversationContext{})
			assert.False(t, ok)
		})
	}
}

func TestExtract_ContextRaisesConfidence(t *testing.T) {
	e := newExtractor()
	text := "The Eiffel Tower is 330 meters tall"

	plain, ok := e.Extract(text, model.ConversationContext{})
	require.True(t, ok)

	convo := model.ConversationContext{ChannelID: "c1", MessageCount: 3, DominantEmotion: "happy"}
	withContext, ok := e.Extract(text, convo)
	require.True(t, ok)

	assert.InDelta(t, plain.Confidence+0.05, withContext.Confidence, 1e-9)
	assert.Equal(t, "c1", withContext.Metadata["channel_id"])
}

func TestExtract_MinConfidence(t *testing.T) {
	e := newExtractor()

	e.SetMinConfidence(1.5)
	assert.Equal(t, 1.0, e.MinConfidence())

	_, ok := e.Extract("The Eiffel Tower is 330 meters tall", model.ConversationContext{})
	assert.False(t, ok)

	e.SetMinConfidence(-1)
	assert.Equal(t, 0.0, e.MinConfidence())
}

func TestConfidence(t *testing.T) {
	long := "The Great Wall of China stretches across thousands of kilometres of land"

	tests := []struct {
		desc    string
		claim   model.KnowledgeClaim
		context bool
		want    float64
	}{
		{"pattern short", model.KnowledgeClaim{Method: model.MethodPattern, Content: "short one", Sentiment: model.Sentiment{Polarity: 0.5, Subjectivity: 0.5}}, false, 0.7},
		{"pattern medium", model.KnowledgeClaim{Method: model.MethodPattern, Content: "this is twenty-one ch", Sentiment: model.Sentiment{Polarity: 0.5, Subjectivity: 0.5}}, false, 0.75},
		{"semantic long neutral", model.KnowledgeClaim{Method: model.MethodSemantic, Content: long}, false, 0.9},
		{"clamped", model.KnowledgeClaim{Method: model.MethodPattern, Content: long}, true, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			assert.InDelta(t, tt.want, Confidence(tt.claim, tt.context), 1e-9)
		})
	}
}

func TestPreprocess(t *testing.T) {
	got := Preprocess("Check https://x.com/a <@123> and @bob:   the sky!! ☺ ok")
	assert.Equal(t, "Check and the sky!! ok", got)
}

func TestTopic(t *testing.T) {
	e := newExtractor()

	tests := []struct {
		text string
		want string
	}{
		{"Cities grow quickly", "cities"},
		{"Towers of Paris", "towers"},
		{"it is on", "unknown"},
		{"Running quickly", "running"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Topic(tt.text))
		})
	}
}
