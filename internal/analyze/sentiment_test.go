package analyze

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyze_Neutral(t *testing.T) {
	s := NewSentimentAnalyzer().Analyze("The Eiffel Tower is 330 meters tall")
	assert.Zero(t, s.Polarity)
	assert.Zero(t, s.Subjectivity)
}

func TestAnalyze_Polarity(t *testing.T) {
	a := NewSentimentAnalyzer()

	assert.Greater(t, a.Analyze("this is great").Polarity, 0.0)
	assert.Less(t, a.Analyze("this is terrible").Polarity, 0.0)
}

func TestAnalyze_Negation(t *testing.T) {
	a := NewSentimentAnalyzer()

	s := a.Analyze("this is not good")
	assert.InDelta(t, -0.35, s.Polarity, 1e-9)

	s = a.Analyze("this isn't good")
	assert.InDelta(t, -0.35, s.Polarity, 1e-9)
}

func TestAnalyze_Intensifier(t *testing.T) {
	a := NewSentimentAnalyzer()

	plain := a.Analyze("good").Polarity
	strong := a.Analyze("very good").Polarity
	assert.Greater(t, strong, plain)
	assert.InDelta(t, 0.91, strong, 1e-9)
}

func TestAnalyze_Clamped(t *testing.T) {
	s := NewSentimentAnalyzer().Analyze("absolutely extremely excellent")
	assert.LessOrEqual(t, s.Polarity, 1.0)
	assert.LessOrEqual(t, s.Subjectivity, 1.0)
}

func TestAddWord(t *testing.T) {
	a := NewSentimentAnalyzer()
	a.AddWord("Splendid", LexiconEntry{Polarity: 0.9, Subjectivity: 1})
	assert.InDelta(t, 0.9, a.Analyze("splendid").Polarity, 1e-9)
}
