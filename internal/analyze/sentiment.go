package analyze

import (
	"strings"

	"github.com/ppiankov/ranger/internal/model"
)

// LexiconEntry scores one opinion word
type LexiconEntry struct {
	Polarity     float64
	Subjectivity float64
}

// SentimentAnalyzer scores polarity and subjectivity from an opinion lexicon.
// Scores are averaged over the opinion words found; intensifiers scale the
// next opinion word and negations flip it at half strength.
type SentimentAnalyzer struct {
	lexicon      map[string]LexiconEntry
	intensifiers map[string]float64
	negations    map[string]bool
}

// NewSentimentAnalyzer creates an analyzer with the built-in English lexicon
func NewSentimentAnalyzer() *SentimentAnalyzer {
	return &SentimentAnalyzer{
		lexicon:      defaultLexicon(),
		intensifiers: defaultIntensifiers(),
		negations: map[string]bool{
			"not": true, "no": true, "never": true, "none": true, "nothing": true, "neither": true,
		},
	}
}

// Analyze scores text
func (a *SentimentAnalyzer) Analyze(text string) model.Sentiment {
	var polSum, subjSum float64
	var matched int

	negate := false
	intensity := 1.0

	for _, tok := range LowerWords(text) {
		if a.negations[tok] || strings.HasSuffix(tok, "n't") {
			negate = true
			continue
		}
		if m, ok := a.intensifiers[tok]; ok {
			intensity *= m
			continue
		}

		entry, ok := a.lexicon[tok]
		if !ok {
			continue
		}

		p := entry.Polarity * intensity
		s := entry.Subjectivity * intensity
		if negate {
			p *= -0.5
		}
		polSum += p
		subjSum += s
		matched++

		negate = false
		intensity = 1.0
	}

	if matched == 0 {
		return model.Sentiment{}
	}

	return model.Sentiment{
		Polarity:     clamp(polSum/float64(matched), -1, 1),
		Subjectivity: clamp(subjSum/float64(matched), 0, 1),
	}
}

// AddWord registers or overrides a lexicon entry
func (a *SentimentAnalyzer) AddWord(word string, entry LexiconEntry) {
	a.lexicon[strings.ToLower(word)] = entry
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func defaultIntensifiers() map[string]float64 {
	return map[string]float64{
		"very": 1.3, "really": 1.3, "extremely": 1.5, "incredibly": 1.4,
		"highly": 1.3, "quite": 1.1, "too": 1.2, "totally": 1.4, "absolutely": 1.5,
	}
}

func defaultLexicon() map[string]LexiconEntry {
	return map[string]LexiconEntry{
		// positive
		"good":        {0.7, 0.6},
		"great":       {0.8, 0.75},
		"excellent":   {1.0, 1.0},
		"amazing":     {0.6, 0.9},
		"awesome":     {1.0, 1.0},
		"wonderful":   {1.0, 1.0},
		"fantastic":   {0.4, 0.9},
		"incredible":  {0.9, 0.9},
		"beautiful":   {0.85, 1.0},
		"nice":        {0.6, 1.0},
		"happy":       {0.8, 1.0},
		"glad":        {0.5, 1.0},
		"love":        {0.5, 0.6},
		"lovely":      {0.5, 0.75},
		"like":        {0.2, 0.4},
		"best":        {1.0, 0.3},
		"better":      {0.5, 0.5},
		"perfect":     {1.0, 1.0},
		"cool":        {0.35, 0.65},
		"fun":         {0.3, 0.2},
		"interesting": {0.5, 0.5},
		"favorite":    {0.5, 1.0},
		"cute":        {0.5, 1.0},
		"sweet":       {0.35, 0.65},
		"brilliant":   {0.9, 1.0},
		"impressive":  {1.0, 1.0},
		"exciting":    {0.3, 0.8},
		"excited":     {0.4, 0.75},
		"joy":         {0.8, 0.9},
		"thanks":      {0.2, 0.2},
		"helpful":     {0.5, 0.5},
		"useful":      {0.3, 0.0},
		"important":   {0.4, 1.0},
		"pretty":      {0.25, 1.0},
		"easy":        {0.43, 0.83},
		// negative
		"bad":           {-0.7, 0.67},
		"terrible":      {-1.0, 1.0},
		"awful":         {-1.0, 1.0},
		"horrible":      {-1.0, 1.0},
		"worst":         {-1.0, 1.0},
		"worse":         {-0.4, 0.6},
		"poor":          {-0.4, 0.6},
		"sad":           {-0.5, 1.0},
		"unhappy":       {-0.6, 0.9},
		"depressed":     {-0.6, 0.8},
		"angry":         {-0.5, 1.0},
		"mad":           {-0.6, 1.0},
		"furious":       {-0.6, 1.0},
		"annoyed":       {-0.4, 0.7},
		"annoying":      {-0.8, 0.9},
		"hate":          {-0.8, 0.9},
		"ugly":          {-0.7, 1.0},
		"stupid":        {-0.8, 1.0},
		"boring":        {-1.0, 1.0},
		"wrong":         {-0.5, 0.9},
		"broken":        {-0.4, 0.4},
		"useless":       {-0.5, 0.2},
		"disappointing": {-0.6, 0.7},
		"hard":          {-0.29, 0.54},
		"difficult":     {-0.5, 1.0},
		"sorry":         {-0.5, 1.0},
		"crazy":         {-0.6, 0.9},
		"weird":         {-0.5, 1.0},
		"fake":          {-0.5, 1.0},
		// opinion without polarity
		"think":     {0.0, 0.3},
		"feel":      {0.0, 0.4},
		"opinion":   {0.0, 0.5},
		"probably":  {0.0, 0.5},
		"maybe":     {0.0, 0.5},
		"seems":     {0.0, 0.4},
		"obviously": {0.0, 0.5},
		"honestly":  {0.6, 0.9},
	}
}
