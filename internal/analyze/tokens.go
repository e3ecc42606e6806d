package analyze

import (
	"regexp"
	"strings"
	"unicode"
)

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+(?:'[\p{L}]+)?`)

// Words returns the word tokens of text in their original case
func Words(text string) []string {
	return wordPattern.FindAllString(text, -1)
}

// LowerWords returns the lowercased word tokens of text
func LowerWords(text string) []string {
	return Words(strings.ToLower(text))
}

// SplitSentences splits text on sentence terminators followed by whitespace
func SplitSentences(text string) []string {
	text = strings.ReplaceAll(text, "\n", " ")

	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)

		if r == '.' || r == '!' || r == '?' {
			// Only split when the terminator ends a word, so "3.14" stays intact
			if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
				if s := strings.TrimSpace(current.String()); s != "" {
					sentences = append(sentences, s)
				}
				current.Reset()
			}
		}
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}

// Tag is a coarse part-of-speech class
type Tag int

const (
	TagOther Tag = iota
	TagNoun
	TagVerb
	TagAdjective
	TagAdverb
	TagNumber
)

var knownVerbs = map[string]bool{
	"make": true, "made": true, "build": true, "built": true, "invent": true, "run": true,
	"runs": true, "ran": true, "use": true, "uses": true, "used": true, "know": true,
	"knew": true, "think": true, "thought": true, "believe": true, "say": true, "says": true,
	"said": true, "show": true, "shows": true, "shown": true, "learn": true, "learned": true,
	"learnt": true, "become": true, "became": true, "contain": true, "contains": true,
	"include": true, "includes": true, "get": true, "got": true, "give": true, "gave": true,
	"take": true, "took": true, "find": true, "found": true, "go": true, "went": true,
	"come": true, "came": true, "see": true, "saw": true, "write": true, "wrote": true,
	"orbit": true, "orbits": true, "boil": true, "boils": true, "freeze": true, "freezes": true,
	"grow": true, "grows": true, "grew": true, "live": true, "lives": true, "lived": true,
	"die": true, "died": true, "win": true, "won": true, "lose": true, "lost": true,
	"begin": true, "began": true, "start": true, "started": true, "create": true, "created": true,
	"discover": true, "discovered": true, "founded": true, "located": true, "measure": true,
}

var knownAdjectives = map[string]bool{
	"tall": true, "short": true, "big": true, "small": true, "large": true, "good": true,
	"bad": true, "new": true, "old": true, "high": true, "low": true, "long": true,
	"great": true, "best": true, "worst": true, "first": true, "last": true, "many": true,
	"much": true, "hot": true, "cold": true, "fast": true, "slow": true, "true": true,
	"false": true, "real": true, "main": true, "major": true, "red": true, "blue": true,
	"green": true, "black": true, "white": true, "deep": true, "wide": true, "heavy": true,
}

// TagWord assigns a coarse part of speech to a lowercased token
func TagWord(word string) Tag {
	if word == "" {
		return TagOther
	}
	if isNumber(word) {
		return TagNumber
	}
	if knownVerbs[word] {
		return TagVerb
	}
	if knownAdjectives[word] {
		return TagAdjective
	}
	switch {
	case strings.HasSuffix(word, "ly") && len(word) > 4:
		return TagAdverb
	case strings.HasSuffix(word, "ing") && len(word) > 5,
		strings.HasSuffix(word, "ed") && len(word) > 4,
		strings.HasSuffix(word, "ize") && len(word) > 5,
		strings.HasSuffix(word, "ise") && len(word) > 6:
		return TagVerb
	case strings.HasSuffix(word, "ous"), strings.HasSuffix(word, "ful"),
		strings.HasSuffix(word, "ive"), strings.HasSuffix(word, "able"),
		strings.HasSuffix(word, "ible"), strings.HasSuffix(word, "less"),
		strings.HasSuffix(word, "ish") && len(word) > 5:
		return TagAdjective
	}
	return TagNoun
}

func isNumber(word string) bool {
	for _, r := range word {
		if !unicode.IsDigit(r) && r != '.' && r != ',' {
			return false
		}
	}
	return true
}
