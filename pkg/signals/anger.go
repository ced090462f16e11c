package signals

import (
	"math"
	"unicode"
)

const (
	capsRatioThreshold = 0.3
	capsMinLetters     = 10
	angerComponents    = 3.0
	angryThreshold     = 0.5
)

// Anger is the decomposed anger signal for a message.
type Anger struct {
	Hits                 []string `json:"hits"`
	ExcessivePunctuation bool     `json:"excessive_punctuation"`
	Shouting             bool     `json:"shouting"`
	Score                float64  `json:"score"`
}

// Angry reports whether the score crosses the anger threshold.
func (a Anger) Angry() bool {
	return a.Score > angryThreshold
}

// ScoreAnger computes the anger score of s using the given lexicon (AngerTerms
// when nil). The score is (lexicon hits + punctuation flag + caps flag) / 3,
// clamped to [0,1].
func ScoreAnger(s string, lexicon *Lexicon) Anger {
	if lexicon == nil {
		lexicon = AngerTerms
	}
	a := Anger{
		Hits:                 lexicon.MatchText(s),
		ExcessivePunctuation: excessivePunctuation(s),
		Shouting:             capsRatio(s) > capsRatioThreshold,
	}
	n := float64(len(a.Hits))
	if a.ExcessivePunctuation {
		n++
	}
	if a.Shouting {
		n++
	}
	a.Score = math.Min(1, n/angerComponents)
	return a
}

// excessivePunctuation is true for any run of two or more '!' or '?'.
func excessivePunctuation(s string) bool {
	run := 0
	for _, r := range s {
		if r == '!' || r == '?' || r == '！' || r == '？' {
			run++
			if run >= 2 {
				return true
			}
			continue
		}
		run = 0
	}
	return false
}

// capsRatio is the share of upper-case letters. Short messages return 0 so
// acronyms alone do not count as shouting.
func capsRatio(s string) float64 {
	var letters, upper int
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	if letters < capsMinLetters {
		return 0
	}
	return float64(upper) / float64(letters)
}
