// Package sentiment defines the Scorer interface for text sentiment
// analysis.
//
// A Scorer converts one transcript segment into a bounded compound score.
// Scorers sit on the hot path of every final segment, so implementations
// must be pure functions of their input: deterministic, non-blocking, and
// free of network or disk I/O.
package sentiment

import "strings"

// Label classifies a compound score into a coarse sentiment bucket.
type Label string

const (
	LabelPositive Label = "positive"
	LabelNegative Label = "negative"
	LabelNeutral  Label = "neutral"
)

// Classification thresholds on the compound score. Scores in the open
// interval between them are neutral.
const (
	positiveThreshold = 0.05
	negativeThreshold = -0.05
)

// Score is the result of analyzing one text segment.
type Score struct {
	// Compound is the normalized aggregate score in [-1, 1].
	Compound float64

	// Positive, Neutral, and Negative are the constituent proportions,
	// each in [0, 1]. May be zero for scorers that only report Compound.
	Positive float64
	Neutral  float64
	Negative float64

	// Label is the coarse classification derived from Compound.
	Label Label
}

// ClassifyCompound maps a compound score to its Label.
func ClassifyCompound(compound float64) Label {
	switch {
	case compound >= positiveThreshold:
		return LabelPositive
	case compound <= negativeThreshold:
		return LabelNegative
	default:
		return LabelNeutral
	}
}

// Scorer analyzes text sentiment. Implementations must be safe for
// concurrent use and deterministic for identical input.
type Scorer interface {
	// Score analyzes the given text. It returns ok=false when the text is
	// empty or whitespace-only after normalization, in which case no
	// sentiment sample should be produced.
	Score(text string) (Score, bool)
}

// Normalize trims surrounding whitespace from a transcript segment before
// scoring. Returns the normalized text and whether anything remains.
func Normalize(text string) (string, bool) {
	text = strings.TrimSpace(text)
	return text, text != ""
}
