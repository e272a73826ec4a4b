package vader

import (
	"testing"

	"github.com/sentavox/sentavox/pkg/sentiment"
)

func TestScorer_Score(t *testing.T) {
	t.Parallel()

	s := New()

	tests := []struct {
		name      string
		text      string
		wantLabel sentiment.Label
	}{
		{name: "positive", text: "this is absolutely wonderful, thank you so much", wantLabel: sentiment.LabelPositive},
		{name: "negative", text: "this is terrible, I hate this awful service", wantLabel: sentiment.LabelNegative},
		{name: "neutral", text: "the meeting is at three", wantLabel: sentiment.LabelNeutral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			score, ok := s.Score(tt.text)
			if !ok {
				t.Fatalf("Score(%q) returned ok=false", tt.text)
			}
			if score.Label != tt.wantLabel {
				t.Errorf("Score(%q).Label = %q (compound %v), want %q", tt.text, score.Label, score.Compound, tt.wantLabel)
			}
			if score.Compound < -1 || score.Compound > 1 {
				t.Errorf("compound %v out of [-1, 1]", score.Compound)
			}
		})
	}
}

func TestScorer_WhitespaceProducesNoScore(t *testing.T) {
	t.Parallel()

	s := New()
	for _, text := range []string{"", "   ", "\t\n"} {
		if _, ok := s.Score(text); ok {
			t.Errorf("Score(%q) = ok, want no score", text)
		}
	}
}

func TestScorer_Deterministic(t *testing.T) {
	t.Parallel()

	s := New()
	const text = "I am very unhappy with this"

	first, ok := s.Score(text)
	if !ok {
		t.Fatal("Score returned ok=false")
	}
	for range 10 {
		got, ok := s.Score(text)
		if !ok || got != first {
			t.Fatalf("Score not deterministic: got %+v, want %+v", got, first)
		}
	}
}
