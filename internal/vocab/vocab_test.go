package vocab

import (
	"testing"
)

func TestCorrect_EmptyVocabularyPassesThrough(t *testing.T) {
	t.Parallel()
	c := NewCorrector(nil)

	text, corrections := c.Correct("anything at all")
	if text != "anything at all" {
		t.Errorf("text = %q", text)
	}
	if len(corrections) != 0 {
		t.Errorf("corrections = %v, want none", corrections)
	}
}

func TestCorrect_ExactTermCanonicalized(t *testing.T) {
	t.Parallel()
	c := NewCorrector([]string{"SentaVox"})

	text, corrections := c.Correct("i love sentavox")
	if text != "i love SentaVox" {
		t.Errorf("text = %q, want canonical casing", text)
	}
	// Same term, just casing: not reported as a correction.
	if len(corrections) != 0 {
		t.Errorf("corrections = %v, want none", corrections)
	}
}

func TestCorrect_PhoneticMishear(t *testing.T) {
	t.Parallel()
	c := NewCorrector([]string{"refund"})

	text, corrections := c.Correct("i want a refunt now")
	if text != "i want a refund now" {
		t.Errorf("text = %q", text)
	}
	if len(corrections) != 1 {
		t.Fatalf("corrections = %v, want exactly one", corrections)
	}
	if corrections[0].Original != "refunt" || corrections[0].Term != "refund" {
		t.Errorf("correction = %+v", corrections[0])
	}
	if corrections[0].Confidence <= 0 {
		t.Errorf("confidence = %v, want > 0", corrections[0].Confidence)
	}
}

func TestCorrect_UnrelatedWordsUntouched(t *testing.T) {
	t.Parallel()
	c := NewCorrector([]string{"refund"})

	text, corrections := c.Correct("hello world")
	if text != "hello world" {
		t.Errorf("text = %q", text)
	}
	if len(corrections) != 0 {
		t.Errorf("corrections = %v, want none", corrections)
	}
}

func TestCorrect_MultiWordWindow(t *testing.T) {
	t.Parallel()
	c := NewCorrector([]string{"billing portal"})

	text, _ := c.Correct("the billing portal is down")
	if text != "the billing portal is down" {
		t.Errorf("text = %q", text)
	}
}

func TestNewCorrector_SkipsBlankTerms(t *testing.T) {
	t.Parallel()
	c := NewCorrector([]string{"refund", "", "   ", "chargeback"})
	if got := c.TermCount(); got != 2 {
		t.Errorf("TermCount = %d, want 2", got)
	}
}
