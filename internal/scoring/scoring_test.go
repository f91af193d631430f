package scoring

import (
	"context"
	"errors"
	"testing"
)

type stubClient struct {
	raw Raw
	err error
}

func (s stubClient) ScoreText(ctx context.Context, text string) (Raw, error) {
	return s.raw, s.err
}

func fp(x float64) *float64 { return &x }

func TestScoreBlendsModelConfidenceWithPrior(t *testing.T) {
	t.Parallel()

	a := NewAdapter(stubClient{raw: Raw{Valence: -0.5, Arousal: 0.7, Confidence: 0.9}})
	got := a.Score(context.Background(), "I feel really overwhelmed by everything", nil)

	if got.Source != SourceModel {
		t.Fatalf("source = %q, want %q", got.Source, SourceModel)
	}
	// prior defaults to 0.9 with no chunks: 0.8*0.9 + 0.2*0.9 = 0.9
	if got.Confidence != 0.9 {
		t.Fatalf("confidence = %v, want 0.9", got.Confidence)
	}
	if got.Valence != -0.5 || got.Arousal != 0.7 {
		t.Fatalf("scores passed through wrong: %+v", got)
	}
	// extremeness = 0.5 * (0.5 + 0.35)
	if got.Extremeness != 0.425 {
		t.Fatalf("extremeness = %v, want 0.425", got.Extremeness)
	}
}

func TestScoreClampsOutOfRangeModelOutput(t *testing.T) {
	t.Parallel()

	a := NewAdapter(stubClient{raw: Raw{Valence: -3, Arousal: 2, Confidence: 1.5}})
	got := a.Score(context.Background(), "some perfectly ordinary words here", nil)

	if got.Valence != -1 {
		t.Fatalf("valence = %v, want clamp to -1", got.Valence)
	}
	if got.Arousal != 1 {
		t.Fatalf("arousal = %v, want clamp to 1", got.Arousal)
	}
}

func TestScoreFallsBackDeterministically(t *testing.T) {
	t.Parallel()

	a := NewAdapter(stubClient{err: errors.New("model down")})
	got := a.Score(context.Background(), "hello there how are you doing", nil)

	if got.Source != SourceFallback {
		t.Fatalf("source = %q, want %q", got.Source, SourceFallback)
	}
	if got.Valence != 0 || got.Arousal != 0 || got.Extremeness != 0 {
		t.Fatalf("fallback scores must be zero: %+v", got)
	}
	// prior 0.9 * 0.6 = 0.54
	if got.Confidence != 0.54 {
		t.Fatalf("fallback confidence = %v, want 0.54", got.Confidence)
	}
	if got.Err == "" {
		t.Fatal("fallback must record the error")
	}
}

func TestScoreEmptyText(t *testing.T) {
	t.Parallel()

	a := NewAdapter(stubClient{})
	got := a.Score(context.Background(), "   ", nil)
	if got.Source != SourceFallback || got.Err != "empty_text" {
		t.Fatalf("empty text must fall back with empty_text, got %+v", got)
	}
	if got.Confidence != 0 {
		t.Fatalf("empty text confidence = %v, want 0", got.Confidence)
	}
}

func TestPriorUsesCharWeightedChunkConfidence(t *testing.T) {
	t.Parallel()

	chunks := []ChunkConfidence{
		{Text: "aaaa", Confidence: fp(1.0)}, // 4 chars at 1.0
		{Text: "bbbbbbbbbbbb", Confidence: fp(0.5)}, // 12 chars at 0.5
	}
	got := priorConfidence("aaaa bbbbbbbbbbbb words vary here", chunks)
	want := (1.0*4 + 0.5*12) / 16
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("prior = %v, want %v", got, want)
	}
}

func TestPriorDampensRepetitiveText(t *testing.T) {
	t.Parallel()

	got := priorConfidence("no no no no no no", nil)
	if got != 0.9*0.85 {
		t.Fatalf("prior = %v, want %v", got, 0.9*0.85)
	}
}
