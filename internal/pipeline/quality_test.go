package pipeline

import (
	"math"
	"testing"

	"github.com/anchorhq/anchor/internal/scoring"
)

func fptr(v float64) *float64 { return &v }

func TestTranscriptConfidenceShortText(t *testing.T) {
	t.Parallel()

	got := TranscriptConfidence("hi", []scoring.ChunkConfidence{{Text: "hi", Confidence: fptr(0.9)}})
	if math.Abs(got-0.36) > 1e-9 {
		t.Fatalf("confidence = %v, want 0.36", got)
	}
}

func TestTranscriptConfidenceWeightsByChunkLength(t *testing.T) {
	t.Parallel()

	chunks := []scoring.ChunkConfidence{
		{Text: "a", Confidence: fptr(0.2)},
		{Text: "this is a much longer chunk of text", Confidence: fptr(1.0)},
	}
	got := TranscriptConfidence("a this is a much longer chunk of text", chunks)
	if got < 0.9 {
		t.Fatalf("confidence = %v, want >= 0.9 (long high-confidence chunk dominates)", got)
	}
}

func TestTranscriptConfidenceLengthFactor(t *testing.T) {
	t.Parallel()

	// 0.9 chunk confidence scaled by the <3, <6, <12 char bands.
	cases := []struct {
		transcript string
		want       float64
	}{
		{"hi", 0.36},
		{"hello", 0.54},
		{"hello toby", 0.72},
		{"hello there my friend", 0.9},
	}
	for _, tc := range cases {
		chunks := []scoring.ChunkConfidence{{Text: tc.transcript, Confidence: fptr(0.9)}}
		if got := TranscriptConfidence(tc.transcript, chunks); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("TranscriptConfidence(%q) = %v, want %v", tc.transcript, got, tc.want)
		}
	}
}

func TestTranscriptConfidenceRepetitionDampens(t *testing.T) {
	t.Parallel()

	repetitive := "go go go go go go go go"
	chunks := []scoring.ChunkConfidence{{Text: repetitive, Confidence: fptr(1.0)}}
	if got := TranscriptConfidence(repetitive, chunks); math.Abs(got-0.85) > 1e-9 {
		t.Fatalf("confidence = %v, want 0.85", got)
	}
}

func TestTranscriptConfidenceMissingChunkConfidence(t *testing.T) {
	t.Parallel()

	chunks := []scoring.ChunkConfidence{{Text: "a perfectly normal sentence"}}
	if got := TranscriptConfidence("a perfectly normal sentence", chunks); math.Abs(got-0.9) > 1e-9 {
		t.Fatalf("confidence = %v, want default 0.9", got)
	}
}

func TestTranscriptConfidenceClamped(t *testing.T) {
	t.Parallel()

	chunks := []scoring.ChunkConfidence{{Text: "loud and clear over here", Confidence: fptr(7.5)}}
	if got := TranscriptConfidence("loud and clear over here", chunks); got > 1.0 {
		t.Fatalf("confidence = %v, want <= 1.0", got)
	}
}
