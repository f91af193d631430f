// Package scoring turns transcripts into valence/arousal scores via an
// external model, blending in a transcript-quality prior and degrading
// to a deterministic local fallback when the model call fails.
package scoring

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/anchorhq/anchor/internal/baseline"
)

// Raw is the model's unblended output.
type Raw struct {
	Valence    float64
	Arousal    float64
	Confidence float64
}

// Client produces raw emotion scores for a piece of text.
type Client interface {
	ScoreText(ctx context.Context, text string) (Raw, error)
}

// ChunkConfidence pairs a chunk's text with its recognizer confidence.
// A nil confidence means the recognizer reported none.
type ChunkConfidence struct {
	Text       string
	Confidence *float64
}

// Scores is the adapter's result. It is always usable: adapter failures
// surface as Source "fallback" with Err populated, never as an error.
type Scores struct {
	Valence     float64 `json:"valence"`
	Arousal     float64 `json:"arousal"`
	Confidence  float64 `json:"confidence"`
	Extremeness float64 `json:"extremeness"`
	Source      string  `json:"source"`
	Err         string  `json:"error,omitempty"`
}

// Sources reported in Scores.Source.
const (
	SourceModel    = "openai"
	SourceFallback = "fallback"
)

const defaultChunkConfidence = 0.9

// Adapter wraps a scoring client with prior blending and fallback.
type Adapter struct {
	client Client
}

// NewAdapter creates a scoring adapter around the given client.
func NewAdapter(client Client) *Adapter {
	return &Adapter{client: client}
}

var wordRe = regexp.MustCompile(`\w+`)

// Score scores the transcript. Chunk confidences, when present, only
// feed the prior-confidence blend; they never alter valence/arousal.
func (a *Adapter) Score(ctx context.Context, text string, chunks []ChunkConfidence) Scores {
	text = strings.TrimSpace(text)
	if text == "" {
		return Scores{Source: SourceFallback, Err: "empty_text"}
	}

	prior := priorConfidence(text, chunks)

	raw, err := a.client.ScoreText(ctx, text)
	if err != nil {
		return Scores{
			Confidence: round2(clamp01(prior * 0.6)),
			Source:     SourceFallback,
			Err:        err.Error(),
		}
	}

	valence := math.Max(-1, math.Min(1, raw.Valence))
	arousal := clamp01(raw.Arousal)
	conf := clamp01(raw.Confidence)

	return Scores{
		Valence:     valence,
		Arousal:     arousal,
		Confidence:  round2(0.8*conf + 0.2*prior),
		Extremeness: baseline.ComputeExtremeness(valence, arousal),
		Source:      SourceModel,
	}
}

// priorConfidence estimates STT trustworthiness from per-chunk
// recognizer confidence (char-length weighted) with a small coherence
// dampener for highly repetitive text.
func priorConfidence(text string, chunks []ChunkConfidence) float64 {
	prior := defaultChunkConfidence
	if len(chunks) > 0 {
		totalChars := 0
		weighted := 0.0
		for _, c := range chunks {
			conf := defaultChunkConfidence
			if c.Confidence != nil {
				conf = *c.Confidence
			}
			n := len(c.Text)
			totalChars += n
			weighted += conf * float64(n)
		}
		prior = weighted / math.Max(float64(totalChars), 1)
	}

	words := wordRe.FindAllString(strings.ToLower(text), -1)
	coherence := 1.0
	if len(words) == 0 {
		coherence = 0.5
	} else {
		unique := map[string]struct{}{}
		for _, w := range words {
			unique[w] = struct{}{}
		}
		if float64(len(unique))/float64(len(words)) < 0.5 {
			coherence = 0.85
		}
	}

	return clamp01(prior * coherence)
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
