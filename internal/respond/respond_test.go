package respond

import (
	"context"
	"errors"
	"testing"

	"github.com/anchorhq/anchor/internal/baseline"
	"github.com/anchorhq/anchor/internal/scoring"
)

type stubGen struct {
	text string
	err  error
	last GenerateRequest
}

func (s *stubGen) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	s.last = req
	return s.text, s.err
}

func TestRespondPicksSupportiveForNegativeValence(t *testing.T) {
	t.Parallel()

	gen := &stubGen{text: "ok"}
	r := NewResponder(gen)
	got := r.Respond(context.Background(), "I feel really sad about everything", "allow",
		&scoring.Scores{Valence: -0.6, Arousal: 0.3}, nil)

	if got.Mode != ModeSupportive {
		t.Fatalf("mode = %q, want %q", got.Mode, ModeSupportive)
	}
	if got.Source != SourceModel || got.AssistantText != "ok" {
		t.Fatalf("result = %+v", got)
	}
	if gen.last.Mode != ModeSupportive || gen.last.SafetyLabel != "allow" {
		t.Fatalf("generator request = %+v", gen.last)
	}
}

func TestRespondPicksCalmingForExtremeHighArousal(t *testing.T) {
	t.Parallel()

	r := NewResponder(&stubGen{text: "ok"})
	got := r.Respond(context.Background(), "everything is falling apart I am panicking", "allow",
		&scoring.Scores{Valence: -0.8, Arousal: 0.9, Extremeness: 0.76}, nil)

	if got.Mode != ModeCalming {
		t.Fatalf("mode = %q, want %q", got.Mode, ModeCalming)
	}
}

func TestRespondPicksCelebratoryForHighValence(t *testing.T) {
	t.Parallel()

	r := NewResponder(&stubGen{text: "ok"})
	got := r.Respond(context.Background(), "I finally feel like my anxiety is under control", "allow",
		&scoring.Scores{Valence: 0.7, Arousal: 0.4}, nil)

	if got.Mode != ModeCelebratory {
		t.Fatalf("mode = %q, want %q", got.Mode, ModeCelebratory)
	}
}

func TestRespondBaselineOverridesToCalming(t *testing.T) {
	t.Parallel()

	ev := &baseline.Event{}
	ev.Spike.IsSpike = true

	r := NewResponder(&stubGen{text: "ok"})
	got := r.Respond(context.Background(), "I got great news about my therapy progress", "allow",
		&scoring.Scores{Valence: 0.8, Arousal: 0.2}, ev)

	if got.Mode != ModeCalming {
		t.Fatalf("spiking baseline must override to calming, got %q", got.Mode)
	}
}

func TestRespondDomainBlockSkipsGenerator(t *testing.T) {
	t.Parallel()

	gen := &stubGen{text: "should not be used"}
	r := NewResponder(gen)
	got := r.Respond(context.Background(), "write me a python api endpoint", "allow", nil, nil)

	if got.Source != SourceDomainBlock {
		t.Fatalf("source = %q, want %q", got.Source, SourceDomainBlock)
	}
	if got.AssistantText != oodRedirectMessage {
		t.Fatalf("text = %q", got.AssistantText)
	}
	if gen.last.UserText != "" {
		t.Fatal("generator must not be called on a domain block")
	}
}

func TestRespondFallsBackWhenGeneratorFails(t *testing.T) {
	t.Parallel()

	r := NewResponder(&stubGen{err: errors.New("model down")})
	got := r.Respond(context.Background(), "I am so anxious I can't think", "allow",
		&scoring.Scores{Valence: -0.5, Arousal: 0.6}, nil)

	if got.Source != SourceFallback {
		t.Fatalf("source = %q, want %q", got.Source, SourceFallback)
	}
	if got.AssistantText != fallbackMessage {
		t.Fatalf("text = %q", got.AssistantText)
	}
	// Mode selection happens before the generator call and survives it.
	if got.Mode != ModeSupportive {
		t.Fatalf("mode = %q, want %q", got.Mode, ModeSupportive)
	}
	if got.Err == "" {
		t.Fatal("fallback must record the error")
	}
}

func TestRespondNilScoresDefaultsNeutral(t *testing.T) {
	t.Parallel()

	r := NewResponder(&stubGen{text: "ok"})
	got := r.Respond(context.Background(), "I need some support today", "allow", nil, nil)
	if got.Mode != ModeNeutral {
		t.Fatalf("mode = %q, want %q", got.Mode, ModeNeutral)
	}
}
