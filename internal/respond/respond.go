// Package respond turns a finalized transcript plus its scores, safety
// verdict, and baseline update into assistant text. It enforces the
// domain boundary, picks a tone, and degrades to a fixed local reply
// when the generator fails.
package respond

import (
	"context"

	"github.com/anchorhq/anchor/internal/baseline"
	"github.com/anchorhq/anchor/internal/scoring"
)

// Response modes, reported in Result.Mode and persisted with the
// assistant message.
const (
	ModeNeutral     = "neutral"
	ModeSupportive  = "supportive"
	ModeCalming     = "calming"
	ModeCelebratory = "celebratory"
)

// Sources reported in Result.Source.
const (
	SourceModel       = "openai"
	SourceFallback    = "fallback"
	SourceDomainBlock = "domain_block"
	SourceSafetyBlock = "safety_block"
)

const oodRedirectMessage = "I can't help with that request. Anchor is specifically designed for mental health " +
	"and life support, so I need to stay focused on that.\n\n" +
	"If you'd like, we can shift back to what's been weighing on you - " +
	"stress, anxiety, motivation, confidence, work pressure, relationships, or anything else " +
	"that's affecting how you're feeling lately."

const fallbackMessage = "I hear you. Here are two small things we can try right now:\n" +
	"1) Take one slow breath in for 4 seconds, out for 6.\n" +
	"2) Name the pressure in one sentence (for example: 'job search stress' or 'money worries')."

// TextGenerator produces assistant text for a user turn. Implementations
// must not be relied on for availability; the responder handles failure.
type TextGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// GenerateRequest carries everything the generator needs for one reply.
type GenerateRequest struct {
	UserText    string
	Mode        string
	SafetyLabel string
	Baseline    *baseline.Event
}

// Result is the responder's output. It is always usable: generator
// failures surface as Source "fallback" with Err populated.
type Result struct {
	AssistantText string `json:"assistant_text"`
	Source        string `json:"source"`
	Mode          string `json:"mode"`
	Err           string `json:"error,omitempty"`
}

// Responder selects tone and produces the assistant reply.
type Responder struct {
	gen TextGenerator
}

// NewResponder creates a responder around the given generator.
func NewResponder(gen TextGenerator) *Responder {
	return &Responder{gen: gen}
}

// selectMode maps scores and the baseline update to a tone. The
// baseline override wins: extreme or spiking users get calming
// regardless of the raw scores.
func selectMode(scores *scoring.Scores, ev *baseline.Event) string {
	mode := ModeNeutral
	if scores != nil {
		switch {
		case scores.Extremeness >= 0.55 && scores.Arousal >= 0.65:
			mode = ModeCalming
		case scores.Valence <= -0.35:
			mode = ModeSupportive
		case scores.Valence >= 0.5:
			mode = ModeCelebratory
		}
	}
	if ev != nil && (ev.Extremeness.IsExtreme || ev.Spike.IsSpike) {
		mode = ModeCalming
	}
	return mode
}

// Respond generates the assistant reply for an allowed turn. Safety
// blocks and session-gate replies are decided upstream; this handles
// the domain boundary, tone, and generator fallback.
func (r *Responder) Respond(ctx context.Context, transcript string, safetyLabel string, scores *scoring.Scores, ev *baseline.Event) Result {
	if ok, reason := InDomain(transcript); !ok {
		return Result{
			AssistantText: oodRedirectMessage,
			Source:        SourceDomainBlock,
			Mode:          ModeNeutral,
			Err:           reason,
		}
	}

	mode := selectMode(scores, ev)

	text, err := r.gen.Generate(ctx, GenerateRequest{
		UserText:    transcript,
		Mode:        mode,
		SafetyLabel: safetyLabel,
		Baseline:    ev,
	})
	if err != nil {
		return Result{
			AssistantText: fallbackMessage,
			Source:        SourceFallback,
			Mode:          mode,
			Err:           err.Error(),
		}
	}

	return Result{AssistantText: text, Source: SourceModel, Mode: mode}
}
