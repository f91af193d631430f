package respond

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/anchorhq/anchor/internal/prompts"
)

// OpenAIGenerator produces assistant text with an OpenAI chat model.
type OpenAIGenerator struct {
	client openai.Client
	model  string
	system string
}

// NewOpenAIGenerator creates a generator. An empty systemPrompt falls
// back to the default persona.
func NewOpenAIGenerator(apiKey, model, systemPrompt string) *OpenAIGenerator {
	return &OpenAIGenerator{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		system: prompts.ForSession(systemPrompt),
	}
}

var styleHints = map[string]string{
	ModeNeutral:     "Tone: calm, practical, grounded.",
	ModeSupportive:  "Tone: warm, validating, encouraging. Less questions, more guidance.",
	ModeCalming:     "Tone: slow down, grounding, reduce overwhelm. Offer one quick regulation step first.",
	ModeCelebratory: "Tone: upbeat but not over-the-top. Reinforce what's working and suggest next steps.",
}

// baselineFlags summarizes the baseline update for the model without
// leaking numbers or internals.
func baselineFlags(req GenerateRequest) []string {
	if req.Baseline == nil {
		return nil
	}
	var flags []string
	if req.Baseline.Extremeness.IsExtreme {
		flags = append(flags, "high emotional intensity")
	}
	if req.Baseline.Spike.IsSpike {
		flags = append(flags, "a sudden change")
	}
	if req.Baseline.Delta.Flags.ValenceShift || req.Baseline.Delta.Flags.ArousalShift {
		flags = append(flags, "a notable shift")
	}
	return flags
}

// Generate builds the prompt and calls the chat model at temperature 0.8.
func (g *OpenAIGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	userText := strings.TrimSpace(req.UserText)
	if userText == "" {
		return "I didn't catch anything - could you say that again?", nil
	}

	style, ok := styleHints[req.Mode]
	if !ok {
		style = styleHints[ModeNeutral]
	}

	hint := ""
	if flags := baselineFlags(req); len(flags) > 0 {
		hint = "Context: The user may be experiencing " + strings.Join(flags, ", ") + ". " +
			"Respond with extra steadiness and give a clear, simple plan.\n"
	}

	userPrompt := style + "\n" +
		hint +
		"Safety label: " + req.SafetyLabel + "\n" +
		"User said: " + userText + "\n" +
		"Now respond as Anchor.\n"

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(g.system),
			openai.UserMessage(userPrompt),
		},
		Temperature: openai.Float(0.8),
	})
	if err != nil {
		return "", fmt.Errorf("response completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("response completion: empty choices")
	}

	// The persona forbids markdown; strip asterisks in case the model
	// emits them anyway.
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	text = strings.ReplaceAll(text, "**", "")
	text = strings.ReplaceAll(text, "*", "")

	if text == "" {
		return "I'm here with you. Let's take this one step at a time.", nil
	}
	return text, nil
}
