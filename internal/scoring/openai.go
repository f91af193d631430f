package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAIClient scores text with an OpenAI chat model at temperature 0.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAIClient creates a scoring client. Constructed once at process
// start and injected into the adapter.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// ScoreText asks the model for a JSON valence/arousal/confidence triple.
func (c *OpenAIClient) ScoreText(ctx context.Context, text string) (Raw, error) {
	prompt := "You are scoring a short user utterance.\n" +
		"Return ONLY valid JSON with keys: valence, arousal, confidence.\n" +
		"valence in [-1, 1], arousal in [0, 1], confidence in [0, 1].\n" +
		"Interpret valence as negative/sad to positive/happy.\n" +
		"Interpret arousal as calm/low-energy to stressed/excited/high-energy.\n" +
		"User text: " + text + "\n"

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return Raw{}, fmt.Errorf("scoring completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Raw{}, fmt.Errorf("scoring completion: empty choices")
	}

	return parseRaw(resp.Choices[0].Message.Content)
}

// parseRaw tolerates extra text around the JSON object.
func parseRaw(s string) (Raw, error) {
	s = strings.TrimSpace(s)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return Raw{}, fmt.Errorf("no JSON object in scoring response: %.80s", s)
	}

	var out struct {
		Valence    float64 `json:"valence"`
		Arousal    float64 `json:"arousal"`
		Confidence float64 `json:"confidence"`
	}
	out.Confidence = 0.5
	if err := json.Unmarshal([]byte(s[start:end+1]), &out); err != nil {
		return Raw{}, fmt.Errorf("decode scoring response: %w", err)
	}
	return Raw{Valence: out.Valence, Arousal: out.Arousal, Confidence: out.Confidence}, nil
}
