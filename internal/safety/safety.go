// Package safety classifies user input against a rule-based self-harm
// phrase set. The classifier is a pure function: it never fails and
// never touches the store.
package safety

import "strings"

// Labels returned by Classify.
const (
	LabelAllow  = "allow"
	LabelReview = "review"
	LabelBlock  = "block"
)

// selfHarmMarkers are substring-matched against lowercased input.
var selfHarmMarkers = []string{
	"how to kill myself",
	"kill myself",
	"suicide",
	"self harm",
	"hurt myself",
	"cut myself",
	"end my life",
}

// Result is the classification triple recorded with each turn.
type Result struct {
	Label   string            `json:"label"`
	Reasons []string          `json:"reasons"`
	Meta    map[string]string `json:"meta"`
}

// Classify labels the input. Self-harm language yields "review" rather
// than "block" so the assistant can respond with crisis-safe support;
// fallbackUsed reports that the normal generation path is overridden.
func Classify(text string) (Result, bool) {
	t := strings.ToLower(text)

	for _, p := range selfHarmMarkers {
		if strings.Contains(t, p) {
			return Result{Label: LabelReview, Reasons: []string{"self_harm"}, Meta: map[string]string{}}, true
		}
	}

	return Result{Label: LabelAllow, Reasons: []string{}, Meta: map[string]string{}}, false
}
