package safety

import "testing"

func TestClassifyFlagsSelfHarmAsReview(t *testing.T) {
	t.Parallel()

	res, fallback := Classify("I keep thinking I should just end my life")
	if res.Label != LabelReview {
		t.Fatalf("label = %q, want %q", res.Label, LabelReview)
	}
	if len(res.Reasons) != 1 || res.Reasons[0] != "self_harm" {
		t.Fatalf("reasons = %v, want [self_harm]", res.Reasons)
	}
	if !fallback {
		t.Fatal("self-harm hit must report fallbackUsed")
	}
}

func TestClassifyIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	res, _ := Classify("SUICIDE")
	if res.Label != LabelReview {
		t.Fatalf("label = %q, want %q", res.Label, LabelReview)
	}
}

func TestClassifyAllowsNeutralText(t *testing.T) {
	t.Parallel()

	res, fallback := Classify("work has been stressful lately")
	if res.Label != LabelAllow {
		t.Fatalf("label = %q, want %q", res.Label, LabelAllow)
	}
	if fallback {
		t.Fatal("allow must not report fallbackUsed")
	}
	if res.Reasons == nil || res.Meta == nil {
		t.Fatal("reasons and meta must be non-nil for JSON payloads")
	}
}
