package respond

import "testing"

func TestInDomainAllowsMentalHealthTopics(t *testing.T) {
	t.Parallel()

	cases := []string{
		"I've been feeling really anxious about everything lately",
		"my depression has been getting worse",
		"I think I'm burned out at work",
		"can you give me some grounding exercises",
	}
	for _, text := range cases {
		if ok, reason := InDomain(text); !ok {
			t.Fatalf("InDomain(%q) = false (%s), want true", text, reason)
		}
	}
}

func TestInDomainBlocksPureTechRequests(t *testing.T) {
	t.Parallel()

	ok, reason := InDomain("can you fix this python stack trace for me")
	if ok {
		t.Fatal("pure tech request must be out of domain")
	}
	if reason != "contains_tech_terms_without_support_framing" {
		t.Fatalf("reason = %q", reason)
	}
}

func TestInDomainAllowsTechTermsWithSupportFraming(t *testing.T) {
	t.Parallel()

	// Stressed about a coding job is a life problem, not a dev request.
	ok, _ := InDomain("I'm so stressed about my programming job I can't sleep")
	if !ok {
		t.Fatal("tech terms with support framing must stay in domain")
	}
}

func TestInDomainBlocksHomeworkSolveRequests(t *testing.T) {
	t.Parallel()

	ok, reason := InDomain("please do my homework for tomorrow")
	if ok {
		t.Fatal("homework solve request must be out of domain")
	}
	if reason != "contains_homework_solve_phrase" {
		t.Fatalf("reason = %q", reason)
	}
}

func TestInDomainAllowsSchoolStressWithHelpFraming(t *testing.T) {
	t.Parallel()

	ok, _ := InDomain("I'm struggling with my exams, any advice?")
	if !ok {
		t.Fatal("school stress with help framing must stay in domain")
	}
}

func TestInDomainBlocksCommerceRequests(t *testing.T) {
	t.Parallel()

	ok, reason := InDomain("find me a cheap flight and a hotel deal")
	if ok {
		t.Fatal("commerce request must be out of domain")
	}
	if reason != "contains_commerce_terms_without_support_framing" {
		t.Fatalf("reason = %q", reason)
	}
}

func TestInDomainNeverBlocksSelfHarmLanguage(t *testing.T) {
	t.Parallel()

	ok, reason := InDomain("I want to kill myself over this python code")
	if !ok {
		t.Fatal("self-harm language must never be domain-blocked")
	}
	if reason != "self_harm_routed_to_safety" {
		t.Fatalf("reason = %q", reason)
	}
}

func TestInDomainDefaultsToAllow(t *testing.T) {
	t.Parallel()

	if ok, reason := InDomain("the weather was strange today"); !ok {
		t.Fatalf("neutral text must default to allow, got %s", reason)
	}
	if ok, reason := InDomain("   "); !ok || reason != "empty" {
		t.Fatalf("empty text = (%v, %s), want (true, empty)", ok, reason)
	}
}
