package research

import (
	"errors"
	"testing"
)

func TestParseStructuredExtractsWrappedJSON(t *testing.T) {
	raw := "Sure, here is the plan:\n```json\n{\"coverage_score\": 80, \"sufficient\": true}\n```\nLet me know."
	verdict, err := ParseStructured[Verdict](raw)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if verdict.CoverageScore != 80 || !verdict.Sufficient {
		t.Fatalf("unexpected verdict: %+v", verdict)
	}
}

func TestParseStructuredHandlesNestedBraces(t *testing.T) {
	raw := `prefix {"axes": [{"id": "axis-1", "title": "a {weird} title", "question": "q", "keywords": ["k"], "priority": 2}]} suffix`
	plan, err := ParseStructured[Plan](raw)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(plan.Axes) != 1 {
		t.Fatalf("expected 1 axis, got %d", len(plan.Axes))
	}
	if plan.Axes[0].Title != "a {weird} title" {
		t.Fatalf("brace inside string mangled: %q", plan.Axes[0].Title)
	}
}

func TestParseStructuredRejectsPlainText(t *testing.T) {
	_, err := ParseStructured[Verdict]("there is no JSON here at all")
	if !errors.Is(err, ErrMalformedOutput) {
		t.Fatalf("expected ErrMalformedOutput, got %v", err)
	}
}

func TestParseStructuredRejectsInvalidJSON(t *testing.T) {
	_, err := ParseStructured[Verdict](`{"coverage_score": }`)
	if !errors.Is(err, ErrMalformedOutput) {
		t.Fatalf("expected ErrMalformedOutput, got %v", err)
	}
}
