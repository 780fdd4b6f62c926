package research

import (
	"context"
	"errors"
	"testing"
)

type genFunc func(ctx context.Context, prompt string, maxTokens int) (string, error)

func (f genFunc) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return f(ctx, prompt, maxTokens)
}

func staticGen(response string) genFunc {
	return func(context.Context, string, int) (string, error) { return response, nil }
}

func failingGen(err error) genFunc {
	return func(context.Context, string, int) (string, error) { return "", err }
}

func TestPlanParsesAxes(t *testing.T) {
	response := `{
		"reformulation": "what is X",
		"objective": "establish X",
		"scope": "X only",
		"axes": [
			{"id": "axis-1", "title": "history", "question": "history of X", "keywords": ["x", "history"], "priority": 4},
			{"id": "axis-2", "title": "status", "question": "current status of X", "keywords": ["x", "2024"], "priority": 3}
		]
	}`
	planner := NewPlanner(staticGen(response))
	plan := planner.Plan(context.Background(), "what is X", 2)
	if len(plan.Axes) != 2 {
		t.Fatalf("expected 2 axes, got %d", len(plan.Axes))
	}
	if plan.Axes[0].ID != "axis-1" || plan.Axes[1].ID != "axis-2" {
		t.Fatalf("axis ids not preserved: %+v", plan.Axes)
	}
	if plan.Reformulation != "what is X" {
		t.Fatalf("unexpected reformulation: %q", plan.Reformulation)
	}
}

func TestPlanCapsAxisCount(t *testing.T) {
	response := `{"axes": [
		{"id": "a", "question": "q1", "keywords": ["k"]},
		{"id": "b", "question": "q2", "keywords": ["k"]},
		{"id": "c", "question": "q3", "keywords": ["k"]}
	]}`
	planner := NewPlanner(staticGen(response))
	plan := planner.Plan(context.Background(), "q", 2)
	if len(plan.Axes) != 2 {
		t.Fatalf("expected axis count capped at 2, got %d", len(plan.Axes))
	}
}

func TestPlanFillsMissingAxisFields(t *testing.T) {
	response := `{"axes": [{"question": "bare question"}]}`
	planner := NewPlanner(staticGen(response))
	plan := planner.Plan(context.Background(), "q", 3)
	if len(plan.Axes) != 1 {
		t.Fatalf("expected 1 axis, got %d", len(plan.Axes))
	}
	ax := plan.Axes[0]
	if ax.ID == "" || ax.Title == "" || len(ax.Keywords) == 0 || ax.Priority < 1 || ax.Priority > 5 {
		t.Fatalf("axis defaults not applied: %+v", ax)
	}
}

func TestPlanNeverReturnsZeroAxesOnGenerationError(t *testing.T) {
	planner := NewPlanner(failingGen(errors.New("provider down")))
	plan := planner.Plan(context.Background(), "capital of atlantis", 4)
	if len(plan.Axes) != 1 {
		t.Fatalf("expected trivial single-axis plan, got %d axes", len(plan.Axes))
	}
	if plan.Axes[0].Question != "capital of atlantis" {
		t.Fatalf("trivial axis should carry the query verbatim, got %q", plan.Axes[0].Question)
	}
}

func TestPlanNeverReturnsZeroAxesOnGarbage(t *testing.T) {
	planner := NewPlanner(staticGen("I cannot produce JSON today"))
	plan := planner.Plan(context.Background(), "capital of atlantis", 4)
	if len(plan.Axes) != 1 {
		t.Fatalf("expected trivial single-axis plan, got %d axes", len(plan.Axes))
	}
	if plan.Axes[0].Question != "capital of atlantis" {
		t.Fatalf("trivial axis should carry the query verbatim, got %q", plan.Axes[0].Question)
	}
}

func TestPlanNeverReturnsZeroAxesOnEmptyAxisList(t *testing.T) {
	planner := NewPlanner(staticGen(`{"reformulation": "x", "axes": []}`))
	plan := planner.Plan(context.Background(), "q", 4)
	if len(plan.Axes) != 1 {
		t.Fatalf("expected trivial single-axis plan, got %d axes", len(plan.Axes))
	}
}
