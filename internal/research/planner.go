package research

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

// Planner turns a raw question into a reformulation, an objective and a
// fixed-size set of labeled sub-questions ("axes").
type Planner struct {
	gen    TextGenerator
	logger *log.Logger
}

// NewPlanner creates a new planner instance
func NewPlanner(gen TextGenerator) *Planner {
	return &Planner{
		gen:    gen,
		logger: log.New(log.Writer(), "[PLANNER] ", log.LstdFlags),
	}
}

// Plan decomposes the query into exactly axisCount axes. It never returns a
// plan with zero axes: any generation or parse failure degrades to a single
// trivial axis whose question is the query verbatim.
func (p *Planner) Plan(ctx context.Context, query string, axisCount int) Plan {
	startTime := time.Now()
	if axisCount <= 0 {
		axisCount = 1
	}

	prompt := p.createPlanningPrompt(query, axisCount)
	response, err := p.gen.Generate(ctx, prompt, 2000)
	if err != nil {
		p.logger.Printf("planning generation failed: %v, falling back to trivial plan", err)
		return trivialPlan(query)
	}

	plan, err := p.parsePlanningResponse(query, response, axisCount)
	if err != nil {
		p.logger.Printf("planning parse failed: %v, falling back to trivial plan", err)
		return trivialPlan(query)
	}

	p.logger.Printf("planning completed in %v with %d axes", time.Since(startTime), len(plan.Axes))
	return plan
}

func (p *Planner) createPlanningPrompt(query string, axisCount int) string {
	return fmt.Sprintf(`You are a research planning assistant. Decompose the question below into exactly %d research axes: distinct sub-questions that together cover the question.

QUESTION: %s

RESPONSE FORMAT:
Respond ONLY with valid JSON in the following format:
{
  "reformulation": "the question restated precisely",
  "objective": "what a complete answer must establish",
  "scope": "what is in and out of scope",
  "axes": [
    {
      "id": "axis-1",
      "title": "short label",
      "question": "the sub-question",
      "keywords": ["search", "keywords"],
      "priority": 3
    }
  ]
}
Priorities range 1 (low) to 5 (high). Keywords are the exact web search terms for the axis. Do not include any other text or explanation.`, axisCount, query)
}

func (p *Planner) parsePlanningResponse(query, response string, axisCount int) (Plan, error) {
	plan, err := ParseStructured[Plan](response)
	if err != nil {
		return Plan{}, err
	}

	var axes []Axis
	for i, ax := range plan.Axes {
		if strings.TrimSpace(ax.Question) == "" {
			continue
		}
		if strings.TrimSpace(ax.ID) == "" {
			ax.ID = fmt.Sprintf("axis-%d", i+1)
		}
		if ax.Title == "" {
			ax.Title = ax.Question
		}
		if len(ax.Keywords) == 0 {
			ax.Keywords = strings.Fields(ax.Question)
		}
		if ax.Priority < 1 || ax.Priority > 5 {
			ax.Priority = 3
		}
		axes = append(axes, ax)
		if len(axes) == axisCount {
			break
		}
	}
	if len(axes) == 0 {
		return Plan{}, fmt.Errorf("%w: plan has no usable axes", ErrMalformedOutput)
	}
	plan.Axes = axes
	if strings.TrimSpace(plan.Reformulation) == "" {
		plan.Reformulation = query
	}
	return plan, nil
}

// trivialPlan is the fail-soft floor: one axis, question = query verbatim.
func trivialPlan(query string) Plan {
	return Plan{
		Reformulation: query,
		Objective:     "answer the question directly",
		Scope:         "general",
		Axes: []Axis{{
			ID:       "axis-1",
			Title:    query,
			Question: query,
			Keywords: strings.Fields(query),
			Priority: 3,
		}},
	}
}
