package research

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"
)

// neutralCoverage is reported when the judge itself fails and the verdict
// defaults to sufficient.
const neutralCoverage = 50

// Judge scores how well accumulated evidence covers the question and names
// the axes still incomplete.
type Judge struct {
	gen    TextGenerator
	logger *log.Logger
}

// NewJudge creates a new coverage judge instance
func NewJudge(gen TextGenerator) *Judge {
	return &Judge{
		gen:    gen,
		logger: log.New(log.Writer(), "[JUDGE] ", log.LstdFlags),
	}
}

// Assess produces a coverage verdict for the evidence collected so far.
// It fails open: on generation or parse failure the verdict is sufficient
// with a neutral score, so a broken judge can never loop the pipeline
// forever.
func (j *Judge) Assess(ctx context.Context, query string, axes []Axis, sources []EvidenceSource) Verdict {
	prompt := j.createJudgingPrompt(query, axes, sources)
	response, err := j.gen.Generate(ctx, prompt, 1500)
	if err != nil {
		j.logger.Printf("judging generation failed: %v, failing open", err)
		return failOpenVerdict()
	}

	verdict, err := ParseStructured[Verdict](response)
	if err != nil {
		j.logger.Printf("judging parse failed: %v, failing open", err)
		return failOpenVerdict()
	}
	if verdict.CoverageScore < 0 {
		verdict.CoverageScore = 0
	}
	if verdict.CoverageScore > 100 {
		verdict.CoverageScore = 100
	}
	verdict.IncompleteAxes = pruneGaps(verdict.IncompleteAxes)
	return verdict
}

func (j *Judge) createJudgingPrompt(query string, axes []Axis, sources []EvidenceSource) string {
	var axisList strings.Builder
	for _, ax := range axes {
		fmt.Fprintf(&axisList, "- %s: %s\n", ax.ID, ax.Title)
	}

	return fmt.Sprintf(`You are a research coverage judge. Score how well the evidence below answers the question, and name the axes that still have gaps.

QUESTION: %s

RESEARCH AXES:
%s
EVIDENCE COLLECTED SO FAR:
%s

RESPONSE FORMAT:
Respond ONLY with valid JSON in the following format:
{
  "coverage_score": 0-100,
  "sufficient": true or false,
  "incomplete_axes": [
    {
      "axis_id": "id of an axis listed above",
      "gap_description": "what is still missing",
      "new_queries": ["web search query", "another query"]
    }
  ]
}
Set sufficient to true only when the evidence supports a complete, well-sourced answer. Leave incomplete_axes empty when nothing more can usefully be searched. Do not include any other text or explanation.`, query, axisList.String(), EvidenceDigest(sources, 60))
}

// EvidenceDigest renders titles and snippets of up to max sources as a
// numbered list for judge and synthesis prompts.
func EvidenceDigest(sources []EvidenceSource, max int) string {
	if len(sources) == 0 {
		return "(no evidence collected)"
	}
	var b strings.Builder
	for i, src := range sources {
		if max > 0 && i >= max {
			fmt.Fprintf(&b, "... and %d more sources\n", len(sources)-max)
			break
		}
		snippet := src.Snippet
		if len(snippet) > 300 {
			snippet = truncateText(snippet, 300) + "..."
		}
		fmt.Fprintf(&b, "%d. [%s] %s — %s\n", i+1, src.AxisID, src.Title, snippet)
	}
	return b.String()
}

// truncateText cuts s to at most limit bytes without splitting a rune.
func truncateText(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func failOpenVerdict() Verdict {
	return Verdict{CoverageScore: neutralCoverage, Sufficient: true}
}

// pruneGaps drops gaps that cannot yield a searchable axis.
func pruneGaps(gaps []AxisGap) []AxisGap {
	var out []AxisGap
	for _, g := range gaps {
		if strings.TrimSpace(g.AxisID) == "" {
			continue
		}
		var queries []string
		for _, q := range g.NewQueries {
			if strings.TrimSpace(q) != "" {
				queries = append(queries, q)
			}
		}
		if len(queries) == 0 {
			continue
		}
		g.NewQueries = queries
		out = append(out, g)
	}
	return out
}
