package research

import (
	"context"
	"fmt"
	"log"
	"strings"
)

const maxContentPerReference = 4000

// Synthesizer renders all evidence of a run into one long-form, citation
// numbered markdown report.
type Synthesizer struct {
	gen    TextGenerator
	logger *log.Logger
}

// NewSynthesizer creates a new report synthesizer instance
func NewSynthesizer(gen TextGenerator) *Synthesizer {
	return &Synthesizer{
		gen:    gen,
		logger: log.New(log.Writer(), "[SYNTH] ", log.LstdFlags),
	}
}

// Compose generates the final report. An error here means the generation
// call failed or returned empty text; the caller decides how to degrade
// (evidence was still collected successfully).
func (s *Synthesizer) Compose(ctx context.Context, query string, sources []EvidenceSource) (Report, error) {
	prompt := s.createSynthesisPrompt(query, sources)
	response, err := s.gen.Generate(ctx, prompt, 4000)
	if err != nil {
		return Report{}, fmt.Errorf("synthesis generation: %w", err)
	}
	markdown := strings.TrimSpace(response)
	if markdown == "" {
		return Report{}, fmt.Errorf("synthesis returned empty text")
	}
	if !strings.HasPrefix(markdown, "#") && !strings.Contains(markdown, "\n# ") {
		markdown = "# Research Report\n\n" + markdown
	}
	title, summary := TitleAndSummary(markdown)
	s.logger.Printf("synthesis produced %d chars from %d sources", len(markdown), len(sources))
	return Report{Markdown: markdown, Title: title, ExecutiveSummary: summary}, nil
}

func (s *Synthesizer) createSynthesisPrompt(query string, sources []EvidenceSource) string {
	var refs strings.Builder
	for i, src := range sources {
		content := src.FullContent
		if strings.TrimSpace(content) == "" {
			content = src.Snippet
		}
		if len(content) > maxContentPerReference {
			content = truncateText(content, maxContentPerReference) + "..."
		}
		fmt.Fprintf(&refs, "[%d] %s (%s)\n%s\n\n", i+1, src.Title, src.URL, content)
	}
	if refs.Len() == 0 {
		refs.WriteString("(no sources were found)\n")
	}

	return fmt.Sprintf(`You are a research report writer. Write a thorough markdown report answering the question below, grounded strictly in the numbered references.

QUESTION: %s

REFERENCES:
%s
REQUIREMENTS:
- Markdown only, starting with a single "# " title line.
- Open with a short executive summary paragraph directly under the title.
- Use "##" section headings, bullet lists and bold spans where they help.
- Cite references inline with bracketed numbers like [3] matching the numbering above.
- If the references are thin or absent, say so explicitly and keep claims modest.
- End with a "## References" section listing each cited number, title and URL.
Do not include any other text or explanation.`, query, refs.String())
}

// TitleAndSummary extracts the first "# " heading and the first paragraph
// after it from a markdown report.
func TitleAndSummary(markdown string) (title, summary string) {
	lines := strings.Split(markdown, "\n")
	i := 0
	for ; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, "# ") {
			title = strings.TrimSpace(strings.TrimPrefix(line, "# "))
			i++
			break
		}
	}
	var para []string
	for ; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			if len(para) > 0 {
				break
			}
			continue
		}
		if strings.HasPrefix(line, "#") {
			break
		}
		para = append(para, line)
	}
	return title, strings.Join(para, " ")
}

// PlaceholderReport is stored when synthesis fails after evidence was
// collected: the run still completes, with the shortfall recorded.
func PlaceholderReport(query string, sourceCount int) Report {
	markdown := fmt.Sprintf(`# Research Report: %s

Report generation did not produce usable output for this run. %d sources were collected and remain available through the evidence listing; re-run the research to attempt synthesis again.`, query, sourceCount)
	title, summary := TitleAndSummary(markdown)
	return Report{Markdown: markdown, Title: title, ExecutiveSummary: summary}
}
