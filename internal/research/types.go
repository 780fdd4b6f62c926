package research

import (
	"context"
	"errors"
	"time"
)

// ErrRunExists reports a CreateRun against an already-used run ID.
var ErrRunExists = errors.New("run already exists")

// Run statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Progress stages, in pipeline order.
const (
	StageFraming      = "framing"
	StagePlanning     = "planning"
	StageCollecting   = "collecting"
	StageSynthesizing = "synthesizing"
	StageCompleted    = "completed"
	StageFailed       = "failed"
)

// Invocation modes.
const (
	ModeWeb  = "web"
	ModeURLs = "urls"
	ModeMix  = "mix"
)

// Run is one invocation of the research pipeline. It is exclusively owned by
// the orchestrator while status is running and immutable once terminal.
type Run struct {
	ID               string    `json:"id"`
	Query            string    `json:"query"`
	Status           string    `json:"status"`
	Stage            string    `json:"progress_stage"`
	Percent          int       `json:"progress_percent"`
	Message          string    `json:"progress_message"`
	ReportMarkdown   string    `json:"report_markdown,omitempty"`
	ReportTitle      string    `json:"report_title,omitempty"`
	ExecutiveSummary string    `json:"executive_summary,omitempty"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// EvidenceSource is one discovered web result, unique by (run_id, url).
type EvidenceSource struct {
	RunID       string    `json:"run_id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Snippet     string    `json:"snippet"`
	FullContent string    `json:"full_content,omitempty"`
	Relevance   float64   `json:"relevance_score"`
	AxisID      string    `json:"axis_id"`
	Iteration   int       `json:"iteration"`
	CreatedAt   time.Time `json:"created_at"`
}

// Axis is one labeled sub-question of a research plan. Its ID is stable
// across narrowing so evidence stays attributable.
type Axis struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Question string   `json:"question"`
	Keywords []string `json:"keywords"`
	Priority int      `json:"priority"`
}

// Plan is the planner's decomposition of a query.
type Plan struct {
	Reformulation string `json:"reformulation"`
	Objective     string `json:"objective"`
	Scope         string `json:"scope"`
	Axes          []Axis `json:"axes"`
}

// AxisGap names an axis the judge found incomplete and the queries to try next.
type AxisGap struct {
	AxisID         string   `json:"axis_id"`
	GapDescription string   `json:"gap_description"`
	NewQueries     []string `json:"new_queries"`
}

// Verdict is the judge's assessment of accumulated evidence.
type Verdict struct {
	CoverageScore  int       `json:"coverage_score"`
	Sufficient     bool      `json:"sufficient"`
	IncompleteAxes []AxisGap `json:"incomplete_axes"`
}

// Report is the synthesizer's output.
type Report struct {
	Markdown         string
	Title            string
	ExecutiveSummary string
}

// ProgressUpdate is one observable step of a run.
type ProgressUpdate struct {
	RunID   string    `json:"run_id"`
	Stage   string    `json:"stage"`
	Percent int       `json:"percent"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// SearchResult is one ranked web search hit.
type SearchResult struct {
	Title   string
	URL     string
	Snippet string
	Rank    int
}

// Extraction is the best-effort full text of one URL.
type Extraction struct {
	URL     string
	Content string
}

// SearchProvider is the external web search capability.
type SearchProvider interface {
	Search(ctx context.Context, query string, limit int, sites []string) ([]SearchResult, error)
}

// ExtractProvider is the external content extraction capability.
// Missing or empty entries for individual URLs are acceptable.
type ExtractProvider interface {
	Extract(ctx context.Context, urls []string) ([]Extraction, error)
}

// TextGenerator is the external text-generation capability, shared by the
// planner, judge and synthesizer roles with different prompts.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// RunStore persists run lifecycle state. All methods are pipeline-fatal on
// error: losing the ability to record state makes the run unobservable.
type RunStore interface {
	CreateRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, runID string) (Run, error)
	MarkRunning(ctx context.Context, runID string) error
	UpdateProgress(ctx context.Context, runID, stage string, percent int, message string) error
	CompleteRun(ctx context.Context, runID string, report Report, errMessage string) error
	FailRun(ctx context.Context, runID, errMessage string) error
}

// EvidenceStore is the append-only store of discovered sources for a run.
type EvidenceStore interface {
	// AppendSource inserts the source unless its URL already exists for the
	// run. It reports whether a row was actually inserted.
	AppendSource(ctx context.Context, src EvidenceSource) (bool, error)
	SetFullContent(ctx context.Context, runID, url, content string) error
	ListSources(ctx context.Context, runID string) ([]EvidenceSource, error)
	CountSources(ctx context.Context, runID string) (int, error)
}

// ProgressSink broadcasts progress updates to live observers. Broadcast
// failures are never pipeline-fatal; polling the run record is the contract.
type ProgressSink interface {
	Publish(ctx context.Context, update ProgressUpdate) error
}

// NopSink discards all updates.
type NopSink struct{}

func (NopSink) Publish(context.Context, ProgressUpdate) error { return nil }
