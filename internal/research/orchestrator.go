package research

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/scour-research/scour/internal/telemetry"
)

// Policy bounds one run: how many axes to plan, how many iterations to
// collect, and when coverage is good enough to stop.
type Policy struct {
	MaxIterations  int
	AxisCount      int
	ResultsPerAxis int
	MinCoverage    int
	ExtractCap     int
}

// Request is one invocation of the pipeline. The run record must already
// exist (status pending) before Execute is called.
type Request struct {
	RunID           string
	Query           string
	Mode            string
	SeedURLs        []string
	DomainAllowList []string
	Policy          Policy
}

// Orchestrator owns the iteration loop, the termination policy and the final
// state transition of a research run.
type Orchestrator struct {
	planner   *Planner
	collector *Collector
	judge     *Judge
	synth     *Synthesizer
	runs      RunStore
	evidence  EvidenceStore
	sink      ProgressSink
	metrics   *telemetry.Metrics
	tracer    trace.Tracer
	logger    *log.Logger
}

// NewOrchestrator wires the pipeline components. sink and metrics may be nil.
func NewOrchestrator(planner *Planner, collector *Collector, judge *Judge, synth *Synthesizer,
	runs RunStore, evidence EvidenceStore, sink ProgressSink, metrics *telemetry.Metrics) *Orchestrator {
	if sink == nil {
		sink = NopSink{}
	}
	return &Orchestrator{
		planner:   planner,
		collector: collector,
		judge:     judge,
		synth:     synth,
		runs:      runs,
		evidence:  evidence,
		sink:      sink,
		metrics:   metrics,
		tracer:    otel.Tracer("scour/research"),
		logger:    log.New(log.Writer(), "[ORCH] ", log.LstdFlags),
	}
}

// Execute drives one run from pending to a terminal state. Provider failures
// are recovered inside the components; any error escaping here is a
// persistence failure and moves the run to failed (best-effort single
// attempt). The returned error is for the caller's log only: the invocation
// surface has already returned by the time Execute runs.
func (o *Orchestrator) Execute(ctx context.Context, req Request) error {
	startTime := time.Now()
	ctx, span := o.tracer.Start(ctx, "research.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("run_id", req.RunID),
		attribute.String("mode", normalizeMode(req.Mode)),
		attribute.Int("max_iterations", req.Policy.MaxIterations),
	)
	if o.metrics != nil {
		o.metrics.RunsStarted.Inc()
	}

	err := o.execute(ctx, req, span)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Printf("run %s failed: %v", req.RunID, err)
		// The run's own context may be what killed it (timeout or cancel),
		// so the terminal write gets a fresh short deadline.
		failCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if ferr := o.runs.FailRun(failCtx, req.RunID, err.Error()); ferr != nil {
			// Terminal-state write failed too; the run stays in its
			// last-known state, an accepted limitation.
			o.logger.Printf("run %s: could not record failure: %v", req.RunID, ferr)
		} else {
			o.publish(failCtx, req.RunID, StageFailed, 100, err.Error())
		}
		if o.metrics != nil {
			o.metrics.RunsFailed.Inc()
		}
		return err
	}

	if o.metrics != nil {
		o.metrics.RunsCompleted.Inc()
		o.metrics.RunDuration.Observe(time.Since(startTime).Seconds())
	}
	o.logger.Printf("run %s completed in %v", req.RunID, time.Since(startTime))
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, req Request, span trace.Span) error {
	mode := normalizeMode(req.Mode)
	policy := req.Policy
	if policy.MaxIterations <= 0 {
		policy.MaxIterations = 1
	}
	if policy.ExtractCap <= 0 {
		policy.ExtractCap = 5
	}

	if err := o.runs.MarkRunning(ctx, req.RunID); err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	if err := o.setProgress(ctx, req.RunID, StageFraming, 5, "framing the question"); err != nil {
		return err
	}

	// Seed evidence from caller-provided URLs before any searching.
	if (mode == ModeURLs || mode == ModeMix) && len(req.SeedURLs) > 0 {
		seeded, err := o.seedEvidence(ctx, req.RunID, req.SeedURLs)
		if err != nil {
			return err
		}
		span.AddEvent("seeded", trace.WithAttributes(attribute.Int("urls", seeded)))
	}

	plan := Plan{Axes: []Axis{}}
	if mode != ModeURLs {
		if err := o.setProgress(ctx, req.RunID, StagePlanning, 10, "planning research axes"); err != nil {
			return err
		}
		plan = o.planner.Plan(ctx, req.Query, policy.AxisCount)
		span.AddEvent("planned", trace.WithAttributes(attribute.Int("axes", len(plan.Axes))))
		if err := o.setProgress(ctx, req.RunID, StagePlanning, 15,
			fmt.Sprintf("planned %d research axes", len(plan.Axes))); err != nil {
			return err
		}
	}

	if mode != ModeURLs {
		if err := o.collectLoop(ctx, req, policy, plan, span); err != nil {
			return err
		}
	}

	if err := o.setProgress(ctx, req.RunID, StageSynthesizing, 80, "synthesizing report"); err != nil {
		return err
	}
	sources, err := o.evidence.ListSources(ctx, req.RunID)
	if err != nil {
		return fmt.Errorf("list evidence: %w", err)
	}

	report, synthErr := o.synth.Compose(ctx, req.Query, sources)
	errMessage := ""
	if synthErr != nil {
		// Evidence was collected successfully; a writing failure does not
		// fail the run.
		o.logger.Printf("run %s: synthesis shortfall: %v", req.RunID, synthErr)
		report = PlaceholderReport(req.Query, len(sources))
		errMessage = fmt.Sprintf("report synthesis incomplete: %v", synthErr)
	}
	if err := o.runs.CompleteRun(ctx, req.RunID, report, errMessage); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	o.publish(ctx, req.RunID, StageCompleted, 100, "research completed")
	return nil
}

// collectLoop runs bounded collection rounds until the judge is satisfied,
// the coverage threshold is met, the iteration budget is spent, or no axes
// remain to pursue — evaluated in that order after every round.
func (o *Orchestrator) collectLoop(ctx context.Context, req Request, policy Policy, plan Plan, span trace.Span) error {
	pending := plan.Axes
	perRound := 55 / policy.MaxIterations
	if perRound < 1 {
		perRound = 1
	}

	rounds := 0
	for i := 1; i <= policy.MaxIterations; i++ {
		rounds = i
		base := 20 + (i-1)*perRound
		result, err := o.collector.Run(ctx, RoundRequest{
			RunID:          req.RunID,
			Iteration:      i,
			Axes:           pending,
			ResultsPerAxis: policy.ResultsPerAxis,
			ExtractCap:     policy.ExtractCap,
			Sites:          req.DomainAllowList,
			Progress: func(ctx context.Context, percent int, message string) error {
				return o.setProgress(ctx, req.RunID, StageCollecting, percent, message)
			},
			PercentBase: base,
			PercentSpan: perRound,
		})
		if err != nil {
			return fmt.Errorf("collection round %d: %w", i, err)
		}
		if o.metrics != nil {
			o.metrics.EvidenceCollected.Add(float64(result.NewSources))
		}
		span.AddEvent("round", trace.WithAttributes(
			attribute.Int("iteration", i),
			attribute.Int("new_sources", result.NewSources),
			attribute.Int("total_sources", result.TotalSources),
		))

		sources, err := o.evidence.ListSources(ctx, req.RunID)
		if err != nil {
			return fmt.Errorf("list evidence: %w", err)
		}
		verdict := o.judge.Assess(ctx, req.Query, plan.Axes, sources)
		if o.metrics != nil {
			o.metrics.CoverageScore.Observe(float64(verdict.CoverageScore))
		}
		span.AddEvent("verdict", trace.WithAttributes(
			attribute.Int("coverage_score", verdict.CoverageScore),
			attribute.Bool("sufficient", verdict.Sufficient),
		))

		if verdict.Sufficient {
			o.logger.Printf("run %s: judge satisfied after round %d (score %d)", req.RunID, i, verdict.CoverageScore)
			break
		}
		if verdict.CoverageScore >= policy.MinCoverage {
			o.logger.Printf("run %s: coverage %d meets threshold %d after round %d", req.RunID, verdict.CoverageScore, policy.MinCoverage, i)
			break
		}
		if i == policy.MaxIterations {
			o.logger.Printf("run %s: iteration budget spent at %d rounds", req.RunID, i)
			break
		}
		pending = narrowAxes(plan.Axes, verdict.IncompleteAxes)
		if len(pending) == 0 {
			o.logger.Printf("run %s: no pending axes after round %d, stopping", req.RunID, i)
			break
		}
	}
	if o.metrics != nil {
		o.metrics.RunIterations.Observe(float64(rounds))
	}
	return nil
}

// seedEvidence stores caller-provided URLs as evidence and extracts their
// content in one batch. Extraction failure degrades to bare URL entries.
func (o *Orchestrator) seedEvidence(ctx context.Context, runID string, urls []string) (int, error) {
	seeded := 0
	var fresh []string
	for _, raw := range urls {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		inserted, err := o.evidence.AppendSource(ctx, EvidenceSource{
			RunID:     runID,
			Title:     raw,
			URL:       raw,
			Relevance: 1.0,
			AxisID:    "seed",
			Iteration: 0,
		})
		if err != nil {
			return 0, fmt.Errorf("append seed evidence: %w", err)
		}
		if inserted {
			seeded++
			fresh = append(fresh, raw)
		}
	}
	candidates := wellFormedHTTP(fresh, 0)
	if len(candidates) == 0 {
		return seeded, nil
	}
	extractions, err := o.collector.extract.Extract(ctx, candidates)
	if err != nil {
		o.logger.Printf("run %s: seed extraction failed: %v", runID, err)
		return seeded, nil
	}
	for _, ex := range extractions {
		if strings.TrimSpace(ex.Content) == "" {
			continue
		}
		if err := o.evidence.SetFullContent(ctx, runID, ex.URL, ex.Content); err != nil {
			return seeded, fmt.Errorf("store seed content: %w", err)
		}
	}
	return seeded, nil
}

// setProgress persists the progress record (fatal on failure) and then
// broadcasts it (never fatal).
func (o *Orchestrator) setProgress(ctx context.Context, runID, stage string, percent int, message string) error {
	if err := o.runs.UpdateProgress(ctx, runID, stage, percent, message); err != nil {
		return fmt.Errorf("progress write: %w", err)
	}
	o.publish(ctx, runID, stage, percent, message)
	return nil
}

func (o *Orchestrator) publish(ctx context.Context, runID, stage string, percent int, message string) {
	err := o.sink.Publish(ctx, ProgressUpdate{
		RunID:   runID,
		Stage:   stage,
		Percent: percent,
		Message: message,
		At:      time.Now().UTC(),
	})
	if err != nil {
		o.logger.Printf("run %s: progress broadcast failed: %v", runID, err)
	}
}

// narrowAxes turns the judge's gaps into the next round's pending axes.
// Axis IDs stay stable so evidence remains attributable; gap axes carry the
// lowest priority.
func narrowAxes(all []Axis, gaps []AxisGap) []Axis {
	titles := make(map[string]string, len(all))
	for _, ax := range all {
		titles[ax.ID] = ax.Title
	}
	var out []Axis
	for _, gap := range gaps {
		title := titles[gap.AxisID]
		if title == "" {
			title = gap.GapDescription
		}
		out = append(out, Axis{
			ID:       gap.AxisID,
			Title:    title,
			Question: gap.GapDescription,
			Keywords: gap.NewQueries,
			Priority: 1,
		})
	}
	return out
}

func normalizeMode(mode string) string {
	switch mode {
	case ModeURLs, ModeMix:
		return mode
	default:
		return ModeWeb
	}
}
