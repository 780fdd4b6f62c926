package research

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// ProgressFunc records one observable step of a round. Errors are
// persistence failures and abort the round.
type ProgressFunc func(ctx context.Context, percent int, message string) error

// RoundRequest describes one collection iteration.
type RoundRequest struct {
	RunID          string
	Iteration      int
	Axes           []Axis
	ResultsPerAxis int
	ExtractCap     int
	Sites          []string
	Progress       ProgressFunc
	PercentBase    int // progress percent at round start
	PercentSpan    int // percent consumed by this round
}

// RoundResult reports what one collection iteration produced.
type RoundResult struct {
	NewSources   int
	TotalSources int
	TouchedAxes  []string // axes that gained at least one source, informational
}

// Collector executes one collection round: parallel search per pending axis,
// dedupe against existing evidence, then one batched extraction of a capped
// subset of the new results.
type Collector struct {
	search   SearchProvider
	extract  ExtractProvider
	evidence EvidenceStore
	logger   *log.Logger
}

// NewCollector creates a new collection round executor
func NewCollector(search SearchProvider, extract ExtractProvider, evidence EvidenceStore) *Collector {
	return &Collector{
		search:   search,
		extract:  extract,
		evidence: evidence,
		logger:   log.New(log.Writer(), "[COLLECT] ", log.LstdFlags),
	}
}

type axisResults struct {
	axisID  string
	results []SearchResult
}

// Run performs one iteration. Individual search or extraction failures are
// caught and degrade to fewer results; only evidence or progress persistence
// failures abort the round.
func (c *Collector) Run(ctx context.Context, req RoundRequest) (RoundResult, error) {
	progress := req.Progress
	if progress == nil {
		progress = func(context.Context, int, string) error { return nil }
	}
	if err := progress(ctx, req.PercentBase, fmt.Sprintf("round %d: searching %d axes", req.Iteration, len(req.Axes))); err != nil {
		return RoundResult{}, fmt.Errorf("progress write: %w", err)
	}

	// Fan out one search per axis, wait for all of them. A failing search is
	// zero results for that axis, never an aborted round.
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		batches []axisResults
	)
	for _, axis := range req.Axes {
		wg.Add(1)
		go func(axis Axis) {
			defer wg.Done()
			query := strings.Join(axis.Keywords, " ")
			if strings.TrimSpace(query) == "" {
				query = axis.Question
			}
			results, err := c.search.Search(ctx, query, req.ResultsPerAxis, req.Sites)
			if err != nil {
				c.logger.Printf("search failed for axis %s (%q): %v", axis.ID, query, err)
				return
			}
			mu.Lock()
			batches = append(batches, axisResults{axisID: axis.ID, results: results})
			mu.Unlock()
		}(axis)
	}
	wg.Wait()

	// Deterministic merge order across goroutine completion order.
	sort.Slice(batches, func(i, j int) bool { return batches[i].axisID < batches[j].axisID })

	// Persist each new source immediately so progress is observable
	// mid-round. The store's url dedupe decides what is actually new.
	var (
		newURLs []string
		touched = map[string]bool{}
	)
	for _, batch := range batches {
		for _, r := range batch.results {
			if strings.TrimSpace(r.URL) == "" {
				continue
			}
			inserted, err := c.evidence.AppendSource(ctx, EvidenceSource{
				RunID:     req.RunID,
				Title:     r.Title,
				URL:       r.URL,
				Snippet:   r.Snippet,
				Relevance: 1.0 / float64(1+r.Rank),
				AxisID:    batch.axisID,
				Iteration: req.Iteration,
			})
			if err != nil {
				return RoundResult{}, fmt.Errorf("append evidence: %w", err)
			}
			if inserted {
				newURLs = append(newURLs, r.URL)
				touched[batch.axisID] = true
			}
		}
	}

	total, err := c.evidence.CountSources(ctx, req.RunID)
	if err != nil {
		return RoundResult{}, fmt.Errorf("count evidence: %w", err)
	}
	if err := progress(ctx, req.PercentBase+req.PercentSpan/2, fmt.Sprintf("round %d: search done, %d sources so far", req.Iteration, total)); err != nil {
		return RoundResult{}, fmt.Errorf("progress write: %w", err)
	}

	// One batched extraction over a capped subset of the new sources.
	// Failure degrades to snippet-only evidence.
	candidates := wellFormedHTTP(newURLs, req.ExtractCap)
	if len(candidates) > 0 {
		extractions, err := c.extract.Extract(ctx, candidates)
		if err != nil {
			c.logger.Printf("extraction failed for round %d: %v, keeping snippets only", req.Iteration, err)
		} else {
			for _, ex := range extractions {
				if strings.TrimSpace(ex.Content) == "" {
					continue
				}
				if err := c.evidence.SetFullContent(ctx, req.RunID, ex.URL, ex.Content); err != nil {
					return RoundResult{}, fmt.Errorf("store full content: %w", err)
				}
			}
		}
	}
	if err := progress(ctx, req.PercentBase+req.PercentSpan, fmt.Sprintf("round %d: collected %d new sources", req.Iteration, len(newURLs))); err != nil {
		return RoundResult{}, fmt.Errorf("progress write: %w", err)
	}

	axisIDs := make([]string, 0, len(touched))
	for id := range touched {
		axisIDs = append(axisIDs, id)
	}
	sort.Strings(axisIDs)
	return RoundResult{NewSources: len(newURLs), TotalSources: total, TouchedAxes: axisIDs}, nil
}

// wellFormedHTTP filters urls down to at most limit parseable http(s) ones.
func wellFormedHTTP(urls []string, limit int) []string {
	var out []string
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			continue
		}
		out = append(out, raw)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
