package research

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-process RunStore and EvidenceStore, used by the
// one-shot CLI and by tests. The Postgres store is the production
// implementation.
type MemoryStore struct {
	mu       sync.RWMutex
	runs     map[string]Run
	evidence map[string][]EvidenceSource // run id -> sources in append order
	byURL    map[string]map[string]int   // run id -> url -> index into evidence
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:     make(map[string]Run),
		evidence: make(map[string][]EvidenceSource),
		byURL:    make(map[string]map[string]int),
	}
}

func (m *MemoryStore) CreateRun(_ context.Context, run Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; ok {
		return fmt.Errorf("run %s: %w", run.ID, ErrRunExists)
	}
	now := time.Now().UTC()
	run.Status = StatusPending
	run.Stage = StageFraming
	run.CreatedAt = now
	run.UpdatedAt = now
	m.runs[run.ID] = run
	return nil
}

func (m *MemoryStore) GetRun(_ context.Context, runID string) (Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[runID]
	if !ok {
		return Run{}, fmt.Errorf("run %s not found", runID)
	}
	return run, nil
}

func (m *MemoryStore) MarkRunning(_ context.Context, runID string) error {
	return m.mutate(runID, func(run *Run) {
		run.Status = StatusRunning
	})
}

func (m *MemoryStore) UpdateProgress(_ context.Context, runID, stage string, percent int, message string) error {
	return m.mutate(runID, func(run *Run) {
		run.Stage = stage
		if percent > run.Percent { // monotonic while running
			run.Percent = percent
		}
		run.Message = message
	})
}

func (m *MemoryStore) CompleteRun(_ context.Context, runID string, report Report, errMessage string) error {
	return m.mutate(runID, func(run *Run) {
		run.Status = StatusCompleted
		run.Stage = StageCompleted
		run.Percent = 100
		run.Message = "research completed"
		run.ReportMarkdown = report.Markdown
		run.ReportTitle = report.Title
		run.ExecutiveSummary = report.ExecutiveSummary
		run.ErrorMessage = errMessage
	})
}

func (m *MemoryStore) FailRun(_ context.Context, runID, errMessage string) error {
	return m.mutate(runID, func(run *Run) {
		run.Status = StatusFailed
		run.Stage = StageFailed
		run.Message = errMessage
		run.ErrorMessage = errMessage
	})
}

func (m *MemoryStore) mutate(runID string, fn func(*Run)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("run %s not found", runID)
	}
	fn(&run)
	run.UpdatedAt = time.Now().UTC()
	m.runs[runID] = run
	return nil
}

func (m *MemoryStore) AppendSource(_ context.Context, src EvidenceSource) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	urls := m.byURL[src.RunID]
	if urls == nil {
		urls = make(map[string]int)
		m.byURL[src.RunID] = urls
	}
	if _, ok := urls[src.URL]; ok {
		return false, nil
	}
	src.CreatedAt = time.Now().UTC()
	urls[src.URL] = len(m.evidence[src.RunID])
	m.evidence[src.RunID] = append(m.evidence[src.RunID], src)
	return true, nil
}

func (m *MemoryStore) SetFullContent(_ context.Context, runID, url, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.byURL[runID][url]
	if !ok {
		return fmt.Errorf("evidence %s not found for run %s", url, runID)
	}
	m.evidence[runID][idx].FullContent = content
	return nil
}

func (m *MemoryStore) ListSources(_ context.Context, runID string) ([]EvidenceSource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]EvidenceSource, len(m.evidence[runID]))
	copy(out, m.evidence[runID])
	return out, nil
}

func (m *MemoryStore) CountSources(_ context.Context, runID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.evidence[runID]), nil
}
