package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/lib/pq"

	"github.com/scour-research/scour/internal/research"
)

// Store is the Postgres-backed RunStore and EvidenceStore.
type Store struct {
	DB *sql.DB
}

// New constructs the Store from DATABASE_URL or POSTGRES_* environment.
func New(ctx context.Context) (*Store, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		host := getenvDefault("POSTGRES_HOST", "localhost")
		port := getenvDefault("POSTGRES_PORT", "5432")
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		db := os.Getenv("POSTGRES_DB")
		ssl := getenvDefault("POSTGRES_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, ssl)
	}
	return NewWithDSN(ctx, dsn)
}

// NewWithDSN constructs the Store using an explicit Postgres DSN
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func (s *Store) CreateRun(ctx context.Context, run research.Run) error {
	_, err := s.DB.ExecContext(ctx, `
        INSERT INTO research_runs (id, query, status, progress_stage, progress_percent, progress_message)
        VALUES ($1, $2, 'pending', 'framing', 0, '')`,
		run.ID, run.Query)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("run %s: %w", run.ID, research.ErrRunExists)
		}
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, runID string) (research.Run, error) {
	var (
		run                          research.Run
		report, title, summary, emsg sql.NullString
	)
	err := s.DB.QueryRowContext(ctx, `
        SELECT id, query, status, progress_stage, progress_percent, progress_message,
               report_markdown, report_title, executive_summary, error_message,
               created_at, updated_at
        FROM research_runs WHERE id = $1`, runID).
		Scan(&run.ID, &run.Query, &run.Status, &run.Stage, &run.Percent, &run.Message,
			&report, &title, &summary, &emsg, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return research.Run{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	run.ReportMarkdown = report.String
	run.ReportTitle = title.String
	run.ExecutiveSummary = summary.String
	run.ErrorMessage = emsg.String
	return run, nil
}

func (s *Store) MarkRunning(ctx context.Context, runID string) error {
	return s.execOne(ctx, `
        UPDATE research_runs SET status = 'running', updated_at = now()
        WHERE id = $1`, runID)
}

// UpdateProgress advances the progress record. GREATEST keeps the percent
// monotonically non-decreasing even if writers race.
func (s *Store) UpdateProgress(ctx context.Context, runID, stage string, percent int, message string) error {
	return s.execOne(ctx, `
        UPDATE research_runs
        SET progress_stage = $2,
            progress_percent = GREATEST(progress_percent, $3),
            progress_message = $4,
            updated_at = now()
        WHERE id = $1`, runID, stage, percent, message)
}

func (s *Store) CompleteRun(ctx context.Context, runID string, report research.Report, errMessage string) error {
	return s.execOne(ctx, `
        UPDATE research_runs
        SET status = 'completed',
            progress_stage = 'completed',
            progress_percent = 100,
            progress_message = 'research completed',
            report_markdown = $2,
            report_title = $3,
            executive_summary = $4,
            error_message = NULLIF($5, ''),
            updated_at = now()
        WHERE id = $1`, runID, report.Markdown, report.Title, report.ExecutiveSummary, errMessage)
}

func (s *Store) FailRun(ctx context.Context, runID, errMessage string) error {
	return s.execOne(ctx, `
        UPDATE research_runs
        SET status = 'failed',
            progress_stage = 'failed',
            progress_message = $2,
            error_message = $2,
            updated_at = now()
        WHERE id = $1`, runID, errMessage)
}

func (s *Store) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %v not found", args[0])
	}
	return nil
}

// AppendSource inserts the source unless its (run_id, url) pair exists.
func (s *Store) AppendSource(ctx context.Context, src research.EvidenceSource) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
        INSERT INTO evidence_sources (run_id, title, url, snippet, relevance_score, axis_id, iteration)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (run_id, url) DO NOTHING`,
		src.RunID, src.Title, src.URL, src.Snippet, src.Relevance, src.AxisID, src.Iteration)
	if err != nil {
		return false, fmt.Errorf("append evidence: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) SetFullContent(ctx context.Context, runID, url, content string) error {
	res, err := s.DB.ExecContext(ctx, `
        UPDATE evidence_sources SET full_content = $3
        WHERE run_id = $1 AND url = $2`, runID, url, content)
	if err != nil {
		return fmt.Errorf("set full content: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("evidence %s not found for run %s", url, runID)
	}
	return nil
}

func (s *Store) ListSources(ctx context.Context, runID string) ([]research.EvidenceSource, error) {
	rows, err := s.DB.QueryContext(ctx, `
        SELECT run_id, title, url, snippet, COALESCE(full_content, ''), relevance_score, axis_id, iteration, created_at
        FROM evidence_sources WHERE run_id = $1
        ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}
	defer rows.Close()
	var out []research.EvidenceSource
	for rows.Next() {
		var src research.EvidenceSource
		if err := rows.Scan(&src.RunID, &src.Title, &src.URL, &src.Snippet, &src.FullContent,
			&src.Relevance, &src.AxisID, &src.Iteration, &src.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

func (s *Store) CountSources(ctx context.Context, runID string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM evidence_sources WHERE run_id = $1`, runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count evidence: %w", err)
	}
	return n, nil
}
