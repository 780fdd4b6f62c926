package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/scour-research/scour/config"
	"github.com/scour-research/scour/internal/progress"
	"github.com/scour-research/scour/internal/research"
)

var researchTracer = otel.Tracer("scour/server")

// CreateResearchRequest is the invocation payload.
type CreateResearchRequest struct {
	RunID           string   `json:"run_id"`
	Query           string   `json:"query"`
	Depth           string   `json:"depth"`
	Mode            string   `json:"mode"`
	SeedURLs        []string `json:"seed_urls"`
	DomainAllowList []string `json:"domain_allow_list"`
}

// CreateResearchResponse acknowledges an accepted run.
type CreateResearchResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// ResearchHandler exposes the research pipeline over HTTP.
type ResearchHandler struct {
	Cfg         *config.Config
	Runs        research.RunStore
	Evidence    research.EvidenceStore
	Orch        *research.Orchestrator
	Broadcaster *progress.Broadcaster // optional push feed; polling is the contract
	logger      *log.Logger
}

// NewResearchHandler builds the handler.
func NewResearchHandler(cfg *config.Config, runs research.RunStore, evidence research.EvidenceStore,
	orch *research.Orchestrator, broadcaster *progress.Broadcaster) *ResearchHandler {
	return &ResearchHandler{
		Cfg:         cfg,
		Runs:        runs,
		Evidence:    evidence,
		Orch:        orch,
		Broadcaster: broadcaster,
		logger:      log.New(log.Writer(), "[API] ", log.LstdFlags),
	}
}

// Register mounts the research routes on g, behind JWT auth when a secret is
// configured.
func (h *ResearchHandler) Register(g *echo.Group, secret []byte) {
	if len(secret) > 0 {
		g.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, secret) })
	}
	g.POST("", h.create)
	g.GET("/:run_id", h.get)
	g.GET("/:run_id/evidence", h.evidence)
	g.GET("/:run_id/report", h.report)
	g.GET("/:run_id/stream", h.stream)
}

// create accepts a research run and returns immediately; the pipeline runs
// detached and all further state is observed through the run record.
func (h *ResearchHandler) create(c echo.Context) error {
	var req CreateResearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	switch req.Mode {
	case "", research.ModeWeb, research.ModeMix:
	case research.ModeURLs:
		if len(req.SeedURLs) == 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "seed_urls required for urls mode")
		}
	case "docs":
		return echo.NewHTTPError(http.StatusBadRequest, "docs mode is not supported")
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown mode: "+req.Mode)
	}
	switch req.Depth {
	case "", "quick", "standard", "exhaustive":
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown depth: "+req.Depth)
	}

	runID := strings.TrimSpace(req.RunID)
	if runID == "" {
		runID = uuid.NewString()
	}
	if err := h.Runs.CreateRun(c.Request().Context(), research.Run{ID: runID, Query: req.Query}); err != nil {
		if errors.Is(err, research.ErrRunExists) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		h.logger.Printf("create run %s: %v", runID, err)
		return echo.NewHTTPError(http.StatusInternalServerError, "could not create run")
	}

	policy := h.Cfg.Research.PolicyFor(req.Depth)
	execReq := research.Request{
		RunID:           runID,
		Query:           req.Query,
		Mode:            req.Mode,
		SeedURLs:        req.SeedURLs,
		DomainAllowList: req.DomainAllowList,
		Policy: research.Policy{
			MaxIterations:  policy.MaxIterations,
			AxisCount:      policy.AxisCount,
			ResultsPerAxis: policy.ResultsPerAxis,
			MinCoverage:    policy.MinCoverage,
			ExtractCap:     h.Cfg.Research.ExtractCap,
		},
	}

	// Detached background execution: completion is observed only through
	// persisted state, never through a response to this caller.
	timeout := h.Cfg.Server.RunTimeout
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_ = h.Orch.Execute(ctx, execReq)
	}()

	return c.JSON(http.StatusAccepted, CreateResearchResponse{RunID: runID, Status: "started"})
}

func (h *ResearchHandler) get(c echo.Context) error {
	run, err := h.Runs.GetRun(c.Request().Context(), c.Param("run_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, run)
}

func (h *ResearchHandler) evidence(c echo.Context) error {
	runID := c.Param("run_id")
	if _, err := h.Runs.GetRun(c.Request().Context(), runID); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	sources, err := h.Evidence.ListSources(c.Request().Context(), runID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if sources == nil {
		sources = []research.EvidenceSource{}
	}
	return c.JSON(http.StatusOK, sources)
}

func (h *ResearchHandler) report(c echo.Context) error {
	run, err := h.Runs.GetRun(c.Request().Context(), c.Param("run_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if run.ReportMarkdown == "" {
		return echo.NewHTTPError(http.StatusNotFound, "report not available yet")
	}
	return c.Blob(http.StatusOK, "text/markdown; charset=utf-8", []byte(run.ReportMarkdown))
}

// stream sends run progress via Server-Sent Events. It rides the Redis feed
// when available and falls back to polling the run record either way.
func (h *ResearchHandler) stream(c echo.Context) error {
	req := c.Request()
	ctx := req.Context()
	runID := c.Param("run_id")
	ctx, span := researchTracer.Start(ctx, "ResearchHandler.stream")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", runID))
	c.SetRequest(req.WithContext(ctx))

	if _, err := h.Runs.GetRun(ctx, runID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		span.SetStatus(codes.Error, "streaming unsupported")
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}

	send := func(event string, payload any) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if _, err := resp.Write([]byte("event: " + event + "\n")); err != nil {
			return err
		}
		if _, err := resp.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	sendSnapshot := func() (bool, error) {
		run, err := h.Runs.GetRun(ctx, runID)
		if err != nil {
			return false, err
		}
		terminal := run.Status == research.StatusCompleted || run.Status == research.StatusFailed
		return terminal, send("update", run)
	}

	if terminal, err := sendSnapshot(); err != nil {
		span.RecordError(err)
		return nil
	} else if terminal {
		return nil
	}

	var updates <-chan research.ProgressUpdate
	if h.Broadcaster != nil {
		var cancel func()
		updates, cancel = h.Broadcaster.Subscribe(ctx, runID)
		defer cancel()
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, open := <-updates:
			if !open {
				updates = nil
				continue
			}
			if err := send("progress", update); err != nil {
				span.RecordError(err)
				return nil
			}
			if update.Stage == research.StageCompleted || update.Stage == research.StageFailed {
				_, _ = sendSnapshot()
				return nil
			}
		case <-ticker.C:
			terminal, err := sendSnapshot()
			if err != nil {
				span.RecordError(err)
				h.logger.Printf("run stream snapshot failed: %v", err)
				return nil
			}
			if terminal {
				return nil
			}
		}
	}
}
