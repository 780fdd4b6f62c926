package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/scour-research/scour/config"
	"github.com/scour-research/scour/internal/progress"
	"github.com/scour-research/scour/internal/research"
	"github.com/scour-research/scour/internal/store"
	"github.com/scour-research/scour/internal/telemetry"
	"github.com/scour-research/scour/provider/openai"
	"github.com/scour-research/scour/tools/webextract"
	"github.com/scour-research/scour/tools/websearch"
)

// Run wires the service and serves the HTTP API until the listener stops.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "Cookie"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	ctx := context.Background()

	tele, _, _, err := telemetry.Setup(ctx, cfg.Telemetry, telemetry.Options{
		ServiceName:    "scour",
		ServiceVersion: "1.0.0",
		MetricsPort:    cfg.Telemetry.MetricsPort,
	})
	if err != nil {
		return fmt.Errorf("telemetry setup: %w", err)
	}
	defer func() { _ = tele.Shutdown(ctx) }()

	dsn := cfg.Storage.Postgres.DSN()
	if err := store.Migrate("file://migrations", dsn, "up", 0); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return fmt.Errorf("postgres connect: %w", err)
	}

	// Redis feed is optional: polling the run record is the contract.
	var broadcaster *progress.Broadcaster
	var sink research.ProgressSink
	if addr := cfg.Storage.Redis.Addr(); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Storage.Redis.Password, DB: cfg.Storage.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed (%s): %w", addr, err)
		}
		broadcaster = progress.NewBroadcaster(rdb)
		sink = broadcaster
	}

	searcher, err := websearch.New(cfg.Search)
	if err != nil {
		return fmt.Errorf("search provider: %w", err)
	}
	extractor, err := webextract.New(cfg.Extract)
	if err != nil {
		return fmt.Errorf("extract provider: %w", err)
	}

	llm := func(role string) *openai.Client {
		return openai.NewClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Routing.Model(role), cfg.LLM.Temperature, cfg.LLM.Timeout)
	}
	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	orch := research.NewOrchestrator(
		research.NewPlanner(llm("planning")),
		research.NewCollector(searcher, extractor, st),
		research.NewJudge(llm("judging")),
		research.NewSynthesizer(llm("synthesis")),
		st, st, sink, metrics,
	)

	var secret []byte
	if cfg.Server.JWTSecret != "" {
		secret = []byte(cfg.Server.JWTSecret)
	}
	rh := NewResearchHandler(cfg, st, st, orch, broadcaster)
	rh.Register(e.Group("/api/research"), secret)

	addr := cfg.Server.Address
	if addr == "" {
		addr = ":10030"
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
