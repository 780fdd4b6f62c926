package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/scour-research/scour/config"
	"github.com/scour-research/scour/internal/research"
	"github.com/scour-research/scour/provider/openai"
	"github.com/scour-research/scour/tools/webextract"
	"github.com/scour-research/scour/tools/websearch"
)

// runCMD performs one research run from the terminal against an in-memory
// store and prints the report. Useful for trying prompts and providers
// without Postgres or Redis.
func runCMD() *cobra.Command {
	var cfgPath string
	var depth string
	var mode string
	var seedURLs []string
	var sites []string

	var run = &cobra.Command{
		Use:   "run [query]",
		Short: "Run one research query and print the report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			query := args[0]

			searcher, err := websearch.New(cfg.Search)
			if err != nil {
				return err
			}
			extractor, err := webextract.New(cfg.Extract)
			if err != nil {
				return err
			}
			llm := func(role string) *openai.Client {
				return openai.NewClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Routing.Model(role), cfg.LLM.Temperature, cfg.LLM.Timeout)
			}

			mem := research.NewMemoryStore()
			orch := research.NewOrchestrator(
				research.NewPlanner(llm("planning")),
				research.NewCollector(searcher, extractor, mem),
				research.NewJudge(llm("judging")),
				research.NewSynthesizer(llm("synthesis")),
				mem, mem, nil, nil,
			)

			runID := uuid.NewString()
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if err := mem.CreateRun(ctx, research.Run{ID: runID, Query: query}); err != nil {
				return err
			}
			policy := cfg.Research.PolicyFor(depth)
			if err := orch.Execute(ctx, research.Request{
				RunID:           runID,
				Query:           query,
				Mode:            mode,
				SeedURLs:        seedURLs,
				DomainAllowList: sites,
				Policy: research.Policy{
					MaxIterations:  policy.MaxIterations,
					AxisCount:      policy.AxisCount,
					ResultsPerAxis: policy.ResultsPerAxis,
					MinCoverage:    policy.MinCoverage,
					ExtractCap:     cfg.Research.ExtractCap,
				},
			}); err != nil {
				return err
			}

			final, err := mem.GetRun(ctx, runID)
			if err != nil {
				return err
			}
			fmt.Println(final.ReportMarkdown)
			if final.ErrorMessage != "" {
				fmt.Printf("\n(note: %s)\n", final.ErrorMessage)
			}
			return nil
		},
	}
	run.Flags().StringVar(&depth, "depth", "standard", "research depth (quick, standard, exhaustive)")
	run.Flags().StringVar(&mode, "mode", "web", "research mode (web, urls, mix)")
	run.Flags().StringSliceVar(&seedURLs, "seed-url", nil, "seed URL for urls/mix mode (repeatable)")
	run.Flags().StringSliceVar(&sites, "site", nil, "domain allow-list entry (repeatable)")
	run.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return run
}
