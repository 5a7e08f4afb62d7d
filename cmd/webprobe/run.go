package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/v0xg/webprobe/internal/driver"
	"github.com/v0xg/webprobe/internal/knowledge"
	"github.com/v0xg/webprobe/internal/metrics"
	"github.com/v0xg/webprobe/internal/plan"
	"github.com/v0xg/webprobe/internal/runner"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		planPath string
		url      string
		parallel bool
		workers  int
		retries  int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a test plan in the browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			if planPath == "" {
				planPath = filepath.Join(cfg.OutputDir, "plan.json")
			}
			if cmd.Flags().Changed("parallel") {
				cfg.Execution.Parallel = parallel
			}
			if workers > 0 {
				cfg.Execution.Workers = workers
			}
			if retries >= 0 {
				cfg.Execution.Retries = retries
			}

			p, err := plan.Load(planPath)
			if err != nil {
				return err
			}
			baseURL := url
			if baseURL == "" {
				baseURL = p.BaseURL
			}
			if baseURL == "" {
				baseURL = cfg.BaseURL
			}

			ctx := cmd.Context()
			kb := a.openKnowledge(ctx)
			if kb != nil {
				defer kb.Close()
			}

			launch := driver.RodLauncher(driver.RodOptions{
				Bin:      cfg.Execution.BrowserBin,
				Headless: cfg.Execution.Headless,
			})
			r := runner.New(launch, runner.Options{
				BaseURL:          baseURL,
				Parallel:         cfg.Execution.Parallel,
				Workers:          cfg.Execution.Workers,
				Retries:          cfg.Execution.Retries,
				Timeout:          cfg.Execution.Timeout,
				Headless:         cfg.Execution.Headless,
				ArtifactsDir:     filepath.Join(cfg.OutputDir, "artifacts"),
				ScreenshotOnFail: cfg.Execution.ScreenshotOnFail,
				ReplayOnFail:     cfg.Execution.ReplayOnFail,
				MetricsFile:      cfg.Execution.MetricsFile,
				Knowledge:        kb,
				AutoHeal:         cfg.Learning.AutoHeal,
				HealThreshold:    cfg.Learning.AutoHealConfidenceThreshold,
				Metrics:          metrics.New(),
			}, a.log.With("component", "runner"))

			fmt.Printf("→ Running %d tests against %s...\n", p.TestCount(), baseURL)
			res, err := r.Run(ctx, p)
			if err != nil {
				return fmt.Errorf("run failed: %w", err)
			}

			resultPath := filepath.Join(cfg.OutputDir, "results", res.RunID+".json")
			if err := plan.Save(resultPath, res); err != nil {
				return err
			}
			printRun(res)
			fmt.Printf("✓ Results saved to %s\n", resultPath)

			if !res.Failed() {
				return nil
			}
			if kb != nil {
				sum, path, err := writeFailureSummary(ctx, kb, res.RunID, filepath.Dir(resultPath), cfg.Learning.FlakyThreshold)
				if err != nil {
					a.log.Warn("Failure summary not written", "error", err)
				} else {
					printClusters(sum.Clusters)
					printFlaky(sum.Flaky)
					fmt.Printf("✓ Failure summary saved to %s\n", path)
				}
			}
			return errTestsFailed
		},
	}

	cmd.Flags().StringVarP(&planPath, "plan", "p", "", "Plan file (default: <output_dir>/plan.json)")
	cmd.Flags().StringVar(&url, "url", "", "Base URL (default: from plan)")
	cmd.Flags().BoolVar(&parallel, "parallel", false, "Run suites in parallel")
	cmd.Flags().IntVar(&workers, "workers", 0, "Parallel workers")
	cmd.Flags().IntVar(&retries, "retries", -1, "Retries per failing test")
	return cmd
}

// openKnowledge opens the knowledge base when learning is enabled. Failures
// disable learning for the run.
func (a *app) openKnowledge(ctx context.Context) *knowledge.Store {
	if !a.cfg.Learning.Enabled {
		return nil
	}
	kb, err := knowledge.Open(ctx, a.cfg.Learning.KBPath)
	if err != nil {
		a.log.Warn("Knowledge base unavailable; learning disabled", "path", a.cfg.Learning.KBPath, "error", err)
		return nil
	}
	return kb
}
