package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/v0xg/webprobe/internal/config"
	"github.com/v0xg/webprobe/internal/generator"
	"github.com/v0xg/webprobe/internal/graph"
	"github.com/v0xg/webprobe/internal/orchestrator"
	"github.com/v0xg/webprobe/internal/plan"
)

func newGenerateCmd(a *app) *cobra.Command {
	var (
		graphPath string
		output    string
		types     []string
		seed      int64
		maxTests  int
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a test plan from a graph until coverage goals are met",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			if graphPath == "" {
				graphPath = filepath.Join(cfg.OutputDir, "graph.json")
			}
			if output == "" {
				output = filepath.Join(cfg.OutputDir, "plan.json")
			}
			if len(types) == 0 {
				types = cfg.Generation.Types
			}
			if cmd.Flags().Changed("seed") {
				cfg.Generation.Seed = seed
			}
			if maxTests > 0 {
				cfg.Generation.MaxTests = maxTests
			}

			g, err := graph.Load(graphPath)
			if err != nil {
				return err
			}
			kinds, err := generator.ParseKinds(types)
			if err != nil {
				return err
			}

			fmt.Printf("→ Generating tests for %d routes... ", len(g.RouteNodes()))
			res, err := orchestrator.New(a.log.With("component", "orchestrator")).Run(g, orchestrator.Options{
				Types:     kinds,
				Goals:     coverageGoals(cfg.Generation.CoverageTargets),
				MaxTests:  cfg.Generation.MaxTests,
				Generator: generatorOptions(cfg.Generation),
			})
			if err != nil {
				fmt.Println("failed")
				return fmt.Errorf("generation failed: %w", err)
			}
			fmt.Printf("done (%d tests in %d suites, %d iterations)\n", res.Plan.TestCount(), len(res.Plan.Suites), res.Iterations)

			if err := plan.Save(output, res.Plan); err != nil {
				return err
			}
			printCoverage(res.Coverage, res.Plan.Config.CoverageTarget)
			fmt.Printf("✓ Plan saved to %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&graphPath, "graph", "g", "", "Graph file (default: <output_dir>/graph.json)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Plan file (default: <output_dir>/plan.json)")
	cmd.Flags().StringSliceVarP(&types, "types", "t", nil, "Generators: smoke, form, journey, crud, a11y")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Seed for generated form data")
	cmd.Flags().IntVar(&maxTests, "max-tests", 0, "Maximum tests in the plan")
	return cmd
}

func coverageGoals(t config.CoverageTargets) plan.CoverageTarget {
	return plan.CoverageTarget{
		Routes:     &t.Routes,
		Elements:   &t.Elements,
		Forms:      &t.Forms,
		Assertions: &t.Assertions,
		Flows:      &t.Flows,
	}
}

func generatorOptions(cfg config.GenerationConfig) generator.Options {
	variants := cfg.FormVariants
	return generator.Options{
		Seed:         cfg.Seed,
		SkipInvalid:  !variants.Enabled || !variants.IncludeInvalid,
		SkipBoundary: !variants.Enabled || !variants.IncludeBoundary,
		MaxSteps:     cfg.Journey.MaxSteps,
		MaxJourneys:  cfg.Journey.MaxJourneys,
	}
}
