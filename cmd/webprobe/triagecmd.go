package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/v0xg/webprobe/internal/ai"
	"github.com/v0xg/webprobe/internal/knowledge"
)

func newTriageCmd(a *app) *cobra.Command {
	var (
		resolve  int64
		element  string
		advise   bool
		provider string
		model    string
	)

	cmd := &cobra.Command{
		Use:   "triage",
		Short: "Review recorded failures, flaky tests and selector history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			kb, err := knowledge.Open(ctx, a.cfg.Learning.KBPath)
			if err != nil {
				return err
			}
			defer kb.Close()

			if resolve > 0 {
				if err := kb.MarkFailureResolved(ctx, resolve); err != nil {
					if errors.Is(err, knowledge.ErrNotFound) {
						return fmt.Errorf("failure %d not found", resolve)
					}
					return err
				}
				fmt.Printf("✓ Failure %d marked resolved\n", resolve)
				return nil
			}

			if element != "" {
				sig, err := kb.GetSignatureByElementID(ctx, element)
				if err != nil {
					return fmt.Errorf("element %s: %w", element, err)
				}
				attempts, err := kb.RecentAttempts(ctx, sig.ID, 0)
				if err != nil {
					return err
				}
				printSignature(sig, attempts)
				return nil
			}

			sum, err := summarizeFailures(ctx, kb, a.cfg.Learning.FlakyThreshold)
			if err != nil {
				return err
			}
			clusters, flaky := sum.Clusters, sum.Flaky
			printClusters(clusters)
			printFlaky(flaky)

			if !advise {
				return nil
			}
			report := ai.Report{Clusters: clusters, Flaky: flaky}
			if report.Empty() {
				fmt.Println("Nothing to review.")
				return nil
			}

			selected := provider
			if selected == "" {
				selected = a.cfg.AI.Provider
			}
			if selected == "" {
				selected = os.Getenv("WEBPROBE_DEFAULT_PROVIDER")
			}
			if selected == "" {
				selected = "claude"
			}
			if model == "" {
				model = a.cfg.AI.Model
			}

			fmt.Printf("→ Asking %s for remediation advice... ", selected)
			advisor, err := ai.NewAdvisor(selected, model)
			if err != nil {
				fmt.Println("failed")
				return fmt.Errorf("AI provider init failed: %w", err)
			}
			advice, err := advisor.Advise(ctx, report)
			if err != nil {
				fmt.Println("failed")
				return fmt.Errorf("advice failed: %w", err)
			}
			fmt.Printf("done (%d items)\n", len(advice))
			printAdvice(advice)
			return nil
		},
	}

	cmd.Flags().Int64Var(&resolve, "resolve", 0, "Mark a failure id as resolved")
	cmd.Flags().StringVar(&element, "element", "", "Show the selector history of an element id")
	cmd.Flags().BoolVar(&advise, "advise", false, "Ask an AI provider for remediation advice")
	cmd.Flags().StringVar(&provider, "provider", "", "AI provider: claude, openai (default: from config or claude)")
	cmd.Flags().StringVar(&model, "model", "", "Specific model override")
	return cmd
}
