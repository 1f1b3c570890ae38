package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zring/cfbmodel/internal/report"
)

func newAnalyzeCmd(_ *app) *cobra.Command {
	var (
		topPicks      string
		minConfidence float64
	)

	cmd := &cobra.Command{
		Use:   "analyze <predictions.json|predictions.csv>",
		Short: "Summarize a predictions file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := report.Load(args[0])
			if err != nil {
				return err
			}
			if err := report.PrintAnalysis(out(cmd), run, report.Analyze(run)); err != nil {
				return err
			}
			if topPicks == "" {
				return nil
			}

			f, err := os.Create(topPicks)
			if err != nil {
				return fmt.Errorf("create top picks file: %w", err)
			}
			n, err := report.WriteTopPicks(f, run, minConfidence)
			if closeErr := f.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "%d top picks (>= %.0f%% confidence) saved to %s\n", n, minConfidence, topPicks)
			return nil
		},
	}

	cmd.Flags().StringVar(&topPicks, "top-picks", "", "Write picks above --min-confidence to this text file")
	cmd.Flags().Float64Var(&minConfidence, "min-confidence", report.DefaultTopPicks, "Minimum confidence for top picks")
	return cmd
}
