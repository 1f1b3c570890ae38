package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/zring/cfbmodel/internal/pipeline"
	"github.com/zring/cfbmodel/internal/report"
)

func newTrainCmd(a *app) *cobra.Command {
	var (
		year       int
		modelType  string
		modelPath  string
		seasonType string
		noSave     bool
		describe   bool
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a model on one season of completed games",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mt, err := parseModelType(modelType)
			if err != nil {
				return err
			}
			if year == 0 {
				year = a.now().Year() - 1
			}

			svc, err := a.service(modelPath, mt)
			if err != nil {
				return err
			}
			ds, err := svc.Fetch(cmd.Context(), year, 0, seasonType)
			if err != nil {
				return err
			}
			if describe {
				if err := report.PrintFeatureSummary(out(cmd), ds.Table); err != nil {
					return err
				}
			}
			res, err := svc.TrainOn(ds, pipeline.TrainRequest{
				Year:       year,
				SeasonType: seasonType,
				ModelType:  mt,
				NoSave:     noSave,
			})
			if err != nil {
				return err
			}
			return printTrainResult(out(cmd), res)
		},
	}

	cmd.Flags().IntVar(&year, "year", 0, "Season to train on (default: last year)")
	cmd.Flags().StringVar(&modelType, "model-type", "", "random_forest or gradient_boosting (default from config)")
	cmd.Flags().StringVar(&modelPath, "model-path", "", "Where to save the model (default from config)")
	cmd.Flags().StringVar(&seasonType, "season-type", "", "regular, postseason or both (default from config)")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "Train and evaluate without saving")
	cmd.Flags().BoolVar(&describe, "describe", false, "Print per-feature statistics before training")
	return cmd
}

func printTrainResult(w io.Writer, res *pipeline.TrainResult) error {
	talent := "yes"
	if !res.Talent {
		talent = "no"
	}
	_, err := fmt.Fprintf(w, "Season %d: %d games, %d training samples x %d features (home wins %d, away wins %d, %d teams, talent: %s)\n",
		res.Year, res.Games, res.Samples, res.Features, res.HomeWins, res.AwayWins, res.Teams, talent)
	if err != nil {
		return err
	}
	if err := report.PrintTrainingSummary(w, res.Metrics); err != nil {
		return err
	}
	if res.ModelPath != "" {
		_, err = fmt.Fprintf(w, "Model saved to %s\n", res.ModelPath)
	}
	return err
}
