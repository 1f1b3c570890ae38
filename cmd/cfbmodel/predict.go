package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zring/cfbmodel/internal/charts"
	"github.com/zring/cfbmodel/internal/export"
	"github.com/zring/cfbmodel/internal/ml"
	"github.com/zring/cfbmodel/internal/pipeline"
	"github.com/zring/cfbmodel/internal/report"
)

// outputFiles names the optional prediction outputs.
type outputFiles struct {
	JSON string
	CSV  string
	HTML string
	Save bool
	Open bool
}

func (o *outputFiles) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.JSON, "output-json", "", "Write predictions to a JSON file")
	cmd.Flags().StringVar(&o.CSV, "output-csv", "", "Write predictions to a CSV file")
	cmd.Flags().StringVar(&o.HTML, "output-html", "", "Write an HTML chart of the predictions")
	cmd.Flags().BoolVar(&o.Save, "save", false, "Write JSON and CSV predictions to the configured output directory")
	cmd.Flags().BoolVar(&o.Open, "open", false, "Open the HTML chart in a browser")
}

// withDefaults fills the JSON and CSV paths left empty under dir when Save is set.
func (o outputFiles) withDefaults(dir string, run *report.Run) outputFiles {
	if !o.Save {
		return o
	}
	name := fmt.Sprintf("predictions_%d_week%d", run.Metadata.Year, run.Metadata.Week)
	if o.JSON == "" {
		o.JSON = filepath.Join(dir, export.GenerateFilename(name, export.FormatJSON))
	}
	if o.CSV == "" {
		o.CSV = filepath.Join(dir, export.GenerateFilename(name, export.FormatCSV))
	}
	return o
}

// write saves every requested output. Empty runs still produce files.
func (o outputFiles) write(cmd *cobra.Command, run *report.Run, model *ml.Model) error {
	w := out(cmd)
	if o.JSON != "" {
		if err := report.WriteJSON(run, o.JSON); err != nil {
			return err
		}
		fmt.Fprintf(w, "Predictions saved to %s\n", o.JSON)
	}
	if o.CSV != "" {
		if err := report.WriteCSV(run, o.CSV); err != nil {
			return err
		}
		fmt.Fprintf(w, "Predictions saved to %s\n", o.CSV)
	}
	if o.HTML != "" {
		var importances []ml.FeatureImportance
		if model != nil {
			importances = model.GetModelInfo().Importances
		}
		if err := report.WriteHTML(run, importances, o.HTML); err != nil {
			return err
		}
		fmt.Fprintf(w, "Chart saved to %s\n", o.HTML)
		if o.Open {
			if err := charts.OpenInBrowser(o.HTML); err != nil {
				fmt.Fprintf(w, "Could not open browser: %v\n", err)
			}
		}
	}
	return nil
}

func newPredictCmd(a *app) *cobra.Command {
	var (
		year      int
		week      int
		modelPath string
		store     bool
		outputs   outputFiles
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict one week's games with a saved model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service(modelPath, "")
			if err != nil {
				return err
			}
			if _, err := svc.LoadModel(); err != nil {
				return fmt.Errorf("%w (run `cfbmodel train` first)", err)
			}

			year, week = a.resolveWeek(year, week)
			return a.predictWeek(cmd, svc, year, week, store, outputs)
		},
	}

	cmd.Flags().IntVar(&year, "year", 0, "Season (default: current year)")
	cmd.Flags().IntVar(&week, "week", 0, "Week (default: current week)")
	cmd.Flags().StringVar(&modelPath, "model-path", "", "Saved model (default from config)")
	cmd.Flags().BoolVar(&store, "store", false, "Record the run in the prediction history database")
	outputs.register(cmd)
	return cmd
}

// predictWeek runs, prints, stores and writes one week of predictions.
func (a *app) predictWeek(cmd *cobra.Command, svc *pipeline.Service, year, week int, store bool, outputs outputFiles) error {
	run, err := svc.PredictWeek(cmd.Context(), pipeline.PredictRequest{Year: year, Week: week})
	if err != nil {
		return err
	}
	if err := report.PrintPredictions(out(cmd), run); err != nil {
		return err
	}

	if store {
		runs, err := a.runs()
		if err != nil {
			return err
		}
		if err := runs.Save(cmd.Context(), run); err != nil {
			return err
		}
		a.logger.WithFields(logrus.Fields{"run_id": run.Metadata.RunID, "db": a.cfg.Paths.DBPath}).Info("Run stored")
	}

	return outputs.withDefaults(a.cfg.Paths.OutputDir, run).write(cmd, run, svc.Model())
}

func newWeekCmd(a *app) *cobra.Command {
	var (
		year      int
		week      int
		train     bool
		trainYear int
		modelType string
		modelPath string
		noStore   bool
		outputs   outputFiles
	)

	cmd := &cobra.Command{
		Use:   "week",
		Short: "Predict the current (or given) week, training first if needed",
		Long: "Predicts every game of a week. The week is detected from today's date unless --week is given. " +
			"A model is trained on --train-year when --train is set or no saved model exists.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mt, err := parseModelType(modelType)
			if err != nil {
				return err
			}
			year, week = a.resolveWeek(year, week)
			if trainYear == 0 {
				trainYear = year - 1
			}

			svc, err := a.service(modelPath, mt)
			if err != nil {
				return err
			}

			if !train {
				_, err := svc.LoadModel()
				switch {
				case err == nil:
				case errors.Is(err, os.ErrNotExist):
					a.logger.WithField("path", svc.ModelPath()).Info("No saved model, training a new one")
					train = true
				default:
					return err
				}
			}
			if train {
				res, err := svc.Train(cmd.Context(), pipeline.TrainRequest{Year: trainYear, ModelType: mt})
				if err != nil {
					return err
				}
				if err := printTrainResult(out(cmd), res); err != nil {
					return err
				}
			}

			return a.predictWeek(cmd, svc, year, week, !noStore, outputs)
		},
	}

	cmd.Flags().IntVar(&year, "year", 0, "Season (default: current year)")
	cmd.Flags().IntVar(&week, "week", 0, "Week (default: detected from today's date)")
	cmd.Flags().BoolVar(&train, "train", false, "Train a fresh model before predicting")
	cmd.Flags().IntVar(&trainYear, "train-year", 0, "Season to train on (default: year - 1)")
	cmd.Flags().StringVar(&modelType, "model-type", "", "random_forest or gradient_boosting (default from config)")
	cmd.Flags().StringVar(&modelPath, "model-path", "", "Model file (default from config)")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "Do not record the run in the prediction history database")
	outputs.register(cmd)
	return cmd
}
