package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/zring/cfbmodel/internal/charts"
	"github.com/zring/cfbmodel/internal/export"
	"github.com/zring/cfbmodel/internal/ml"
)

// WriteJSON writes the run, metadata included, as indented JSON.
func WriteJSON(run *Run, path string) error {
	return export.NewExporter(export.Options{
		Format:     export.FormatJSON,
		FilePath:   path,
		PrettyJSON: true,
		Overwrite:  true,
	}).Export(run)
}

// WriteCSV writes one row per prediction. An empty run yields a header only.
func WriteCSV(run *Run, path string) error {
	preds := run.Predictions
	if preds == nil {
		preds = []Prediction{}
	}
	return export.NewExporter(export.Options{
		Format:    export.FormatCSV,
		FilePath:  path,
		Overwrite: true,
	}).Export(preds)
}

// WriteHTML renders win probabilities per game and, when given, the model's
// feature importances as an HTML page.
func WriteHTML(run *Run, importances []ml.FeatureImportance, path string) error {
	md := run.Metadata

	home := charts.SeriesData{Name: "Home"}
	away := charts.SeriesData{Name: "Away"}
	for _, p := range run.Predictions {
		label := fmt.Sprintf("%s @ %s", p.AwayTeam, p.HomeTeam)
		home.Points = append(home.Points, charts.DataPoint{Label: label, Value: p.HomeWinProbability})
		away.Points = append(away.Points, charts.DataPoint{Label: label, Value: p.AwayWinProbability})
	}

	cfg := charts.DefaultChartConfig()
	cfg.Title = fmt.Sprintf("Week %d - %d", md.Week, md.Year)
	cfg.Subtitle = fmt.Sprintf("%d games", len(run.Predictions))
	cfg.XAxisLabel = "Win probability (%)"
	cfg.Horizontal = true
	cfg.Stacked = true
	cfg.Height = fmt.Sprintf("%dpx", 120+28*len(run.Predictions))
	probs, err := charts.NewBarChart([]charts.SeriesData{home, away}, cfg)
	if err != nil {
		return err
	}

	page := []charts.Charter{probs}
	if len(importances) > 0 {
		imp := charts.SeriesData{Name: "Importance"}
		// Reverse so the most important feature is drawn on top.
		for i := len(importances) - 1; i >= 0; i-- {
			imp.Points = append(imp.Points, charts.DataPoint{
				Label: importances[i].Feature,
				Value: importances[i].Importance,
			})
		}
		icfg := charts.DefaultChartConfig()
		icfg.Title = "Feature importance"
		icfg.Horizontal = true
		icfg.ShowLegend = false
		bar, err := charts.NewBarChart([]charts.SeriesData{imp}, icfg)
		if err != nil {
			return err
		}
		page = append(page, bar)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := charts.RenderPage(f, cfg.Title, page...); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadRun reads a run written by WriteJSON.
func LoadRun(path string) (*Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read predictions: %w", err)
	}
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to parse predictions: %w", err)
	}
	if run.Predictions == nil {
		run.Predictions = []Prediction{}
	}
	return &run, nil
}

// LoadPredictionsCSV reads predictions written by WriteCSV. The returned run
// carries no metadata beyond the game count.
func LoadPredictionsCSV(path string) (*Run, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open predictions: %w", err)
	}
	defer f.Close()

	preds := []Prediction{}
	if err := gocsv.Unmarshal(f, &preds); err != nil {
		return nil, fmt.Errorf("failed to parse predictions: %w", err)
	}
	return &Run{
		Metadata:    Metadata{GamesFound: len(preds)},
		Predictions: preds,
	}, nil
}

// Load reads a run from a .json or .csv file.
func Load(path string) (*Run, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return LoadPredictionsCSV(path)
	case ".json":
		return LoadRun(path)
	default:
		return nil, fmt.Errorf("unsupported predictions file: %s", path)
	}
}
