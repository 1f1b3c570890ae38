package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zring/cfbmodel/internal/features"
	"github.com/zring/cfbmodel/internal/ml"
)

func row(id int, home, away string) features.Row {
	return features.Row{GameID: id, HomeTeam: home, AwayTeam: away, StartDate: "2024-09-07T19:30:00.000Z"}
}

func sampleRun() *Run {
	run := NewRun(2024, 2)
	spread := -7.5
	r3 := row(3, "Georgia", "Clemson")
	r3.Spread = &spread
	run.Add(
		[]features.Row{row(1, "Alabama", "Auburn"), row(2, "Ohio State", "Michigan"), r3, row(4, "Texas", "Oklahoma")},
		[][2]float64{{0.1, 0.9}, {0.52, 0.48}, {0.2, 0.8}, {0.466, 0.534}},
	)
	return run
}

func TestNewPrediction(t *testing.T) {
	p := NewPrediction(1, row(7, "Alabama", "Auburn"), [2]float64{0.26544, 0.73456})
	assert.Equal(t, 1, p.GameNumber)
	assert.Equal(t, 7, p.GameID)
	assert.Equal(t, "Alabama", p.PredictedWinner)
	assert.Equal(t, 73.46, p.Confidence)
	assert.Equal(t, 73.46, p.HomeWinProbability)
	assert.Equal(t, 26.54, p.AwayWinProbability)
	assert.True(t, p.HomePicked())
}

func TestNewPrediction_TieGoesAway(t *testing.T) {
	p := NewPrediction(1, row(1, "Alabama", "Auburn"), [2]float64{0.5, 0.5})
	assert.Equal(t, "Auburn", p.PredictedWinner)
	assert.Equal(t, 50.0, p.Confidence)
	assert.False(t, p.HomePicked())
}

func TestNewRun(t *testing.T) {
	a := NewRun(2024, 3)
	b := NewRun(2024, 3)
	assert.NotEmpty(t, a.Metadata.RunID)
	assert.NotEqual(t, a.Metadata.RunID, b.Metadata.RunID)
	assert.True(t, a.Empty())
	assert.NotNil(t, a.Predictions)
	assert.False(t, a.Metadata.GeneratedAt.IsZero())
}

func TestRunAdd(t *testing.T) {
	run := sampleRun()
	require.Len(t, run.Predictions, 4)
	assert.Equal(t, 4, run.Metadata.GamesFound)
	for i, p := range run.Predictions {
		assert.Equal(t, i+1, p.GameNumber)
	}
	assert.Equal(t, "Michigan", run.Predictions[1].PredictedWinner)
	require.NotNil(t, run.Predictions[2].Spread)
	assert.Equal(t, -7.5, *run.Predictions[2].Spread)
}

func TestConfidenceBar(t *testing.T) {
	tests := []struct {
		conf   float64
		filled int
	}{
		{0, 0},
		{50, 15},
		{73.46, 22},
		{100, 30},
		{150, 30},
		{-5, 0},
	}
	for _, tt := range tests {
		bar := ConfidenceBar(tt.conf, BarWidth)
		assert.Equal(t, BarWidth, len([]rune(bar)))
		assert.Equal(t, tt.filled, strings.Count(bar, "█"), "confidence %v", tt.conf)
	}
}

func TestPrintPredictions(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintPredictions(&buf, sampleRun()))
	out := buf.String()

	assert.Contains(t, out, "PREDICTIONS FOR WEEK 2 - 2024 SEASON")
	assert.Contains(t, out, "Game 1: Auburn @ Alabama")
	assert.Contains(t, out, "Predicted Winner: Alabama")
	assert.Contains(t, out, "Probability: Home 90.0% | Away 10.0%")
	assert.Contains(t, out, "Spread: -7.5")
	assert.Contains(t, out, "Generated 4 predictions for week 2")
}

func TestPrintPredictions_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintPredictions(&buf, NewRun(2024, 16)))
	assert.Contains(t, buf.String(), "No games found for week 16 of the 2024 season.")
}

func TestPrintTrainingSummary(t *testing.T) {
	m := &ml.TrainingMetrics{
		TrainSamples:  80,
		TestSamples:   20,
		TrainAccuracy: 0.9,
		TestAccuracy:  0.75,
		CVScores:      []float64{0.7, 0.8},
		CVMean:        0.75,
		CVStd:         0.05,
		FeatureImportance: []ml.FeatureImportance{
			{Feature: "talent_diff", Importance: 0.4},
			{Feature: "home_points", Importance: 0.3},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, PrintTrainingSummary(&buf, m))
	out := buf.String()
	assert.Contains(t, out, "Test Accuracy: 75.00%")
	assert.Contains(t, out, "Cross-Validation: 75.00% (±5.00%)")
	assert.Contains(t, out, "Top 2 Feature Importances")
	assert.Contains(t, out, "talent_diff")
}

func TestPrintFeatureSummary(t *testing.T) {
	table := &features.Table{Rows: []features.Row{
		{GameID: 1, Features: []float64{5000}},
		{GameID: 2, Features: []float64{6000}},
	}}
	var buf bytes.Buffer
	require.NoError(t, PrintFeatureSummary(&buf, table))
	out := buf.String()
	assert.Contains(t, out, "=== Feature Summary ===")
	assert.Contains(t, out, "rows: 2")

	var line string
	for _, l := range strings.Split(out, "\n") {
		if strings.HasPrefix(l, features.HomeOffTotalYards+" ") {
			line = l
		}
	}
	require.NotEmpty(t, line)
	assert.Equal(t, []string{features.HomeOffTotalYards, "5500.00", "707.11", "5000.00", "6000.00"}, strings.Fields(line))
}

func TestAnalyze(t *testing.T) {
	a := Analyze(sampleRun())

	assert.Equal(t, 4, a.Games)
	assert.Equal(t, 3, a.HomePicks)
	assert.Equal(t, 1, a.AwayPicks)
	assert.InDelta(t, 75.0, a.HomePct(), 1e-9)
	assert.InDelta(t, (90+52+80+53.4)/4.0, a.MeanConfidence, 1e-9)
	assert.InDelta(t, (53.4+80)/2, a.MedianConfidence, 1e-9)
	assert.Equal(t, 52.0, a.MinConfidence)
	assert.Equal(t, 90.0, a.MaxConfidence)

	assert.Equal(t, Buckets{VeryHigh: 1, High: 1, Low: 2, TossUp: 2}, a.Buckets)

	require.Len(t, a.HighConfidence, 2)
	assert.Equal(t, "Alabama", a.HighConfidence[0].HomeTeam)
	require.Len(t, a.TossUps, 2)
	assert.Equal(t, 52.0, a.TossUps[0].Confidence)

	require.Len(t, a.Closest, 4)
	assert.Equal(t, "Ohio State", a.Closest[0].HomeTeam)
}

func TestAnalyze_Empty(t *testing.T) {
	a := Analyze(NewRun(2024, 1))
	assert.Equal(t, 0, a.Games)
	assert.Equal(t, 0.0, a.HomePct())
	assert.Empty(t, a.Closest)

	var buf bytes.Buffer
	require.NoError(t, PrintAnalysis(&buf, NewRun(2024, 1), a))
	assert.Contains(t, buf.String(), "No predictions to analyze.")
}

func TestPrintAnalysis(t *testing.T) {
	run := sampleRun()
	var buf bytes.Buffer
	require.NoError(t, PrintAnalysis(&buf, run, Analyze(run)))
	out := buf.String()
	assert.Contains(t, out, "Home Wins Predicted: 3 (75.0%)")
	assert.Contains(t, out, "High Confidence (>75%): 2 games")
	assert.Contains(t, out, "=== Toss-Up Games (<55% confidence) ===")
	assert.Contains(t, out, "Very High (>85%): 1 games")
}

func TestTopPicks(t *testing.T) {
	run := sampleRun()
	picks := TopPicks(run, DefaultTopPicks)
	require.Len(t, picks, 2)
	assert.Equal(t, 90.0, picks[0].Confidence)
	assert.Equal(t, 80.0, picks[1].Confidence)

	assert.Len(t, TopPicks(run, 0), 4)
	assert.Empty(t, TopPicks(run, 99))

	var buf bytes.Buffer
	n, err := WriteTopPicks(&buf, run, DefaultTopPicks)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Contains(t, buf.String(), "# Top Picks (>= 75% confidence)")
	assert.Contains(t, buf.String(), "1. Alabama - 90.0% confidence")
	assert.Contains(t, buf.String(), "   Auburn @ Alabama")
}

func TestWriteAndLoadJSON(t *testing.T) {
	run := sampleRun()
	path := filepath.Join(t.TempDir(), "out", "week_2.json")
	require.NoError(t, WriteJSON(run, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, run.Metadata.RunID, loaded.Metadata.RunID)
	assert.Equal(t, run.Metadata.GamesFound, loaded.Metadata.GamesFound)
	assert.Equal(t, run.Predictions, loaded.Predictions)

	// Overwrites on a second write.
	require.NoError(t, WriteJSON(run, path))
}

func TestWriteAndLoadCSV(t *testing.T) {
	run := sampleRun()
	path := filepath.Join(t.TempDir(), "week_2.csv")
	require.NoError(t, WriteCSV(run, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	header := strings.SplitN(string(data), "\n", 2)[0]
	assert.Equal(t, "game_number,game_id,home_team,away_team,start_date,predicted_winner,confidence,home_win_probability,away_win_probability,spread", header)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, run.Predictions, loaded.Predictions)
	assert.Equal(t, 4, loaded.Metadata.GamesFound)
}

func TestWriteEmptyRun(t *testing.T) {
	dir := t.TempDir()
	run := NewRun(2024, 16)

	require.NoError(t, WriteJSON(run, filepath.Join(dir, "empty.json")))
	require.NoError(t, WriteCSV(run, filepath.Join(dir, "empty.csv")))

	loaded, err := LoadRun(filepath.Join(dir, "empty.json"))
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Metadata.GamesFound)
	assert.Empty(t, loaded.Predictions)

	data, err := os.ReadFile(filepath.Join(dir, "empty.csv"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "game_number,"))
}

func TestWriteHTML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "week_2.html")
	imps := []ml.FeatureImportance{{Feature: "talent_diff", Importance: 0.6}, {Feature: "home_points", Importance: 0.4}}
	require.NoError(t, WriteHTML(sampleRun(), imps, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(data)
	assert.Contains(t, html, "Auburn @ Alabama")
	assert.Contains(t, html, "talent_diff")
}

func TestLoad_Unsupported(t *testing.T) {
	_, err := Load("predictions.txt")
	assert.Error(t, err)

	_, err = LoadRun(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
