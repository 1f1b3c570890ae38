// Package report builds prediction runs from model output and renders them
// to the console, JSON, CSV and HTML.
package report

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/zring/cfbmodel/internal/features"
)

// Metadata describes one prediction run.
type Metadata struct {
	RunID       string    `json:"run_id"`
	Year        int       `json:"year"`
	Week        int       `json:"week"`
	SeasonType  string    `json:"season_type,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
	ModelPath   string    `json:"model_path,omitempty"`
	ModelType   string    `json:"model_type,omitempty"`
	GamesFound  int       `json:"games_found"`
}

// Prediction is the outcome for a single game. Probabilities and confidence
// are percentages rounded to two decimals.
type Prediction struct {
	GameNumber         int      `json:"game_number" csv:"game_number"`
	GameID             int      `json:"game_id,omitempty" csv:"game_id"`
	HomeTeam           string   `json:"home_team" csv:"home_team"`
	AwayTeam           string   `json:"away_team" csv:"away_team"`
	StartDate          string   `json:"start_date" csv:"start_date"`
	PredictedWinner    string   `json:"predicted_winner" csv:"predicted_winner"`
	Confidence         float64  `json:"confidence" csv:"confidence"`
	HomeWinProbability float64  `json:"home_win_probability" csv:"home_win_probability"`
	AwayWinProbability float64  `json:"away_win_probability" csv:"away_win_probability"`
	Spread             *float64 `json:"spread,omitempty" csv:"spread,omitempty"`
}

// HomePicked reports whether the home team is the predicted winner.
func (p Prediction) HomePicked() bool {
	return p.PredictedWinner == p.HomeTeam
}

// Run is a set of predictions for one week.
type Run struct {
	Metadata    Metadata     `json:"metadata"`
	Predictions []Prediction `json:"predictions"`
}

// NewRun creates an empty run with a fresh id.
func NewRun(year, week int) *Run {
	return &Run{
		Metadata: Metadata{
			RunID:       uuid.NewString(),
			Year:        year,
			Week:        week,
			GeneratedAt: time.Now().UTC(),
		},
		Predictions: []Prediction{},
	}
}

// NewPrediction converts a class probability pair (away, home) for row into
// a prediction numbered n.
func NewPrediction(n int, row features.Row, proba [2]float64) Prediction {
	winner, winnerProb := row.AwayTeam, proba[0]
	if proba[1] > proba[0] {
		winner, winnerProb = row.HomeTeam, proba[1]
	}
	return Prediction{
		GameNumber:         n,
		GameID:             row.GameID,
		HomeTeam:           row.HomeTeam,
		AwayTeam:           row.AwayTeam,
		StartDate:          row.StartDate,
		PredictedWinner:    winner,
		Confidence:         percent(winnerProb),
		HomeWinProbability: percent(proba[1]),
		AwayWinProbability: percent(proba[0]),
		Spread:             row.Spread,
	}
}

// Add appends one prediction per row. rows and probas must have equal length.
func (r *Run) Add(rows []features.Row, probas [][2]float64) {
	for i, row := range rows {
		r.Predictions = append(r.Predictions, NewPrediction(len(r.Predictions)+1, row, probas[i]))
	}
	r.Metadata.GamesFound = len(r.Predictions)
}

// Empty reports whether the run has no predictions.
func (r *Run) Empty() bool {
	return len(r.Predictions) == 0
}

func percent(p float64) float64 {
	return math.Round(p*10000) / 100
}
