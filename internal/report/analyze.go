package report

import (
	"fmt"
	"io"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Confidence thresholds, in percent.
const (
	VeryHighConfidence = 85.0
	HighConfidence     = 75.0
	MediumConfidence   = 60.0
	TossUpConfidence   = 55.0
	LowConfidence      = 50.0

	DefaultTopPicks = HighConfidence
)

// Buckets counts games per confidence level. TossUp overlaps Low.
type Buckets struct {
	VeryHigh int `json:"very_high"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	TossUp   int `json:"toss_up"`
}

// Analysis summarizes a prediction run.
type Analysis struct {
	Games            int          `json:"games"`
	HomePicks        int          `json:"home_picks"`
	AwayPicks        int          `json:"away_picks"`
	MeanConfidence   float64      `json:"mean_confidence"`
	MedianConfidence float64      `json:"median_confidence"`
	MinConfidence    float64      `json:"min_confidence"`
	MaxConfidence    float64      `json:"max_confidence"`
	MeanHomeWinProb  float64      `json:"mean_home_win_probability"`
	Buckets          Buckets      `json:"buckets"`
	HighConfidence   []Prediction `json:"high_confidence"`
	TossUps          []Prediction `json:"toss_ups"`
	Closest          []Prediction `json:"closest"`
}

// HomePct returns the share of home picks in percent.
func (a *Analysis) HomePct() float64 {
	return share(a.HomePicks, a.Games)
}

// AwayPct returns the share of away picks in percent.
func (a *Analysis) AwayPct() float64 {
	return share(a.AwayPicks, a.Games)
}

func share(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// closestLimit caps the closest-games list.
const closestLimit = 5

// Analyze computes pick distribution and confidence statistics for run.
func Analyze(run *Run) *Analysis {
	a := &Analysis{
		Games:          len(run.Predictions),
		HighConfidence: []Prediction{},
		TossUps:        []Prediction{},
		Closest:        []Prediction{},
	}
	if a.Games == 0 {
		return a
	}

	conf := make([]float64, 0, a.Games)
	home := make([]float64, 0, a.Games)
	for _, p := range run.Predictions {
		if p.HomePicked() {
			a.HomePicks++
		} else {
			a.AwayPicks++
		}
		conf = append(conf, p.Confidence)
		home = append(home, p.HomeWinProbability)

		c := p.Confidence
		switch {
		case c > VeryHighConfidence:
			a.Buckets.VeryHigh++
		case c > HighConfidence:
			a.Buckets.High++
		case c > MediumConfidence:
			a.Buckets.Medium++
		case c > LowConfidence:
			a.Buckets.Low++
		}
		if c >= LowConfidence && c <= TossUpConfidence {
			a.Buckets.TossUp++
		}
		if c > HighConfidence {
			a.HighConfidence = append(a.HighConfidence, p)
		}
		if c < TossUpConfidence {
			a.TossUps = append(a.TossUps, p)
		}
	}

	a.MeanConfidence = stat.Mean(conf, nil)
	a.MeanHomeWinProb = stat.Mean(home, nil)
	a.MinConfidence = floats.Min(conf)
	a.MaxConfidence = floats.Max(conf)
	a.MedianConfidence = median(conf)

	sortByConfidence(a.HighConfidence, true)
	sortByConfidence(a.TossUps, false)

	closest := append([]Prediction(nil), run.Predictions...)
	sort.SliceStable(closest, func(i, j int) bool {
		return margin(closest[i]) < margin(closest[j])
	})
	if len(closest) > closestLimit {
		closest = closest[:closestLimit]
	}
	a.Closest = closest
	return a
}

// TopPicks returns predictions with confidence >= minConfidence, most
// confident first.
func TopPicks(run *Run, minConfidence float64) []Prediction {
	picks := []Prediction{}
	for _, p := range run.Predictions {
		if p.Confidence >= minConfidence {
			picks = append(picks, p)
		}
	}
	sortByConfidence(picks, true)
	return picks
}

// WriteTopPicks writes the top picks as a plain-text list.
func WriteTopPicks(w io.Writer, run *Run, minConfidence float64) (int, error) {
	picks := TopPicks(run, minConfidence)
	pw := &printer{w: w}
	pw.printf("# Top Picks (>= %.0f%% confidence)\n", minConfidence)
	pw.printf("Week %d - %d\n", run.Metadata.Week, run.Metadata.Year)
	if !run.Metadata.GeneratedAt.IsZero() {
		pw.printf("Generated: %s\n", run.Metadata.GeneratedAt.Format("2006-01-02 15:04:05"))
	}
	pw.printf("\n")
	for i, p := range picks {
		pw.printf("%d. %s - %.1f%% confidence\n", i+1, p.PredictedWinner, p.Confidence)
		pw.printf("   %s @ %s\n\n", p.AwayTeam, p.HomeTeam)
	}
	return len(picks), pw.err
}

// PrintAnalysis writes a human readable analysis.
func PrintAnalysis(w io.Writer, run *Run, a *Analysis) error {
	pw := &printer{w: w}
	pw.printf("Week %d - %d: %d games\n\n", run.Metadata.Week, run.Metadata.Year, a.Games)
	if a.Games == 0 {
		pw.printf("No predictions to analyze.\n")
		return pw.err
	}

	pw.printf("=== Prediction Statistics ===\n")
	pw.printf("Home Wins Predicted: %d (%.1f%%)\n", a.HomePicks, a.HomePct())
	pw.printf("Away Wins Predicted: %d (%.1f%%)\n", a.AwayPicks, a.AwayPct())
	pw.printf("High Confidence (>%.0f%%): %d games\n", HighConfidence, len(a.HighConfidence))
	pw.printf("Low Confidence (<%.0f%%): %d games\n\n", TossUpConfidence, len(a.TossUps))

	pw.printf("=== Statistical Analysis ===\n")
	pw.printf("Average Confidence: %.1f%%\n", a.MeanConfidence)
	pw.printf("Median Confidence: %.1f%%\n", a.MedianConfidence)
	pw.printf("Min Confidence: %.1f%%\n", a.MinConfidence)
	pw.printf("Max Confidence: %.1f%%\n", a.MaxConfidence)
	pw.printf("Average Home Win Probability: %.1f%%\n\n", a.MeanHomeWinProb)

	pw.printf("=== Games by Confidence Level ===\n")
	pw.printf("Very High (>85%%): %d games\n", a.Buckets.VeryHigh)
	pw.printf("High (75-85%%): %d games\n", a.Buckets.High)
	pw.printf("Medium (60-75%%): %d games\n", a.Buckets.Medium)
	pw.printf("Low (50-60%%): %d games\n", a.Buckets.Low)
	pw.printf("Toss-Up (50-55%%): %d games\n\n", a.Buckets.TossUp)

	if len(a.HighConfidence) > 0 {
		pw.printf("=== High Confidence Predictions ===\n")
		for _, p := range a.HighConfidence {
			pw.printf("%s @ %s\n", p.AwayTeam, p.HomeTeam)
			pw.printf("  Winner: %s (%.1f%% confidence)\n", p.PredictedWinner, p.Confidence)
		}
		pw.printf("\n")
	}
	if len(a.TossUps) > 0 {
		pw.printf("=== Toss-Up Games (<%.0f%% confidence) ===\n", TossUpConfidence)
		for _, p := range a.TossUps {
			pw.printf("%s @ %s\n", p.AwayTeam, p.HomeTeam)
			pw.printf("  Winner: %s (%.1f%% confidence)\n", p.PredictedWinner, p.Confidence)
		}
		pw.printf("\n")
	}
	return pw.err
}

func sortByConfidence(ps []Prediction, desc bool) {
	sort.SliceStable(ps, func(i, j int) bool {
		if desc {
			return ps[i].Confidence > ps[j].Confidence
		}
		return ps[i].Confidence < ps[j].Confidence
	})
}

func margin(p Prediction) float64 {
	return math.Abs(p.HomeWinProbability - p.AwayWinProbability)
}

// median averages the two middle values for even lengths.
func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// printer remembers the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
