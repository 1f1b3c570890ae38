package report

import (
	"io"
	"strings"

	"github.com/zring/cfbmodel/internal/features"
	"github.com/zring/cfbmodel/internal/ml"
)

// BarWidth is the width of the console confidence bar.
const BarWidth = 30

var rule = strings.Repeat("=", 70)

// ConfidenceBar renders confidence (a percentage) as a bar of width cells.
func ConfidenceBar(confidence float64, width int) string {
	filled := int(confidence / 100 * float64(width))
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// PrintPredictions writes the week's predictions in console form.
func PrintPredictions(w io.Writer, run *Run) error {
	pw := &printer{w: w}
	md := run.Metadata
	if run.Empty() {
		pw.printf("No games found for week %d of the %d season.\n", md.Week, md.Year)
		pw.printf("\nPossible reasons:\n")
		pw.printf("  • Week number may be incorrect\n")
		pw.printf("  • Games may not be scheduled yet\n")
		pw.printf("  • Season may not have started\n")
		return pw.err
	}

	pw.printf("%s\n", rule)
	pw.printf("PREDICTIONS FOR WEEK %d - %d SEASON\n", md.Week, md.Year)
	pw.printf("%s\n\n", rule)
	for _, p := range run.Predictions {
		pw.printf("Game %d: %s @ %s\n", p.GameNumber, p.AwayTeam, p.HomeTeam)
		if p.StartDate != "" {
			pw.printf("  Date: %s\n", p.StartDate)
		}
		pw.printf("  Predicted Winner: %s\n", p.PredictedWinner)
		pw.printf("  Confidence: %s %.1f%%\n", ConfidenceBar(p.Confidence, BarWidth), p.Confidence)
		pw.printf("  Probability: Home %.1f%% | Away %.1f%%\n", p.HomeWinProbability, p.AwayWinProbability)
		if p.Spread != nil {
			pw.printf("  Spread: %+.1f\n", *p.Spread)
		}
		pw.printf("\n")
	}
	pw.printf("%s\n", rule)
	pw.printf("Generated %d predictions for week %d\n", len(run.Predictions), md.Week)
	pw.printf("%s\n", rule)
	return pw.err
}

// PrintTrainingSummary writes accuracy, cross-validation, the top features
// and the classification report.
func PrintTrainingSummary(w io.Writer, m *ml.TrainingMetrics) error {
	pw := &printer{w: w}
	pw.printf("\n=== Training Results ===\n")
	pw.printf("Training Samples: %d | Test Samples: %d\n", m.TrainSamples, m.TestSamples)
	pw.printf("Training Accuracy: %.2f%%\n", m.TrainAccuracy*100)
	pw.printf("Test Accuracy: %.2f%%\n", m.TestAccuracy*100)
	if len(m.CVScores) > 0 {
		pw.printf("Cross-Validation: %.2f%% (±%.2f%%)\n", m.CVMean*100, m.CVStd*100)
	} else {
		pw.printf("Cross-Validation: skipped (not enough samples)\n")
	}

	top := m.TopFeatures(5)
	if len(top) > 0 {
		pw.printf("\nTop %d Feature Importances:\n", len(top))
		for _, f := range top {
			pw.printf("  %-22s %.4f\n", f.Feature, f.Importance)
		}
	}

	pw.printf("\nClassification Report:\n%s\n", m.ClassificationReport.String())
	return pw.err
}

// PrintFeatureSummary writes per-column statistics for a feature table.
func PrintFeatureSummary(w io.Writer, t *features.Table) error {
	pw := &printer{w: w}
	pw.printf("\n=== Feature Summary ===\n%s\n", t)
	pw.printf("%-24s %12s %12s %12s %12s\n", "Feature", "Mean", "Std", "Min", "Max")
	for _, c := range t.Describe() {
		pw.printf("%-24s %12.2f %12.2f %12.2f %12.2f\n", c.Name, c.Mean, c.StdDev, c.Min, c.Max)
	}
	return pw.err
}
