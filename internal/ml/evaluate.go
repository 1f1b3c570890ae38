package ml

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// TrainTestSplit shuffles row indices with seed and holds out ceil(n*testSize) rows.
func TrainTestSplit(n int, testSize float64, seed uint64) (train, test []int, err error) {
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, fmt.Errorf("test size %.2f must be in (0, 1)", testSize)
	}
	nTest := int(math.Ceil(float64(n) * testSize))
	if n < 2 || nTest >= n {
		return nil, nil, fmt.Errorf("%w: %d rows cannot be split with test size %.2f", ErrShapeMismatch, n, testSize)
	}

	perm := rand.New(rand.NewPCG(seed, 0)).Perm(n)
	return perm[nTest:], perm[:nTest], nil
}

// StratifiedFolds assigns rows to k folds, dealing each class out in order so every
// fold gets a similar label balance.
func StratifiedFolds(y []int, k int) [][]int {
	folds := make([][]int, k)
	next := 0
	for _, class := range []int{0, 1} {
		for i, label := range y {
			if label != class {
				continue
			}
			folds[next%k] = append(folds[next%k], i)
			next++
		}
	}
	return folds
}

// CrossValidate fits a fresh classifier per fold and returns each fold's accuracy.
// It returns nil when there are fewer rows than folds.
func CrossValidate(newClassifier func() Classifier, X [][]float64, y []int, k int) ([]float64, error) {
	if k < 2 || len(X) < k {
		return nil, nil
	}
	folds := StratifiedFolds(y, k)
	scores := make([]float64, 0, k)
	for f, holdout := range folds {
		if len(holdout) == 0 {
			continue
		}
		var train []int
		for g, other := range folds {
			if g != f {
				train = append(train, other...)
			}
		}

		clf := newClassifier()
		if err := clf.Fit(gatherRows(X, train), gatherLabels(y, train)); err != nil {
			return nil, fmt.Errorf("fold %d: %w", f+1, err)
		}
		pred, err := clf.Predict(gatherRows(X, holdout))
		if err != nil {
			return nil, fmt.Errorf("fold %d: %w", f+1, err)
		}
		scores = append(scores, Accuracy(gatherLabels(y, holdout), pred))
	}
	return scores, nil
}

// MeanStd returns the mean and population standard deviation of scores.
func MeanStd(scores []float64) (float64, float64) {
	if len(scores) == 0 {
		return 0, 0
	}
	return stat.PopMeanStdDev(scores, nil)
}

// Accuracy is the fraction of matching labels.
func Accuracy(truth, pred []int) float64 {
	if len(truth) == 0 {
		return 0
	}
	correct := 0
	for i := range truth {
		if truth[i] == pred[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(truth))
}

// ConfusionMatrix is indexed [truth][predicted].
type ConfusionMatrix [2][2]int

// NewConfusionMatrix tallies truth against predictions.
func NewConfusionMatrix(truth, pred []int) ConfusionMatrix {
	var cm ConfusionMatrix
	for i := range truth {
		cm[truth[i]][pred[i]]++
	}
	return cm
}

// ClassMetrics are the per-class scores of a classification report.
type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1_score"`
	Support   int     `json:"support"`
}

// ClassificationReport summarizes precision and recall per class.
type ClassificationReport struct {
	Classes     [2]ClassMetrics `json:"classes"`
	Accuracy    float64         `json:"accuracy"`
	MacroAvg    ClassMetrics    `json:"macro_avg"`
	WeightedAvg ClassMetrics    `json:"weighted_avg"`
}

// NewClassificationReport computes the report from a confusion matrix.
// Undefined ratios (no predictions or no support) are 0.
func NewClassificationReport(cm ConfusionMatrix) ClassificationReport {
	var r ClassificationReport
	total := 0
	for c := 0; c < 2; c++ {
		tp := cm[c][c]
		predicted := cm[0][c] + cm[1][c]
		support := cm[c][0] + cm[c][1]
		m := ClassMetrics{
			Precision: ratio(tp, predicted),
			Recall:    ratio(tp, support),
			Support:   support,
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		r.Classes[c] = m
		total += support
	}
	r.Accuracy = ratio(cm[0][0]+cm[1][1], total)

	for _, m := range r.Classes {
		r.MacroAvg.Precision += m.Precision / 2
		r.MacroAvg.Recall += m.Recall / 2
		r.MacroAvg.F1 += m.F1 / 2
		if total > 0 {
			w := float64(m.Support) / float64(total)
			r.WeightedAvg.Precision += m.Precision * w
			r.WeightedAvg.Recall += m.Recall * w
			r.WeightedAvg.F1 += m.F1 * w
		}
	}
	r.MacroAvg.Support = total
	r.WeightedAvg.Support = total
	return r
}

// String renders the report as a fixed-width table.
func (r ClassificationReport) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%14s %9s %9s %9s %9s\n\n", "", "precision", "recall", "f1-score", "support")
	for c, m := range r.Classes {
		fmt.Fprintf(&sb, "%14d %9.2f %9.2f %9.2f %9d\n", c, m.Precision, m.Recall, m.F1, m.Support)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "%14s %9s %9s %9.2f %9d\n", "accuracy", "", "", r.Accuracy, r.MacroAvg.Support)
	fmt.Fprintf(&sb, "%14s %9.2f %9.2f %9.2f %9d\n", "macro avg", r.MacroAvg.Precision, r.MacroAvg.Recall, r.MacroAvg.F1, r.MacroAvg.Support)
	fmt.Fprintf(&sb, "%14s %9.2f %9.2f %9.2f %9d\n", "weighted avg", r.WeightedAvg.Precision, r.WeightedAvg.Recall, r.WeightedAvg.F1, r.WeightedAvg.Support)
	return sb.String()
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func gatherRows(X [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = X[j]
	}
	return out
}

func gatherLabels(y []int, idx []int) []int {
	out := make([]int, len(idx))
	for i, j := range idx {
		out[i] = y[j]
	}
	return out
}
