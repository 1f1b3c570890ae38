package ml

import "fmt"

// Classifier is a binary classifier over dense feature rows.
type Classifier interface {
	Fit(X [][]float64, y []int) error
	Predict(X [][]float64) ([]int, error)
	// PredictProba returns [P(class 0), P(class 1)] for each row.
	PredictProba(X [][]float64) ([][2]float64, error)
	// FeatureImportances returns importances normalized to sum to 1, or nil before Fit.
	FeatureImportances() []float64
}

// checkTraining validates a training set and returns its width.
func checkTraining(X [][]float64, y []int) (int, error) {
	if len(X) == 0 {
		return 0, fmt.Errorf("%w: no training rows", ErrShapeMismatch)
	}
	if len(X) != len(y) {
		return 0, fmt.Errorf("%w: %d rows but %d labels", ErrShapeMismatch, len(X), len(y))
	}
	width := len(X[0])
	if width == 0 {
		return 0, fmt.Errorf("%w: rows have no features", ErrShapeMismatch)
	}
	for i, row := range X {
		if len(row) != width {
			return 0, fmt.Errorf("%w: row %d has %d features, want %d", ErrShapeMismatch, i, len(row), width)
		}
		if y[i] != 0 && y[i] != 1 {
			return 0, fmt.Errorf("%w: row %d has label %d", ErrInvalidLabel, i, y[i])
		}
	}
	return width, nil
}

// checkInput validates prediction rows against the fitted width.
func checkInput(X [][]float64, width int) error {
	for i, row := range X {
		if len(row) != width {
			return fmt.Errorf("%w: row %d has %d features, model expects %d", ErrShapeMismatch, i, len(row), width)
		}
	}
	return nil
}

func labelsToTarget(y []int) []float64 {
	out := make([]float64, len(y))
	for i, v := range y {
		out[i] = float64(v)
	}
	return out
}

// classesFromProba picks class 1 when its probability is strictly greater than class 0's.
func classesFromProba(proba [][2]float64) []int {
	out := make([]int, len(proba))
	for i, p := range proba {
		if p[1] > p[0] {
			out[i] = 1
		}
	}
	return out
}

func allRows(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}
