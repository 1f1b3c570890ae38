// Package ml provides the game-outcome classifiers and the persisted model wrapper.
package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// ModelType identifies the classifier behind a Model.
type ModelType string

const (
	// ModelTypeRandomForest is a bagged ensemble of Gini trees.
	ModelTypeRandomForest ModelType = "random_forest"
	// ModelTypeGradientBoosting is log-loss gradient boosting over regression trees.
	ModelTypeGradientBoosting ModelType = "gradient_boosting"
)

// ParseModelType validates a model type name.
func ParseModelType(s string) (ModelType, error) {
	switch t := ModelType(s); t {
	case ModelTypeRandomForest, ModelTypeGradientBoosting:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownModelType, s)
	}
}

// FormatVersion is the version of the saved model envelope.
const FormatVersion = 1

// ModelConfig holds classifier hyper-parameters and evaluation settings.
type ModelConfig struct {
	NEstimators     int     `json:"n_estimators"`
	MaxDepth        int     `json:"max_depth"`
	MinSamplesSplit int     `json:"min_samples_split"`
	MaxFeatures     int     `json:"max_features,omitempty"`
	LearningRate    float64 `json:"learning_rate,omitempty"`
	Subsample       float64 `json:"subsample,omitempty"`
	RandomState     uint64  `json:"random_state"`

	// TestSize is the held-out fraction used by Train.
	TestSize float64 `json:"test_size"`
	// CVFolds is the number of cross-validation folds; values below 2 disable CV.
	CVFolds int `json:"cv_folds"`

	// Workers bounds parallel tree fitting.
	Workers int `json:"-"`
}

// DefaultModelConfig returns the defaults for a model type.
func DefaultModelConfig(t ModelType) *ModelConfig {
	cfg := &ModelConfig{
		RandomState: 42,
		TestSize:    0.2,
		CVFolds:     5,
	}
	switch t {
	case ModelTypeGradientBoosting:
		cfg.NEstimators = 100
		cfg.MaxDepth = 5
		cfg.MinSamplesSplit = 2
		cfg.LearningRate = 0.1
		cfg.Subsample = 1.0
	default:
		cfg.NEstimators = 100
		cfg.MaxDepth = 10
		cfg.MinSamplesSplit = 10
	}
	return cfg
}

// FeatureImportance pairs a feature name with its importance.
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// TrainingMetrics summarizes a training run.
type TrainingMetrics struct {
	TrainSamples         int                  `json:"train_samples"`
	TestSamples          int                  `json:"test_samples"`
	TrainAccuracy        float64              `json:"train_accuracy"`
	TestAccuracy         float64              `json:"test_accuracy"`
	CVScores             []float64            `json:"cv_scores,omitempty"`
	CVMean               float64              `json:"cv_mean"`
	CVStd                float64              `json:"cv_std"`
	FeatureImportance    []FeatureImportance  `json:"feature_importance"`
	ClassificationReport ClassificationReport `json:"classification_report"`
	ConfusionMatrix      ConfusionMatrix      `json:"confusion_matrix"`
}

// TopFeatures returns the n most important features.
func (m *TrainingMetrics) TopFeatures(n int) []FeatureImportance {
	if n > len(m.FeatureImportance) {
		n = len(m.FeatureImportance)
	}
	return m.FeatureImportance[:n]
}

// Model wraps a Classifier with its configuration and feature names and handles persistence.
type Model struct {
	modelType    ModelType
	config       *ModelConfig
	clf          Classifier
	featureNames []string
	trainedAt    time.Time
	samples      int
	metrics      *TrainingMetrics
	mu           sync.RWMutex
}

// NewModel creates an untrained model. A nil config selects the type's defaults.
func NewModel(t ModelType, config *ModelConfig) (*Model, error) {
	if _, err := ParseModelType(string(t)); err != nil {
		return nil, err
	}
	if config == nil {
		config = DefaultModelConfig(t)
	}
	return &Model{
		modelType: t,
		config:    config,
		clf:       newClassifier(t, config),
	}, nil
}

func newClassifier(t ModelType, cfg *ModelConfig) Classifier {
	if t == ModelTypeGradientBoosting {
		return NewGradientBoosting(cfg)
	}
	return NewRandomForest(cfg)
}

// Type returns the model type.
func (m *Model) Type() ModelType {
	return m.modelType
}

// Config returns the model configuration.
func (m *Model) Config() ModelConfig {
	return *m.config
}

// Train fits the model on a seeded train split, scores it on the held-out rows and
// cross-validates fresh classifiers over the full data set. A testSize of 0 uses
// the configured value.
func (m *Model) Train(X [][]float64, y []int, featureNames []string, testSize float64) (*TrainingMetrics, error) {
	width, err := checkTraining(X, y)
	if err != nil {
		return nil, err
	}
	if len(featureNames) != 0 && len(featureNames) != width {
		return nil, fmt.Errorf("%w: %d feature names for %d columns", ErrShapeMismatch, len(featureNames), width)
	}
	if testSize == 0 {
		testSize = m.config.TestSize
	}

	trainIdx, testIdx, err := TrainTestSplit(len(X), testSize, m.config.RandomState)
	if err != nil {
		return nil, err
	}
	Xtr, ytr := gatherRows(X, trainIdx), gatherLabels(y, trainIdx)
	Xte, yte := gatherRows(X, testIdx), gatherLabels(y, testIdx)

	clf := newClassifier(m.modelType, m.config)
	if err := clf.Fit(Xtr, ytr); err != nil {
		return nil, fmt.Errorf("fit %s: %w", m.modelType, err)
	}

	trainPred, err := clf.Predict(Xtr)
	if err != nil {
		return nil, err
	}
	testPred, err := clf.Predict(Xte)
	if err != nil {
		return nil, err
	}

	scores, err := CrossValidate(func() Classifier { return newClassifier(m.modelType, m.config) }, X, y, m.config.CVFolds)
	if err != nil {
		return nil, fmt.Errorf("cross-validate: %w", err)
	}
	cvMean, cvStd := MeanStd(scores)

	names := featureNames
	if len(names) == 0 {
		names = make([]string, width)
		for i := range names {
			names[i] = fmt.Sprintf("feature_%d", i)
		}
	}

	cm := NewConfusionMatrix(yte, testPred)
	metrics := &TrainingMetrics{
		TrainSamples:         len(trainIdx),
		TestSamples:          len(testIdx),
		TrainAccuracy:        Accuracy(ytr, trainPred),
		TestAccuracy:         Accuracy(yte, testPred),
		CVScores:             scores,
		CVMean:               cvMean,
		CVStd:                cvStd,
		FeatureImportance:    rankImportances(names, clf.FeatureImportances()),
		ClassificationReport: NewClassificationReport(cm),
		ConfusionMatrix:      cm,
	}

	m.mu.Lock()
	m.clf = clf
	m.featureNames = append([]string(nil), names...)
	m.trainedAt = time.Now().UTC()
	m.samples = len(trainIdx)
	m.metrics = metrics
	m.mu.Unlock()

	return metrics, nil
}

// Fit trains on all rows without holding any out.
func (m *Model) Fit(X [][]float64, y []int, featureNames []string) error {
	clf := newClassifier(m.modelType, m.config)
	if err := clf.Fit(X, y); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.clf = clf
	m.featureNames = append([]string(nil), featureNames...)
	m.trainedAt = time.Now().UTC()
	m.samples = len(X)
	return nil
}

// IsTrained reports whether the model can predict.
func (m *Model) IsTrained() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.trainedAt.IsZero()
}

// Predict returns 1 (home win) or 0 per row.
func (m *Model) Predict(X [][]float64) ([]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.trainedAt.IsZero() {
		return nil, ErrNotTrained
	}
	return m.clf.Predict(X)
}

// PredictProba returns [P(away win), P(home win)] per row.
func (m *Model) PredictProba(X [][]float64) ([][2]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.trainedAt.IsZero() {
		return nil, ErrNotTrained
	}
	return m.clf.PredictProba(X)
}

// FeatureNames returns the column names the model was trained on.
func (m *Model) FeatureNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.featureNames...)
}

// Metrics returns the metrics of the last Train call, or nil.
func (m *Model) Metrics() *TrainingMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics
}

// ModelInfo describes the model state.
type ModelInfo struct {
	ModelType       ModelType           `json:"model_type"`
	FeatureNames    []string            `json:"feature_names"`
	TrainedAt       time.Time           `json:"trained_at"`
	TrainingSamples int                 `json:"training_samples"`
	IsReady         bool                `json:"is_ready"`
	Config          ModelConfig         `json:"config"`
	Trees           int                 `json:"trees,omitempty"`
	MaxTreeDepth    int                 `json:"max_tree_depth,omitempty"`
	Importances     []FeatureImportance `json:"feature_importance,omitempty"`
}

// treeEnsemble is implemented by the tree-based classifiers.
type treeEnsemble interface {
	ensembleTrees() []*DecisionTree
}

// GetModelInfo returns information about the model state.
func (m *Model) GetModelInfo() *ModelInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info := &ModelInfo{
		ModelType:       m.modelType,
		FeatureNames:    append([]string(nil), m.featureNames...),
		TrainedAt:       m.trainedAt,
		TrainingSamples: m.samples,
		IsReady:         !m.trainedAt.IsZero(),
		Config:          *m.config,
	}
	if info.IsReady {
		info.Importances = rankImportances(m.featureNames, m.clf.FeatureImportances())
		if e, ok := m.clf.(treeEnsemble); ok {
			for _, t := range e.ensembleTrees() {
				info.Trees++
				info.MaxTreeDepth = max(info.MaxTreeDepth, t.Depth())
			}
		}
	}
	return info
}

type envelope struct {
	FormatVersion   int             `json:"format_version"`
	ModelType       ModelType       `json:"model_type"`
	FeatureNames    []string        `json:"feature_names"`
	TrainedAt       time.Time       `json:"trained_at"`
	TrainingSamples int             `json:"training_samples"`
	Config          *ModelConfig    `json:"config"`
	Model           json.RawMessage `json:"model"`
}

// Serialize encodes the trained model as a JSON envelope.
func (m *Model) Serialize() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.trainedAt.IsZero() {
		return nil, ErrNotTrained
	}

	body, err := json.Marshal(m.clf)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize classifier: %w", err)
	}
	return json.Marshal(envelope{
		FormatVersion:   FormatVersion,
		ModelType:       m.modelType,
		FeatureNames:    m.featureNames,
		TrainedAt:       m.trainedAt,
		TrainingSamples: m.samples,
		Config:          m.config,
		Model:           body,
	})
}

// Deserialize restores a model from Serialize output.
func Deserialize(data []byte) (*Model, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to deserialize model: %w", err)
	}
	if env.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("unsupported model format version %d", env.FormatVersion)
	}
	m, err := NewModel(env.ModelType, env.Config)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(env.Model, m.clf); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", env.ModelType, err)
	}
	if m.clf.FeatureImportances() == nil {
		return nil, fmt.Errorf("saved %s has no trees", env.ModelType)
	}

	m.featureNames = env.FeatureNames
	m.trainedAt = env.TrainedAt
	m.samples = env.TrainingSamples
	if m.trainedAt.IsZero() {
		m.trainedAt = time.Unix(0, 0).UTC()
	}
	return m, nil
}

// Save writes the model to path, creating parent directories.
func (m *Model) Save(path string) error {
	data, err := m.Serialize()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create model directory: %w", err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write model: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to move model into place: %w", err)
	}
	return nil
}

// Load reads a model saved with Save.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}
	return Deserialize(data)
}

// rankImportances pairs names with importances, most important first.
func rankImportances(names []string, importances []float64) []FeatureImportance {
	out := make([]FeatureImportance, 0, len(importances))
	for i, v := range importances {
		name := fmt.Sprintf("feature_%d", i)
		if i < len(names) {
			name = names[i]
		}
		if math.IsNaN(v) {
			v = 0
		}
		out = append(out, FeatureImportance{Feature: name, Importance: v})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Importance > out[j].Importance
	})
	return out
}
