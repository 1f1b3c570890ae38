package ml

import (
	"math"
	"math/rand/v2"
)

// probability clamp for the log-odds prior
const epsilon = 1e-15

// GradientBoosting fits additive regression trees to the log-loss gradient.
type GradientBoosting struct {
	NEstimators     int     `json:"n_estimators"`
	MaxDepth        int     `json:"max_depth"`
	MinSamplesSplit int     `json:"min_samples_split"`
	LearningRate    float64 `json:"learning_rate"`
	// Subsample is the fraction of rows drawn (without replacement) for each stage.
	Subsample float64 `json:"subsample"`
	Seed      uint64  `json:"seed"`

	Init      float64         `json:"init"`
	Trees     []*DecisionTree `json:"trees"`
	NFeatures int             `json:"n_features"`
}

// NewGradientBoosting returns a booster configured from cfg.
func NewGradientBoosting(cfg *ModelConfig) *GradientBoosting {
	if cfg == nil {
		cfg = DefaultModelConfig(ModelTypeGradientBoosting)
	}
	return &GradientBoosting{
		NEstimators:     cfg.NEstimators,
		MaxDepth:        cfg.MaxDepth,
		MinSamplesSplit: cfg.MinSamplesSplit,
		LearningRate:    cfg.LearningRate,
		Subsample:       cfg.Subsample,
		Seed:            cfg.RandomState,
	}
}

// Fit trains the booster stage by stage.
func (g *GradientBoosting) Fit(X [][]float64, y []int) error {
	width, err := checkTraining(X, y)
	if err != nil {
		return err
	}
	stages := g.NEstimators
	if stages <= 0 {
		stages = 1
	}
	lr := g.LearningRate
	if lr <= 0 {
		lr = 0.1
	}

	n := len(X)
	target := labelsToTarget(y)

	var pos float64
	for _, v := range target {
		pos += v
	}
	prior := math.Min(math.Max(pos/float64(n), epsilon), 1-epsilon)
	g.Init = math.Log(prior / (1 - prior))

	raw := make([]float64, n)
	for i := range raw {
		raw[i] = g.Init
	}

	rng := rand.New(rand.NewPCG(g.Seed, 0))
	residual := make([]float64, n)
	prob := make([]float64, n)
	trees := make([]*DecisionTree, 0, stages)

	for s := 0; s < stages; s++ {
		for i := range raw {
			prob[i] = sigmoid(raw[i])
			residual[i] = target[i] - prob[i]
		}

		idx := g.sampleRows(n, rng)
		tree := &DecisionTree{
			MaxDepth:        g.MaxDepth,
			MinSamplesSplit: g.MinSamplesSplit,
		}
		tree.fit(X, residual, idx, rng)
		newtonStep(tree, X, residual, prob, idx)

		for i, x := range X {
			raw[i] += lr * tree.predict(x)
		}
		trees = append(trees, tree)
	}

	g.LearningRate = lr
	g.Trees = trees
	g.NFeatures = width
	return nil
}

func (g *GradientBoosting) sampleRows(n int, rng *rand.Rand) []int {
	if g.Subsample <= 0 || g.Subsample >= 1 {
		return allRows(n)
	}
	k := max(1, int(g.Subsample*float64(n)))
	perm := rng.Perm(n)
	return perm[:k]
}

// newtonStep replaces each leaf value with sum(residual) / sum(p(1-p)) over the
// samples that reached it.
func newtonStep(tree *DecisionTree, X [][]float64, residual, prob []float64, idx []int) {
	num := make([]float64, len(tree.Nodes))
	den := make([]float64, len(tree.Nodes))
	for _, i := range idx {
		leaf := tree.leaf(X[i])
		num[leaf] += residual[i]
		den[leaf] += prob[i] * (1 - prob[i])
	}
	for j := range tree.Nodes {
		if !tree.Nodes[j].isLeaf() {
			continue
		}
		if math.Abs(den[j]) < 1e-150 {
			tree.Nodes[j].Value = 0
			continue
		}
		tree.Nodes[j].Value = num[j] / den[j]
	}
}

func (g *GradientBoosting) decision(x []float64) float64 {
	f := g.Init
	for _, t := range g.Trees {
		f += g.LearningRate * t.predict(x)
	}
	return f
}

// PredictProba returns sigmoid of the additive log-odds.
func (g *GradientBoosting) PredictProba(X [][]float64) ([][2]float64, error) {
	if len(g.Trees) == 0 {
		return nil, ErrNotTrained
	}
	if err := checkInput(X, g.NFeatures); err != nil {
		return nil, err
	}
	out := make([][2]float64, len(X))
	for i, x := range X {
		p := sigmoid(g.decision(x))
		out[i] = [2]float64{1 - p, p}
	}
	return out, nil
}

// Predict returns the most probable class per row.
func (g *GradientBoosting) Predict(X [][]float64) ([]int, error) {
	proba, err := g.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return classesFromProba(proba), nil
}

// FeatureImportances is the mean of the per-stage normalized squared-error decreases.
func (g *GradientBoosting) FeatureImportances() []float64 {
	if len(g.Trees) == 0 {
		return nil
	}
	sum := make([]float64, g.NFeatures)
	for _, t := range g.Trees {
		for j, v := range t.importances() {
			sum[j] += v
		}
	}
	return normalize(sum)
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func (g *GradientBoosting) ensembleTrees() []*DecisionTree {
	return g.Trees
}
