package ml

import (
	"math"
	"math/rand/v2"
	"runtime"
	"sync"
)

// RandomForest is a bagged ensemble of CART trees with random feature subsets per split.
type RandomForest struct {
	NEstimators     int    `json:"n_estimators"`
	MaxDepth        int    `json:"max_depth"`
	MinSamplesSplit int    `json:"min_samples_split"`
	MaxFeatures     int    `json:"max_features"` // 0 selects sqrt(n_features)
	Bootstrap       bool   `json:"bootstrap"`
	Seed            uint64 `json:"seed"`

	// Workers bounds parallel tree fitting; 0 uses GOMAXPROCS.
	Workers int `json:"-"`

	Trees     []*DecisionTree `json:"trees"`
	NFeatures int             `json:"n_features"`
}

// NewRandomForest returns a forest configured from cfg.
func NewRandomForest(cfg *ModelConfig) *RandomForest {
	if cfg == nil {
		cfg = DefaultModelConfig(ModelTypeRandomForest)
	}
	return &RandomForest{
		NEstimators:     cfg.NEstimators,
		MaxDepth:        cfg.MaxDepth,
		MinSamplesSplit: cfg.MinSamplesSplit,
		MaxFeatures:     cfg.MaxFeatures,
		Bootstrap:       true,
		Seed:            cfg.RandomState,
		Workers:         cfg.Workers,
	}
}

// Fit trains the forest. Trees are fit concurrently; each tree draws from its own
// seeded source so results do not depend on scheduling.
func (f *RandomForest) Fit(X [][]float64, y []int) error {
	width, err := checkTraining(X, y)
	if err != nil {
		return err
	}
	nTrees := f.NEstimators
	if nTrees <= 0 {
		nTrees = 1
	}
	maxFeatures := f.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = max(1, int(math.Sqrt(float64(width))))
	}

	target := labelsToTarget(y)
	trees := make([]*DecisionTree, nTrees)

	workers := f.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = min(workers, nTrees)

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				rng := rand.New(rand.NewPCG(f.Seed, uint64(i)))
				idx := allRows(len(X))
				if f.Bootstrap {
					for j := range idx {
						idx[j] = rng.IntN(len(X))
					}
				}
				tree := &DecisionTree{
					MaxDepth:        f.MaxDepth,
					MinSamplesSplit: f.MinSamplesSplit,
					MaxFeatures:     maxFeatures,
				}
				tree.fit(X, target, idx, rng)
				trees[i] = tree
			}
		}()
	}
	for i := 0; i < nTrees; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	f.Trees = trees
	f.NFeatures = width
	return nil
}

// PredictProba averages the positive-class fraction of each tree's leaf.
func (f *RandomForest) PredictProba(X [][]float64) ([][2]float64, error) {
	if len(f.Trees) == 0 {
		return nil, ErrNotTrained
	}
	if err := checkInput(X, f.NFeatures); err != nil {
		return nil, err
	}
	out := make([][2]float64, len(X))
	n := float64(len(f.Trees))
	for i, x := range X {
		var p float64
		for _, t := range f.Trees {
			p += t.predict(x)
		}
		p /= n
		out[i] = [2]float64{1 - p, p}
	}
	return out, nil
}

// Predict returns the most probable class per row.
func (f *RandomForest) Predict(X [][]float64) ([]int, error) {
	proba, err := f.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return classesFromProba(proba), nil
}

// FeatureImportances is the mean of the per-tree normalized impurity decreases.
func (f *RandomForest) FeatureImportances() []float64 {
	if len(f.Trees) == 0 {
		return nil
	}
	sum := make([]float64, f.NFeatures)
	for _, t := range f.Trees {
		for j, v := range t.importances() {
			sum[j] += v
		}
	}
	return normalize(sum)
}

func (f *RandomForest) ensembleTrees() []*DecisionTree {
	return f.Trees
}
