package ml

import (
	"math/rand/v2"
	"sort"
)

// Node is one node of a fitted tree. Leaves have Left == -1.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
	Samples   int     `json:"n"`
}

func (n Node) isLeaf() bool {
	return n.Left < 0
}

// DecisionTree is a CART tree that splits on squared-error reduction.
// For 0/1 targets the squared-error decrease is half the Gini decrease, so the same
// tree serves as a Gini classifier (leaf Value is the fraction of positives) and as
// the regression learner inside gradient boosting.
type DecisionTree struct {
	MaxDepth        int `json:"max_depth"`
	MinSamplesSplit int `json:"min_samples_split"`
	MinSamplesLeaf  int `json:"min_samples_leaf"`
	// MaxFeatures is the number of features considered per split; 0 means all.
	MaxFeatures int `json:"max_features"`

	Nodes     []Node    `json:"nodes"`
	NFeatures int       `json:"n_features"`
	Gains     []float64 `json:"gains"`
}

// fit grows the tree on the rows of X selected by idx.
func (t *DecisionTree) fit(X [][]float64, target []float64, idx []int, rng *rand.Rand) {
	t.NFeatures = len(X[0])
	t.Nodes = t.Nodes[:0]
	t.Gains = make([]float64, t.NFeatures)
	if t.MinSamplesSplit < 2 {
		t.MinSamplesSplit = 2
	}
	if t.MinSamplesLeaf < 1 {
		t.MinSamplesLeaf = 1
	}

	b := &treeBuilder{
		tree:     t,
		X:        X,
		target:   target,
		rng:      rng,
		features: make([]int, t.NFeatures),
	}
	for i := range b.features {
		b.features[i] = i
	}
	work := make([]int, len(idx))
	copy(work, idx)
	b.grow(work, 0)
}

type treeBuilder struct {
	tree     *DecisionTree
	X        [][]float64
	target   []float64
	rng      *rand.Rand
	features []int
}

type split struct {
	feature   int
	threshold float64
	gain      float64
	nLeft     int
}

// grow adds the subtree for idx and returns its node index.
func (b *treeBuilder) grow(idx []int, depth int) int {
	t := b.tree
	sum, sumSq := b.moments(idx)
	n := float64(len(idx))
	sse := sumSq - sum*sum/n

	node := len(t.Nodes)
	t.Nodes = append(t.Nodes, Node{Feature: -1, Left: -1, Right: -1, Value: sum / n, Samples: len(idx)})

	if (t.MaxDepth > 0 && depth >= t.MaxDepth) || len(idx) < t.MinSamplesSplit || sse <= 1e-12 {
		return node
	}

	best, ok := b.bestSplit(idx, sum, sumSq)
	if !ok {
		return node
	}

	// Partition idx in place around the threshold.
	sort.Slice(idx, func(i, j int) bool {
		return b.X[idx[i]][best.feature] < b.X[idx[j]][best.feature]
	})
	left, right := idx[:best.nLeft], idx[best.nLeft:]

	t.Gains[best.feature] += best.gain
	t.Nodes[node].Feature = best.feature
	t.Nodes[node].Threshold = best.threshold

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	t.Nodes[node].Left = l
	t.Nodes[node].Right = r
	return node
}

func (b *treeBuilder) moments(idx []int) (sum, sumSq float64) {
	for _, i := range idx {
		v := b.target[i]
		sum += v
		sumSq += v * v
	}
	return sum, sumSq
}

// candidateFeatures returns the features to try at one split.
func (b *treeBuilder) candidateFeatures() []int {
	k := b.tree.MaxFeatures
	if k <= 0 || k >= len(b.features) || b.rng == nil {
		return b.features
	}
	b.rng.Shuffle(len(b.features), func(i, j int) {
		b.features[i], b.features[j] = b.features[j], b.features[i]
	})
	out := make([]int, k)
	copy(out, b.features[:k])
	return out
}

func (b *treeBuilder) bestSplit(idx []int, sum, sumSq float64) (split, bool) {
	n := len(idx)
	parent := sumSq - sum*sum/float64(n)
	minLeaf := b.tree.MinSamplesLeaf

	best := split{gain: 1e-12}
	found := false
	sorted := make([]int, n)

	for _, f := range b.candidateFeatures() {
		copy(sorted, idx)
		sort.Slice(sorted, func(i, j int) bool {
			return b.X[sorted[i]][f] < b.X[sorted[j]][f]
		})

		var lSum, lSq float64
		for i := 0; i < n-1; i++ {
			v := b.target[sorted[i]]
			lSum += v
			lSq += v * v

			nl := i + 1
			nr := n - nl
			if nl < minLeaf || nr < minLeaf {
				continue
			}
			cur, next := b.X[sorted[i]][f], b.X[sorted[i+1]][f]
			if cur == next {
				continue
			}

			rSum, rSq := sum-lSum, sumSq-lSq
			child := (lSq - lSum*lSum/float64(nl)) + (rSq - rSum*rSum/float64(nr))
			gain := parent - child
			if gain > best.gain {
				threshold := cur + (next-cur)/2
				if threshold >= next {
					threshold = cur
				}
				best = split{feature: f, threshold: threshold, gain: gain, nLeft: nl}
				found = true
			}
		}
	}
	return best, found
}

// leaf returns the index of the leaf that x falls into.
func (t *DecisionTree) leaf(x []float64) int {
	i := 0
	for !t.Nodes[i].isLeaf() {
		n := t.Nodes[i]
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return i
}

// predict returns the leaf value for x.
func (t *DecisionTree) predict(x []float64) float64 {
	return t.Nodes[t.leaf(x)].Value
}

// importances returns the per-feature impurity decrease normalized to sum to 1.
func (t *DecisionTree) importances() []float64 {
	return normalize(t.Gains)
}

// Depth returns the depth of the tree (a lone root has depth 0).
func (t *DecisionTree) Depth() int {
	if len(t.Nodes) == 0 {
		return 0
	}
	var walk func(i int) int
	walk = func(i int) int {
		n := t.Nodes[i]
		if n.isLeaf() {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	return walk(0)
}

func normalize(v []float64) []float64 {
	out := make([]float64, len(v))
	var total float64
	for _, x := range v {
		total += x
	}
	if total <= 0 {
		return out
	}
	for i, x := range v {
		out[i] = x / total
	}
	return out
}
