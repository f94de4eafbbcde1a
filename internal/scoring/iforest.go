package scoring

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// ForestConfig parameterizes an isolation forest.
type ForestConfig struct {
	Trees         int     `koanf:"trees"`
	MaxSamples    int     `koanf:"max_samples"`
	Contamination float64 `koanf:"contamination"`
	Seed          int64   `koanf:"seed"`
}

// DefaultForestConfig matches the settings the service was calibrated with.
func DefaultForestConfig() ForestConfig {
	return ForestConfig{
		Trees:         100,
		MaxSamples:    256,
		Contamination: 0.05,
		Seed:          42,
	}
}

type itreeNode struct {
	feature   int
	threshold float64
	left      int
	right     int
	size      int
}

func (n itreeNode) isLeaf() bool { return n.left < 0 }

type isolationTree struct {
	nodes []itreeNode
}

func (t *isolationTree) pathLength(x []float64) float64 {
	i, depth := 0, 0
	for {
		n := t.nodes[i]
		if n.isLeaf() {
			return float64(depth) + averagePathLength(n.size)
		}
		if x[n.feature] <= n.threshold {
			i = n.left
		} else {
			i = n.right
		}
		depth++
	}
}

func (t *isolationTree) grow(rows [][]float64, idx []int, depth, maxDepth int, rng *rand.Rand) int {
	id := len(t.nodes)
	t.nodes = append(t.nodes, itreeNode{left: -1, right: -1, size: len(idx)})
	if depth >= maxDepth || len(idx) <= 1 {
		return id
	}

	// only features that still vary inside this node can split it
	width := len(rows[idx[0]])
	var candidates []int
	lows := make([]float64, width)
	highs := make([]float64, width)
	for f := 0; f < width; f++ {
		lo, hi := rows[idx[0]][f], rows[idx[0]][f]
		for _, i := range idx[1:] {
			lo = math.Min(lo, rows[i][f])
			hi = math.Max(hi, rows[i][f])
		}
		lows[f], highs[f] = lo, hi
		if hi > lo {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		return id
	}

	f := candidates[rng.IntN(len(candidates))]
	threshold := lows[f] + rng.Float64()*(highs[f]-lows[f])
	if threshold >= highs[f] {
		threshold = lows[f]
	}

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if rows[i][f] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := t.grow(rows, left, depth+1, maxDepth, rng)
	r := t.grow(rows, right, depth+1, maxDepth, rng)
	t.nodes[id].feature = f
	t.nodes[id].threshold = threshold
	t.nodes[id].left = l
	t.nodes[id].right = r
	return id
}

// IsolationForest is an ensemble of random isolation trees. It is read-only
// after FitIsolationForest returns.
type IsolationForest struct {
	trees      []*isolationTree
	sampleSize int
	nFeatures  int
	offset     float64
}

// FitIsolationForest trains a forest on rows. Every row must have the same
// width and only finite values.
func FitIsolationForest(rows [][]float64, cfg ForestConfig) (*IsolationForest, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("isolation forest: no training rows")
	}
	if cfg.Trees <= 0 || cfg.MaxSamples <= 0 {
		return nil, fmt.Errorf("isolation forest: trees and max_samples must be positive")
	}
	if cfg.Contamination <= 0 || cfg.Contamination > 0.5 {
		return nil, fmt.Errorf("isolation forest: contamination must be in (0, 0.5], got %v", cfg.Contamination)
	}
	width := len(rows[0])
	if width == 0 {
		return nil, fmt.Errorf("isolation forest: rows have no features")
	}
	for i, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("isolation forest: row %d has %d features, want %d", i, len(row), width)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("isolation forest: row %d contains a non-finite value", i)
			}
		}
	}

	psi := min(cfg.MaxSamples, len(rows))
	maxDepth := int(math.Ceil(math.Log2(float64(max(psi, 2)))))

	seed := uint64(cfg.Seed)
	master := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	forest := &IsolationForest{
		trees:      make([]*isolationTree, cfg.Trees),
		sampleSize: psi,
		nFeatures:  width,
	}
	for t := range forest.trees {
		rng := rand.New(rand.NewPCG(master.Uint64(), master.Uint64()))
		sample := rng.Perm(len(rows))[:psi]
		tree := &isolationTree{nodes: make([]itreeNode, 0, 2*psi)}
		tree.grow(rows, sample, 0, maxDepth, rng)
		forest.trees[t] = tree
	}

	scores := make([]float64, len(rows))
	for i, row := range rows {
		scores[i] = forest.ScoreSamples(row)
	}
	forest.offset = percentile(scores, 100*cfg.Contamination)
	return forest, nil
}

// ScoreSamples returns the negated anomaly score in [-1, 0). Lower means more
// anomalous.
func (f *IsolationForest) ScoreSamples(x []float64) float64 {
	total := 0.0
	for _, t := range f.trees {
		total += t.pathLength(x)
	}
	norm := averagePathLength(f.sampleSize)
	if norm == 0 {
		norm = 1
	}
	return -math.Pow(2, -(total/float64(len(f.trees)))/norm)
}

// Decision shifts ScoreSamples by the contamination offset so that negative
// values are outliers.
func (f *IsolationForest) Decision(x []float64) float64 {
	return f.ScoreSamples(x) - f.offset
}

// Offset is the contamination threshold subtracted by Decision.
func (f *IsolationForest) Offset() float64 { return f.offset }

// Features is the expected input width.
func (f *IsolationForest) Features() int { return f.nFeatures }
