package regression

import (
	"math/rand/v2"
	"slices"

	"github.com/arloliu/visco/format"
	"github.com/arloliu/visco/internal/hash"
)

// Node is one node of a flattened regression tree. Leaves have Feature == -1.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v"`
}

// Tree is a CART regression tree stored as a flat node slice rooted at 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Predict walks the tree. Samples with x[f] <= threshold go left.
func (t *Tree) Predict(x []float64) float64 {
	if len(t.Nodes) == 0 {
		return 0
	}

	i := 0
	for {
		n := &t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}

		var v float64
		if n.Feature < len(x) {
			v = x[n.Feature]
		}
		if v <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Forest is a bagged ensemble of regression trees; the prediction is the mean
// of the tree predictions.
type Forest struct {
	Trees    []Tree `json:"trees"`
	Features int    `json:"features"`
}

var _ Estimator = (*Forest)(nil)

func (f *Forest) Predict(x []float64) float64 {
	if len(f.Trees) == 0 {
		return 0
	}

	var sum float64
	for i := range f.Trees {
		sum += f.Trees[i].Predict(x)
	}

	return sum / float64(len(f.Trees))
}

func (f *Forest) Kind() format.RegressorKind { return format.RegressorForest }

func (f *Forest) NumFeatures() int { return f.Features }

// ForestFitter grows Trees bootstrap-sampled trees. All features are
// considered at every split. Each tree draws from its own PCG stream derived
// from Seed, so a fit is reproducible for a given seed and data order.
type ForestFitter struct {
	Trees    int
	MaxDepth int
	MinLeaf  int
	Seed     uint64
}

var _ Fitter = (*ForestFitter)(nil)

func (f *ForestFitter) Kind() format.RegressorKind { return format.RegressorForest }

func (f *ForestFitter) Fit(X [][]float64, y []float64) (Estimator, error) {
	n, p, err := checkShape(X, y)
	if err != nil {
		return nil, err
	}

	trees := max(f.Trees, 1)
	forest := &Forest{Trees: make([]Tree, trees), Features: p}
	sample := make([]int, n)

	for t := range trees {
		rng := rand.New(rand.NewPCG(f.Seed, hash.Seed(f.Seed, "tree")+uint64(t)))
		for i := range sample {
			sample[i] = rng.IntN(n)
		}

		b := treeBuilder{
			X:        X,
			y:        y,
			p:        p,
			maxDepth: max(f.MaxDepth, 1),
			minLeaf:  max(f.MinLeaf, 1),
		}
		b.build(slices.Clone(sample), 0)
		forest.Trees[t] = Tree{Nodes: b.nodes}
	}

	return forest, nil
}

type treeBuilder struct {
	X        [][]float64
	y        []float64
	p        int
	maxDepth int
	minLeaf  int
	nodes    []Node
}

func (b *treeBuilder) build(idx []int, depth int) int {
	id := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: -1, Value: b.mean(idx)})

	if depth >= b.maxDepth || len(idx) < 2*b.minLeaf {
		return id
	}

	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		return id
	}

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)

	b.nodes[id].Feature = feature
	b.nodes[id].Threshold = threshold
	b.nodes[id].Left = l
	b.nodes[id].Right = r

	return id
}

func (b *treeBuilder) mean(idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}

	var sum float64
	for _, i := range idx {
		sum += b.y[i]
	}

	return sum / float64(len(idx))
}

// bestSplit scans every feature for the threshold minimizing the summed
// squared error of the two children, honoring minLeaf on both sides.
func (b *treeBuilder) bestSplit(idx []int) (feature int, threshold float64, ok bool) {
	n := len(idx)

	var total, totalSq float64
	for _, i := range idx {
		total += b.y[i]
		totalSq += b.y[i] * b.y[i]
	}
	bestSSE := totalSq - total*total/float64(n) - 1e-12

	sorted := make([]int, n)
	for f := range b.p {
		copy(sorted, idx)
		slices.SortStableFunc(sorted, func(a, c int) int {
			switch {
			case b.X[a][f] < b.X[c][f]:
				return -1
			case b.X[a][f] > b.X[c][f]:
				return 1
			default:
				return 0
			}
		})

		var leftSum, leftSq float64
		for k := 1; k < n; k++ {
			yi := b.y[sorted[k-1]]
			leftSum += yi
			leftSq += yi * yi

			if k < b.minLeaf || n-k < b.minLeaf {
				continue
			}
			lo, hi := b.X[sorted[k-1]][f], b.X[sorted[k]][f]
			if lo == hi {
				continue
			}

			rightSum := total - leftSum
			rightSq := totalSq - leftSq
			sse := leftSq - leftSum*leftSum/float64(k) + rightSq - rightSum*rightSum/float64(n-k)
			if sse < bestSSE {
				bestSSE = sse
				feature = f
				threshold = lo + (hi-lo)/2
				ok = true
			}
		}
	}

	return feature, threshold, ok
}
