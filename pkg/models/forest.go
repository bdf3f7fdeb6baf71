package models

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ForestOptions configures a ForestModel.
type ForestOptions struct {
	// Features lists the input columns. Order matters: when two splits
	// reduce error equally the earlier column wins.
	Features []string

	Trees    int   // default 100
	Seed     int64 // bootstrap seed
	MaxDepth int   // 0 = unlimited
	MinLeaf  int   // default 1

	// Levels are the quantiles reported by Predict; default 0.1, 0.5, 0.9.
	Levels []float64
}

// Defaults used by the forecaster configuration.
const (
	DefaultTrees = 100
	DefaultSeed  = 42
)

// ForestModel is a bagged ensemble of regression trees (a random forest
// without feature subsampling). Each tree is grown on a bootstrap sample
// by greedy variance-reduction splits; the prediction is the mean over
// trees.
//
// Training draws from a generator seeded with Seed on every call, so two
// models with the same options and data predict identically.
type ForestModel struct {
	opts  ForestOptions
	trees []*treeNode
}

// NewForestModel creates an untrained forest.
func NewForestModel(opts ForestOptions) *ForestModel {
	if opts.Trees <= 0 {
		opts.Trees = DefaultTrees
	}
	if opts.MinLeaf <= 0 {
		opts.MinLeaf = 1
	}
	if len(opts.Levels) == 0 {
		opts.Levels = []float64{0.1, 0.5, 0.9}
	}
	return &ForestModel{opts: opts}
}

// Name returns the model identifier.
func (m *ForestModel) Name() string {
	return "forest"
}

// Train fits the ensemble on every row carrying all feature columns and the
// target.
func (m *ForestModel) Train(ctx context.Context, history FeatureFrame) error {
	if len(m.opts.Features) == 0 {
		return errors.New("forest: no feature columns configured")
	}
	x, y := matrix(history, m.opts.Features, true)
	if len(y) == 0 {
		return errors.New("forest: no training rows")
	}

	rng := rand.New(rand.NewSource(m.opts.Seed))
	trees := make([]*treeNode, 0, m.opts.Trees)
	n := len(y)
	for t := 0; t < m.opts.Trees; t++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		idx := make([]int, n)
		for i := range idx {
			idx[i] = rng.Intn(n)
		}
		b := treeBuilder{x: x, y: y, maxDepth: m.opts.MaxDepth, minLeaf: m.opts.MinLeaf}
		trees = append(trees, b.grow(idx, 0))
	}
	m.trees = trees
	return nil
}

// Predict returns the ensemble mean per grid row, with the configured
// quantiles of the per-tree predictions.
func (m *ForestModel) Predict(ctx context.Context, grid FeatureFrame) (Forecast, error) {
	if err := ctx.Err(); err != nil {
		return Forecast{}, err
	}
	if len(m.trees) == 0 {
		return Forecast{}, errors.New("forest: model not trained, call Train() first")
	}
	x, _ := matrix(grid, m.opts.Features, false)
	if len(x) != len(grid.Rows) {
		return Forecast{}, fmt.Errorf("forest: %d of %d grid rows lack feature columns", len(grid.Rows)-len(x), len(grid.Rows))
	}

	levels := m.opts.Levels
	values := make([]float64, len(x))
	quantiles := make(map[float64][]float64, len(levels))
	for _, q := range levels {
		quantiles[q] = make([]float64, len(x))
	}

	perTree := make([]float64, len(m.trees))
	for i, row := range x {
		for t, tree := range m.trees {
			perTree[t] = tree.predict(row)
		}
		values[i] = stat.Mean(perTree, nil)

		sorted := append([]float64(nil), perTree...)
		sort.Float64s(sorted)
		for _, q := range levels {
			quantiles[q][i] = stat.Quantile(q, stat.Empirical, sorted, nil)
		}
	}

	return Forecast{Values: values, Quantiles: quantiles}, nil
}

type treeNode struct {
	leaf      bool
	value     float64
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
}

func (n *treeNode) predict(row []float64) float64 {
	for !n.leaf {
		if row[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.value
}

type treeBuilder struct {
	x        [][]float64
	y        []float64
	maxDepth int
	minLeaf  int
}

// minGain ignores splits whose error reduction is float noise.
const minGain = 1e-9

func (b *treeBuilder) grow(idx []int, depth int) *treeNode {
	ys := make([]float64, len(idx))
	for i, j := range idx {
		ys[i] = b.y[j]
	}
	mean := stat.Mean(ys, nil)
	leaf := &treeNode{leaf: true, value: mean}

	if len(idx) < 2*b.minLeaf || (b.maxDepth > 0 && depth >= b.maxDepth) {
		return leaf
	}

	feature, threshold, ok := b.bestSplit(idx, ys)
	if !ok {
		return leaf
	}

	var left, right []int
	for _, j := range idx {
		if b.x[j][feature] <= threshold {
			left = append(left, j)
		} else {
			right = append(right, j)
		}
	}

	return &treeNode{
		feature:   feature,
		threshold: threshold,
		left:      b.grow(left, depth+1),
		right:     b.grow(right, depth+1),
	}
}

// bestSplit scans every feature for the threshold with the largest
// reduction in squared error. Ties keep the first candidate found.
func (b *treeBuilder) bestSplit(idx []int, ys []float64) (int, float64, bool) {
	n := len(idx)
	total := floats.Sum(ys)
	totalSq := floats.Dot(ys, ys)
	parentSSE := sse(totalSq, total, n)
	if parentSSE <= minGain {
		return 0, 0, false
	}

	bestGain := minGain
	bestFeature, bestThreshold := -1, 0.0

	order := make([]int, n)
	for f := range b.x[idx[0]] {
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, c int) bool {
			return b.x[idx[order[a]]][f] < b.x[idx[order[c]]][f]
		})

		var leftSum, leftSq float64
		for k := 0; k < n-1; k++ {
			yv := ys[order[k]]
			leftSum += yv
			leftSq += yv * yv

			cur := b.x[idx[order[k]]][f]
			next := b.x[idx[order[k+1]]][f]
			if cur == next {
				continue
			}
			nl, nr := k+1, n-k-1
			if nl < b.minLeaf || nr < b.minLeaf {
				continue
			}

			rightSum := total - leftSum
			rightSq := totalSq - leftSq
			gain := parentSSE - sse(leftSq, leftSum, nl) - sse(rightSq, rightSum, nr)
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = (cur + next) / 2
			}
		}
	}

	return bestFeature, bestThreshold, bestFeature >= 0
}

// sse is the sum of squared deviations from the mean given the sum of
// squares and the sum.
func sse(sumSq, sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return math.Max(0, sumSq-sum*sum/float64(n))
}
