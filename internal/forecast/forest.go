package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

const ForestRegressorName = "random_forest"

// ForestRegressor fits bagged CART regression trees (squared error, all
// features considered at every split).
type ForestRegressor struct {
	opts RegressorOptions
}

func NewForestRegressor(opts RegressorOptions) *ForestRegressor {
	def := DefaultRegressorOptions()
	if opts.Trees <= 0 {
		opts.Trees = def.Trees
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = def.MaxDepth
	}
	if opts.MinSamplesSplit < 2 {
		opts.MinSamplesSplit = 2
	}
	if opts.MinSamplesLeaf < 1 {
		opts.MinSamplesLeaf = 1
	}
	return &ForestRegressor{opts: opts}
}

func (r *ForestRegressor) Name() string {
	return ForestRegressorName
}

// Fit grows every tree on its own bootstrap sample. Tree i is seeded with
// Seed+i so a fit is reproducible regardless of scheduling.
func (r *ForestRegressor) Fit(ctx context.Context, x [][]float64, y []float64) (Oracle, error) {
	if err := validateTrainingSet(x, y); err != nil {
		return nil, err
	}

	trees := make([]regressionTree, r.opts.Trees)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range trees {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(r.opts.Seed + int64(i)))
			sample := make([]int, len(x))
			for j := range sample {
				sample[j] = rng.Intn(len(x))
			}

			b := &treeBuilder{
				x:        x,
				y:        y,
				maxDepth: r.opts.MaxDepth,
				minSplit: r.opts.MinSamplesSplit,
				minLeaf:  r.opts.MinSamplesLeaf,
			}
			b.grow(sample, 0)
			trees[i] = regressionTree{Nodes: b.nodes}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fit forest: %w", err)
	}

	return &Forest{trees: trees}, nil
}

func (r *ForestRegressor) Decode(payload []byte) (Oracle, error) {
	var doc forestJSON
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode forest: %w", err)
	}
	if len(doc.Trees) == 0 {
		return nil, fmt.Errorf("decode forest: no trees")
	}
	for i, t := range doc.Trees {
		if err := t.validate(); err != nil {
			return nil, fmt.Errorf("decode forest: tree %d: %w", i, err)
		}
	}
	return &Forest{trees: doc.Trees}, nil
}

// Forest is a fitted random forest; predictions average all trees.
type Forest struct {
	trees []regressionTree
}

type forestJSON struct {
	Trees []regressionTree `json:"trees"`
}

func (f *Forest) Predict(features []float64) float64 {
	var sum float64
	for i := range f.trees {
		sum += f.trees[i].predict(features)
	}
	return sum / float64(len(f.trees))
}

func (f *Forest) MarshalJSON() ([]byte, error) {
	return json.Marshal(forestJSON{Trees: f.trees})
}

// treeNode is a leaf when Feature is -1.
type treeNode struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v"`
}

type regressionTree struct {
	Nodes []treeNode `json:"nodes"`
}

func (t *regressionTree) predict(features []float64) float64 {
	i := 0
	for t.Nodes[i].Feature >= 0 {
		n := t.Nodes[i]
		if features[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return t.Nodes[i].Value
}

// validate checks that child links only point forward so predict terminates.
func (t *regressionTree) validate() error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("empty tree")
	}
	for i, n := range t.Nodes {
		if n.Feature < 0 {
			continue
		}
		if n.Feature >= len(FeatureNames) {
			return fmt.Errorf("node %d: feature %d out of range", i, n.Feature)
		}
		if n.Left <= i || n.Right <= i || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d: invalid children %d/%d", i, n.Left, n.Right)
		}
	}
	return nil
}

type treeBuilder struct {
	x        [][]float64
	y        []float64
	maxDepth int
	minSplit int
	minLeaf  int
	nodes    []treeNode
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	var sum float64
	for _, i := range idx {
		sum += b.y[i]
	}
	node := len(b.nodes)
	b.nodes = append(b.nodes, treeNode{Feature: -1, Value: sum / float64(len(idx))})

	if depth >= b.maxDepth || len(idx) < b.minSplit || len(idx) < 2*b.minLeaf {
		return node
	}

	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		return node
	}

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if b.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[node].Feature = feature
	b.nodes[node].Threshold = threshold
	b.nodes[node].Left = l
	b.nodes[node].Right = r
	return node
}

// bestSplit finds the split with the lowest summed squared error that keeps
// at least minLeaf samples on each side.
func (b *treeBuilder) bestSplit(idx []int) (int, float64, bool) {
	n := len(idx)
	var total, totalSq float64
	for _, i := range idx {
		total += b.y[i]
		totalSq += b.y[i] * b.y[i]
	}
	parentSSE := totalSq - total*total/float64(n)
	if parentSSE <= 1e-12 {
		return 0, 0, false
	}

	bestFeature, bestThreshold := -1, 0.0
	bestSSE := parentSSE - 1e-12
	sorted := make([]int, n)

	for f := 0; f < len(b.x[idx[0]]); f++ {
		copy(sorted, idx)
		sort.Slice(sorted, func(a, c int) bool {
			return b.x[sorted[a]][f] < b.x[sorted[c]][f]
		})

		var leftSum, leftSq float64
		for k := 1; k < n; k++ {
			yv := b.y[sorted[k-1]]
			leftSum += yv
			leftSq += yv * yv

			if k < b.minLeaf || n-k < b.minLeaf {
				continue
			}
			lo, hi := b.x[sorted[k-1]][f], b.x[sorted[k]][f]
			if lo == hi {
				continue
			}

			rightSum := total - leftSum
			rightSq := totalSq - leftSq
			sse := (leftSq - leftSum*leftSum/float64(k)) +
				(rightSq - rightSum*rightSum/float64(n-k))
			if sse < bestSSE {
				bestSSE = sse
				bestFeature = f
				bestThreshold = lo + (hi-lo)/2
				if bestThreshold >= hi {
					bestThreshold = lo
				}
			}
		}
	}

	return bestFeature, bestThreshold, bestFeature >= 0
}
