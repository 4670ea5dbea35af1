package ml

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// TreeNode is one node of a fitted regression tree. Leaves have Feature -1.
type TreeNode struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
}

// RegressionTree is a CART tree grown on squared error
type RegressionTree struct {
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int

	Nodes       []TreeNode
	Importances []float64
	NFeatures   int
}

// NewRegressionTree returns a tree limited to maxDepth levels (0 = unlimited)
func NewRegressionTree(maxDepth int) *RegressionTree {
	return &RegressionTree{MaxDepth: maxDepth, MinSamplesSplit: 2, MinSamplesLeaf: 1}
}

// Fit grows the tree on every row of X
func (t *RegressionTree) Fit(X *mat.Dense, y []float64) error {
	r, _ := X.Dims()
	idx := make([]int, r)
	for i := range idx {
		idx[i] = i
	}
	return t.fitRows(X, y, idx)
}

// fitRows grows the tree on the given rows; rows may repeat (bootstrap samples)
func (t *RegressionTree) fitRows(X *mat.Dense, y []float64, rows []int) error {
	r, c := X.Dims()
	if r != len(y) {
		return fmt.Errorf("tree: %d rows but %d targets", r, len(y))
	}
	if len(rows) == 0 || c == 0 {
		return errors.New("tree: no samples or no features")
	}
	if t.MinSamplesSplit < 2 {
		t.MinSamplesSplit = 2
	}
	if t.MinSamplesLeaf < 1 {
		t.MinSamplesLeaf = 1
	}
	t.NFeatures = c
	t.Nodes = t.Nodes[:0]
	t.Importances = make([]float64, c)
	t.grow(X, y, rows, 0)
	normalize(t.Importances)
	return nil
}

func (t *RegressionTree) grow(X *mat.Dense, y []float64, rows []int, depth int) int {
	var sum, sumSq float64
	for _, i := range rows {
		sum += y[i]
		sumSq += y[i] * y[i]
	}
	n := float64(len(rows))
	node := len(t.Nodes)
	t.Nodes = append(t.Nodes, TreeNode{Feature: -1, Value: sum / n})

	parentSSE := sumSq - sum*sum/n
	if (t.MaxDepth > 0 && depth >= t.MaxDepth) || len(rows) < t.MinSamplesSplit || parentSSE <= 1e-12 {
		return node
	}

	split, ok := t.bestSplit(X, y, rows, parentSSE)
	if !ok {
		return node
	}

	var left, right []int
	for _, i := range rows {
		if X.At(i, split.feature) <= split.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	t.Importances[split.feature] += split.gain

	l := t.grow(X, y, left, depth+1)
	r := t.grow(X, y, right, depth+1)
	t.Nodes[node].Feature = split.feature
	t.Nodes[node].Threshold = split.threshold
	t.Nodes[node].Left = l
	t.Nodes[node].Right = r
	return node
}

type splitCandidate struct {
	feature   int
	threshold float64
	gain      float64
}

// bestSplit scans every feature for the threshold with the largest squared
// error reduction. Ties keep the lowest feature index and lowest threshold.
func (t *RegressionTree) bestSplit(X *mat.Dense, y []float64, rows []int, parentSSE float64) (splitCandidate, bool) {
	type pair struct{ x, y float64 }
	best := splitCandidate{}
	found := false
	pairs := make([]pair, len(rows))
	n := len(rows)

	for j := 0; j < t.NFeatures; j++ {
		for k, i := range rows {
			pairs[k] = pair{X.At(i, j), y[i]}
		}
		sort.SliceStable(pairs, func(a, b int) bool { return pairs[a].x < pairs[b].x })

		var totalSum, totalSq float64
		for _, p := range pairs {
			totalSum += p.y
			totalSq += p.y * p.y
		}

		var leftSum, leftSq float64
		for k := 0; k < n-1; k++ {
			leftSum += pairs[k].y
			leftSq += pairs[k].y * pairs[k].y
			if pairs[k].x == pairs[k+1].x {
				continue
			}
			nl, nr := k+1, n-k-1
			if nl < t.MinSamplesLeaf || nr < t.MinSamplesLeaf {
				continue
			}
			rightSum, rightSq := totalSum-leftSum, totalSq-leftSq
			sse := (leftSq - leftSum*leftSum/float64(nl)) + (rightSq - rightSum*rightSum/float64(nr))
			gain := parentSSE - sse
			if gain > 1e-12 && (!found || gain > best.gain) {
				best = splitCandidate{feature: j, threshold: (pairs[k].x + pairs[k+1].x) / 2, gain: gain}
				found = true
			}
		}
	}
	return best, found
}

// Predict returns one prediction per row of X
func (t *RegressionTree) Predict(X *mat.Dense) ([]float64, error) {
	if len(t.Nodes) == 0 {
		return nil, ErrNotFitted
	}
	r, c := X.Dims()
	if c != t.NFeatures {
		return nil, fmt.Errorf("tree: fitted on %d features, got %d", t.NFeatures, c)
	}
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		out[i] = t.predictRow(X, i)
	}
	return out, nil
}

func (t *RegressionTree) predictRow(X *mat.Dense, i int) float64 {
	n := 0
	for t.Nodes[n].Feature >= 0 {
		if X.At(i, t.Nodes[n].Feature) <= t.Nodes[n].Threshold {
			n = t.Nodes[n].Left
		} else {
			n = t.Nodes[n].Right
		}
	}
	return t.Nodes[n].Value
}

// FeatureImportances returns normalized impurity decrease per feature
func (t *RegressionTree) FeatureImportances() []float64 {
	return t.Importances
}

func normalize(v []float64) {
	var sum float64
	for _, x := range v {
		sum += x
	}
	if sum <= 0 {
		return
	}
	for i := range v {
		v[i] /= sum
	}
}
