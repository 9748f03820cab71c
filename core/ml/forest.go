package ml

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// ForestConfig holds random forest hyperparameters.
type ForestConfig struct {
	Trees    int
	MaxDepth int
	MinLeaf  int
	Seed     int64
}

// DefaultForestConfig mirrors the hyperparameters the system has always
// trained with.
func DefaultForestConfig() ForestConfig {
	return ForestConfig{Trees: 50, MaxDepth: 10, MinLeaf: 2, Seed: 42}
}

// Node is one decision tree node. Leaves carry a value distribution:
// per-class probabilities for classification, a single mean for
// regression. Fields are exported for gob serialization.
type Node struct {
	Feature   int
	Threshold float64
	Left      *Node
	Right     *Node
	Dist      []float64
}

func (n *Node) isLeaf() bool { return n.Left == nil }

func (n *Node) eval(x []float64) []float64 {
	for !n.isLeaf() {
		if x[n.Feature] <= n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n.Dist
}

// Forest is a bagged ensemble of CART trees. Classes is nil for
// regression forests.
type Forest struct {
	Trees   []*Node
	Classes []string
}

// TrainRegressor fits a random forest on X with continuous targets y.
func TrainRegressor(X *mat.Dense, y []float64, cfg ForestConfig) *Forest {
	b := newBuilder(X, y, 0, cfg)
	return &Forest{Trees: b.fit()}
}

// TrainClassifier fits a random forest on X with string labels. Class
// order is the sorted set of distinct labels.
func TrainClassifier(X *mat.Dense, labels []string, cfg ForestConfig) *Forest {
	classes := distinctSorted(labels)
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	y := make([]float64, len(labels))
	for i, l := range labels {
		y[i] = float64(index[l])
	}
	b := newBuilder(X, y, len(classes), cfg)
	return &Forest{Trees: b.fit(), Classes: classes}
}

// Predict returns the ensemble regression estimate for one feature
// vector. For classification forests it returns the index of the most
// probable class.
func (f *Forest) Predict(x []float64) float64 {
	if f.Classes != nil {
		proba := f.PredictProba(x)
		best := 0
		for i := range proba {
			if proba[i] > proba[best] {
				best = i
			}
		}
		return float64(best)
	}
	sum := 0.0
	for _, t := range f.Trees {
		sum += t.eval(x)[0]
	}
	return sum / float64(len(f.Trees))
}

// PredictClass returns the most probable class label.
func (f *Forest) PredictClass(x []float64) string {
	return f.Classes[int(f.Predict(x))]
}

// PredictProba returns per-class probabilities averaged over the trees,
// ordered like Classes.
func (f *Forest) PredictProba(x []float64) []float64 {
	out := make([]float64, len(f.Classes))
	for _, t := range f.Trees {
		dist := t.eval(x)
		for i := range out {
			out[i] += dist[i]
		}
	}
	for i := range out {
		out[i] /= float64(len(f.Trees))
	}
	return out
}

// ClassProba returns the probability mass assigned to the given label,
// or 0 when the label was never seen in training.
func (f *Forest) ClassProba(x []float64, label string) float64 {
	for i, c := range f.Classes {
		if c == label {
			return f.PredictProba(x)[i]
		}
	}
	return 0
}

type builder struct {
	data    [][]float64
	target  []float64
	nClass  int // 0 for regression
	mtry    int
	maxDep  int
	minLeaf int
	nTrees  int
	rng     *rand.Rand
}

func newBuilder(X *mat.Dense, y []float64, nClass int, cfg ForestConfig) *builder {
	rows, cols := X.Dims()
	data := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		data[i] = X.RawRowView(i)
	}
	mtry := cols / 3
	if nClass > 0 {
		mtry = int(math.Sqrt(float64(cols)))
	}
	if mtry < 1 {
		mtry = 1
	}
	return &builder{
		data:    data,
		target:  y,
		nClass:  nClass,
		mtry:    mtry,
		maxDep:  cfg.MaxDepth,
		minLeaf: cfg.MinLeaf,
		nTrees:  cfg.Trees,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
	}
}

func (b *builder) fit() []*Node {
	n := len(b.data)
	trees := make([]*Node, b.nTrees)
	for t := 0; t < b.nTrees; t++ {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = b.rng.Intn(n)
		}
		trees[t] = b.grow(idx, 0)
	}
	return trees
}

func (b *builder) grow(idx []int, depth int) *Node {
	if depth >= b.maxDep || len(idx) < 2*b.minLeaf || b.pure(idx) {
		return b.leaf(idx)
	}
	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		return b.leaf(idx)
	}
	var left, right []int
	for _, i := range idx {
		if b.data[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) < b.minLeaf || len(right) < b.minLeaf {
		return b.leaf(idx)
	}
	return &Node{
		Feature:   feature,
		Threshold: threshold,
		Left:      b.grow(left, depth+1),
		Right:     b.grow(right, depth+1),
	}
}

func (b *builder) pure(idx []int) bool {
	first := b.target[idx[0]]
	for _, i := range idx[1:] {
		if b.target[i] != first {
			return false
		}
	}
	return true
}

func (b *builder) leaf(idx []int) *Node {
	if b.nClass > 0 {
		dist := make([]float64, b.nClass)
		for _, i := range idx {
			dist[int(b.target[i])]++
		}
		for c := range dist {
			dist[c] /= float64(len(idx))
		}
		return &Node{Dist: dist}
	}
	sum := 0.0
	for _, i := range idx {
		sum += b.target[i]
	}
	return &Node{Dist: []float64{sum / float64(len(idx))}}
}

// bestSplit scans a random feature subset for the split with the
// largest impurity decrease: gini for classification, variance for
// regression.
func (b *builder) bestSplit(idx []int) (int, float64, bool) {
	features := b.rng.Perm(len(b.data[idx[0]]))[:b.mtry]
	bestScore := math.Inf(1)
	bestFeature, bestThreshold := -1, 0.0

	order := make([]int, len(idx))
	for _, f := range features {
		copy(order, idx)
		sort.Slice(order, func(i, j int) bool { return b.data[order[i]][f] < b.data[order[j]][f] })
		score, threshold, ok := b.scanFeature(order, f)
		if ok && score < bestScore {
			bestScore = score
			bestFeature = f
			bestThreshold = threshold
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

func (b *builder) scanFeature(order []int, f int) (float64, float64, bool) {
	n := len(order)
	bestScore := math.Inf(1)
	bestThreshold := 0.0
	found := false

	if b.nClass > 0 {
		leftCounts := make([]float64, b.nClass)
		rightCounts := make([]float64, b.nClass)
		for _, i := range order {
			rightCounts[int(b.target[i])]++
		}
		for k := 0; k < n-1; k++ {
			c := int(b.target[order[k]])
			leftCounts[c]++
			rightCounts[c]--
			if b.data[order[k]][f] == b.data[order[k+1]][f] {
				continue
			}
			nl, nr := float64(k+1), float64(n-k-1)
			score := nl*gini(leftCounts, nl) + nr*gini(rightCounts, nr)
			if score < bestScore {
				bestScore = score
				bestThreshold = (b.data[order[k]][f] + b.data[order[k+1]][f]) / 2
				found = true
			}
		}
		return bestScore, bestThreshold, found
	}

	var leftSum, leftSq float64
	var rightSum, rightSq float64
	for _, i := range order {
		rightSum += b.target[i]
		rightSq += b.target[i] * b.target[i]
	}
	for k := 0; k < n-1; k++ {
		v := b.target[order[k]]
		leftSum += v
		leftSq += v * v
		rightSum -= v
		rightSq -= v * v
		if b.data[order[k]][f] == b.data[order[k+1]][f] {
			continue
		}
		nl, nr := float64(k+1), float64(n-k-1)
		score := (leftSq - leftSum*leftSum/nl) + (rightSq - rightSum*rightSum/nr)
		if score < bestScore {
			bestScore = score
			bestThreshold = (b.data[order[k]][f] + b.data[order[k+1]][f]) / 2
			found = true
		}
	}
	return bestScore, bestThreshold, found
}

func gini(counts []float64, total float64) float64 {
	g := 1.0
	for _, c := range counts {
		p := c / total
		g -= p * p
	}
	return g
}

func distinctSorted(labels []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	sort.Strings(out)
	return out
}
