package detect

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// learner is the contract each unsupervised anomaly learner satisfies.
// fit trains on assumed-clean samples only; judge scores one sample with
// higher meaning more anomalous and flags it against the learner's own
// contamination-derived threshold.
type learner interface {
	fit(samples [][]float64) error
	judge(sample []float64) (flagged bool, score float64)
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// ---------------------------------------------------------------------
// Isolation forest

const (
	defaultIsoTrees     = 100
	defaultIsoSubsample = 256
)

type isoNode struct {
	feature int
	split   float64
	left    *isoNode
	right   *isoNode
	size    int // leaf only
}

// isolationForest isolates anomalies with random axis-parallel splits:
// outliers separate in few splits, giving short average path lengths and
// scores near 1.
type isolationForest struct {
	trees         int
	subsample     int
	seed          int64
	contamination float64

	roots     []*isoNode
	psi       int
	threshold float64
}

func newIsolationForest(seed int64, contamination float64) *isolationForest {
	return &isolationForest{
		trees:         defaultIsoTrees,
		subsample:     defaultIsoSubsample,
		seed:          seed,
		contamination: contamination,
	}
}

func (f *isolationForest) fit(samples [][]float64) error {
	n := len(samples)
	if n < 2 {
		return fmt.Errorf("isolation forest: need at least 2 samples, got %d", n)
	}
	rng := rand.New(rand.NewSource(f.seed))

	f.psi = f.subsample
	if f.psi > n {
		f.psi = n
	}
	maxDepth := int(math.Ceil(math.Log2(float64(f.psi)))) + 1

	f.roots = make([]*isoNode, f.trees)
	for t := 0; t < f.trees; t++ {
		perm := rng.Perm(n)
		sub := make([][]float64, f.psi)
		for i := 0; i < f.psi; i++ {
			sub[i] = samples[perm[i]]
		}
		f.roots[t] = buildIsoTree(sub, 0, maxDepth, rng)
	}

	scores := make([]float64, n)
	for i, s := range samples {
		scores[i] = f.anomalyScore(s)
	}
	f.threshold = quantile(scores, 1-f.contamination)
	return nil
}

func (f *isolationForest) judge(sample []float64) (bool, float64) {
	s := f.anomalyScore(sample)
	return s > f.threshold, s
}

func (f *isolationForest) anomalyScore(sample []float64) float64 {
	var sum float64
	for _, root := range f.roots {
		sum += pathLength(sample, root, 0)
	}
	avg := sum / float64(len(f.roots))
	return math.Pow(2, -avg/avgPathLength(f.psi))
}

func buildIsoTree(samples [][]float64, depth, maxDepth int, rng *rand.Rand) *isoNode {
	if len(samples) <= 1 || depth >= maxDepth {
		return &isoNode{size: len(samples)}
	}

	dim := len(samples[0])
	// Pick a feature with spread; give up after trying each once.
	order := rng.Perm(dim)
	for _, feat := range order {
		lo, hi := samples[0][feat], samples[0][feat]
		for _, s := range samples[1:] {
			if s[feat] < lo {
				lo = s[feat]
			}
			if s[feat] > hi {
				hi = s[feat]
			}
		}
		if hi <= lo {
			continue
		}

		split := lo + rng.Float64()*(hi-lo)
		var left, right [][]float64
		for _, s := range samples {
			if s[feat] < split {
				left = append(left, s)
			} else {
				right = append(right, s)
			}
		}
		if len(left) == 0 || len(right) == 0 {
			continue
		}
		return &isoNode{
			feature: feat,
			split:   split,
			left:    buildIsoTree(left, depth+1, maxDepth, rng),
			right:   buildIsoTree(right, depth+1, maxDepth, rng),
		}
	}
	// All duplicate points.
	return &isoNode{size: len(samples)}
}

func pathLength(sample []float64, node *isoNode, depth int) float64 {
	if node.left == nil && node.right == nil {
		return float64(depth) + avgPathLength(node.size)
	}
	if sample[node.feature] < node.split {
		return pathLength(sample, node.left, depth+1)
	}
	return pathLength(sample, node.right, depth+1)
}

// avgPathLength is c(n), the expected path length of an unsuccessful BST
// search among n points.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	h := math.Log(float64(n-1)) + 0.5772156649015329
	return 2*h - 2*float64(n-1)/float64(n)
}

// ---------------------------------------------------------------------
// Local outlier factor

const defaultLOFNeighbors = 10

// localOutlierFactor compares a sample's local reachability density with
// that of its nearest baseline neighbors; values well above 1 mean the
// sample is in a sparser region than its neighborhood.
type localOutlierFactor struct {
	k             int
	contamination float64

	train     [][]float64
	kdist     []float64
	lrd       []float64
	threshold float64
}

func newLocalOutlierFactor(contamination float64) *localOutlierFactor {
	return &localOutlierFactor{k: defaultLOFNeighbors, contamination: contamination}
}

func (l *localOutlierFactor) fit(samples [][]float64) error {
	n := len(samples)
	if n < 3 {
		return fmt.Errorf("lof: need at least 3 samples, got %d", n)
	}
	if l.k > n-1 {
		l.k = n - 1
	}

	l.train = samples
	l.kdist = make([]float64, n)
	knn := make([][]int, n)

	for i := 0; i < n; i++ {
		knn[i], l.kdist[i] = l.nearest(samples[i], i)
	}

	l.lrd = make([]float64, n)
	for i := 0; i < n; i++ {
		l.lrd[i] = l.reachDensity(samples[i], knn[i])
	}

	lofs := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for _, j := range knn[i] {
			sum += l.lrd[j]
		}
		lofs[i] = sum / (float64(len(knn[i])) * l.lrd[i])
	}

	l.threshold = quantile(lofs, 1-l.contamination)
	return nil
}

func (l *localOutlierFactor) judge(sample []float64) (bool, float64) {
	knn, _ := l.nearest(sample, -1)
	lrdSample := l.reachDensity(sample, knn)

	var sum float64
	for _, j := range knn {
		sum += l.lrd[j]
	}
	lof := sum / (float64(len(knn)) * lrdSample)
	return lof > l.threshold, lof
}

// nearest returns the k nearest training indices to sample (excluding
// index skip) and the k-distance.
func (l *localOutlierFactor) nearest(sample []float64, skip int) ([]int, float64) {
	type cand struct {
		idx  int
		dist float64
	}
	cands := make([]cand, 0, len(l.train))
	for j, t := range l.train {
		if j == skip {
			continue
		}
		cands = append(cands, cand{j, euclidean(sample, t)})
	}
	sort.Slice(cands, func(a, b int) bool {
		if cands[a].dist != cands[b].dist {
			return cands[a].dist < cands[b].dist
		}
		return cands[a].idx < cands[b].idx
	})

	k := l.k
	if k > len(cands) {
		k = len(cands)
	}
	idx := make([]int, k)
	for i := 0; i < k; i++ {
		idx[i] = cands[i].idx
	}
	return idx, cands[k-1].dist
}

// reachDensity is the local reachability density of sample relative to
// its neighbor set.
func (l *localOutlierFactor) reachDensity(sample []float64, knn []int) float64 {
	var sum float64
	for _, j := range knn {
		d := euclidean(sample, l.train[j])
		if l.kdist[j] > d {
			d = l.kdist[j]
		}
		sum += d
	}
	if sum < 1e-12 {
		sum = 1e-12 // coincident points: density saturates instead of dividing by zero
	}
	return float64(len(knn)) / sum
}

// ---------------------------------------------------------------------
// One-class boundary

// oneClassBoundary fits a minimal hypersphere around the clean samples:
// center at the mean, radius at the (1-contamination) distance quantile.
// Samples outside the boundary are flagged; score is distance over
// radius.
type oneClassBoundary struct {
	contamination float64

	center []float64
	radius float64
}

func newOneClassBoundary(contamination float64) *oneClassBoundary {
	return &oneClassBoundary{contamination: contamination}
}

func (o *oneClassBoundary) fit(samples [][]float64) error {
	n := len(samples)
	if n < 2 {
		return fmt.Errorf("one-class boundary: need at least 2 samples, got %d", n)
	}
	dim := len(samples[0])

	o.center = make([]float64, dim)
	for _, s := range samples {
		for i, v := range s {
			o.center[i] += v
		}
	}
	for i := range o.center {
		o.center[i] /= float64(n)
	}

	dists := make([]float64, n)
	for i, s := range samples {
		dists[i] = euclidean(s, o.center)
	}
	o.radius = quantile(dists, 1-o.contamination)
	if o.radius < 1e-12 {
		o.radius = 1e-12
	}
	return nil
}

func (o *oneClassBoundary) judge(sample []float64) (bool, float64) {
	d := euclidean(sample, o.center)
	return d > o.radius, d / o.radius
}
