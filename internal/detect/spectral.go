package detect

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/Sang-Buster/Argus/internal/swarm"
)

// SpectralConfig tunes the eigen-structure detector.
type SpectralConfig struct {
	// SubspaceDim is the number of low-eigenvalue eigenvectors (skipping
	// the trivial constant vector) spanning the structural subspace used
	// for per-node residuals.
	SubspaceDim int

	// ResidualThreshold flags a node when its residual z-score meets it.
	ResidualThreshold float64

	// DriftThreshold marks the whole graph anomalous when the maximum
	// absolute eigenvalue z-score meets it.
	DriftThreshold float64
}

// DefaultSpectralConfig returns the calibration used in evaluation runs.
func DefaultSpectralConfig() SpectralConfig {
	return SpectralConfig{
		SubspaceDim:       3,
		ResidualThreshold: 2.5,
		DriftThreshold:    3.0,
	}
}

type spectralProfile struct {
	eigMean []float64
	eigStd  []float64
	resMean float64
	resStd  float64
}

// SpectralDetector scores anomalies from Laplacian eigenvalue drift and
// eigenvector-subspace residuals. The eigenvalue signal judges the graph
// as a whole; the residual signal attributes anomalies to specific nodes.
//
// Residuals are taken against the current snapshot's own low-eigenvalue
// subspace (baseline and current node sets rarely coincide, so baseline
// eigenvectors have no stable row correspondence); the baseline
// contributes only the residual distribution the scores are z-scored
// against, never a subspace.
//
// When the current node count differs from the baseline's, eigenvalue
// vectors are compared over the first min(kBaseline, kCurrent) indices.
// This deterministic truncation is a documented approximation: it has not
// been validated against ground truth for large count drift, but count
// drift itself moves the compared spectrum, which bounds the blind spot.
type SpectralDetector struct {
	cfg     SpectralConfig
	profile atomic.Pointer[spectralProfile]
}

// NewSpectralDetector creates an untrained spectral detector.
func NewSpectralDetector(cfg SpectralConfig) *SpectralDetector {
	if cfg.SubspaceDim <= 0 {
		cfg.SubspaceDim = DefaultSpectralConfig().SubspaceDim
	}
	if cfg.ResidualThreshold <= 0 {
		cfg.ResidualThreshold = DefaultSpectralConfig().ResidualThreshold
	}
	if cfg.DriftThreshold <= 0 {
		cfg.DriftThreshold = DefaultSpectralConfig().DriftThreshold
	}
	return &SpectralDetector{cfg: cfg}
}

// Name implements Detector.
func (d *SpectralDetector) Name() string { return "spectral" }

// Train fits per-index eigenvalue statistics and the pooled node residual
// distribution from assumed-clean snapshots. Requires at least two
// non-empty snapshots; a fully zero-variance corpus is rejected because
// it makes z-scores undefined.
func (d *SpectralDetector) Train(snapshots []*swarm.Snapshot) error {
	if len(snapshots) < 2 {
		return fmt.Errorf("spectral: need at least 2 baseline snapshots, got %d: %w",
			len(snapshots), ErrInsufficientBaseline)
	}

	var (
		spectra   [][]float64
		residuals []float64
	)
	for _, snap := range snapshots {
		if snap.NodeCount() == 0 {
			continue
		}
		vals, vecs, err := symEig(snap.Laplacian())
		if err != nil {
			return fmt.Errorf("spectral: baseline eigendecomposition: %w", err)
		}
		spectra = append(spectra, vals)
		residuals = append(residuals, nodeResiduals(snap, vecs, d.cfg.SubspaceDim)...)
	}
	if len(spectra) < 2 {
		return fmt.Errorf("spectral: fewer than 2 non-empty baseline snapshots: %w",
			ErrInsufficientBaseline)
	}

	minLen := len(spectra[0])
	for _, vals := range spectra[1:] {
		if len(vals) < minLen {
			minLen = len(vals)
		}
	}

	p := &spectralProfile{
		eigMean: make([]float64, minLen),
		eigStd:  make([]float64, minLen),
	}
	col := make([]float64, len(spectra))
	varies := false
	for i := 0; i < minLen; i++ {
		for j, vals := range spectra {
			col[j] = vals[i]
		}
		p.eigMean[i] = mean(col)
		p.eigStd[i] = stddev(col, p.eigMean[i])
		if p.eigStd[i] >= epsStd {
			varies = true
		}
	}

	p.resMean = mean(residuals)
	p.resStd = stddev(residuals, p.resMean)
	if p.resStd >= epsStd {
		varies = true
	}
	if !varies {
		return fmt.Errorf("spectral: zero-variance baseline, z-scores undefined: %w",
			ErrInsufficientBaseline)
	}

	d.profile.Store(p)
	return nil
}

// Detect implements Detector. Per-node scores are residual z-scores;
// GraphScore is the maximum absolute eigenvalue z-score.
func (d *SpectralDetector) Detect(ctx context.Context, snap *swarm.Snapshot) (*Result, error) {
	p := d.profile.Load()
	if p == nil {
		return nil, fmt.Errorf("spectral: %w", ErrNotTrained)
	}

	start := time.Now()
	res := newResult(d.Name(), snap)

	n := snap.NodeCount()
	if n < 2 {
		// Eigen-analysis is trivial here; report zero scores rather than
		// dividing by zero.
		res.Elapsed = time.Since(start)
		return res, nil
	}

	vals, vecs, err := symEig(snap.Laplacian())
	if err != nil {
		return nil, fmt.Errorf("spectral: eigendecomposition: %w", err)
	}

	m := len(p.eigMean)
	if len(vals) < m {
		m = len(vals)
	}
	var maxAbsZ float64
	for i := 0; i < m; i++ {
		z := math.Abs(zscore(vals[i], p.eigMean[i], p.eigStd[i]))
		if z > maxAbsZ {
			maxAbsZ = z
		}
	}

	residuals := nodeResiduals(snap, vecs, d.cfg.SubspaceDim)
	for i, id := range snap.Nodes() {
		z := zscore(residuals[i], p.resMean, p.resStd)
		res.Verdicts[id] = Verdict{
			Flagged: z >= d.cfg.ResidualThreshold,
			Score:   z,
		}
	}

	res.GraphScore = maxAbsZ
	res.GraphAnomalous = maxAbsZ >= d.cfg.DriftThreshold
	res.Elapsed = time.Since(start)
	return res, nil
}

// symEig factorizes a Laplacian with the symmetric eigensolver. The
// general solver is never used: symmetry guarantees real, non-negative
// eigenvalues (ascending) and stable eigenvector ordering across runs.
func symEig(l *mat.SymDense) ([]float64, *mat.Dense, error) {
	var es mat.EigenSym
	if !es.Factorize(l, true) {
		return nil, nil, errors.New("symmetric eigendecomposition did not converge")
	}
	vals := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)
	return vals, &vecs, nil
}

// nodeResiduals computes, for each node, the norm of its Laplacian row
// component outside the low-eigenvalue eigenvector subspace (eigenvector
// columns 1..k, skipping the trivial constant vector). Nodes that moved
// structure out of the community subspace carry large residuals.
func nodeResiduals(snap *swarm.Snapshot, vecs *mat.Dense, subspaceDim int) []float64 {
	n := snap.NodeCount()
	residuals := make([]float64, n)
	if n < 2 {
		return residuals
	}

	k := subspaceDim
	if k > n-1 {
		k = n - 1
	}

	l := snap.Laplacian()
	u := vecs.Slice(0, n, 1, 1+k)

	// R = L - U Uᵀ L: the part of each row not explained by the subspace.
	var proj mat.Dense
	proj.Product(u, u.T(), l)
	var r mat.Dense
	r.Sub(l, &proj)

	for i := 0; i < n; i++ {
		var sum float64
		for j := 0; j < n; j++ {
			v := r.At(i, j)
			sum += v * v
		}
		residuals[i] = math.Sqrt(sum)
	}
	return residuals
}
