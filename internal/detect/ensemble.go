package detect

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/Sang-Buster/Argus/internal/swarm"
)

// EnsembleConfig tunes the learning ensemble.
type EnsembleConfig struct {
	// VarianceRetention is the cumulative explained-variance fraction the
	// PCA projection must retain.
	VarianceRetention float64

	// Quorum is how many of the three learners must flag a node before
	// the ensemble does.
	Quorum int

	// Contamination is the assumed anomaly fraction used by each learner
	// to place its decision threshold on the clean training scores.
	Contamination float64

	// Seed drives every random choice so identical inputs always yield
	// identical models.
	Seed int64
}

// DefaultEnsembleConfig returns the evaluation calibration.
func DefaultEnsembleConfig() EnsembleConfig {
	return EnsembleConfig{
		VarianceRetention: 0.95,
		Quorum:            2,
		Contamination:     0.10,
		Seed:              42,
	}
}

type ensembleProfile struct {
	mean       []float64
	std        []float64
	components *mat.Dense // FeatureDim x k projection basis
	learners   []learner
}

// EnsembleDetector extracts per-node structural and temporal features,
// projects them onto the principal components of the clean baseline, and
// lets three unsupervised learners vote: isolation forest, local outlier
// factor and a one-class distance boundary. A node is flagged when at
// least Quorum learners agree.
type EnsembleDetector struct {
	cfg     EnsembleConfig
	profile atomic.Pointer[ensembleProfile]

	// Temporal context for delta features. Re-detecting the same snapshot
	// must not advance the context, so both the last-seen and the one
	// before it are kept.
	mu   sync.Mutex
	last *swarm.Snapshot
	prev *swarm.Snapshot
}

// NewEnsembleDetector creates an untrained ensemble detector.
func NewEnsembleDetector(cfg EnsembleConfig) *EnsembleDetector {
	def := DefaultEnsembleConfig()
	if cfg.VarianceRetention <= 0 || cfg.VarianceRetention > 1 {
		cfg.VarianceRetention = def.VarianceRetention
	}
	if cfg.Quorum <= 0 || cfg.Quorum > 3 {
		cfg.Quorum = def.Quorum
	}
	if cfg.Contamination <= 0 || cfg.Contamination >= 1 {
		cfg.Contamination = def.Contamination
	}
	return &EnsembleDetector{cfg: cfg}
}

// Name implements Detector.
func (d *EnsembleDetector) Name() string { return "ensemble" }

// Train builds the feature matrix over consecutive baseline snapshot
// pairs, standardizes it, fits the PCA basis retaining the configured
// variance, and trains all three learners on the projected rows.
func (d *EnsembleDetector) Train(snapshots []*swarm.Snapshot) error {
	if len(snapshots) < 2 {
		return fmt.Errorf("ensemble: need at least 2 baseline snapshots, got %d: %w",
			len(snapshots), ErrInsufficientBaseline)
	}

	var rows [][]float64
	for i, snap := range snapshots {
		var prev *swarm.Snapshot
		if i > 0 {
			prev = snapshots[i-1]
		}
		rows = append(rows, extractFeatures(snap, prev)...)
	}
	if len(rows) < 3 {
		return fmt.Errorf("ensemble: only %d feature rows in baseline: %w",
			len(rows), ErrInsufficientBaseline)
	}

	p := &ensembleProfile{
		mean: make([]float64, FeatureDim),
		std:  make([]float64, FeatureDim),
	}
	col := make([]float64, len(rows))
	for j := 0; j < FeatureDim; j++ {
		for i, r := range rows {
			col[i] = r[j]
		}
		p.mean[j] = mean(col)
		p.std[j] = stddev(col, p.mean[j])
		if p.std[j] < epsStd {
			p.std[j] = epsStd
		}
	}

	std := mat.NewDense(len(rows), FeatureDim, nil)
	for i, r := range rows {
		for j, v := range r {
			std.Set(i, j, (v-p.mean[j])/p.std[j])
		}
	}

	basis, err := principalBasis(std, d.cfg.VarianceRetention)
	if err != nil {
		return fmt.Errorf("ensemble: %w", err)
	}
	p.components = basis

	var projected mat.Dense
	projected.Mul(std, basis)
	samples := denseRows(&projected)

	p.learners = []learner{
		newIsolationForest(d.cfg.Seed, d.cfg.Contamination),
		newLocalOutlierFactor(d.cfg.Contamination),
		newOneClassBoundary(d.cfg.Contamination),
	}
	for _, l := range p.learners {
		if err := l.fit(samples); err != nil {
			return fmt.Errorf("ensemble: %w", err)
		}
	}

	d.profile.Store(p)
	return nil
}

// Detect implements Detector. Per-node score is the fraction of learners
// that flagged the node, so it takes values in {0, 1/3, 2/3, 1}.
func (d *EnsembleDetector) Detect(ctx context.Context, snap *swarm.Snapshot) (*Result, error) {
	p := d.profile.Load()
	if p == nil {
		return nil, fmt.Errorf("ensemble: %w", ErrNotTrained)
	}

	start := time.Now()
	res := newResult(d.Name(), snap)

	prev := d.temporalContext(snap)
	rows := extractFeatures(snap, prev)

	var maxScore float64
	for i, id := range snap.Nodes() {
		sample := p.project(rows[i])

		votes := 0
		for _, l := range p.learners {
			if flagged, _ := l.judge(sample); flagged {
				votes++
			}
		}
		score := float64(votes) / float64(len(p.learners))
		res.Verdicts[id] = Verdict{
			Flagged: votes >= d.cfg.Quorum,
			Score:   score,
		}
		if score > maxScore {
			maxScore = score
		}
	}

	res.GraphScore = maxScore
	res.GraphAnomalous = maxScore >= float64(d.cfg.Quorum)/float64(len(p.learners))
	res.Elapsed = time.Since(start)
	return res, nil
}

// temporalContext returns the snapshot preceding snap in the observed
// stream. Calling Detect repeatedly with the same snapshot keeps the
// context fixed so results stay identical.
func (d *EnsembleDetector) temporalContext(snap *swarm.Snapshot) *swarm.Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	if snap == d.last {
		return d.prev
	}
	d.prev, d.last = d.last, snap
	return d.prev
}

// project standardizes one raw feature row and maps it onto the PCA
// basis.
func (p *ensembleProfile) project(row []float64) []float64 {
	std := make([]float64, FeatureDim)
	for j, v := range row {
		std[j] = (v - p.mean[j]) / p.std[j]
	}
	_, k := p.components.Dims()
	out := make([]float64, k)
	for c := 0; c < k; c++ {
		var sum float64
		for j := 0; j < FeatureDim; j++ {
			sum += std[j] * p.components.At(j, c)
		}
		out[c] = sum
	}
	return out
}

// principalBasis fits PCA on the standardized matrix and returns the
// leading components covering at least the requested variance fraction.
// At least one component is always kept.
func principalBasis(m *mat.Dense, retention float64) (*mat.Dense, error) {
	var pc stat.PC
	if !pc.PrincipalComponents(m, nil) {
		return nil, fmt.Errorf("principal component factorization failed")
	}

	vars := pc.VarsTo(nil)
	var total float64
	for _, v := range vars {
		total += v
	}

	k := len(vars)
	if total > 0 {
		var cum float64
		for i, v := range vars {
			cum += v
			if cum/total >= retention {
				k = i + 1
				break
			}
		}
	}

	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	rows, _ := vecs.Dims()
	basis := mat.DenseCopyOf(vecs.Slice(0, rows, 0, k))
	return basis, nil
}

func denseRows(m *mat.Dense) [][]float64 {
	r, c := m.Dims()
	rows := make([][]float64, r)
	for i := 0; i < r; i++ {
		row := make([]float64, c)
		mat.Row(row, i, m)
		rows[i] = row
	}
	return rows
}
