package detect

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Sang-Buster/Argus/internal/swarm"
)

// Composite weights: degree and betweenness most directly reflect the
// topological insertion of foreign nodes; closeness is noisier under
// normal swarm mobility and is down-weighted.
const (
	weightDegree      = 0.4
	weightBetweenness = 0.4
	weightCloseness   = 0.2
)

// CentralityConfig tunes the centrality detector.
type CentralityConfig struct {
	// Threshold flags a node when its composite z-score exceeds it.
	Threshold float64
}

// DefaultCentralityConfig returns the evaluation calibration.
func DefaultCentralityConfig() CentralityConfig {
	return CentralityConfig{Threshold: 2.0}
}

type centralityProfile struct {
	degMean, degStd float64
	btwMean, btwStd float64
	cloMean, cloStd float64
}

// CentralityDetector scores anomalies from a weighted combination of
// per-node centrality z-scores against statistics pooled over all nodes
// of the clean baseline snapshots.
type CentralityDetector struct {
	cfg     CentralityConfig
	profile atomic.Pointer[centralityProfile]
}

// NewCentralityDetector creates an untrained centrality detector.
func NewCentralityDetector(cfg CentralityConfig) *CentralityDetector {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultCentralityConfig().Threshold
	}
	return &CentralityDetector{cfg: cfg}
}

// Name implements Detector.
func (d *CentralityDetector) Name() string { return "centrality" }

// Train pools degree, betweenness and closeness scores across every node
// of every baseline snapshot and fits mean/std per measure.
func (d *CentralityDetector) Train(snapshots []*swarm.Snapshot) error {
	if len(snapshots) < 2 {
		return fmt.Errorf("centrality: need at least 2 baseline snapshots, got %d: %w",
			len(snapshots), ErrInsufficientBaseline)
	}

	var deg, btw, clo []float64
	for _, snap := range snapshots {
		c := computeCentralities(snap)
		deg = append(deg, c.degree...)
		btw = append(btw, c.betweenness...)
		clo = append(clo, c.closeness...)
	}
	if len(deg) < 2 {
		return fmt.Errorf("centrality: baseline snapshots are empty: %w", ErrInsufficientBaseline)
	}

	p := &centralityProfile{}
	p.degMean = mean(deg)
	p.degStd = stddev(deg, p.degMean)
	p.btwMean = mean(btw)
	p.btwStd = stddev(btw, p.btwMean)
	p.cloMean = mean(clo)
	p.cloStd = stddev(clo, p.cloMean)

	if p.degStd < epsStd && p.btwStd < epsStd && p.cloStd < epsStd {
		return fmt.Errorf("centrality: zero-variance baseline, z-scores undefined: %w",
			ErrInsufficientBaseline)
	}

	d.profile.Store(p)
	return nil
}

// Detect implements Detector. Per-node score is the composite
// 0.4·z_degree + 0.4·z_betweenness + 0.2·z_closeness.
func (d *CentralityDetector) Detect(ctx context.Context, snap *swarm.Snapshot) (*Result, error) {
	p := d.profile.Load()
	if p == nil {
		return nil, fmt.Errorf("centrality: %w", ErrNotTrained)
	}

	start := time.Now()
	res := newResult(d.Name(), snap)

	if snap.NodeCount() < 2 {
		res.Elapsed = time.Since(start)
		return res, nil
	}

	c := computeCentralities(snap)
	var maxScore float64
	for i, id := range snap.Nodes() {
		composite := weightDegree*zscore(c.degree[i], p.degMean, p.degStd) +
			weightBetweenness*zscore(c.betweenness[i], p.btwMean, p.btwStd) +
			weightCloseness*zscore(c.closeness[i], p.cloMean, p.cloStd)
		res.Verdicts[id] = Verdict{
			Flagged: composite > d.cfg.Threshold,
			Score:   composite,
		}
		if composite > maxScore {
			maxScore = composite
		}
	}

	res.GraphScore = maxScore
	res.GraphAnomalous = maxScore > d.cfg.Threshold
	res.Elapsed = time.Since(start)
	return res, nil
}
