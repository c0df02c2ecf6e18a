// Package detect implements the anomaly detectors that decide, per
// observation cycle, which broadcasting agents are illegitimate. All
// detectors share the same train/detect lifecycle and the DetectionResult
// contract so callers can ensemble them through the registry.
package detect

import (
	"context"
	"errors"
	"sync"

	"github.com/Sang-Buster/Argus/internal/swarm"
)

// Errors surfaced by the detector lifecycle. Lifecycle errors are fatal
// to the call; they are never silently defaulted into scores.
var (
	// ErrNotTrained is returned by Detect before a successful Train.
	ErrNotTrained = errors.New("detector not trained")

	// ErrInsufficientBaseline is returned by Train when the clean corpus
	// is too small or degenerate for variance estimation.
	ErrInsufficientBaseline = errors.New("insufficient baseline")
)

// Detector is the capability contract shared by all four detector
// variants. Train fits an immutable baseline profile from assumed-clean
// snapshots; Detect scores one snapshot against the current profile.
// Detect is safe to call concurrently with Train: profiles are published
// by atomic swap, so in-flight detections keep the profile they started
// with.
type Detector interface {
	Name() string
	Train(snapshots []*swarm.Snapshot) error
	Detect(ctx context.Context, snap *swarm.Snapshot) (*Result, error)
}

// Registry composes detectors by name, enabling pluggable ensembling
// without any inheritance between detector types.
type Registry struct {
	mu        sync.RWMutex
	detectors map[string]Detector
}

// NewRegistry returns an empty detector registry.
func NewRegistry() *Registry {
	return &Registry{detectors: make(map[string]Detector)}
}

// Register adds or replaces a detector under its name.
func (r *Registry) Register(d Detector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detectors[d.Name()] = d
}

// Get returns the detector registered under name.
func (r *Registry) Get(name string) (Detector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.detectors[name]
	return d, ok
}

// Names returns the registered detector names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.detectors))
	for name := range r.detectors {
		names = append(names, name)
	}
	return names
}

// DetectAll runs every registered detector against the same snapshot in
// parallel. Detectors are pure functions of the snapshot and their own
// immutable profile, so they never contend. Per-detector errors are
// returned alongside the successful results.
func (r *Registry) DetectAll(ctx context.Context, snap *swarm.Snapshot) (map[string]*Result, map[string]error) {
	r.mu.RLock()
	detectors := make([]Detector, 0, len(r.detectors))
	for _, d := range r.detectors {
		detectors = append(detectors, d)
	}
	r.mu.RUnlock()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]*Result, len(detectors))
		errs    = make(map[string]error)
	)

	for _, d := range detectors {
		wg.Add(1)
		go func(d Detector) {
			defer wg.Done()
			res, err := d.Detect(ctx, snap)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[d.Name()] = err
				return
			}
			results[d.Name()] = res
		}(d)
	}
	wg.Wait()

	return results, errs
}
