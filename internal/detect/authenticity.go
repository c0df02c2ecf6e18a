package detect

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Sang-Buster/Argus/internal/swarm"
)

// AuthenticityDetector verifies the Ed25519 signature on each node's
// Remote ID broadcast against the provisioned key registry. It is the
// only detector with a hard decision rule: a node is flagged exactly
// when its broadcast cannot be cryptographically tied to a provisioned
// identity - no key on file, no message observed, or a signature that
// does not verify.
type AuthenticityDetector struct {
	registry *KeyRegistry
	trained  atomic.Bool
}

// NewAuthenticityDetector creates a detector bound to a key registry.
// The registry may keep being provisioned (or hot-reloaded) after
// construction; lookups always see the current key set.
func NewAuthenticityDetector(registry *KeyRegistry) *AuthenticityDetector {
	return &AuthenticityDetector{registry: registry}
}

// Name implements Detector.
func (d *AuthenticityDetector) Name() string { return "authenticity" }

// Train implements Detector. Signature verification needs no learned
// statistics, only provisioned keys, so training just arms the detector
// to keep the shared lifecycle contract.
func (d *AuthenticityDetector) Train(snapshots []*swarm.Snapshot) error {
	if len(snapshots) == 0 {
		return fmt.Errorf("authenticity: empty baseline: %w", ErrInsufficientBaseline)
	}
	d.trained.Store(true)
	return nil
}

// Detect implements Detector. Scores are binary: 1 for a failed
// verification, 0 for a valid one.
func (d *AuthenticityDetector) Detect(ctx context.Context, snap *swarm.Snapshot) (*Result, error) {
	if !d.trained.Load() {
		return nil, fmt.Errorf("authenticity: %w", ErrNotTrained)
	}

	start := time.Now()
	res := newResult(d.Name(), snap)

	flagged := 0
	for _, id := range snap.Nodes() {
		if d.verifies(id, snap) {
			continue
		}
		res.Verdicts[id] = Verdict{Flagged: true, Score: 1}
		flagged++
	}

	if flagged > 0 {
		res.GraphAnomalous = true
		res.GraphScore = float64(flagged) / float64(snap.NodeCount())
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

func (d *AuthenticityDetector) verifies(id string, snap *swarm.Snapshot) bool {
	msg, ok := snap.Message(id)
	if !ok {
		return false
	}
	pub, ok := d.registry.Lookup(id)
	if !ok {
		return false
	}
	return msg.Verify(pub)
}
