package detect

import (
	"sort"
	"time"

	"github.com/Sang-Buster/Argus/internal/swarm"
)

// Verdict is one node's legitimacy decision. Score is detector-specific
// but always monotone: higher means more anomalous.
type Verdict struct {
	Flagged bool    `json:"flagged"`
	Score   float64 `json:"score"`
}

// Result is the uniform detection output: exactly one verdict per node in
// the analyzed snapshot, plus a graph-level anomaly flag for detectors
// that also judge whole-topology drift.
type Result struct {
	Detector       string             `json:"detector"`
	Timestamp      time.Time          `json:"timestamp"`
	Elapsed        time.Duration      `json:"elapsed"`
	GraphAnomalous bool               `json:"graph_anomalous"`
	GraphScore     float64            `json:"graph_score"`
	Verdicts       map[string]Verdict `json:"verdicts"`
}

// newResult pre-fills a clean verdict for every node in the snapshot so
// the node-coverage invariant holds regardless of detector control flow.
func newResult(detector string, snap *swarm.Snapshot) *Result {
	verdicts := make(map[string]Verdict, snap.NodeCount())
	for _, id := range snap.Nodes() {
		verdicts[id] = Verdict{}
	}
	return &Result{
		Detector:  detector,
		Timestamp: snap.Timestamp,
		Verdicts:  verdicts,
	}
}

// FlaggedIDs returns the flagged node IDs in sorted order.
func (r *Result) FlaggedIDs() []string {
	var ids []string
	for id, v := range r.Verdicts {
		if v.Flagged {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// FlaggedCount returns the number of flagged nodes.
func (r *Result) FlaggedCount() int {
	n := 0
	for _, v := range r.Verdicts {
		if v.Flagged {
			n++
		}
	}
	return n
}
