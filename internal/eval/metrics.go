// Package eval scores detection results against ground-truth labels.
package eval

import (
	"math"
	"time"

	"github.com/Sang-Buster/Argus/internal/detect"
)

// Metrics summarizes one detector's performance on a labeled snapshot.
//
// TPR is NaN when the snapshot contains no illegitimate nodes (recall is
// undefined, not perfect). Precision is 0 when nothing was flagged, and
// F1 is 0 whenever precision and recall sum to zero.
type Metrics struct {
	Detector  string        `json:"detector"`
	TPR       float64       `json:"tpr"`
	FPR       float64       `json:"fpr"`
	Precision float64       `json:"precision"`
	F1        float64       `json:"f1"`
	Latency   time.Duration `json:"latency"`

	TruePositives  int `json:"true_positives"`
	FalsePositives int `json:"false_positives"`
	TrueNegatives  int `json:"true_negatives"`
	FalseNegatives int `json:"false_negatives"`
}

// Score compares a detection result against truth, which maps node ID to
// legitimacy (true = legitimate). Nodes present in the result but absent
// from truth are ignored.
func Score(result *detect.Result, truth map[string]bool) Metrics {
	m := Metrics{Detector: result.Detector, Latency: result.Elapsed}

	for id, v := range result.Verdicts {
		legit, ok := truth[id]
		if !ok {
			continue
		}
		switch {
		case !legit && v.Flagged:
			m.TruePositives++
		case !legit && !v.Flagged:
			m.FalseNegatives++
		case legit && v.Flagged:
			m.FalsePositives++
		default:
			m.TrueNegatives++
		}
	}

	if pos := m.TruePositives + m.FalseNegatives; pos > 0 {
		m.TPR = float64(m.TruePositives) / float64(pos)
	} else {
		m.TPR = math.NaN()
	}
	if neg := m.FalsePositives + m.TrueNegatives; neg > 0 {
		m.FPR = float64(m.FalsePositives) / float64(neg)
	}
	if flagged := m.TruePositives + m.FalsePositives; flagged > 0 {
		m.Precision = float64(m.TruePositives) / float64(flagged)
	}

	recall := m.TPR
	if !math.IsNaN(recall) && m.Precision+recall > 0 {
		m.F1 = 2 * m.Precision * recall / (m.Precision + recall)
	}
	return m
}
