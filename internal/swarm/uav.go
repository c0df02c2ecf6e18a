// Package swarm models UAV state, Remote ID broadcasts and the proximity
// graph snapshot consumed by the anomaly detectors.
package swarm

import (
	"crypto/ed25519"
	"math"
)

// Vec3 is a position or velocity vector in meters / meters per second.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Scale returns v scaled by s.
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

// Norm returns the Euclidean length of v.
func (v Vec3) Norm() float64 { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }

// Dist returns the Euclidean distance between v and o.
func (v Vec3) Dist(o Vec3) float64 { return v.Sub(o).Norm() }

// UAV is one agent in the swarm. Legitimate is authoritative ground truth
// owned by the attack injector; detectors never read it, only the
// evaluation layer does.
type UAV struct {
	ID       string
	Position Vec3
	Velocity Vec3

	// Legitimate marks ground truth for evaluation. Injected agents and
	// agents with falsified claims carry false.
	Legitimate bool

	// Signing material. PrivateKey is only held by simulated legitimate
	// agents; real deployments would never see it on this side.
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// Labels extracts the ground-truth legitimacy map for a UAV set.
// This is the only sanctioned path from UAV.Legitimate to the evaluator.
func Labels(uavs []*UAV) map[string]bool {
	labels := make(map[string]bool, len(uavs))
	for _, u := range uavs {
		labels[u.ID] = u.Legitimate
	}
	return labels
}
