package swarm

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	mrand "math/rand"
	"testing"
)

func lineSwarm(n int, spacing float64) []*UAV {
	uavs := make([]*UAV, n)
	for i := 0; i < n; i++ {
		uavs[i] = &UAV{
			ID:         fmt.Sprintf("uav-%03d", i),
			Position:   Vec3{X: float64(i) * spacing},
			Legitimate: true,
		}
	}
	return uavs
}

func TestBuildSnapshotEdges(t *testing.T) {
	// Spacing 50, range 80: only adjacent pairs connect.
	snap := BuildSnapshot(lineSwarm(5, 50), 80)

	if got := snap.NodeCount(); got != 5 {
		t.Fatalf("NodeCount = %d, want 5", got)
	}
	if got := snap.EdgeCount(); got != 4 {
		t.Fatalf("EdgeCount = %d, want 4", got)
	}

	if w := snap.Weight(0, 1); w != 1.0/50 {
		t.Errorf("Weight(0,1) = %g, want %g", w, 1.0/50)
	}
	if w := snap.Weight(0, 2); w != 0 {
		t.Errorf("Weight(0,2) = %g, want 0 (distance 100 > range)", w)
	}
	if w01, w10 := snap.Weight(0, 1), snap.Weight(1, 0); w01 != w10 {
		t.Errorf("adjacency not symmetric: %g vs %g", w01, w10)
	}

	if got := snap.Degree(0); got != 1 {
		t.Errorf("Degree(0) = %d, want 1", got)
	}
	if got := snap.Degree(2); got != 2 {
		t.Errorf("Degree(2) = %d, want 2", got)
	}
}

func TestBuildSnapshotDeterministicOrder(t *testing.T) {
	uavs := lineSwarm(6, 50)
	// Shuffle input order; node order must not change.
	shuffled := append([]*UAV(nil), uavs...)
	mrand.New(mrand.NewSource(3)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	a := BuildSnapshot(uavs, 80)
	b := BuildSnapshot(shuffled, 80)

	for i, id := range a.Nodes() {
		if b.Nodes()[i] != id {
			t.Fatalf("node order differs at %d: %s vs %s", i, id, b.Nodes()[i])
		}
	}
	for i := 0; i < a.NodeCount(); i++ {
		for j := 0; j < a.NodeCount(); j++ {
			if a.Weight(i, j) != b.Weight(i, j) {
				t.Fatalf("weight (%d,%d) differs: %g vs %g", i, j, a.Weight(i, j), b.Weight(i, j))
			}
		}
	}
}

func TestBuildSnapshotEmptyAndCoincident(t *testing.T) {
	empty := BuildSnapshot(nil, 100)
	if empty.NodeCount() != 0 || empty.EdgeCount() != 0 {
		t.Fatalf("empty swarm: nodes=%d edges=%d, want 0/0", empty.NodeCount(), empty.EdgeCount())
	}

	// Coincident agents (distance 0) never connect: weight 1/d is
	// undefined there.
	twins := []*UAV{
		{ID: "a", Position: Vec3{X: 1, Y: 2, Z: 3}},
		{ID: "b", Position: Vec3{X: 1, Y: 2, Z: 3}},
	}
	snap := BuildSnapshot(twins, 100)
	if snap.EdgeCount() != 0 {
		t.Fatalf("coincident agents connected: edges=%d", snap.EdgeCount())
	}
}

func TestLaplacianRowSums(t *testing.T) {
	snap := BuildSnapshot(lineSwarm(6, 50), 80)
	l := snap.Laplacian()
	n := snap.NodeCount()

	// Every Laplacian row sums to zero.
	for i := 0; i < n; i++ {
		var sum float64
		for j := 0; j < n; j++ {
			sum += l.At(i, j)
		}
		if sum > 1e-12 || sum < -1e-12 {
			t.Errorf("row %d sums to %g, want 0", i, sum)
		}
	}
}

func TestRemoteIDSignVerify(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	msg := &RemoteIDMessage{
		SenderID:  "uav-007",
		Position:  Vec3{X: 10.5, Y: -3.25, Z: 120},
		Velocity:  Vec3{X: 1, Y: 0, Z: -2},
		Timestamp: 1700000000000,
	}
	msg.Sign(priv)

	if !msg.Verify(pub) {
		t.Fatal("valid signature did not verify")
	}

	tampered := *msg
	tampered.Position.X += 50
	if tampered.Verify(pub) {
		t.Fatal("tampered position verified")
	}

	otherPub, _, _ := ed25519.GenerateKey(rand.Reader)
	if msg.Verify(otherPub) {
		t.Fatal("signature verified under wrong key")
	}

	unsigned := &RemoteIDMessage{SenderID: "uav-007"}
	if unsigned.Verify(pub) {
		t.Fatal("missing signature verified")
	}
}

func TestLabels(t *testing.T) {
	uavs := lineSwarm(3, 50)
	uavs[1].Legitimate = false
	labels := Labels(uavs)
	if !labels["uav-000"] || labels["uav-001"] || !labels["uav-002"] {
		t.Fatalf("labels = %v", labels)
	}
}

func BenchmarkBuildSnapshot(b *testing.B) {
	rng := mrand.New(mrand.NewSource(1))
	uavs := make([]*UAV, 100)
	for i := range uavs {
		uavs[i] = &UAV{
			ID:       fmt.Sprintf("uav-%03d", i),
			Position: Vec3{X: rng.Float64() * 500, Y: rng.Float64() * 500, Z: rng.Float64() * 500},
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		BuildSnapshot(uavs, 150)
	}
}
