package sim

import (
	"testing"
)

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{Size: 0, Bounds: 100, MaxSpeed: 5}); err == nil {
		t.Fatal("zero-size swarm accepted")
	}
	if _, err := New(Config{Size: 5, Bounds: -1, MaxSpeed: 5}); err == nil {
		t.Fatal("negative bounds accepted")
	}
}

func TestStepKeepsAgentsInBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Crypto = false
	s, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 200; i++ {
		s.Step(1.0)
	}
	for _, u := range s.UAVs() {
		for _, v := range []float64{u.Position.X, u.Position.Y, u.Position.Z} {
			if v < 0 || v > cfg.Bounds {
				t.Fatalf("%s left the flight volume: %+v", u.ID, u.Position)
			}
		}
	}
}

func TestSimulatorDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 77
	a, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	b, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 25; i++ {
		a.Step(0.5)
		b.Step(0.5)
	}
	for i, ua := range a.UAVs() {
		ub := b.UAVs()[i]
		if ua.ID != ub.ID || ua.Position != ub.Position || ua.Velocity != ub.Velocity {
			t.Fatalf("same seed diverged for %s: %+v vs %+v", ua.ID, ua.Position, ub.Position)
		}
	}
}

func TestBroadcastSignatures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Size = 5
	s, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	s.Step(1.0)

	byID := make(map[string][]byte)
	for _, u := range s.UAVs() {
		byID[u.ID] = u.PublicKey
	}

	for _, m := range s.Broadcast() {
		pub, ok := byID[m.SenderID]
		if !ok {
			t.Fatalf("broadcast from unknown sender %s", m.SenderID)
		}
		if !m.Verify(pub) {
			t.Errorf("broadcast from %s does not verify", m.SenderID)
		}
	}
}

func TestSnapshotAttachesBroadcasts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Size = 8
	cfg.Crypto = false
	s, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	s.Step(1.0)

	snap := s.Snapshot(150)
	if snap.NodeCount() != 8 {
		t.Fatalf("snapshot has %d nodes, want 8", snap.NodeCount())
	}
	for _, id := range snap.Nodes() {
		if _, ok := snap.Message(id); !ok {
			t.Fatalf("no broadcast attached for %s", id)
		}
	}
}
