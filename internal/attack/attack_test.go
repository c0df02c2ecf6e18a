package attack

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/Sang-Buster/Argus/internal/swarm"
)

func cleanSwarm(n int) []*swarm.UAV {
	uavs := make([]*swarm.UAV, n)
	for i := 0; i < n; i++ {
		uavs[i] = &swarm.UAV{
			ID:         fmt.Sprintf("uav-%03d", i),
			Position:   swarm.Vec3{X: float64(i) * 40, Y: float64(i%3) * 30},
			Legitimate: true,
		}
	}
	return uavs
}

func TestPhantomInjector(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	inj, err := New(TypePhantom, 4, 500, 150, rng)
	if err != nil {
		t.Fatal(err)
	}

	uavs, err := inj.Inject(cleanSwarm(10))
	if err != nil {
		t.Fatal(err)
	}
	if len(uavs) != 14 {
		t.Fatalf("got %d agents, want 14", len(uavs))
	}

	seen := map[string]bool{}
	phantoms := 0
	for _, u := range uavs {
		if seen[u.ID] {
			t.Fatalf("duplicate ID %s", u.ID)
		}
		seen[u.ID] = true
		if strings.HasPrefix(u.ID, "phantom-") {
			phantoms++
			if u.Legitimate {
				t.Errorf("phantom %s marked legitimate", u.ID)
			}
			if u.PrivateKey != nil {
				t.Errorf("phantom %s carries a signing key", u.ID)
			}
		}
	}
	if phantoms != 4 {
		t.Fatalf("got %d phantoms, want 4", phantoms)
	}
}

func TestPositionSpoofInjector(t *testing.T) {
	const commRange = 150.0
	original := cleanSwarm(10)
	before := make(map[string]swarm.Vec3, len(original))
	for _, u := range original {
		before[u.ID] = u.Position
	}

	rng := rand.New(rand.NewSource(2))
	inj, err := New(TypeSpoof, 3, 500, commRange, rng)
	if err != nil {
		t.Fatal(err)
	}
	uavs, err := inj.Inject(original)
	if err != nil {
		t.Fatal(err)
	}
	if len(uavs) != 10 {
		t.Fatalf("spoofing changed the agent count: %d", len(uavs))
	}

	spoofed := 0
	for _, u := range uavs {
		moved := u.Position.Dist(before[u.ID])
		if !u.Legitimate {
			spoofed++
			if moved < 3*commRange {
				t.Errorf("%s moved only %.0f m, want >= %g", u.ID, moved, 3*commRange)
			}
		} else if moved != 0 {
			t.Errorf("untouched agent %s moved %.0f m", u.ID, moved)
		}
	}
	if spoofed != 3 {
		t.Fatalf("got %d spoofed agents, want 3", spoofed)
	}
}

func TestPositionSpoofCountOutOfRange(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	inj, err := New(TypeSpoof, 20, 500, 150, rng)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := inj.Inject(cleanSwarm(5)); err == nil {
		t.Fatal("spoof count above swarm size accepted")
	}
}

func TestCoordinatedInjectorCluster(t *testing.T) {
	const commRange = 150.0
	rng := rand.New(rand.NewSource(4))
	inj, err := New(TypeCoordinated, 5, 500, commRange, rng)
	if err != nil {
		t.Fatal(err)
	}

	uavs, err := inj.Inject(cleanSwarm(10))
	if err != nil {
		t.Fatal(err)
	}

	var cluster []*swarm.UAV
	for _, u := range uavs {
		if strings.HasPrefix(u.ID, "coord-") {
			cluster = append(cluster, u)
			if u.Legitimate {
				t.Errorf("coordinated phantom %s marked legitimate", u.ID)
			}
		}
	}
	if len(cluster) != 5 {
		t.Fatalf("got %d coordinated phantoms, want 5", len(cluster))
	}

	// The fabricated subswarm must be mutually in range.
	for i := 0; i < len(cluster); i++ {
		for j := i + 1; j < len(cluster); j++ {
			if d := cluster[i].Position.Dist(cluster[j].Position); d > commRange {
				t.Errorf("phantoms %s and %s are %.0f m apart, beyond range %g",
					cluster[i].ID, cluster[j].ID, d, commRange)
			}
		}
	}
}

func TestNewUnknownType(t *testing.T) {
	if _, err := New("teleport", 1, 500, 150, rand.New(rand.NewSource(5))); err == nil {
		t.Fatal("unknown injector type accepted")
	}
}

func TestInjectionDeterministic(t *testing.T) {
	a, _ := New(TypePhantom, 3, 500, 150, rand.New(rand.NewSource(9)))
	b, _ := New(TypePhantom, 3, 500, 150, rand.New(rand.NewSource(9)))

	ua, _ := a.Inject(cleanSwarm(6))
	ub, _ := b.Inject(cleanSwarm(6))
	for i := range ua {
		if ua[i].ID != ub[i].ID || ua[i].Position != ub[i].Position {
			t.Fatalf("same seed diverged at %d: %+v vs %+v", i, ua[i], ub[i])
		}
	}
}
