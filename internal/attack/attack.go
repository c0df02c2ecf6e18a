// Package attack fabricates illegitimate agents and falsified position
// claims. Injectors own the ground-truth Legitimate labels; the
// detection core never sees anything from this package except the
// resulting agent set.
package attack

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"github.com/Sang-Buster/Argus/internal/swarm"
)

// Type names an injection strategy.
type Type string

const (
	// TypePhantom scatters fabricated agents across the flight volume.
	TypePhantom Type = "phantom"

	// TypeSpoof falsifies the position claims of existing agents.
	TypeSpoof Type = "position_spoof"

	// TypeCoordinated inserts a mutually-in-range phantom cluster.
	TypeCoordinated Type = "coordinated"
)

// Injector mutates a swarm in place and marks every agent it touched as
// illegitimate.
type Injector interface {
	Name() Type
	Inject(uavs []*swarm.UAV) ([]*swarm.UAV, error)
}

// New builds the injector for a scenario type.
func New(t Type, count int, bounds, commRange float64, rng *rand.Rand) (Injector, error) {
	switch t {
	case TypePhantom:
		return &PhantomInjector{Count: count, Bounds: bounds, rng: rng}, nil
	case TypeSpoof:
		return &PositionSpoofInjector{Count: count, CommRange: commRange, rng: rng}, nil
	case TypeCoordinated:
		return &CoordinatedInjector{Count: count, CommRange: commRange, rng: rng}, nil
	default:
		return nil, fmt.Errorf("attack: unknown injector type %q", t)
	}
}

// PhantomInjector adds Count fabricated UAVs at random positions. They
// carry fresh UUID identities and no signing keys, so their broadcasts
// are unsigned and their IDs are never provisioned.
type PhantomInjector struct {
	Count  int
	Bounds float64
	rng    *rand.Rand
}

// Name implements Injector.
func (p *PhantomInjector) Name() Type { return TypePhantom }

// Inject implements Injector.
func (p *PhantomInjector) Inject(uavs []*swarm.UAV) ([]*swarm.UAV, error) {
	if p.Count <= 0 {
		return uavs, fmt.Errorf("attack: phantom count must be positive, got %d", p.Count)
	}
	for i := 0; i < p.Count; i++ {
		uavs = append(uavs, &swarm.UAV{
			ID:         "phantom-" + uuidFrom(p.rng),
			Position:   randomVec(p.rng, p.Bounds),
			Velocity:   randomVec(p.rng, 10).Sub(swarm.Vec3{X: 5, Y: 5, Z: 5}),
			Legitimate: false,
		})
	}
	return uavs, nil
}

// PositionSpoofInjector overwrites the position claims of Count existing
// agents with locations far outside their true neighborhood. The victims
// keep their identities and keys, so signatures still verify; only the
// topology betrays them.
type PositionSpoofInjector struct {
	Count     int
	CommRange float64
	rng       *rand.Rand
}

// Name implements Injector.
func (p *PositionSpoofInjector) Name() Type { return TypeSpoof }

// Inject implements Injector.
func (p *PositionSpoofInjector) Inject(uavs []*swarm.UAV) ([]*swarm.UAV, error) {
	if p.Count <= 0 || p.Count > len(uavs) {
		return uavs, fmt.Errorf("attack: spoof count %d out of range for %d agents",
			p.Count, len(uavs))
	}
	for _, i := range p.rng.Perm(len(uavs))[:p.Count] {
		u := uavs[i]
		// Displace well beyond comm range so the claim detaches the node
		// from its true neighborhood.
		offset := randomUnit(p.rng).Scale(p.CommRange * (3 + 2*p.rng.Float64()))
		u.Position = u.Position.Add(offset)
		u.Legitimate = false
	}
	return uavs, nil
}

// CoordinatedInjector inserts Count phantoms as a tight cluster anchored
// near a randomly chosen legitimate agent: every phantom is in range of
// its siblings and of the anchor, mimicking a fabricated subswarm.
type CoordinatedInjector struct {
	Count     int
	CommRange float64
	rng       *rand.Rand
}

// Name implements Injector.
func (c *CoordinatedInjector) Name() Type { return TypeCoordinated }

// Inject implements Injector.
func (c *CoordinatedInjector) Inject(uavs []*swarm.UAV) ([]*swarm.UAV, error) {
	if c.Count <= 0 {
		return uavs, fmt.Errorf("attack: coordinated count must be positive, got %d", c.Count)
	}
	if len(uavs) == 0 {
		return uavs, fmt.Errorf("attack: coordinated injection needs a non-empty swarm")
	}

	anchor := uavs[c.rng.Intn(len(uavs))].Position
	velocity := randomVec(c.rng, 8).Sub(swarm.Vec3{X: 4, Y: 4, Z: 4})

	for i := 0; i < c.Count; i++ {
		// Cluster radius a third of comm range keeps all phantoms mutually
		// connected and attached to the anchor.
		jitter := randomUnit(c.rng).Scale(c.rng.Float64() * c.CommRange / 3)
		uavs = append(uavs, &swarm.UAV{
			ID:         "coord-" + uuidFrom(c.rng),
			Position:   anchor.Add(jitter),
			Velocity:   velocity,
			Legitimate: false,
		})
	}
	return uavs, nil
}

// uuidFrom draws a UUID from the scenario rng so runs stay reproducible.
func uuidFrom(rng *rand.Rand) string {
	var b [16]byte
	rng.Read(b[:])
	id, err := uuid.FromBytes(b[:])
	if err != nil {
		// 16 bytes always form a UUID; FromBytes only rejects bad lengths.
		panic(err)
	}
	return id.String()
}

func randomVec(rng *rand.Rand, scale float64) swarm.Vec3 {
	return swarm.Vec3{
		X: rng.Float64() * scale,
		Y: rng.Float64() * scale,
		Z: rng.Float64() * scale,
	}
}

func randomUnit(rng *rand.Rand) swarm.Vec3 {
	for {
		v := swarm.Vec3{
			X: rng.Float64()*2 - 1,
			Y: rng.Float64()*2 - 1,
			Z: rng.Float64()*2 - 1,
		}
		if n := v.Norm(); n > 1e-6 {
			return v.Scale(1 / n)
		}
	}
}
