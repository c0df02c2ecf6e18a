// Package sim provides a seeded kinematic swarm simulator. It produces
// the agent-state stream the detection core consumes; it knows nothing
// about detection.
package sim

import (
	"crypto/ed25519"
	"fmt"
	"math/rand"
	"time"

	"github.com/Sang-Buster/Argus/internal/swarm"
)

// Config sets up a simulated swarm.
type Config struct {
	// Size is the number of legitimate UAVs.
	Size int

	// Bounds is the edge length of the cubic flight volume in meters.
	Bounds float64

	// MaxSpeed caps per-axis speed in m/s.
	MaxSpeed float64

	// WaypointInterval is how many steps a UAV keeps its heading before
	// drawing a new one.
	WaypointInterval int

	// Crypto provisions an Ed25519 keypair per UAV so broadcasts are
	// signed.
	Crypto bool

	// Seed drives all randomness, including key generation.
	Seed int64
}

// DefaultConfig returns a 30-UAV swarm in a 500 m cube.
func DefaultConfig() Config {
	return Config{
		Size:             30,
		Bounds:           500,
		MaxSpeed:         15,
		WaypointInterval: 10,
		Crypto:           true,
		Seed:             1,
	}
}

// Simulator advances a swarm through waypoint random-walk motion and
// emits its Remote ID broadcasts.
type Simulator struct {
	cfg   Config
	rng   *rand.Rand
	uavs  []*swarm.UAV
	steps int
	clock time.Time
}

// New builds a simulator with UAVs uniformly placed in the flight volume.
func New(cfg Config) (*Simulator, error) {
	if cfg.Size <= 0 {
		return nil, fmt.Errorf("sim: swarm size must be positive, got %d", cfg.Size)
	}
	if cfg.Bounds <= 0 || cfg.MaxSpeed <= 0 {
		return nil, fmt.Errorf("sim: bounds and max speed must be positive")
	}
	if cfg.WaypointInterval <= 0 {
		cfg.WaypointInterval = DefaultConfig().WaypointInterval
	}

	s := &Simulator{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		clock: time.Unix(0, 0).UTC(),
	}

	s.uavs = make([]*swarm.UAV, cfg.Size)
	for i := 0; i < cfg.Size; i++ {
		u := &swarm.UAV{
			ID:         fmt.Sprintf("uav-%03d", i),
			Position:   s.randomPosition(),
			Velocity:   s.randomVelocity(),
			Legitimate: true,
		}
		if cfg.Crypto {
			pub, priv, err := ed25519.GenerateKey(s.rng)
			if err != nil {
				return nil, fmt.Errorf("sim: keygen for %s: %w", u.ID, err)
			}
			u.PublicKey, u.PrivateKey = pub, priv
		}
		s.uavs[i] = u
	}
	return s, nil
}

// UAVs returns the live agent set. Injectors mutate it in place.
func (s *Simulator) UAVs() []*swarm.UAV { return s.uavs }

// Add appends externally created agents (attack injection).
func (s *Simulator) Add(uavs ...*swarm.UAV) { s.uavs = append(s.uavs, uavs...) }

// Replace swaps the whole agent set, for injectors that both mutate and
// extend it.
func (s *Simulator) Replace(uavs []*swarm.UAV) { s.uavs = uavs }

// Now returns the simulated clock.
func (s *Simulator) Now() time.Time { return s.clock }

// Step advances every UAV by dt seconds, bouncing off the volume bounds
// and redrawing headings at the waypoint interval.
func (s *Simulator) Step(dt float64) {
	s.steps++
	redraw := s.steps%s.cfg.WaypointInterval == 0

	for _, u := range s.uavs {
		if redraw {
			u.Velocity = s.randomVelocity()
		}
		u.Position = u.Position.Add(u.Velocity.Scale(dt))
		s.bounce(u)
	}
	s.clock = s.clock.Add(time.Duration(dt * float64(time.Second)))
}

// Broadcast emits one Remote ID message per UAV, signed when the agent
// holds a private key. Agents without keys (phantoms, crypto disabled)
// broadcast unsigned claims.
func (s *Simulator) Broadcast() []*swarm.RemoteIDMessage {
	msgs := make([]*swarm.RemoteIDMessage, 0, len(s.uavs))
	ts := s.clock.UnixMilli()
	for _, u := range s.uavs {
		m := &swarm.RemoteIDMessage{
			SenderID:  u.ID,
			Position:  u.Position,
			Velocity:  u.Velocity,
			Timestamp: ts,
		}
		if u.PrivateKey != nil {
			m.Sign(u.PrivateKey)
		}
		msgs = append(msgs, m)
	}
	return msgs
}

// Snapshot builds the proximity graph over the current agent positions
// with broadcasts attached.
func (s *Simulator) Snapshot(commRange float64) *swarm.Snapshot {
	snap := swarm.BuildSnapshot(s.uavs, commRange)
	snap.AttachMessages(s.Broadcast())
	return snap
}

func (s *Simulator) randomPosition() swarm.Vec3 {
	return swarm.Vec3{
		X: s.rng.Float64() * s.cfg.Bounds,
		Y: s.rng.Float64() * s.cfg.Bounds,
		Z: s.rng.Float64() * s.cfg.Bounds,
	}
}

func (s *Simulator) randomVelocity() swarm.Vec3 {
	return swarm.Vec3{
		X: (s.rng.Float64()*2 - 1) * s.cfg.MaxSpeed,
		Y: (s.rng.Float64()*2 - 1) * s.cfg.MaxSpeed,
		Z: (s.rng.Float64()*2 - 1) * s.cfg.MaxSpeed,
	}
}

// bounce reflects a UAV that left the flight volume back inside.
func (s *Simulator) bounce(u *swarm.UAV) {
	u.Position.X, u.Velocity.X = reflect(u.Position.X, u.Velocity.X, s.cfg.Bounds)
	u.Position.Y, u.Velocity.Y = reflect(u.Position.Y, u.Velocity.Y, s.cfg.Bounds)
	u.Position.Z, u.Velocity.Z = reflect(u.Position.Z, u.Velocity.Z, s.cfg.Bounds)
}

func reflect(pos, vel, bound float64) (float64, float64) {
	if pos < 0 {
		return -pos, -vel
	}
	if pos > bound {
		return 2*bound - pos, -vel
	}
	return pos, vel
}
