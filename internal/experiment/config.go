// Package experiment runs end-to-end evaluation scenarios: simulate a
// clean swarm, train the detectors, inject an attack, detect per cycle,
// and score every detector against the injector's ground truth.
package experiment

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Sang-Buster/Argus/internal/attack"
	"github.com/Sang-Buster/Argus/internal/detect"
)

// Config describes one experiment scenario.
type Config struct {
	Name string `yaml:"name"`

	Swarm struct {
		Size      int     `yaml:"size"`
		Bounds    float64 `yaml:"bounds"`
		MaxSpeed  float64 `yaml:"max_speed"`
		CommRange float64 `yaml:"comm_range"`
		Crypto    bool    `yaml:"crypto"`
	} `yaml:"swarm"`

	// BaselineCycles snapshots are collected attack-free and used to
	// train every detector. AttackCycles follow the injection.
	BaselineCycles int     `yaml:"baseline_cycles"`
	AttackCycles   int     `yaml:"attack_cycles"`
	Dt             float64 `yaml:"dt"`
	Seed           int64   `yaml:"seed"`

	Detectors struct {
		Spectral   *detect.SpectralConfig   `yaml:"spectral"`
		Centrality *detect.CentralityConfig `yaml:"centrality"`
		Ensemble   *detect.EnsembleConfig   `yaml:"ensemble"`
		// Authenticity is enabled whenever swarm crypto is on.
	} `yaml:"detectors"`

	Attack struct {
		Type  attack.Type `yaml:"type"`
		Count int         `yaml:"count"`
	} `yaml:"attack"`

	// EnsembleSchedule optionally throttles the ensemble to a cron
	// schedule instead of every cycle ("@every 5s", "*/2 * * * * *").
	EnsembleSchedule string `yaml:"ensemble_schedule"`

	// Output is the bbolt database path for per-cycle metric rows.
	// Empty disables persistence.
	Output string `yaml:"output"`

	// NATSURL enables publishing flagged-detection events. Empty
	// disables the bus.
	NATSURL string `yaml:"nats_url"`
}

// DefaultConfig returns a runnable 30-UAV phantom scenario.
func DefaultConfig() Config {
	var cfg Config
	cfg.Name = "default"
	cfg.Swarm.Size = 30
	cfg.Swarm.Bounds = 500
	cfg.Swarm.MaxSpeed = 15
	cfg.Swarm.CommRange = 150
	cfg.Swarm.Crypto = true
	cfg.BaselineCycles = 20
	cfg.AttackCycles = 10
	cfg.Dt = 1.0
	cfg.Seed = 42
	cfg.Attack.Type = attack.TypePhantom
	cfg.Attack.Count = 5
	return cfg
}

// LoadConfig reads a YAML scenario file, filling unset fields from the
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("experiment: read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("experiment: parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations that cannot produce a meaningful run.
func (c *Config) Validate() error {
	if c.Swarm.Size <= 0 {
		return fmt.Errorf("experiment: swarm size must be positive, got %d", c.Swarm.Size)
	}
	if c.Swarm.CommRange <= 0 {
		return fmt.Errorf("experiment: comm range must be positive, got %g", c.Swarm.CommRange)
	}
	if c.BaselineCycles < 2 {
		return fmt.Errorf("experiment: need at least 2 baseline cycles, got %d", c.BaselineCycles)
	}
	if c.AttackCycles < 1 {
		return fmt.Errorf("experiment: need at least 1 attack cycle, got %d", c.AttackCycles)
	}
	if c.Dt <= 0 {
		return fmt.Errorf("experiment: dt must be positive, got %g", c.Dt)
	}
	switch c.Attack.Type {
	case attack.TypePhantom, attack.TypeSpoof, attack.TypeCoordinated:
	default:
		return fmt.Errorf("experiment: unknown attack type %q", c.Attack.Type)
	}
	if c.Attack.Count <= 0 {
		return fmt.Errorf("experiment: attack count must be positive, got %d", c.Attack.Count)
	}
	return nil
}
