package experiment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/Sang-Buster/Argus/internal/attack"
	"github.com/Sang-Buster/Argus/internal/eval"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadConfig(t *testing.T) {
	content := `
name: spoof-20
swarm:
  size: 20
  bounds: 400
  max_speed: 12
  comm_range: 120
  crypto: true
baseline_cycles: 15
attack_cycles: 8
dt: 0.5
seed: 7
attack:
  type: position_spoof
  count: 4
detectors:
  centrality:
    threshold: 2.5
output: /tmp/spoof.db
`
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "spoof-20" || cfg.Swarm.Size != 20 || cfg.Seed != 7 {
		t.Fatalf("config not parsed: %+v", cfg)
	}
	if cfg.Attack.Type != attack.TypeSpoof || cfg.Attack.Count != 4 {
		t.Fatalf("attack not parsed: %+v", cfg.Attack)
	}
	if cfg.Detectors.Centrality == nil || cfg.Detectors.Centrality.Threshold != 2.5 {
		t.Fatalf("detector overrides not parsed: %+v", cfg.Detectors)
	}
	// Unset fields keep defaults.
	if cfg.Dt != 0.5 || cfg.Swarm.MaxSpeed != 12 {
		t.Fatalf("explicit fields overridden: %+v", cfg)
	}
}

func TestConfigValidate(t *testing.T) {
	bad := func(mutate func(*Config)) error {
		cfg := DefaultConfig()
		mutate(&cfg)
		return cfg.Validate()
	}

	if err := bad(func(c *Config) { c.Swarm.Size = 0 }); err == nil {
		t.Error("zero swarm size accepted")
	}
	if err := bad(func(c *Config) { c.BaselineCycles = 1 }); err == nil {
		t.Error("single baseline cycle accepted")
	}
	if err := bad(func(c *Config) { c.Dt = 0 }); err == nil {
		t.Error("zero dt accepted")
	}
	if err := bad(func(c *Config) { c.Attack.Type = "teleport" }); err == nil {
		t.Error("unknown attack type accepted")
	}
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if err := store.PutRun(RunRecord{
		Name:      "phantom-30",
		StartedAt: time.Now().UTC(),
		Seed:      42,
		Attack:    "phantom",
		Cycles:    10,
	}); err != nil {
		t.Fatal(err)
	}

	for cycle := 0; cycle < 3; cycle++ {
		for _, det := range []string{"spectral", "centrality"} {
			row := MetricRow{
				Run:     "phantom-30",
				Cycle:   cycle,
				Metrics: eval.Metrics{Detector: det, TPR: 0.8, FPR: 0.05},
			}
			if err := store.PutMetric(row); err != nil {
				t.Fatal(err)
			}
		}
	}

	rows, err := store.MetricsForRun("phantom-30")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 6 {
		t.Fatalf("got %d rows, want 6", len(rows))
	}
	// Rows come back ordered by cycle then detector.
	if rows[0].Cycle != 0 || rows[0].Metrics.Detector != "centrality" {
		t.Fatalf("first row out of order: %+v", rows[0])
	}
	if rows[5].Cycle != 2 || rows[5].Metrics.Detector != "spectral" {
		t.Fatalf("last row out of order: %+v", rows[5])
	}

	if other, _ := store.MetricsForRun("other-run"); len(other) != 0 {
		t.Fatalf("foreign run returned %d rows", len(other))
	}
}

func TestRunnerEndToEnd(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Name = "e2e"
	cfg.Swarm.Size = 15
	cfg.BaselineCycles = 8
	cfg.AttackCycles = 3
	cfg.Attack.Count = 3
	cfg.Output = filepath.Join(t.TempDir(), "e2e.db")

	store, err := OpenStore(cfg.Output)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	runner := NewRunner(cfg, discardLogger(), store, nil, nil)
	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if summary.Cycles != cfg.AttackCycles {
		t.Fatalf("summary cycles = %d, want %d", summary.Cycles, cfg.AttackCycles)
	}
	for _, det := range []string{"spectral", "centrality", "authenticity", "ensemble"} {
		m, ok := summary.Detectors[det]
		if !ok {
			t.Fatalf("summary missing detector %s", det)
		}
		if m.FPR < 0 || m.FPR > 1 {
			t.Errorf("%s FPR = %g out of range", det, m.FPR)
		}
		if !math.IsNaN(m.TPR) && (m.TPR < 0 || m.TPR > 1) {
			t.Errorf("%s TPR = %g out of range", det, m.TPR)
		}
	}

	// Unsigned phantoms can never verify, so the authenticity detector
	// must catch all of them every cycle.
	if m := summary.Detectors["authenticity"]; m.TPR != 1 || m.FPR != 0 {
		t.Errorf("authenticity TPR=%g FPR=%g, want 1/0", m.TPR, m.FPR)
	}

	rows, err := store.MetricsForRun("e2e")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4*cfg.AttackCycles {
		t.Fatalf("persisted %d rows, want %d", len(rows), 4*cfg.AttackCycles)
	}
}

func TestRunnerCanceledRunStopsWorker(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Name = "canceled"
	cfg.Swarm.Size = 10
	cfg.BaselineCycles = 4
	cfg.AttackCycles = 2

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	before := runtime.NumGoroutine()
	if _, err := NewRunner(cfg, discardLogger(), nil, nil, nil).Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled run: err = %v, want context.Canceled", err)
	}

	// The deferred worker cleanup must release its goroutine even though
	// the cycle loop never drained the queue.
	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if after := runtime.NumGoroutine(); after > before {
		t.Fatalf("goroutines grew from %d to %d after canceled run", before, after)
	}
}

func TestRunnerDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Name = "det"
	cfg.Swarm.Size = 12
	cfg.BaselineCycles = 6
	cfg.AttackCycles = 2
	cfg.Attack.Count = 2

	run := func() *Summary {
		t.Helper()
		s, err := NewRunner(cfg, discardLogger(), nil, nil, nil).Run(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		return s
	}

	a, b := run(), run()
	for det, ma := range a.Detectors {
		mb, ok := b.Detectors[det]
		if !ok {
			t.Fatalf("second run missing detector %s", det)
		}
		if ma.TruePositives != mb.TruePositives || ma.FalsePositives != mb.FalsePositives {
			t.Fatalf("%s diverged across identical runs: %+v vs %+v", det, ma, mb)
		}
	}
}
