// Command argusd runs swarm anomaly-detection experiments or listens
// for live Remote ID broadcasts over NATS.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/Sang-Buster/Argus/internal/bus"
	"github.com/Sang-Buster/Argus/internal/detect"
	"github.com/Sang-Buster/Argus/internal/experiment"
	"github.com/Sang-Buster/Argus/internal/logging"
	"github.com/Sang-Buster/Argus/internal/swarm"
	"github.com/Sang-Buster/Argus/internal/telemetry"
)

func main() {
	var (
		configPath = flag.String("config", "", "experiment scenario YAML (default scenario when empty)")
		output     = flag.String("output", "", "bbolt metrics database path (overrides config)")
		seed       = flag.Int64("seed", 0, "override the scenario seed")
		quiet      = flag.Bool("quiet", false, "suppress the results table")
		listen     = flag.Bool("listen", false, "subscribe to Remote ID broadcasts instead of simulating")
		natsURL    = flag.String("nats", "", "NATS server URL (overrides config)")
		commRange  = flag.Float64("comm-range", 150, "comm range in meters for listen mode")
		interval   = flag.Duration("interval", time.Second, "snapshot cadence for listen mode")
		keyFile    = flag.String("keys", "", "public key provisioning file for listen mode")
	)
	flag.Parse()

	log := logging.Init("argusd")
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown := telemetry.InitTracer(ctx, "argusd")
	defer telemetry.Flush(context.Background(), shutdown)

	if *listen {
		if err := runListener(ctx, log, *natsURL, *commRange, *interval, *keyFile); err != nil {
			log.Error("listener failed", "error", err)
			os.Exit(1)
		}
		return
	}

	cfg := experiment.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = experiment.LoadConfig(*configPath)
		if err != nil {
			log.Error("config load failed", "error", err)
			os.Exit(1)
		}
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}
	if *output != "" {
		cfg.Output = *output
	}
	if *natsURL != "" {
		cfg.NATSURL = *natsURL
	}

	summary, err := runExperiment(ctx, log, cfg)
	if err != nil {
		log.Error("experiment failed", "run", cfg.Name, "error", err)
		os.Exit(1)
	}
	if !*quiet {
		printSummary(summary)
	}
}

func runExperiment(ctx context.Context, log *slog.Logger, cfg experiment.Config) (*experiment.Summary, error) {
	var store *experiment.Store
	if cfg.Output != "" {
		var err error
		store, err = experiment.OpenStore(cfg.Output)
		if err != nil {
			return nil, err
		}
		defer store.Close()
	}

	var eventBus *bus.Bus
	if cfg.NATSURL != "" {
		var err error
		eventBus, err = bus.Connect(cfg.NATSURL)
		if err != nil {
			return nil, err
		}
		defer eventBus.Close()
	}

	metrics, err := telemetry.NewDetectionMetrics()
	if err != nil {
		log.Warn("metrics unavailable", "error", err)
	}

	return experiment.NewRunner(cfg, log, store, eventBus, metrics).Run(ctx)
}

// printSummary writes the per-detector table, detectors sorted by name.
func printSummary(s *Summary) {
	fmt.Printf("run %s (%d attack cycles)\n", s.Name, s.Cycles)
	fmt.Printf("%-14s %8s %8s %10s %8s %12s\n", "detector", "TPR", "FPR", "precision", "F1", "latency")

	names := make([]string, 0, len(s.Detectors))
	for name := range s.Detectors {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		m := s.Detectors[name]
		fmt.Printf("%-14s %8s %8.3f %10.3f %8.3f %12s\n",
			name, formatRate(m.TPR), m.FPR, m.Precision, m.F1, m.Latency.Round(time.Microsecond))
	}
}

func formatRate(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.3f", v)
}

// Summary aliases the experiment summary for the printer.
type Summary = experiment.Summary

// runListener assembles live snapshots from Remote ID broadcasts: the
// first baselineCycles snapshots train the detectors, then every
// interval the latest claims are scored and flags logged.
func runListener(ctx context.Context, log *slog.Logger, natsURL string, commRange float64, interval time.Duration, keyFile string) error {
	if natsURL == "" {
		natsURL = "nats://127.0.0.1:4222"
	}
	eventBus, err := bus.Connect(natsURL)
	if err != nil {
		return err
	}
	defer eventBus.Close()

	keys := detect.NewKeyRegistry()
	if keyFile != "" {
		if err := keys.Watch(keyFile, log); err != nil {
			return err
		}
		defer keys.Stop()
	}

	const baselineCycles = 20

	collector := newCollector()
	sub, err := eventBus.SubscribeRemoteID(func(_ context.Context, msg *swarm.RemoteIDMessage) {
		collector.observe(msg)
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	registry := detect.NewRegistry()
	registry.Register(detect.NewSpectralDetector(detect.DefaultSpectralConfig()))
	registry.Register(detect.NewCentralityDetector(detect.DefaultCentralityConfig()))
	ensemble := detect.NewEnsembleDetector(detect.DefaultEnsembleConfig())
	if keyFile != "" {
		registry.Register(detect.NewAuthenticityDetector(keys))
	}

	log.Info("listening for remote id broadcasts", "nats", natsURL,
		"comm_range", commRange, "interval", interval)

	var baseline []*swarm.Snapshot
	trained := false
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		snap := collector.snapshot(commRange)
		if snap.NodeCount() == 0 {
			continue
		}

		if !trained {
			baseline = append(baseline, snap)
			if len(baseline) < baselineCycles {
				continue
			}
			for _, name := range registry.Names() {
				d, _ := registry.Get(name)
				if err := d.Train(baseline); err != nil {
					return fmt.Errorf("train %s: %w", name, err)
				}
			}
			if err := ensemble.Train(baseline); err != nil {
				return fmt.Errorf("train ensemble: %w", err)
			}
			trained = true
			log.Info("baseline trained", "cycles", len(baseline))
			continue
		}

		results, errs := registry.DetectAll(ctx, snap)
		for name, derr := range errs {
			log.Error("detect failed", "detector", name, "error", derr)
		}
		if res, err := ensemble.Detect(ctx, snap); err == nil {
			results[ensemble.Name()] = res
		} else {
			log.Error("detect failed", "detector", ensemble.Name(), "error", err)
		}

		for name, res := range results {
			if res.FlaggedCount() == 0 {
				continue
			}
			log.Warn("nodes flagged", "detector", name, "nodes", res.FlaggedIDs())
			if err := eventBus.PublishResult(ctx, res); err != nil {
				log.Error("event publish failed", "detector", name, "error", err)
			}
		}
	}
}

// collector keeps the latest claim per sender so snapshots reflect the
// most recent broadcast state.
type collector struct {
	mu     sync.Mutex
	latest map[string]*swarm.RemoteIDMessage
}

func newCollector() *collector {
	return &collector{latest: make(map[string]*swarm.RemoteIDMessage)}
}

func (c *collector) observe(msg *swarm.RemoteIDMessage) {
	c.mu.Lock()
	c.latest[msg.SenderID] = msg
	c.mu.Unlock()
}

// snapshot builds a proximity graph over the claimed positions and
// attaches the claims themselves for signature checking.
func (c *collector) snapshot(commRange float64) *swarm.Snapshot {
	c.mu.Lock()
	uavs := make([]*swarm.UAV, 0, len(c.latest))
	msgs := make([]*swarm.RemoteIDMessage, 0, len(c.latest))
	for _, m := range c.latest {
		uavs = append(uavs, &swarm.UAV{ID: m.SenderID, Position: m.Position, Velocity: m.Velocity})
		msgs = append(msgs, m)
	}
	c.mu.Unlock()

	snap := swarm.BuildSnapshot(uavs, commRange)
	snap.AttachMessages(msgs)
	return snap
}
