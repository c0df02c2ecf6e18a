package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Sang-Buster/Argus/internal/attack"
	"github.com/Sang-Buster/Argus/internal/bus"
	"github.com/Sang-Buster/Argus/internal/detect"
	"github.com/Sang-Buster/Argus/internal/eval"
	"github.com/Sang-Buster/Argus/internal/sim"
	"github.com/Sang-Buster/Argus/internal/swarm"
	"github.com/Sang-Buster/Argus/internal/telemetry"
)

// Summary aggregates per-detector performance over the attack cycles.
// Rates are averaged over cycles where they were defined.
type Summary struct {
	Name      string                  `json:"name"`
	Cycles    int                     `json:"cycles"`
	Detectors map[string]eval.Metrics `json:"detectors"`
}

// Runner executes one configured scenario end to end.
type Runner struct {
	cfg     Config
	log     *slog.Logger
	store   *Store
	bus     *bus.Bus
	metrics *telemetry.DetectionMetrics
}

// NewRunner wires a runner. store and eventBus may be nil; metrics may
// be nil when telemetry is not initialized.
func NewRunner(cfg Config, log *slog.Logger, store *Store, eventBus *bus.Bus, metrics *telemetry.DetectionMetrics) *Runner {
	return &Runner{cfg: cfg, log: log, store: store, bus: eventBus, metrics: metrics}
}

// BuildDetectors assembles the per-cycle detector registry from the
// scenario config. The ensemble runs on its own worker, not here; the
// authenticity detector is included only when crypto is on, bound to
// registry keys.
func BuildDetectors(cfg Config, keys *detect.KeyRegistry) *detect.Registry {
	reg := detect.NewRegistry()

	spectral := detect.DefaultSpectralConfig()
	if cfg.Detectors.Spectral != nil {
		spectral = *cfg.Detectors.Spectral
	}
	reg.Register(detect.NewSpectralDetector(spectral))

	centrality := detect.DefaultCentralityConfig()
	if cfg.Detectors.Centrality != nil {
		centrality = *cfg.Detectors.Centrality
	}
	reg.Register(detect.NewCentralityDetector(centrality))

	if cfg.Swarm.Crypto {
		reg.Register(detect.NewAuthenticityDetector(keys))
	}
	return reg
}

// Run executes the scenario: clean baseline, training, attack injection,
// per-cycle detection and scoring, optional persistence and eventing.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	simulator, err := sim.New(sim.Config{
		Size:             r.cfg.Swarm.Size,
		Bounds:           r.cfg.Swarm.Bounds,
		MaxSpeed:         r.cfg.Swarm.MaxSpeed,
		WaypointInterval: 10,
		Crypto:           r.cfg.Swarm.Crypto,
		Seed:             r.cfg.Seed,
	})
	if err != nil {
		return nil, err
	}

	keys := detect.NewKeyRegistry()
	if r.cfg.Swarm.Crypto {
		for _, u := range simulator.UAVs() {
			if err := keys.Register(u.ID, u.PublicKey); err != nil {
				return nil, err
			}
		}
	}

	// Phase 1: attack-free baseline.
	baseline := make([]*swarm.Snapshot, 0, r.cfg.BaselineCycles)
	for i := 0; i < r.cfg.BaselineCycles; i++ {
		simulator.Step(r.cfg.Dt)
		snap := simulator.Snapshot(r.cfg.Swarm.CommRange)
		if r.metrics != nil {
			r.metrics.RecordSnapshot(ctx, snap.NodeCount(), snap.EdgeCount())
		}
		baseline = append(baseline, snap)
	}
	r.log.Info("baseline collected", "run", r.cfg.Name, "cycles", len(baseline))

	// Phase 2: train everything on the clean corpus.
	registry := BuildDetectors(r.cfg, keys)
	for _, name := range registry.Names() {
		d, _ := registry.Get(name)
		if err := d.Train(baseline); err != nil {
			return nil, fmt.Errorf("experiment: train %s: %w", name, err)
		}
		if r.metrics != nil {
			r.metrics.RecordTrain(ctx, name, len(baseline))
		}
	}

	ensembleCfg := detect.DefaultEnsembleConfig()
	if r.cfg.Detectors.Ensemble != nil {
		ensembleCfg = *r.cfg.Detectors.Ensemble
	}
	if ensembleCfg.Seed == 0 {
		ensembleCfg.Seed = r.cfg.Seed
	}
	ensemble := detect.NewEnsembleDetector(ensembleCfg)
	if err := ensemble.Train(baseline); err != nil {
		return nil, fmt.Errorf("experiment: train ensemble: %w", err)
	}
	r.log.Info("detectors trained", "run", r.cfg.Name,
		"detectors", append(registry.Names(), ensemble.Name()))

	// Phase 3: inject the attack.
	rng := rand.New(rand.NewSource(r.cfg.Seed + 1))
	injector, err := attack.New(r.cfg.Attack.Type, r.cfg.Attack.Count,
		r.cfg.Swarm.Bounds, r.cfg.Swarm.CommRange, rng)
	if err != nil {
		return nil, err
	}
	injected, err := injector.Inject(simulator.UAVs())
	if err != nil {
		return nil, err
	}
	simulator.Replace(injected)
	r.log.Info("attack injected", "run", r.cfg.Name,
		"type", injector.Name(), "count", r.cfg.Attack.Count)

	if r.store != nil {
		rec := RunRecord{
			Name:      r.cfg.Name,
			StartedAt: time.Now().UTC(),
			Seed:      r.cfg.Seed,
			Attack:    string(r.cfg.Attack.Type),
			Cycles:    r.cfg.AttackCycles,
		}
		if err := r.store.PutRun(rec); err != nil {
			return nil, err
		}
	}

	// Phase 4: attack cycles. The registry detectors run in parallel per
	// cycle; the ensemble runs asynchronously on its own worker so its
	// heavier model never stalls the cycle loop.
	agg := newAggregator()
	worker := r.startEnsembleWorker(ctx, ensemble, agg)
	defer worker.stop()

	for cycle := 0; cycle < r.cfg.AttackCycles; cycle++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		simulator.Step(r.cfg.Dt)
		snap := simulator.Snapshot(r.cfg.Swarm.CommRange)
		truth := swarm.Labels(simulator.UAVs())
		if r.metrics != nil {
			r.metrics.RecordSnapshot(ctx, snap.NodeCount(), snap.EdgeCount())
		}

		results, errs := registry.DetectAll(ctx, snap)
		for name, derr := range errs {
			return nil, fmt.Errorf("experiment: detect %s at cycle %d: %w", name, cycle, derr)
		}
		for _, res := range results {
			r.record(ctx, cycle, res, truth, agg)
		}

		worker.submit(cycleJob{cycle: cycle, snap: snap, truth: truth})
	}

	worker.drain()

	summary := &Summary{
		Name:      r.cfg.Name,
		Cycles:    r.cfg.AttackCycles,
		Detectors: agg.summarize(),
	}
	r.log.Info("run complete", "run", r.cfg.Name, "cycles", summary.Cycles)
	return summary, nil
}

// record scores one result, persists it, publishes flagged events and
// feeds the aggregate.
func (r *Runner) record(ctx context.Context, cycle int, res *detect.Result, truth map[string]bool, agg *aggregator) {
	m := eval.Score(res, truth)
	agg.add(m)

	if r.metrics != nil {
		r.metrics.RecordDetect(ctx, res.Detector, res.FlaggedCount(), res.Elapsed)
	}
	if r.store != nil {
		if err := r.store.PutMetric(MetricRow{Run: r.cfg.Name, Cycle: cycle, Metrics: m}); err != nil {
			r.log.Error("metric persist failed", "detector", res.Detector, "cycle", cycle, "error", err)
		}
	}
	if err := r.bus.PublishResult(ctx, res); err != nil {
		r.log.Error("event publish failed", "detector", res.Detector, "cycle", cycle, "error", err)
	}
	r.log.Debug("cycle scored", "detector", res.Detector, "cycle", cycle,
		"flagged", res.FlaggedCount(), "tpr", m.TPR, "fpr", m.FPR)
}

// ---------------------------------------------------------------------
// Background ensemble worker

type cycleJob struct {
	cycle int
	snap  *swarm.Snapshot
	truth map[string]bool
}

type ensembleWorker struct {
	runner   *Runner
	detector *detect.EnsembleDetector
	agg      *aggregator

	jobs    chan cycleJob
	wg      sync.WaitGroup
	closing sync.Once
	cron    *cron.Cron
	due     atomic.Bool
}

// startEnsembleWorker launches the goroutine that drains ensemble jobs.
// With a cron schedule configured, cycles are only evaluated when the
// schedule has fired since the last submission; otherwise every cycle
// runs.
func (r *Runner) startEnsembleWorker(ctx context.Context, d *detect.EnsembleDetector, agg *aggregator) *ensembleWorker {
	w := &ensembleWorker{
		runner:   r,
		detector: d,
		agg:      agg,
		jobs:     make(chan cycleJob, r.cfg.AttackCycles),
	}
	w.due.Store(true)

	if r.cfg.EnsembleSchedule != "" {
		w.cron = cron.New(cron.WithSeconds())
		if _, err := w.cron.AddFunc(r.cfg.EnsembleSchedule, func() { w.due.Store(true) }); err != nil {
			r.log.Error("invalid ensemble schedule, running every cycle",
				"schedule", r.cfg.EnsembleSchedule, "error", err)
			w.cron = nil
		} else {
			w.cron.Start()
		}
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for job := range w.jobs {
			res, err := d.Detect(ctx, job.snap)
			if err != nil {
				r.log.Error("ensemble detect failed", "cycle", job.cycle, "error", err)
				continue
			}
			r.record(ctx, job.cycle, res, job.truth, w.agg)
		}
	}()
	return w
}

// submit enqueues a cycle for ensemble evaluation, honoring the cron
// gate when one is configured.
func (w *ensembleWorker) submit(job cycleJob) {
	if w.cron != nil && !w.due.Swap(false) {
		return
	}
	w.jobs <- job
}

// drain closes the queue and waits for in-flight evaluations.
func (w *ensembleWorker) drain() {
	w.closing.Do(func() { close(w.jobs) })
	w.wg.Wait()
}

// stop shuts down the cron gate and the worker goroutine. It is the
// deferred cleanup in Run, so it must also release the goroutine when an
// early return skips drain; calling it after drain is a no-op.
func (w *ensembleWorker) stop() {
	if w.cron != nil {
		w.cron.Stop()
		w.cron = nil
	}
	w.drain()
}

// ---------------------------------------------------------------------
// Metric aggregation

type aggregator struct {
	mu   sync.Mutex
	rows map[string][]eval.Metrics
}

func newAggregator() *aggregator {
	return &aggregator{rows: make(map[string][]eval.Metrics)}
}

func (a *aggregator) add(m eval.Metrics) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rows[m.Detector] = append(a.rows[m.Detector], m)
}

// summarize averages each detector's metrics over its scored cycles,
// skipping undefined (NaN) rates.
func (a *aggregator) summarize() map[string]eval.Metrics {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string]eval.Metrics, len(a.rows))
	for name, rows := range a.rows {
		sum := eval.Metrics{Detector: name, TPR: math.NaN()}
		var tprSum float64
		var tprN int
		var latency time.Duration
		for _, m := range rows {
			if !math.IsNaN(m.TPR) {
				tprSum += m.TPR
				tprN++
			}
			sum.FPR += m.FPR
			sum.Precision += m.Precision
			sum.F1 += m.F1
			latency += m.Latency
			sum.TruePositives += m.TruePositives
			sum.FalsePositives += m.FalsePositives
			sum.TrueNegatives += m.TrueNegatives
			sum.FalseNegatives += m.FalseNegatives
		}
		n := float64(len(rows))
		if tprN > 0 {
			sum.TPR = tprSum / float64(tprN)
		}
		sum.FPR /= n
		sum.Precision /= n
		sum.F1 /= n
		sum.Latency = latency / time.Duration(len(rows))
		out[name] = sum
	}
	return out
}
