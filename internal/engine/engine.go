// Package engine wires the topology store, RIB matrix, seeder,
// propagator and tracer into one run, the way cmd/rib-ingester/main.go's
// runServe wired pipelines, storage and the HTTP server together — here
// adapted from a long-lived service loop into a bounded batch
// computation.
package engine

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/route-beacon/bgpextrapolate/internal/metrics"
	"github.com/route-beacon/bgpextrapolate/internal/propagate"
	"github.com/route-beacon/bgpextrapolate/internal/rib"
	"github.com/route-beacon/bgpextrapolate/internal/seed"
	"github.com/route-beacon/bgpextrapolate/internal/topology"
	"github.com/route-beacon/bgpextrapolate/internal/trace"
)

// Options configures one Engine. RNGSeed fixes both the seeder's and the
// propagator's deterministic random tie-break.
type Options struct {
	NumBlocks int
	RIBLayout string // "row_major" or "transposed"
	SeedCfg   seed.Config
	PropCfg   propagate.Config
	RNGSeed   int64
	// RunID labels this engine's occupancy gauge; defaults to "default".
	RunID string
}

// Engine owns the full in-memory graph for one run: the topology, the
// RIB matrix, and the pipeline stages that read and write it.
type Engine struct {
	Topo   *topology.Topology
	Matrix rib.Matrix
	Pool   *rib.StaticPool

	seeder     *seed.Seeder
	graph      *propagate.Graph
	policy     *propagate.GaoRexfordPolicy
	propagator *propagate.Propagator
	tracer     *trace.Tracer

	runID  string
	logger *zap.Logger
}

// RunStats summarizes one Run or Rerun.
type RunStats struct {
	Seed        seed.Stats
	Propagation propagate.Stats
	Duration    time.Duration
}

// New builds an Engine over an already-loaded Topology. A nil logger is
// replaced with a no-op logger.
func New(topo *topology.Topology, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	var matrix rib.Matrix
	if opts.RIBLayout == "transposed" {
		matrix = rib.NewTransposed(topo.NumAS(), opts.NumBlocks)
	} else {
		matrix = rib.NewRowMajor(topo.NumAS(), opts.NumBlocks)
	}
	pool := rib.NewStaticPool(0)

	seeder := seed.New(topo, matrix, pool, opts.SeedCfg, opts.RNGSeed, logger.Named("seed"))
	g := &propagate.Graph{Topo: topo, Matrix: matrix, Pool: pool}
	pol := propagate.NewGaoRexfordPolicy(opts.PropCfg, opts.RNGSeed)
	prop := propagate.NewPropagator(g, pol, logger.Named("propagate"))
	prop.OnPhase = func(phase string, elapsed time.Duration) {
		metrics.PropagationPhaseDuration.WithLabelValues(phase).Observe(elapsed.Seconds())
	}

	runID := opts.RunID
	if runID == "" {
		runID = "default"
	}

	return &Engine{
		Topo:       topo,
		Matrix:     matrix,
		Pool:       pool,
		seeder:     seeder,
		graph:      g,
		policy:     pol,
		propagator: prop,
		tracer:     trace.New(topo, matrix, logger.Named("trace")),
		runID:      runID,
		logger:     logger,
	}
}

// Seed feeds one observed announcement into the seeder.
func (e *Engine) Seed(rec seed.AnnouncementRecord) error {
	if err := e.seeder.Seed(rec); err != nil {
		metrics.SeedAnnouncementsTotal.WithLabelValues("rejected").Inc()
		return fmt.Errorf("engine: seed: %w", err)
	}
	metrics.SeedAnnouncementsTotal.WithLabelValues("accepted").Inc()
	return nil
}

// SeedAll feeds a batch of observed announcements, stopping at the first
// error, and records the batch's wall-clock time.
func (e *Engine) SeedAll(recs []seed.AnnouncementRecord) error {
	start := time.Now()
	defer func() {
		metrics.SeedDuration.WithLabelValues().Observe(time.Since(start).Seconds())
	}()
	for _, rec := range recs {
		if err := e.Seed(rec); err != nil {
			return err
		}
	}
	return nil
}

// Run executes one full propagation sweep over whatever has been seeded
// so far and returns the combined seed/propagation statistics.
func (e *Engine) Run() RunStats {
	start := time.Now()
	e.propagator.Run()
	elapsed := time.Since(start)
	metrics.RunDuration.WithLabelValues().Observe(elapsed.Seconds())

	metrics.PropagationCellsTotal.WithLabelValues("accepted").Add(float64(e.policy.Stats.Accepted))
	metrics.PropagationCellsTotal.WithLabelValues("rejected").Add(float64(e.policy.Stats.Rejected))
	metrics.PropagationCellsTotal.WithLabelValues("path_too_long").Add(float64(e.policy.Stats.PathTooLong))
	metrics.RIBOccupancy.WithLabelValues(e.runID).Set(e.Occupancy())

	return RunStats{
		Seed:        e.seeder.Stats,
		Propagation: e.policy.Stats,
		Duration:    elapsed,
	}
}

// Rerun resets every non-seeded cell and re-runs propagation, the
// convenience the original implementation offers for exploring "what if"
// topology or policy changes without re-seeding from scratch.
func (e *Engine) Rerun() RunStats {
	e.Matrix.ResetNonSeeded()
	e.policy.Stats = propagate.Stats{}
	return e.Run()
}

// Occupancy returns the fraction of RIB matrix cells currently populated.
func (e *Engine) Occupancy() float64 {
	total := e.Matrix.NumAS() * e.Matrix.NumBlocks()
	if total == 0 {
		return 0
	}
	populated := 0
	for as := 0; as < e.Matrix.NumAS(); as++ {
		for block := 0; block < e.Matrix.NumBlocks(); block++ {
			if !e.Matrix.Get(rib.ASID(as), rib.BlockID(block)).Empty() {
				populated++
			}
		}
	}
	return float64(populated) / float64(total)
}

// Trace reconstructs the AS_PATH a (asn, block) cell represents.
func (e *Engine) Trace(asn rib.ASN, block rib.BlockID) (trace.Result, error) {
	res, err := e.tracer.Trace(asn, block)
	if err != nil {
		metrics.TraceRequestsTotal.WithLabelValues("error").Inc()
		return res, err
	}
	metrics.TraceRequestsTotal.WithLabelValues("ok").Inc()
	return res, nil
}
