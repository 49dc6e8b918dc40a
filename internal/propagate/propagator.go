package propagate

import (
	"time"

	"go.uber.org/zap"
)

// Propagator runs the three-phase rank-ordered sweep of spec section 4.5
// over a seeded Graph, using an injectable Policy (section 4.6) to decide
// what each AS imports from its neighbors.
type Propagator struct {
	g      *Graph
	policy Policy
	logger *zap.Logger

	// OnPhase, if set, is called after each phase completes with its name
	// and elapsed duration. Callers wire this to their own metrics
	// backend instead of this package depending on one directly.
	OnPhase func(phase string, elapsed time.Duration)
}

// NewPropagator builds a Propagator. A nil logger is replaced with a
// no-op logger.
func NewPropagator(g *Graph, p Policy, logger *zap.Logger) *Propagator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Propagator{g: g, policy: p, logger: logger}
}

// Run executes one full sweep: customer announcements propagate up
// (ascending rank, skipping the top rank which has no providers),
// peer announcements propagate horizontally at every rank, and
// provider announcements propagate down (descending rank, skipping the
// bottom rank which has no customers).
func (pr *Propagator) Run() {
	pr.phase("customer", pr.propagateUp)
	pr.phase("peer", pr.propagatePeers)
	pr.phase("provider", pr.propagateDown)
}

func (pr *Propagator) phase(name string, fn func()) {
	start := time.Now()
	fn()
	elapsed := time.Since(start)
	pr.logger.Info("propagation phase complete",
		zap.String("phase", name),
		zap.Duration("elapsed", elapsed))
	if pr.OnPhase != nil {
		pr.OnPhase(name, elapsed)
	}
}

// propagateUp is Phase A: every AS above rank 0 pulls from its
// customers' RIB rows.
func (pr *Propagator) propagateUp() {
	maxRank := pr.g.Topo.MaxRank()
	for r := int32(1); r <= maxRank; r++ {
		for _, id := range pr.g.Topo.RankIDs(r) {
			pr.policy.ProcessCustomerAnns(pr.g, id, pr.g.Topo.Customers(id))
		}
	}
}

// propagatePeers is Phase B: every AS at every rank pulls from its peer
// RIB rows. Order across ranks does not matter for peer exchange since
// no rank depends on another rank's peer imports within this phase.
func (pr *Propagator) propagatePeers() {
	maxRank := pr.g.Topo.MaxRank()
	for r := int32(0); r <= maxRank; r++ {
		for _, id := range pr.g.Topo.RankIDs(r) {
			pr.policy.ProcessPeerAnns(pr.g, id, pr.g.Topo.Peers(id))
		}
	}
}

// propagateDown is Phase C: every AS below the top rank pulls from its
// providers' RIB rows, processed top-down so a provider's own import in
// this phase has already completed before its customers read from it.
func (pr *Propagator) propagateDown() {
	maxRank := pr.g.Topo.MaxRank()
	for r := maxRank - 1; r >= 0; r-- {
		for _, id := range pr.g.Topo.RankIDs(r) {
			pr.policy.ProcessProviderAnns(pr.g, id, pr.g.Topo.Providers(id))
		}
	}
}
