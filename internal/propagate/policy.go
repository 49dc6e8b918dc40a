package propagate

import (
	"math/rand"

	"github.com/route-beacon/bgpextrapolate/internal/policy"
	"github.com/route-beacon/bgpextrapolate/internal/priority"
	"github.com/route-beacon/bgpextrapolate/internal/rib"
	"github.com/route-beacon/bgpextrapolate/internal/topology"
)

// Policy is the injectable per-AS propagation abstraction of spec
// section 4.6. Each method receives the full graph handle and the
// neighbor list relevant to its phase, and is responsible for importing
// whatever cells it accepts into the receiver's row.
type Policy interface {
	ProcessCustomerAnns(g *Graph, receiver rib.ASID, customers []topology.Neighbor)
	ProcessPeerAnns(g *Graph, receiver rib.ASID, peers []topology.Neighbor)
	ProcessProviderAnns(g *Graph, receiver rib.ASID, providers []topology.Neighbor)
}

// GaoRexfordPolicy is the standard Gao-Rexford export-policy
// implementation: a receiver imports a neighbor's cell only if the
// neighbor's relationship to the receiver, and then path length, beats
// what the receiver already holds, with a final deterministic tie-break.
type GaoRexfordPolicy struct {
	cfg   Config
	rng   *rand.Rand
	Stats Stats
}

// NewGaoRexfordPolicy builds a policy. rngSeed fixes the deterministic
// RNG backing the random tie-break (spec section 4.5's determinism note).
func NewGaoRexfordPolicy(cfg Config, rngSeed int64) *GaoRexfordPolicy {
	return &GaoRexfordPolicy{
		cfg: cfg,
		rng: rand.New(rand.NewSource(rngSeed)),
	}
}

func (p *GaoRexfordPolicy) ProcessCustomerAnns(g *Graph, receiver rib.ASID, customers []topology.Neighbor) {
	for _, n := range customers {
		p.considerAll(g, receiver, n.ID, priority.RelCustomer)
	}
}

func (p *GaoRexfordPolicy) ProcessPeerAnns(g *Graph, receiver rib.ASID, peers []topology.Neighbor) {
	for _, n := range peers {
		p.considerAll(g, receiver, n.ID, priority.RelPeer)
	}
}

func (p *GaoRexfordPolicy) ProcessProviderAnns(g *Graph, receiver rib.ASID, providers []topology.Neighbor) {
	for _, n := range providers {
		p.considerAll(g, receiver, n.ID, priority.RelProvider)
	}
}

func (p *GaoRexfordPolicy) considerAll(g *Graph, receiver rib.ASID, sender rib.ASID, edgeClass uint8) {
	for block := 0; block < g.Matrix.NumBlocks(); block++ {
		p.considerOne(g, receiver, sender, rib.BlockID(block), edgeClass)
	}
}

// considerOne implements spec section 4.5 step 6 for a single cell: skip
// an empty sender, never overwrite a seeded receiver, reject on path
// overflow, otherwise compare packed fingerprints and accept the winner,
// falling through to the timestamp/random/lowest-ASN tie-break on an
// exact tie.
func (p *GaoRexfordPolicy) considerOne(g *Graph, receiver, sender rib.ASID, block rib.BlockID, edgeClass uint8) {
	senderCell := g.Matrix.Get(sender, block)
	if senderCell.Empty() {
		return
	}
	receiverCell := g.Matrix.Get(receiver, block)
	if receiverCell.Seeded {
		return
	}

	newLength := int(senderCell.PathLength) + 1
	if newLength > priority.MaxPathLength {
		p.Stats.PathTooLong++
		return
	}

	newFP := priority.Pack(false, edgeClass, uint8(newLength))
	curFP := priority.Pack(false, receiverCell.Relationship, receiverCell.PathLength)

	accept := false
	switch {
	case newFP > curFP:
		accept = true
	case newFP < curFP:
		accept = false
	default:
		senderASN := g.Topo.ASNOf(sender)
		accept = p.tieBreak(g, receiverCell, senderCell, senderASN)
	}

	if !accept {
		p.Stats.Rejected++
		return
	}

	receiverCell.ReceivedFromASN = g.Topo.ASNOf(sender)
	receiverCell.StaticIndex = senderCell.StaticIndex
	receiverCell.Relationship = edgeClass
	receiverCell.PathLength = uint8(newLength)
	p.Stats.Accepted++
}

// tieBreak resolves an exact fingerprint tie between the receiver's
// current cell and a newly-offered candidate from senderASN.
func (p *GaoRexfordPolicy) tieBreak(g *Graph, current, candidate *rib.CachedAnnouncement, senderASN rib.ASN) bool {
	// current is guaranteed non-empty: an empty receiver packs to
	// fingerprint 0, and candidate's fingerprint is always > 0 because
	// senderCell.PathLength >= 1 forces newLength >= 2.
	currentTS := g.Pool.Get(current.StaticIndex).Timestamp
	candidateTS := g.Pool.Get(candidate.StaticIndex).Timestamp

	switch p.cfg.TimestampComparison {
	case policy.TimestampPreferNewer:
		if candidateTS > currentTS {
			return false
		}
		if candidateTS < currentTS {
			return true
		}
	case policy.TimestampPreferOlder:
		if candidateTS < currentTS {
			return false
		}
		if candidateTS > currentTS {
			return true
		}
	case policy.TimestampDisabled:
	}

	switch p.cfg.Tiebreak {
	case policy.TiebreakRandom:
		p.Stats.RandomTies++
		return p.rng.Intn(2) == 0
	case policy.TiebreakLowestASN:
		p.Stats.ASNTies++
		return !(current.ReceivedFromASN < senderASN)
	default:
		return false
	}
}
