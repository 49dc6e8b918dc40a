package topology

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/route-beacon/bgpextrapolate/internal/rib"
	"github.com/route-beacon/bgpextrapolate/internal/priority"
)

// BuildOptions controls how Build interprets the input records.
type BuildOptions struct {
	// ElideStubs skips allocating a dense ID (and a RIB row) for any AS
	// record with IsStub set, recording stub_asn->provider_id instead.
	ElideStubs bool
	// RefuseCycles makes Build return an error if the provider/customer
	// edges (ignoring peer links, which are non-hierarchical) contain a
	// cycle. Spec section 9 says implementations SHOULD detect this; it
	// is opt-in here since a malformed-but-otherwise-usable topology
	// still propagates to a bounded, if undefined, result.
	RefuseCycles bool
}

// Build constructs an immutable Topology from abstract AS records (spec
// section 4.2). Duplicate ASNs are a fatal error. A reference to an ASN
// absent from the record set is a warn-and-skip: the edge is dropped, the
// AS the edge was attached to still loads.
func Build(records []ASRecord, opts BuildOptions, logger *zap.Logger) (*Topology, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	seen := make(map[rib.ASN]struct{}, len(records))
	for _, rec := range records {
		if _, dup := seen[rec.ASN]; dup {
			return nil, fmt.Errorf("topology: duplicate ASN %d", rec.ASN)
		}
		seen[rec.ASN] = struct{}{}
	}

	t := &Topology{
		asnToID:      make(map[rib.ASN]rib.ASID, len(records)),
		relationship: make(map[relKey]uint8, len(records)*2),
		stubProvider: make(map[rib.ASN]rib.ASID),
	}

	// Pass 1: assign dense IDs, skipping elided stubs.
	for _, rec := range records {
		if opts.ElideStubs && rec.IsStub {
			continue
		}
		id := rib.ASID(len(t.idToASN))
		t.idToASN = append(t.idToASN, rec.ASN)
		t.asnToID[rec.ASN] = id
	}

	n := len(t.idToASN)
	t.providersOf = make([][]Neighbor, n)
	t.customersOf = make([][]Neighbor, n)
	t.peersOf = make([][]Neighbor, n)
	t.rankOf = make([]int32, n)

	byASN := make(map[rib.ASN]*ASRecord, len(records))
	for i := range records {
		byASN[records[i].ASN] = &records[i]
	}

	// Pass 2: adjacency, relationship map, rank, stub-elision map.
	for _, rec := range records {
		if opts.ElideStubs && rec.IsStub {
			// Stubs contribute no row of their own; their relationships
			// are represented entirely through their provider's stub map
			// (populated below, from the provider's Stubs list).
			continue
		}
		id := t.asnToID[rec.ASN]
		if rec.PropagationRank > t.maxRank {
			t.maxRank = rec.PropagationRank
		}
		t.rankOf[id] = rec.PropagationRank

		for _, pASN := range rec.Providers {
			pID, ok := t.asnToID[pASN]
			if !ok {
				logger.Warn("topology: unknown provider ASN referenced, skipping edge",
					zap.Uint32("asn", uint32(rec.ASN)), zap.Uint32("provider_asn", uint32(pASN)))
				continue
			}
			t.providersOf[id] = append(t.providersOf[id], Neighbor{ASN: pASN, ID: pID})
			// Receiver `rec.ASN` learning from sender `pASN` is learning
			// from its provider.
			t.relationship[relKey{from: pASN, to: rec.ASN}] = priority.RelProvider
			// Receiver `pASN` learning from sender `rec.ASN` is learning
			// from its customer.
			t.relationship[relKey{from: rec.ASN, to: pASN}] = priority.RelCustomer
		}

		for _, cASN := range rec.Customers {
			cID, ok := t.asnToID[cASN]
			if !ok {
				logger.Warn("topology: unknown customer ASN referenced, skipping edge",
					zap.Uint32("asn", uint32(rec.ASN)), zap.Uint32("customer_asn", uint32(cASN)))
				continue
			}
			t.customersOf[id] = append(t.customersOf[id], Neighbor{ASN: cASN, ID: cID})
			t.relationship[relKey{from: rec.ASN, to: cASN}] = priority.RelProvider
			t.relationship[relKey{from: cASN, to: rec.ASN}] = priority.RelCustomer
		}

		for _, qASN := range rec.Peers {
			qID, ok := t.asnToID[qASN]
			if !ok {
				logger.Warn("topology: unknown peer ASN referenced, skipping edge",
					zap.Uint32("asn", uint32(rec.ASN)), zap.Uint32("peer_asn", uint32(qASN)))
				continue
			}
			t.peersOf[id] = append(t.peersOf[id], Neighbor{ASN: qASN, ID: qID})
			t.relationship[relKey{from: rec.ASN, to: qASN}] = priority.RelPeer
			t.relationship[relKey{from: qASN, to: rec.ASN}] = priority.RelPeer
		}

		if opts.ElideStubs {
			for _, sASN := range rec.Stubs {
				if _, isRec := byASN[sASN]; !isRec {
					logger.Warn("topology: unknown stub ASN referenced, skipping",
						zap.Uint32("provider_asn", uint32(rec.ASN)), zap.Uint32("stub_asn", uint32(sASN)))
					continue
				}
				t.stubProvider[sASN] = id
			}
		}
	}

	// Build rank_to_ids, ascending by AS-ID within each rank (spec section
	// 4.5 determinism requirement): ranges over IDs in ascending order, so
	// appends land already sorted.
	t.rankToIDs = make([][]rib.ASID, t.maxRank+1)
	for id := 0; id < n; id++ {
		r := t.rankOf[id]
		t.rankToIDs[r] = append(t.rankToIDs[r], rib.ASID(id))
	}

	if opts.RefuseCycles {
		if cyc := detectProviderCycle(t); cyc != nil {
			return nil, fmt.Errorf("topology: provider/customer edges contain a cycle through ASN %d; input topology must be a DAG", t.ASNOf(cyc[0]))
		}
	}

	return t, nil
}

// detectProviderCycle runs an iterative DFS over customer->provider edges
// (peer edges are horizontal and excluded) and returns the path of a cycle
// if one exists, or nil if the graph is acyclic.
func detectProviderCycle(t *Topology) []rib.ASID {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make([]uint8, t.NumAS())

	type frame struct {
		id   rib.ASID
		next int
	}

	for start := 0; start < t.NumAS(); start++ {
		if color[start] != white {
			continue
		}
		stack := []frame{{id: rib.ASID(start)}}
		color[start] = gray
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			providers := t.Providers(top.id)
			if top.next >= len(providers) {
				color[top.id] = black
				stack = stack[:len(stack)-1]
				continue
			}
			next := providers[top.next].ID
			top.next++
			switch color[next] {
			case white:
				color[next] = gray
				stack = append(stack, frame{id: next})
			case gray:
				// next is on the DFS stack; the cycle is the stack suffix
				// that starts at next.
				start := 0
				for i, fr := range stack {
					if fr.id == next {
						start = i
						break
					}
				}
				path := make([]rib.ASID, 0, len(stack)-start)
				for _, fr := range stack[start:] {
					path = append(path, fr.id)
				}
				return path
			}
		}
	}
	return nil
}
