// Package trace implements the Tracer (spec section 4.7): given an AS and
// a prefix block, it walks received_from back-pointers to materialize the
// AS_PATH a propagated (or seeded) cell represents.
package trace

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/route-beacon/bgpextrapolate/internal/rib"
	"github.com/route-beacon/bgpextrapolate/internal/topology"
)

// Result is a reconstructed AS_PATH, ordered origin-last, vantage-first —
// the same convention seeding input uses.
type Result struct {
	Path []rib.ASN
}

// Tracer walks a Matrix's received_from back-pointers.
type Tracer struct {
	topo   *topology.Topology
	matrix rib.Matrix
	logger *zap.Logger
}

// New builds a Tracer over an already-propagated graph. A nil logger is
// replaced with a no-op logger.
func New(topo *topology.Topology, matrix rib.Matrix, logger *zap.Logger) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracer{topo: topo, matrix: matrix, logger: logger}
}

// Trace reconstructs the AS_PATH for (asn, block), per spec section 4.7.
func (t *Tracer) Trace(asn rib.ASN, block rib.BlockID) (Result, error) {
	id, ok := t.topo.IDOf(asn)
	if !ok {
		return Result{}, fmt.Errorf("trace: unknown AS %d", asn)
	}

	path := []rib.ASN{asn}
	cell := t.matrix.Get(id, block)
	if cell.Empty() {
		return Result{}, fmt.Errorf("trace: no route for AS %d, prefix block %d", asn, block)
	}

	visited := map[rib.ASN]struct{}{asn: {}}
	current, currentID := asn, id

	for {
		cell := t.matrix.Get(currentID, block)
		if cell.Empty() {
			// Invariant I4 promises this cannot happen under correct
			// seeding/propagation; defend anyway rather than panic.
			return Result{Path: path}, fmt.Errorf("trace: broken chain at AS %d, prefix block %d", current, block)
		}

		next := cell.ReceivedFromASN
		if next == current {
			break // origin reached
		}
		if _, seen := visited[next]; seen {
			t.logger.Warn("trace: cycle detected, truncating path",
				zap.Uint32("start_asn", uint32(asn)), zap.Uint32("repeated_asn", uint32(next)))
			return Result{Path: path}, fmt.Errorf("trace: cycle detected at AS %d tracing from AS %d", next, asn)
		}

		path = append(path, next)
		visited[next] = struct{}{}

		nextID, known := t.topo.IDOf(next)
		if !known {
			// Out-of-graph next-hop (an elided stub's ASN recorded as
			// received_from): appended once, walk terminates here.
			break
		}
		current, currentID = next, nextID
	}

	return Result{Path: path}, nil
}
