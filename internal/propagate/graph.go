// Package propagate implements the three-phase Gao-Rexford propagation
// sweep (spec section 4.5) and the injectable per-AS policy abstraction
// (spec section 4.6).
package propagate

import (
	"github.com/route-beacon/bgpextrapolate/internal/rib"
	"github.com/route-beacon/bgpextrapolate/internal/topology"
)

// Graph is the "full graph handle" spec section 4.6 says a Policy
// receives: read access to the topology and direct access to the RIB
// matrix and static pool it mutates.
type Graph struct {
	Topo   *topology.Topology
	Matrix rib.Matrix
	Pool   *rib.StaticPool
}
