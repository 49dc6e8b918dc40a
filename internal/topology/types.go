// Package topology implements the Topology Store (spec section 4.2): the
// ASN<->dense-ID bijection, per-AS adjacency vectors, the rank index that
// drives propagation order, and the optional stub-elision map.
package topology

import "github.com/route-beacon/bgpextrapolate/internal/rib"

// ASRecord is the abstract input record the loader consumes for one AS,
// matching spec section 4.2's input contract. Loading from any concrete
// wire format (TSV, JSON, ...) happens upstream of this package.
type ASRecord struct {
	ASN             rib.ASN
	PropagationRank int32
	Providers       []rib.ASN
	Peers           []rib.ASN
	Customers       []rib.ASN
	// Stubs lists this AS's directly-attached stub customers, used to
	// build the stub-elision map; it is a subset of Customers.
	Stubs  []rib.ASN
	IsStub bool
}

// Neighbor pairs a neighbor's ASN with its dense ID, so the hot path never
// has to re-hash an ASN during propagation.
type Neighbor struct {
	ASN rib.ASN
	ID  rib.ASID
}

// relKey identifies a directed adjacency for relationship-class lookup.
type relKey struct {
	from rib.ASN
	to   rib.ASN
}

// Topology is the immutable, loaded AS graph. It is safe to share across
// goroutines once Build has returned, since nothing mutates it afterward.
type Topology struct {
	asnToID map[rib.ASN]rib.ASID
	idToASN []rib.ASN

	providersOf [][]Neighbor
	peersOf     [][]Neighbor
	customersOf [][]Neighbor

	rankOf    []int32
	rankToIDs [][]rib.ASID
	maxRank   int32

	relationship map[relKey]uint8

	// stubProvider maps an elided stub's ASN to the dense ID of its sole
	// provider. Only populated when stub elision is enabled.
	stubProvider map[rib.ASN]rib.ASID
}

// NumAS returns the number of ASes that were assigned a dense ID (elided
// stubs are not counted).
func (t *Topology) NumAS() int { return len(t.idToASN) }

// MaxRank returns the highest propagation rank observed among loaded ASes.
func (t *Topology) MaxRank() int32 { return t.maxRank }

// IDOf resolves an ASN to its dense ID.
func (t *Topology) IDOf(asn rib.ASN) (rib.ASID, bool) {
	id, ok := t.asnToID[asn]
	return id, ok
}

// ASNOf resolves a dense ID back to its ASN.
func (t *Topology) ASNOf(id rib.ASID) rib.ASN {
	return t.idToASN[id]
}

// StubProvider resolves an elided stub's ASN to its sole provider's dense
// ID. ok is false if asn is not a known elided stub.
func (t *Topology) StubProvider(asn rib.ASN) (rib.ASID, bool) {
	id, ok := t.stubProvider[asn]
	return id, ok
}

// Providers, Peers and Customers return the adjacency list for an AS,
// already resolved to dense IDs.
func (t *Topology) Providers(id rib.ASID) []Neighbor { return t.providersOf[id] }
func (t *Topology) Peers(id rib.ASID) []Neighbor     { return t.peersOf[id] }
func (t *Topology) Customers(id rib.ASID) []Neighbor { return t.customersOf[id] }

// Rank returns the propagation rank of an AS.
func (t *Topology) Rank(id rib.ASID) int32 { return t.rankOf[id] }

// RankIDs returns every AS dense ID at a given rank, in ascending-ID
// order, fixing the deterministic iteration order spec section 4.5
// requires.
func (t *Topology) RankIDs(rank int32) []rib.ASID {
	if rank < 0 || int(rank) >= len(t.rankToIDs) {
		return nil
	}
	return t.rankToIDs[rank]
}

// RelationshipClass looks up the relationship class of the edge over
// which receiver learned an announcement from sender (spec section 4.4
// step 3). ok is false when no relationship record exists between the two
// ASNs; callers must then treat the class as "broken" themselves (spec
// keeps this decision in the caller so it can be logged with more
// context).
func (t *Topology) RelationshipClass(sender, receiver rib.ASN) (uint8, bool) {
	class, ok := t.relationship[relKey{from: sender, to: receiver}]
	return class, ok
}
