// Package rib implements the per-(AS, prefix) local RIB matrix and the
// static/cached announcement records it is built from (spec section 3 and
// 4.3). The cached record is kept intentionally small so that a full scan
// of one AS's row during propagation stays cache-dense.
package rib

// ASN is a 32-bit autonomous system number as it appears on the wire.
type ASN uint32

// ASID is the dense index assigned to an ASN at topology load time.
type ASID uint32

// BlockID is the dense index of a prefix within a single propagation run.
type BlockID uint32

// StaticAnnouncement holds the bulky, immutable attributes of one observed
// announcement. It is written once during seeding and never mutated or
// moved afterward, so cached cells can reference it by a stable index.
type StaticAnnouncement struct {
	OriginASN    ASN
	GlobalID     uint32
	BlockID      BlockID
	Timestamp    int64
	PrefixString string
}

// CachedAnnouncement is the 12-byte RIB cell compared on the propagation
// hot path. PathLength == 0 is the sole empty-state marker (spec
// invariant I1): every other field is meaningless when PathLength is 0.
//
// ReceivedFromASN stores the ASN of the neighbor this route was learned
// from (rather than its dense ID). Propagation's accept path pays one
// ID->ASN lookup to store it, and the lowest-ASN tie-break (spec section
// 4.4/4.5 step 6) compares it directly; traceback (spec section 4.7) pays
// one ASN->ID map lookup per hop to reach the next cell.
type CachedAnnouncement struct {
	ReceivedFromASN ASN
	StaticIndex     uint32
	Seeded          bool
	PathLength      uint8
	Relationship    uint8
}

// Empty reports whether this cell holds no announcement (spec
// invariant I1/P2).
func (c *CachedAnnouncement) Empty() bool {
	return c.PathLength == 0
}
