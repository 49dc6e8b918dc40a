package seed

import "github.com/route-beacon/bgpextrapolate/internal/rib"

// AnnouncementRecord is the abstract input record the seeder consumes for
// one observed route (spec section 6, "Announcements input"). Parsing it
// out of a concrete wire format happens upstream in internal/tsv or
// internal/ingest.
type AnnouncementRecord struct {
	PrefixString string
	// ASPath is ordered origin-last: index len-1 is the origin, index 0
	// is the vantage point that observed the announcement.
	ASPath    []rib.ASN
	Timestamp int64
	Origin    rib.ASN
	GlobalID  uint32
	BlockID   rib.BlockID
}
