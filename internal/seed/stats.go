package seed

// Stats accumulates counters over the lifetime of a Seeder, surfaced by
// internal/engine as Prometheus metrics and log fields.
type Stats struct {
	Seeded         int64 // cells written
	Rejected       int64 // cells considered but losing the tie-break
	UnknownASN     int64 // AS_PATH hops referencing an unmodeled ASN
	Prepends       int64 // repeated-ASN hops skipped
	StubWrites     int64 // single-hop writes routed through stub elision
	BrokenRelation int64 // hops with no relationship record, downgraded to "broken"
	PathTooLong    int64 // announcements truncated for exceeding MaxPathLength
	Overflow       int64 // announcements rejected for an out-of-range block ID
	EmptyPaths     int64 // zero-length AS_PATHs (spec boundary case B1)
}
