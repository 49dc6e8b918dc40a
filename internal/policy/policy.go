// Package policy holds the tie-break configuration shared by seeding
// (spec section 4.4) and propagation (spec section 4.5): both phases
// offer the same timestamp-comparison and final tie-break options, spec
// section 6 "Propagation configuration: same tie-break options as
// seeding."
package policy

// TimestampComparison selects how a cell comparison weighs the two
// candidates' timestamps before falling through to relationship/length.
type TimestampComparison int

const (
	TimestampDisabled TimestampComparison = iota
	TimestampPreferNewer
	TimestampPreferOlder
)

// TiebreakMethod resolves a fully-equal comparison (same timestamp
// treatment, same relationship class, same path length).
type TiebreakMethod int

const (
	TiebreakRandom TiebreakMethod = iota
	TiebreakLowestASN
)
