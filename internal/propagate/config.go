package propagate

import "github.com/route-beacon/bgpextrapolate/internal/policy"

// Config mirrors the propagation-configuration enumeration of spec
// section 6: "same tie-break options as seeding, applied per section 4.5
// step 6."
type Config struct {
	TimestampComparison policy.TimestampComparison
	Tiebreak            policy.TiebreakMethod
}
