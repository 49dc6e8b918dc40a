package seed

import "github.com/route-beacon/bgpextrapolate/internal/policy"

// Config mirrors the seeding-configuration enumeration of spec section 6.
type Config struct {
	// OriginOnly restricts seeding to the origin hop of every AS_PATH.
	OriginOnly          bool
	TimestampComparison policy.TimestampComparison
	Tiebreak            policy.TiebreakMethod
}
