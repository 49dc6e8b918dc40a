package propagate

// Stats counts a policy's per-cell decisions across one full sweep (all
// three phases). Exposed to the engine for run diagnostics and to
// internal/metrics for Prometheus counters.
type Stats struct {
	Accepted     int64
	Rejected     int64
	PathTooLong  int64
	RandomTies   int64
	ASNTies      int64
}
