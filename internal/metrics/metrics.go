// Package metrics owns the process's Prometheus registry: every counter
// and histogram the engine records is declared here and nowhere else.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	SeedAnnouncementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpextrapolate_seed_announcements_total",
			Help: "Observed announcements passed to the seeder, by outcome.",
		},
		[]string{"outcome"},
	)

	SeedDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bgpextrapolate_seed_duration_seconds",
			Help:    "Wall-clock time spent seeding one run's announcement set.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{},
	)

	PropagationPhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bgpextrapolate_propagation_phase_duration_seconds",
			Help:    "Wall-clock time spent in one propagation phase.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
		[]string{"phase"},
	)

	PropagationCellsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpextrapolate_propagation_cells_total",
			Help: "Per-cell propagation decisions, by outcome.",
		},
		[]string{"outcome"},
	)

	RIBOccupancy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bgpextrapolate_rib_occupancy_ratio",
			Help: "Fraction of RIB matrix cells populated after a run.",
		},
		[]string{"run_id"},
	)

	TraceRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpextrapolate_trace_requests_total",
			Help: "Trace queries served, by outcome.",
		},
		[]string{"outcome"},
	)

	RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bgpextrapolate_run_duration_seconds",
			Help:    "Wall-clock time for one full propagation sweep (all three phases).",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{},
	)

	DBWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bgpextrapolate_db_write_duration_seconds",
			Help:    "Wall-clock time spent committing one results batch to Postgres.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"table"},
	)

	DBRowsAffectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpextrapolate_db_rows_affected_total",
			Help: "Rows written to Postgres, by table and operation.",
		},
		[]string{"table", "operation"},
	)
)

var registerOnce sync.Once

// Register adds every metric declared in this package to the default
// Prometheus registry. Only the first call registers; later calls are
// no-ops.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			SeedAnnouncementsTotal,
			SeedDuration,
			PropagationPhaseDuration,
			PropagationCellsTotal,
			RIBOccupancy,
			TraceRequestsTotal,
			RunDuration,
			DBWriteDuration,
			DBRowsAffectedTotal,
		)
	})
}
