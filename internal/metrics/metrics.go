// Package metrics holds the Prometheus instruments updated by the simulation
// engine and served by `mcs-engine serve --metrics-addr`.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SimulationsTotal counts completed simulations by kind (standard, dependent, scenario).
	SimulationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcs_simulations_total",
		Help: "Completed simulations by kind",
	}, []string{"kind"})

	// TrialsTotal counts evaluated trials.
	TrialsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mcs_trials_total",
		Help: "Expression evaluations across all simulations",
	})

	// ResolutionsTotal counts parameter resolutions by variant.
	ResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcs_parameter_resolutions_total",
		Help: "Parameter resolutions by variant",
	}, []string{"kind"})

	// ConstraintRepairsTotal counts repaired samples by policy.
	ConstraintRepairsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcs_constraint_repairs_total",
		Help: "Out-of-bounds samples repaired, by policy",
	}, []string{"policy"})

	// ScenariosTotal counts sensitivity scenarios executed.
	ScenariosTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mcs_sensitivity_scenarios_total",
		Help: "Sensitivity scenarios executed",
	})

	// SimulationDuration tracks top-level simulation latency.
	SimulationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mcs_simulation_duration_seconds",
		Help:    "Top-level simulation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
	}, []string{"kind"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
