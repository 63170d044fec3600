package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Pipeline metrics
	UpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hutch_updates_total",
			Help: "Total number of instance update attempts by result",
		},
		[]string{"result"},
	)

	UpdateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hutch_update_duration_seconds",
			Help:    "Time taken to update one instance in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	HardResetsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hutch_hard_resets_total",
			Help: "Total number of destructive resets performed on diverged working copies",
		},
	)

	ConfigRefreshesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hutch_config_refreshes_total",
			Help: "Total number of env files regenerated from a new template",
		},
	)

	MigrationFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hutch_migration_failures_total",
			Help: "Total number of migration runs that exited non-zero",
		},
	)

	RollbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hutch_rollbacks_total",
			Help: "Total number of snapshot restores performed",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(UpdatesTotal)
	prometheus.MustRegister(UpdateDuration)
	prometheus.MustRegister(HardResetsTotal)
	prometheus.MustRegister(ConfigRefreshesTotal)
	prometheus.MustRegister(MigrationFailuresTotal)
	prometheus.MustRegister(RollbacksTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
