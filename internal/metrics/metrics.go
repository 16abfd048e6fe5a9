package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AdmissionDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docforge_admission_decisions_total",
			Help: "Admission decisions by tier and outcome",
		},
		[]string{"tier", "outcome"},
	)

	// every fail-open event, even when the log line is throttled
	StoreDegraded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docforge_store_degraded_total",
			Help: "Requests admitted without a check because a backing store was unavailable",
		},
		[]string{"store"},
	)

	Invocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docforge_invocations_total",
			Help: "Transformation invocations by operation and result",
		},
		[]string{"operation", "result"},
	)

	InvocationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docforge_invocation_duration_seconds",
			Help:    "Wall-clock duration of transformation processes",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"operation"},
	)

	ArtifactsPackaged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docforge_artifacts_packaged_total",
			Help: "Artifacts written to the store",
		},
	)

	ArtifactsDestroyed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docforge_artifacts_destroyed_total",
			Help: "Artifacts removed from the store by reason",
		},
		[]string{"reason"},
	)

	LedgerWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docforge_ledger_write_failures_total",
			Help: "Usage ledger writes that failed and were dropped",
		},
	)
)

func init() {
	prometheus.MustRegister(AdmissionDecisions)
	prometheus.MustRegister(StoreDegraded)
	prometheus.MustRegister(Invocations)
	prometheus.MustRegister(InvocationDuration)
	prometheus.MustRegister(ArtifactsPackaged)
	prometheus.MustRegister(ArtifactsDestroyed)
	prometheus.MustRegister(LedgerWriteFailures)
}

// exposes the default registry for scraping
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
