package provisioning

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

const (
	resultExecuted = "executed"
	resultSkipped  = "skipped"
	resultFailed   = "failed"
)

var (
	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "metal_stage_duration_seconds",
			Help:    "Duration of workflow stages in seconds",
			Buckets: []float64{0.1, 1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"workflow", "stage", "result"},
	)

	stageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metal_stage_total",
			Help: "Total number of workflow stages by result",
		},
		[]string{"workflow", "stage", "result"},
	)
)

func init() {
	metrics.Registry.MustRegister(stageDuration, stageTotal)
}

func recordStage(workflow, stage, result string, d time.Duration) {
	stageDuration.WithLabelValues(workflow, stage, result).Observe(d.Seconds())
	stageTotal.WithLabelValues(workflow, stage, result).Inc()
}
