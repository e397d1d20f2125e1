package runner

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

const (
	resultSucceeded = "succeeded"
	resultFailed    = "failed"
)

var commandDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "metal_command_duration_seconds",
		Help:    "Duration of external command invocations in seconds",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
	},
	[]string{"span", "result"},
)

func init() {
	metrics.Registry.MustRegister(commandDuration)
}

func observe(span, result string, d time.Duration) {
	commandDuration.WithLabelValues(span, result).Observe(d.Seconds())
}
