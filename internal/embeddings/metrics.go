package embeddings

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments embedding generation. Registered once on the default
// registry, which the API server exposes at /metrics.
type Metrics struct {
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *Metrics
)

func newMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInst = &Metrics{
			duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "aiservice_embedding_duration_seconds",
				Help:    "Duration of embedding generation in seconds, labeled by model.",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			}, []string{"model"}),
			errors: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "aiservice_embedding_errors_total",
				Help: "Total embedding generation failures, labeled by model.",
			}, []string{"model"}),
		}
	})
	return metricsInst
}

func (m *Metrics) recordGeneration(model string, elapsed time.Duration, err error) {
	m.duration.WithLabelValues(model).Observe(elapsed.Seconds())
	if err != nil {
		m.errors.WithLabelValues(model).Inc()
	}
}
