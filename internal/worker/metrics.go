package worker

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics instruments both worker stages. Registered once on the default
// registry, exposed by the API server at /metrics.
type workerMetrics struct {
	tasks     *prometheus.CounterVec
	items     *prometheus.CounterVec
	skipped   *prometheus.CounterVec
	callbacks *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *workerMetrics
)

func newMetrics() *workerMetrics {
	metricsOnce.Do(func() {
		metricsInst = &workerMetrics{
			tasks: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "aiservice_worker_tasks_total",
				Help: "Tasks processed per stage, labeled by outcome.",
			}, []string{"stage", "outcome"}),
			items: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "aiservice_items_stored_total",
				Help: "Items successfully embedded, registered and upserted.",
			}, []string{"item_type"}),
			skipped: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "aiservice_items_skipped_total",
				Help: "Items skipped due to item-local failures.",
			}, []string{"item_type", "reason"}),
			callbacks: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "aiservice_webhook_deliveries_total",
				Help: "Webhook delivery outcomes.",
			}, []string{"outcome"}),
		}
	})
	return metricsInst
}

func (m *workerMetrics) recordCallback(delivered bool) {
	outcome := "delivered"
	if !delivered {
		outcome = "failed"
	}
	m.callbacks.WithLabelValues(outcome).Inc()
}
