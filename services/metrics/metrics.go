// Package metricssvc exposes the prometheus metrics of the digests.
package metricssvc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bytedeck/deck/core"
)

type DigestMetrics struct {
	digests *prometheus.CounterVec
	batches *prometheus.HistogramVec
	jobs    *prometheus.CounterVec
}

// NewDigestMetrics registers the digest metrics on reg (prometheus.DefaultRegisterer in the binaries).
func NewDigestMetrics(reg prometheus.Registerer) *DigestMetrics {
	factory := promauto.With(reg)
	return &DigestMetrics{
		digests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "deck",
				Name:      "digests_total",
				Help:      "Notification digests processed, by tenant and outcome",
			},
			[]string{"tenant", "outcome"},
		),
		batches: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "deck",
				Name:      "digest_batch_duration_seconds",
				Help:      "Duration of a tenant's digest batch",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
			},
			[]string{"tenant"},
		),
		jobs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "deck",
				Name:      "jobs_total",
				Help:      "Periodic task jobs handled by the workers, by task and status",
			},
			[]string{"task", "status"},
		),
	}
}

func (m *DigestMetrics) ObserveDigest(schema core.Schema, outcome string) {
	m.digests.WithLabelValues(schema.String(), outcome).Inc()
}

func (m *DigestMetrics) ObserveBatch(schema core.Schema, duration time.Duration) {
	m.batches.WithLabelValues(schema.String()).Observe(duration.Seconds())
}

func (m *DigestMetrics) ObserveJob(task string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.jobs.WithLabelValues(task, status).Inc()
}
