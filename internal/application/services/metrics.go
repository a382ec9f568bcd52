package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes queue and flush instrumentation on /metrics
type Metrics struct {
	QueueDepth    *prometheus.GaugeVec
	Delivered     prometheus.Counter
	Retried       prometheus.Counter
	Dead          prometheus.Counter
	FlushDuration prometheus.Histogram
	FlushSkipped  prometheus.Counter
}

// NewMetrics creates and registers syncd metrics on the given registerer
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "syncd_queue_depth",
			Help: "Number of mutations in the queue by status",
		}, []string{"status"}),
		Delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "syncd_mutations_delivered_total",
			Help: "Mutations successfully delivered upstream",
		}),
		Retried: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "syncd_mutations_retried_total",
			Help: "Delivery attempts that failed and were scheduled for retry",
		}),
		Dead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "syncd_mutations_dead_total",
			Help: "Mutations parked permanently after exhausting retries or a permanent rejection",
		}),
		FlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "syncd_flush_duration_seconds",
			Help:    "Wall time of a full flush pass",
			Buckets: prometheus.DefBuckets,
		}),
		FlushSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "syncd_flush_skipped_total",
			Help: "Flush triggers that were no-ops because a flush was already running",
		}),
	}

	reg.MustRegister(m.QueueDepth, m.Delivered, m.Retried, m.Dead, m.FlushDuration, m.FlushSkipped)
	return m
}
