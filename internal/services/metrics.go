package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments of the evaluation core. Collectors
// are registered against the default registerer; re-registration (tests,
// repeated wiring) reuses the existing collector instead of failing.
type Metrics struct {
	ImpressionsWritten prometheus.Counter
	DigestsDispatched  prometheus.Counter
	DigestSendFailures prometheus.Counter
	FeedbackEvents     *prometheus.CounterVec
	IngestionRejected  *prometheus.CounterVec
	BatchPageDuration  *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		ImpressionsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livelab_impressions_written_total",
			Help: "Impression rows written by the interleaving scheduler",
		}),
		DigestsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livelab_digests_dispatched_total",
			Help: "Digest emails handed to the mail collaborator",
		}),
		DigestSendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livelab_digest_send_failures_total",
			Help: "Digest emails the mail collaborator failed to accept",
		}),
		FeedbackEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livelab_feedback_events_total",
			Help: "Accepted interaction events by kind",
		}, []string{"kind"}),
		IngestionRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livelab_ingestion_rejected_total",
			Help: "Rejected recommendation pushes by surface",
		}, []string{"surface"}),
		BatchPageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "livelab_batch_page_duration_seconds",
			Help:    "Wall time per user page of the batch jobs",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
	}

	m.ImpressionsWritten = registerCounter(m.ImpressionsWritten)
	m.DigestsDispatched = registerCounter(m.DigestsDispatched)
	m.DigestSendFailures = registerCounter(m.DigestSendFailures)
	m.FeedbackEvents = registerCounterVec(m.FeedbackEvents)
	m.IngestionRejected = registerCounterVec(m.IngestionRejected)
	m.BatchPageDuration = registerHistogramVec(m.BatchPageDuration)

	return m
}

func registerCounter(c prometheus.Counter) prometheus.Counter {
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(prometheus.Counter)
		}
	}
	return c
}

func registerCounterVec(c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.CounterVec)
		}
	}
	return c
}

func registerHistogramVec(h *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := prometheus.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.HistogramVec)
		}
	}
	return h
}
