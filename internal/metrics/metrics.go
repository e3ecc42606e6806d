// Package metrics defines Prometheus metrics for the ranger pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	ClaimsTotal          *prometheus.CounterVec
	VerificationsTotal   *prometheus.CounterVec
	FetchDuration        *prometheus.HistogramVec
	ConsolidationsTotal  prometheus.Counter
	ModificationsTotal   *prometheus.CounterVec
	LoopIterationsTotal  *prometheus.CounterVec
	KnowledgeRecords     prometheus.Gauge
	MessagesTotal        *prometheus.CounterVec
	ProposalsQueuedTotal *prometheus.CounterVec
	CacheLookupsTotal    *prometheus.CounterVec
}

// New creates unregistered metric instances.
func New() *Metrics {
	return &Metrics{
		ClaimsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ranger_claims_total",
				Help: "Claims surfaced by the extractor, by extraction method.",
			},
			[]string{"method"},
		),
		VerificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ranger_verifications_total",
				Help: "Claim verifications by outcome.",
			},
			[]string{"result"},
		),
		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ranger_fetch_duration_seconds",
				Help:    "Duration of outbound search and page fetches in seconds.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"kind", "result"},
		),
		ConsolidationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ranger_consolidations_total",
			Help: "Records tombstoned by knowledge consolidation.",
		}),
		ModificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ranger_modifications_total",
				Help: "Self-modification attempts by result.",
			},
			[]string{"result"},
		),
		LoopIterationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ranger_loop_iterations_total",
				Help: "Background maintenance iterations by result.",
			},
			[]string{"result"},
		),
		KnowledgeRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ranger_knowledge_records",
			Help: "Knowledge records currently stored.",
		}),
		MessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ranger_messages_total",
				Help: "Inbound chat messages by transport.",
			},
			[]string{"transport"},
		),
		ProposalsQueuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ranger_proposals_queued_total",
				Help: "Improvement proposals queued, by priority.",
			},
			[]string{"priority"},
		),
		CacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ranger_cache_lookups_total",
				Help: "Fetch cache lookups by the layer that answered (memory, disk, miss).",
			},
			[]string{"layer"},
		),
	}
}

// Register registers a pre-built Metrics instance with the given registry.
func Register(reg prometheus.Registerer, m *Metrics) error {
	collectors := []prometheus.Collector{
		m.ClaimsTotal,
		m.VerificationsTotal,
		m.FetchDuration,
		m.ConsolidationsTotal,
		m.ModificationsTotal,
		m.LoopIterationsTotal,
		m.KnowledgeRecords,
		m.MessagesTotal,
		m.ProposalsQueuedTotal,
		m.CacheLookupsTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveClaim counts a surfaced claim
func (m *Metrics) ObserveClaim(method string) {
	if m == nil {
		return
	}
	m.ClaimsTotal.WithLabelValues(method).Inc()
}

// ObserveVerification counts a verification outcome
func (m *Metrics) ObserveVerification(verified bool) {
	if m == nil {
		return
	}
	m.VerificationsTotal.WithLabelValues(result(verified)).Inc()
}

// ObserveFetch records the duration of a search or page fetch
func (m *Metrics) ObserveFetch(kind string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.FetchDuration.WithLabelValues(kind, result(err == nil)).Observe(time.Since(start).Seconds())
}

// ObserveConsolidation counts tombstoned records
func (m *Metrics) ObserveConsolidation(tombstoned int) {
	if m == nil {
		return
	}
	m.ConsolidationsTotal.Add(float64(tombstoned))
}

// ObserveModification counts an apply attempt; reason is "success" or a failure class
func (m *Metrics) ObserveModification(reason string) {
	if m == nil {
		return
	}
	m.ModificationsTotal.WithLabelValues(reason).Inc()
}

// ObserveLoop counts a background iteration
func (m *Metrics) ObserveLoop(err error) {
	if m == nil {
		return
	}
	m.LoopIterationsTotal.WithLabelValues(result(err == nil)).Inc()
}

// SetKnowledgeRecords sets the stored record gauge
func (m *Metrics) SetKnowledgeRecords(n int64) {
	if m == nil {
		return
	}
	m.KnowledgeRecords.Set(float64(n))
}

// ObserveMessage counts an inbound message
func (m *Metrics) ObserveMessage(transport string) {
	if m == nil {
		return
	}
	m.MessagesTotal.WithLabelValues(transport).Inc()
}

// ObserveProposal counts a queued improvement proposal
func (m *Metrics) ObserveProposal(priority string) {
	if m == nil {
		return
	}
	m.ProposalsQueuedTotal.WithLabelValues(priority).Inc()
}

// ObserveCacheLookup counts a cache lookup by the layer that answered it
func (m *Metrics) ObserveCacheLookup(layer string) {
	if m == nil {
		return
	}
	m.CacheLookupsTotal.WithLabelValues(layer).Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
