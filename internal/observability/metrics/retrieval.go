package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RetrievalMetrics records engine-level measurements. It satisfies
// ports.RetrievalObserver.
type RetrievalMetrics struct {
	service string

	retrievalsTotal   *prometheus.CounterVec
	retrievalDuration *prometheus.HistogramVec
	resultsReturned   *prometheus.HistogramVec
	channelTotal      *prometheus.CounterVec
	channelDuration   *prometheus.HistogramVec
	channelCandidates *prometheus.HistogramVec
	ingestTotal       *prometheus.CounterVec
	ingestDuration    *prometheus.HistogramVec
	ingestChunks      *prometheus.HistogramVec
}

func NewRetrievalMetrics(service string, reg prometheus.Registerer) *RetrievalMetrics {
	m := &RetrievalMetrics{
		service: service,
		retrievalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "requests_total",
				Help:      "Retrieval requests by outcome.",
			},
			[]string{"service", "outcome"},
		),
		retrievalDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "duration_seconds",
				Help:      "End-to-end retrieval duration in seconds.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"service", "outcome"},
		),
		resultsReturned: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "results",
				Help:      "Passages returned per retrieval.",
				Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 50},
			},
			[]string{"service"},
		),
		channelTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "channel_runs_total",
				Help:      "Retrieval channel runs by channel and outcome.",
			},
			[]string{"service", "channel", "outcome"},
		),
		channelDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "channel_duration_seconds",
				Help:      "Retrieval channel duration in seconds.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"service", "channel"},
		),
		channelCandidates: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "channel_candidates",
				Help:      "Candidates contributed per channel run.",
				Buckets:   []float64{0, 1, 5, 10, 20, 40, 80, 200},
			},
			[]string{"service", "channel"},
		),
		ingestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "documents_total",
				Help:      "Ingested documents by outcome.",
			},
			[]string{"service", "outcome"},
		),
		ingestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "duration_seconds",
				Help:      "Document ingestion duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service", "outcome"},
		),
		ingestChunks: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "chunks",
				Help:      "Chunks produced per ingested document.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			},
			[]string{"service"},
		),
	}
	reg.MustRegister(
		m.retrievalsTotal,
		m.retrievalDuration,
		m.resultsReturned,
		m.channelTotal,
		m.channelDuration,
		m.channelCandidates,
		m.ingestTotal,
		m.ingestDuration,
		m.ingestChunks,
	)
	return m
}

func (m *RetrievalMetrics) ObserveRetrieval(outcome string, results int, duration time.Duration) {
	m.retrievalsTotal.WithLabelValues(m.service, outcome).Inc()
	m.retrievalDuration.WithLabelValues(m.service, outcome).Observe(duration.Seconds())
	m.resultsReturned.WithLabelValues(m.service).Observe(float64(results))
}

func (m *RetrievalMetrics) ObserveChannel(channel, outcome string, candidates int, duration time.Duration) {
	m.channelTotal.WithLabelValues(m.service, channel, outcome).Inc()
	m.channelDuration.WithLabelValues(m.service, channel).Observe(duration.Seconds())
	if outcome == "ok" {
		m.channelCandidates.WithLabelValues(m.service, channel).Observe(float64(candidates))
	}
}

func (m *RetrievalMetrics) ObserveIngest(outcome string, chunks int, duration time.Duration) {
	m.ingestTotal.WithLabelValues(m.service, outcome).Inc()
	m.ingestDuration.WithLabelValues(m.service, outcome).Observe(duration.Seconds())
	if outcome == "ok" {
		m.ingestChunks.WithLabelValues(m.service).Observe(float64(chunks))
	}
}

// RegisterCacheStats exposes embedding cache counters read from stats at
// scrape time.
func RegisterCacheStats(reg prometheus.Registerer, service string, stats func() (hits, misses uint64)) {
	labels := prometheus.Labels{"service": service}
	reg.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "embedding_cache",
			Name:        "hits_total",
			Help:        "Embedding cache hits.",
			ConstLabels: labels,
		}, func() float64 {
			hits, _ := stats()
			return float64(hits)
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "embedding_cache",
			Name:        "misses_total",
			Help:        "Embedding cache misses.",
			ConstLabels: labels,
		}, func() float64 {
			_, misses := stats()
			return float64(misses)
		}),
	)
}
