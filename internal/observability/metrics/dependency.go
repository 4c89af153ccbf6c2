package metrics

import "github.com/prometheus/client_golang/prometheus"

var breakerStates = []string{"closed", "half-open", "open"}

// DependencyMetrics tracks retries and circuit breaker state of outbound
// calls (embedding model, vector index, message bus). It satisfies
// resilience.Observer.
type DependencyMetrics struct {
	service string

	retriesTotal *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
}

func NewDependencyMetrics(service string, reg prometheus.Registerer) *DependencyMetrics {
	m := &DependencyMetrics{
		service: service,
		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dependency",
				Name:      "retries_total",
				Help:      "Retried dependency calls by operation.",
			},
			[]string{"service", "operation"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "dependency",
				Name:      "breaker_state",
				Help:      "1 for the current circuit breaker state of an operation, 0 otherwise.",
			},
			[]string{"service", "operation", "state"},
		),
	}
	reg.MustRegister(m.retriesTotal, m.breakerState)
	return m
}

func (m *DependencyMetrics) ObserveRetry(operation string, _ int) {
	m.retriesTotal.WithLabelValues(m.service, operation).Inc()
}

func (m *DependencyMetrics) ObserveBreakerState(operation, state string) {
	for _, s := range breakerStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.breakerState.WithLabelValues(m.service, operation, s).Set(v)
	}
}
