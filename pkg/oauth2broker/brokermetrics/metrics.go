// Package brokermetrics instruments broker flows with prometheus
// counters labeled by grant kind, registered against a caller-supplied
// registerer so multiple brokers in one process don't collide.
package brokermetrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the counter vectors every broker flow increments on
// entry and exit.
type Metrics struct {
	Attempts  *prometheus.CounterVec
	Successes *prometheus.CounterVec
	Failures  *prometheus.CounterVec
}

// New registers a fresh set of counters against reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with the default
// global registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oauth2_broker",
			Name:      "attempts_total",
			Help:      "Number of broker flow attempts, labeled by grant.",
		}, []string{"grant"}),
		Successes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oauth2_broker",
			Name:      "successes_total",
			Help:      "Number of broker flow successes, labeled by grant.",
		}, []string{"grant"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oauth2_broker",
			Name:      "failures_total",
			Help:      "Number of broker flow failures, labeled by grant and error kind.",
		}, []string{"grant", "kind"}),
	}

	reg.MustRegister(m.Attempts, m.Successes, m.Failures)
	return m
}

// Attempt increments the attempt counter for grant.
func (m *Metrics) Attempt(grant string) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(grant).Inc()
}

// Success increments the success counter for grant.
func (m *Metrics) Success(grant string) {
	if m == nil {
		return
	}
	m.Successes.WithLabelValues(grant).Inc()
}

// Failure increments the failure counter for grant, labeled by the
// broker error kind that ended the flow.
func (m *Metrics) Failure(grant, kind string) {
	if m == nil {
		return
	}
	m.Failures.WithLabelValues(grant, kind).Inc()
}
