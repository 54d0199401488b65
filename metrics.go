package tenantauthz

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	decisions    *prometheus.CounterVec
	fetchSeconds *prometheus.HistogramVec
	claimsAhead  prometheus.Counter
	auditDropped prometheus.Counter
}

// NewMetrics builds the collectors and registers them on reg when non-nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantauthz_decisions_total",
				Help: "Authorization evaluations by entry point, outcome and error kind",
			},
			[]string{"entry_point", "outcome", "kind"},
		),
		fetchSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tenantauthz_record_fetch_seconds",
				Help:    "Latency of authoritative record fetches",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		claimsAhead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenantauthz_claims_ahead_total",
			Help: "Evaluations where the token claims version was ahead of the store",
		}),
		auditDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenantauthz_audit_dropped_total",
			Help: "Audit events dropped because the sink queue was full",
		}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.decisions, m.fetchSeconds, m.claimsAhead, m.auditDropped} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) observeDecision(entry EntryPoint, outcome Outcome, kind ErrorKind) {
	if m == nil {
		return
	}
	k := string(kind)
	if k == "" {
		k = "none"
	}
	m.decisions.WithLabelValues(string(entry), string(outcome), k).Inc()
}

func (m *Metrics) observeFetch(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.fetchSeconds.WithLabelValues(result).Observe(d.Seconds())
}

func (m *Metrics) incClaimsAhead() {
	if m != nil {
		m.claimsAhead.Inc()
	}
}

func (m *Metrics) incAuditDropped() {
	if m != nil {
		m.auditDropped.Inc()
	}
}
