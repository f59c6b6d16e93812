package signal

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts signalling activity. A nil *Metrics records nothing.
type Metrics struct {
	sessions       *prometheus.CounterVec
	messagesIn     *prometheus.CounterVec
	messagesOut    *prometheus.CounterVec
	lateCandidates prometheus.Counter
	activeSessions prometheus.Gauge
}

// NewMetrics registers the signalling collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ringstream",
			Subsystem: "signal",
			Name:      "sessions_total",
			Help:      "Live-view negotiations by outcome",
		}, []string{"outcome"}),
		messagesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ringstream",
			Subsystem: "signal",
			Name:      "messages_received_total",
			Help:      "Inbound signalling messages by method",
		}, []string{"method"}),
		messagesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ringstream",
			Subsystem: "signal",
			Name:      "messages_sent_total",
			Help:      "Outbound signalling messages by method",
		}, []string{"method"}),
		lateCandidates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ringstream",
			Subsystem: "signal",
			Name:      "late_ice_candidates_total",
			Help:      "ICE candidates dropped after collection closed",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ringstream",
			Subsystem: "signal",
			Name:      "active_sessions",
			Help:      "Sessions currently in the active state",
		}),
	}
	reg.MustRegister(m.sessions, m.messagesIn, m.messagesOut, m.lateCandidates, m.activeSessions)
	return m
}

func (m *Metrics) sessionOutcome(outcome string) {
	if m != nil {
		m.sessions.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) received(method string) {
	if m != nil {
		m.messagesIn.WithLabelValues(method).Inc()
	}
}

func (m *Metrics) sent(method string) {
	if m != nil {
		m.messagesOut.WithLabelValues(method).Inc()
	}
}

func (m *Metrics) lateCandidate() {
	if m != nil {
		m.lateCandidates.Inc()
	}
}

func (m *Metrics) activeDelta(d float64) {
	if m != nil {
		m.activeSessions.Add(d)
	}
}
