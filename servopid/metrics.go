package servopid

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts protocol traffic. A nil *Metrics records nothing.
type Metrics struct {
	framesSent    *prometheus.CounterVec
	linesReceived *prometheus.CounterVec
	parseErrors   prometheus.Counter
	connects      *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		framesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "servopid",
				Subsystem: "protocol",
				Name:      "frames_sent_total",
				Help:      "Command frames written to the controller.",
			},
			[]string{"opcode"},
		),
		linesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "servopid",
				Subsystem: "protocol",
				Name:      "lines_received_total",
				Help:      "Lines received from the controller by message kind.",
			},
			[]string{"kind"},
		),
		parseErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "servopid",
				Subsystem: "protocol",
				Name:      "parse_errors_total",
				Help:      "Inbound lines discarded as malformed or out of range.",
			},
		),
		connects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "servopid",
				Subsystem: "transport",
				Name:      "connects_total",
				Help:      "Connection attempts by result.",
			},
			[]string{"result"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.framesSent, m.linesReceived, m.parseErrors, m.connects)
	}
	return m
}

func (m *Metrics) frameSent(op Opcode) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(op.String()).Inc()
}

func (m *Metrics) lineReceived(kind MessageKind) {
	if m == nil {
		return
	}
	m.linesReceived.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) parseError() {
	if m == nil {
		return
	}
	m.parseErrors.Inc()
}

func (m *Metrics) connect(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.connects.WithLabelValues(result).Inc()
}
