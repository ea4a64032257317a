package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CallMetrics exposes counters/histograms for call sessions.
type CallMetrics struct {
	callsTotal      *prometheus.CounterVec
	turnsTotal      *prometheus.CounterVec
	responseLatency prometheus.Histogram
	summariesTotal  *prometheus.CounterVec
}

func NewCallMetrics(reg prometheus.Registerer) *CallMetrics {
	m := &CallMetrics{
		callsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voice_call",
			Subsystem: "session",
			Name:      "calls_total",
			Help:      "Calls by mode and how they ended",
		}, []string{"mode", "outcome"}),
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voice_call",
			Subsystem: "session",
			Name:      "turns_total",
			Help:      "Transcript turns recorded by role",
		}, []string{"role"}),
		responseLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "voice_call",
			Subsystem: "session",
			Name:      "response_latency_seconds",
			Help:      "Time from a typed user message to the next assistant turn",
			Buckets:   []float64{0.25, 0.5, 1, 2, 3, 5, 8, 13},
		}),
		summariesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voice_call",
			Subsystem: "session",
			Name:      "summaries_total",
			Help:      "Summary payloads parsed, by where they were found",
		}, []string{"source"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.callsTotal, m.turnsTotal, m.responseLatency, m.summariesTotal)
	return m
}

func (m *CallMetrics) ObserveCall(mode, outcome string) {
	if m == nil {
		return
	}
	m.callsTotal.WithLabelValues(mode, outcome).Inc()
}

func (m *CallMetrics) ObserveTurn(role string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(role).Inc()
}

func (m *CallMetrics) ObserveLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.responseLatency.Observe(d.Seconds())
}

func (m *CallMetrics) ObserveSummary(source string) {
	if m == nil {
		return
	}
	m.summariesTotal.WithLabelValues(source).Inc()
}
