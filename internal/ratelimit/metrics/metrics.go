package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	AdmissionDecisions *prometheus.CounterVec
	AdmissionDegraded  prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AdmissionDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ingressgw_admission_decisions_total",
			Help: "Total number of admission decisions against the relay write window",
		}, []string{"result"}),
		AdmissionDegraded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ingressgw_admission_degraded",
			Help: "1 while admission is served from the in-memory fallback",
		}),
	}
}

func (m *Metrics) ObserveDecision(admitted bool) {
	result := "rejected"
	if admitted {
		result = "admitted"
	}
	m.AdmissionDecisions.WithLabelValues(result).Inc()
}

func (m *Metrics) SetDegraded(degraded bool) {
	if degraded {
		m.AdmissionDegraded.Set(1)
		return
	}
	m.AdmissionDegraded.Set(0)
}
