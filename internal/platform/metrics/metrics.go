package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Relay outcomes.
const (
	OutcomeDelivered = "delivered"
	OutcomeDropped   = "dropped"
	OutcomeFailed    = "failed"
)

// Metrics holds the gateway-wide Prometheus metrics.
type Metrics struct {
	Rejections    *prometheus.CounterVec
	RelayMessages *prometheus.CounterVec
	AuditRecords  prometheus.Counter
	Enqueued      prometheus.Counter
	Forwarded     *prometheus.CounterVec
}

// New creates the metrics and registers them with reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not collide.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ingressgw_rejections_total",
			Help: "Total number of rejected requests or messages by error kind",
		}, []string{"kind"}),
		RelayMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ingressgw_relay_messages_total",
			Help: "Total number of relayed messages by outcome",
		}, []string{"outcome"}),
		AuditRecords: factory.NewCounter(prometheus.CounterOpts{
			Name: "ingressgw_audit_records_total",
			Help: "Total number of audit records appended",
		}),
		Enqueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "ingressgw_relay_enqueued_total",
			Help: "Total number of ingestion payloads accepted onto the relay queue",
		}),
		Forwarded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ingressgw_forward_responses_total",
			Help: "Total number of forwarded requests by upstream status class",
		}, []string{"class"}),
	}
}

// NewRegistry returns a registry preloaded with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler exposes the registry in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

func (m *Metrics) IncRejection(kind string) {
	m.Rejections.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncRelayOutcome(outcome string) {
	m.RelayMessages.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncAuditRecords() {
	m.AuditRecords.Inc()
}

func (m *Metrics) IncEnqueued() {
	m.Enqueued.Inc()
}

// ObserveForward records the upstream status class, e.g. "2xx".
func (m *Metrics) ObserveForward(status int) {
	class := "error"
	if status >= 100 && status < 600 {
		class = strconv.Itoa(status/100) + "xx"
	}
	m.Forwarded.WithLabelValues(class).Inc()
}
