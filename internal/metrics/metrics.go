// Package metrics exposes the Prometheus collectors tracked by the portal
// access service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics bundles the service counters around one registry so /metrics serves
// only what this process owns.
type Metrics struct {
	Registry *prometheus.Registry

	LinkOperations *prometheus.CounterVec
	OTPOperations  *prometheus.CounterVec
	FanoutFailures prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		Registry: reg,
		LinkOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_link_operations_total",
			Help: "Share link operations by operation and outcome.",
		}, []string{"op", "outcome"}),
		OTPOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_otp_operations_total",
			Help: "OTP gate operations by operation and outcome.",
		}, []string{"op", "outcome"}),
		FanoutFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portal_notification_fanout_failures_total",
			Help: "Notification rows that failed to insert during fan-out.",
		}),
	}
	reg.MustRegister(m.LinkOperations, m.OTPOperations, m.FanoutFailures)
	return m
}

func (m *Metrics) Link(op, outcome string) {
	if m == nil {
		return
	}
	m.LinkOperations.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) OTP(op, outcome string) {
	if m == nil {
		return
	}
	m.OTPOperations.WithLabelValues(op, outcome).Inc()
}
