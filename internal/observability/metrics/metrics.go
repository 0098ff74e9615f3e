package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// NewRegistry returns the registry for service metrics. /metrics serves it
// alongside the default gatherer, which already carries the Go and process
// collectors and the gorm pool stats.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// MembershipMetrics counts membership mutations and seat movements.
type MembershipMetrics struct {
	operations   *prometheus.CounterVec
	seatReserved prometheus.Counter
	seatReleased prometheus.Counter
	seatDenied   prometheus.Counter
	sideEffects  *prometheus.CounterVec
}

func NewMembershipMetrics(reg *prometheus.Registry) *MembershipMetrics {
	m := &MembershipMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mailseat",
			Subsystem: "membership",
			Name:      "operations_total",
			Help:      "Membership operations by name and outcome code.",
		}, []string{"operation", "outcome"}),
		seatReserved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mailseat",
			Subsystem: "seats",
			Name:      "reserved_total",
			Help:      "Seats successfully reserved.",
		}),
		seatReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mailseat",
			Subsystem: "seats",
			Name:      "released_total",
			Help:      "Seats released back to the organization.",
		}),
		seatDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mailseat",
			Subsystem: "seats",
			Name:      "exhausted_total",
			Help:      "Seat reservations rejected because the organization was full.",
		}),
		sideEffects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mailseat",
			Subsystem: "membership",
			Name:      "side_effect_failures_total",
			Help:      "Post-commit audit or notification failures.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.seatReserved, m.seatReleased, m.seatDenied, m.sideEffects)
	}
	return m
}

func (m *MembershipMetrics) ObserveOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

func (m *MembershipMetrics) SeatReserved() {
	if m == nil {
		return
	}
	m.seatReserved.Inc()
}

func (m *MembershipMetrics) SeatReleased() {
	if m == nil {
		return
	}
	m.seatReleased.Inc()
}

func (m *MembershipMetrics) SeatExhausted() {
	if m == nil {
		return
	}
	m.seatDenied.Inc()
}

func (m *MembershipMetrics) SideEffectFailed(kind string) {
	if m == nil {
		return
	}
	m.sideEffects.WithLabelValues(kind).Inc()
}
