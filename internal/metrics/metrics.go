package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters for the booking and reminder flows.
// A nil receiver is safe everywhere so wiring metrics stays optional.
type BookingMetrics struct {
	bookingsTotal    *prometheus.CounterVec
	conflictsTotal   prometheus.Counter
	remindersTotal   *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		conflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "reservation_conflicts_total",
			Help:      "Reservation races lost and retried",
		}),
		remindersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "reminder",
			Name:      "dispatches_total",
			Help:      "Reminder dispatch attempts by stage and status",
		}, []string{"stage", "status"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "ledger",
			Name:      "transitions_total",
			Help:      "Ledger transitions by event and acceptance",
		}, []string{"event", "accepted"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.conflictsTotal, m.remindersTotal, m.transitionsTotal)
	return m
}

func (m *BookingMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveConflict() {
	if m == nil {
		return
	}
	m.conflictsTotal.Inc()
}

func (m *BookingMetrics) ObserveReminder(stage, status string) {
	if m == nil {
		return
	}
	m.remindersTotal.WithLabelValues(stage, status).Inc()
}

func (m *BookingMetrics) ObserveTransition(event string, accepted bool) {
	if m == nil {
		return
	}
	label := "true"
	if !accepted {
		label = "false"
	}
	m.transitionsTotal.WithLabelValues(event, label).Inc()
}
