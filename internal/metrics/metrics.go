package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"rollcall/internal/model"
)

// Metrics holds the service collectors.
type Metrics struct {
	eventsPublished *prometheus.CounterVec
	subscribers     prometheus.Gauge
	dropped         prometheus.Counter
	marks           *prometheus.CounterVec
	bulkFailures    prometheus.Counter
}

// New registers collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rollcall",
			Subsystem: "broadcast",
			Name:      "events_published_total",
			Help:      "Change-events published on the broadcast bus.",
		}, []string{"type"}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rollcall",
			Subsystem: "broadcast",
			Name:      "subscribers",
			Help:      "Currently connected event-channel subscribers.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rollcall",
			Subsystem: "broadcast",
			Name:      "dropped_subscribers_total",
			Help:      "Subscribers dropped after a failed delivery.",
		}),
		marks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rollcall",
			Subsystem: "attendance",
			Name:      "marks_total",
			Help:      "Attendance upserts applied, by status.",
		}, []string{"status"}),
		bulkFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rollcall",
			Subsystem: "attendance",
			Name:      "bulk_entry_failures_total",
			Help:      "Bulk mark entries that failed.",
		}),
	}
	reg.MustRegister(m.eventsPublished, m.subscribers, m.dropped, m.marks, m.bulkFailures)
	return m
}

func (m *Metrics) Published(t model.EventType) { m.eventsPublished.WithLabelValues(string(t)).Inc() }

func (m *Metrics) Subscribers(n int) { m.subscribers.Set(float64(n)) }

func (m *Metrics) Dropped() { m.dropped.Inc() }

// Marked counts an applied upsert.
func (m *Metrics) Marked(s model.Status) { m.marks.WithLabelValues(string(s)).Inc() }

// BulkEntryFailed counts a failed bulk entry.
func (m *Metrics) BulkEntryFailed() { m.bulkFailures.Inc() }
