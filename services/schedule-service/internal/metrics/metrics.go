package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the service's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	SchedulesCreated *prometheus.CounterVec
	Conflicts        *prometheus.CounterVec
	BulkDays         *prometheus.CounterVec
	Completed        prometheus.Counter
	OutboxPublished  prometheus.Counter
	OutboxErrors     prometheus.Counter
	HTTPDuration     *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers every collector on reg.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SchedulesCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "schedule_created_total",
			Help: "Schedules created, by kind (single, recurring, bulk, import)",
		}, []string{"kind"}),
		Conflicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "schedule_conflicts_total",
			Help: "Requests rejected because the provider was already booked",
		}, []string{"op"}),
		BulkDays: f.NewCounterVec(prometheus.CounterOpts{
			Name: "schedule_bulk_days_total",
			Help: "Days processed by bulk creation, by outcome",
		}, []string{"outcome"}),
		Completed: f.NewCounter(prometheus.CounterOpts{
			Name: "schedule_completed_total",
			Help: "Schedules moved to completed by the sweeper",
		}),
		OutboxPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "schedule_outbox_published_total",
			Help: "Outbox events delivered to Kafka",
		}),
		OutboxErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "schedule_outbox_publish_errors_total",
			Help: "Failed outbox publish batches",
		}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route and status code",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "code"}),
		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) Created(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SchedulesCreated.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) Conflict(op string) {
	if m == nil {
		return
	}
	m.Conflicts.WithLabelValues(op).Inc()
}

func (m *Metrics) BulkDay(outcome string) {
	if m == nil {
		return
	}
	m.BulkDays.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CompletedN(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Completed.Add(float64(n))
}

func (m *Metrics) Published(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.OutboxPublished.Add(float64(n))
}

func (m *Metrics) PublishFailed() {
	if m == nil {
		return
	}
	m.OutboxErrors.Inc()
}

func (m *Metrics) HTTP() *prometheus.HistogramVec {
	if m == nil {
		return nil
	}
	return m.HTTPDuration
}
