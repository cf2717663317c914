// Package metrics exposes the Prometheus collectors shared by every service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Booking outcomes used as the "outcome" label.
const (
	OutcomeBooked   = "booked"
	OutcomeConflict = "conflict"
	OutcomeInvalid  = "invalid"
	OutcomeNotFound = "not_found"
	OutcomeUpstream = "upstream_failure"
	OutcomeError    = "error"
)

// Recorder is what services and middleware depend on.
type Recorder interface {
	RecordBooking(outcome string)
	RecordCalendarLatency(d time.Duration)
	RecordHTTPRequest(method string, status int, d time.Duration)
	RecordEventPublished(subject string, ok bool)
}

type Collector struct {
	bookings        *prometheus.CounterVec
	calendarLatency prometheus.Histogram
	httpRequests    *prometheus.CounterVec
	httpLatency     prometheus.Histogram
	events          *prometheus.CounterVec
	emails          *prometheus.CounterVec
}

func NewCollector(reg prometheus.Registerer, service string) *Collector {
	constLabels := prometheus.Labels{"service": service}
	c := &Collector{
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "speakerhub_bookings_total",
			Help:        "Booking attempts by outcome",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		calendarLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "speakerhub_calendar_latency_seconds",
			Help:        "Latency of calendar event creation",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "speakerhub_http_requests_total",
			Help:        "HTTP requests by method and status code",
			ConstLabels: constLabels,
		}, []string{"method", "status_code"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "speakerhub_http_request_duration_seconds",
			Help:        "HTTP request latency",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "speakerhub_events_published_total",
			Help:        "Events published to NATS by subject and result",
			ConstLabels: constLabels,
		}, []string{"subject", "result"}),
		emails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "speakerhub_emails_sent_total",
			Help:        "Notification emails by kind and result",
			ConstLabels: constLabels,
		}, []string{"kind", "result"}),
	}

	reg.MustRegister(c.bookings, c.calendarLatency, c.httpRequests, c.httpLatency, c.events, c.emails)
	return c
}

func (c *Collector) RecordBooking(outcome string) {
	c.bookings.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordCalendarLatency(d time.Duration) {
	c.calendarLatency.Observe(d.Seconds())
}

func (c *Collector) RecordHTTPRequest(method string, status int, d time.Duration) {
	c.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.httpLatency.Observe(d.Seconds())
}

func (c *Collector) RecordEventPublished(subject string, ok bool) {
	c.events.WithLabelValues(subject, resultLabel(ok)).Inc()
}

func (c *Collector) RecordEmailSent(kind string, ok bool) {
	c.emails.WithLabelValues(kind, resultLabel(ok)).Inc()
}

func resultLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything. Used by tests and tools that do not expose /metrics.
type Nop struct{}

func (Nop) RecordBooking(string) {}
func (Nop) RecordCalendarLatency(time.Duration) {}
func (Nop) RecordHTTPRequest(string, int, time.Duration) {}
func (Nop) RecordEventPublished(string, bool) {}
func (Nop) RecordEmailSent(string, bool) {}
