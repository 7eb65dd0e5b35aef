// Package metrics provides Prometheus instrumentation of replicas and clients.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bboard"

// Metrics holds all Prometheus metrics of a process. A nil *Metrics records nothing.
type Metrics struct {
	// Broadcast metrics
	EchoesTotal     prometheus.Counter
	ReadiesTotal    prometheus.Counter
	DroppedTotal    prometheus.Counter
	DeliveriesTotal *prometheus.CounterVec

	// RPC metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Client metrics
	LinkRetriesTotal   prometheus.Counter
	QuorumResultsTotal *prometheus.CounterVec

	// Domain metrics
	Users         prometheus.Gauge
	Announcements prometheus.Gauge
}

// New creates and registers Metrics on the given Registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EchoesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "echoes_total",
			Help:      "Total number of counted echo messages",
		}),
		ReadiesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readies_total",
			Help:      "Total number of counted ready messages",
		}),
		DroppedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peer_messages_dropped_total",
			Help:      "Total number of peer messages dropped for failing authentication",
		}),
		DeliveriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Total deliveries by write method and outcome",
		}, []string{"method", "outcome"}),

		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total requests served by method and status",
		}, []string{"method", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Request duration by method",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		LinkRetriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_retries_total",
			Help:      "Total number of resends by reliable links",
		}),
		QuorumResultsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quorum_results_total",
			Help:      "Total quorum calls by result",
		}, []string{"result"}),

		Users: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "users",
			Help:      "Number of registered users",
		}),
		Announcements: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "announcements",
			Help:      "Number of delivered announcements",
		}),
	}
}

// RecordEcho records a counted echo.
func (m *Metrics) RecordEcho() {
	if m == nil {
		return
	}
	m.EchoesTotal.Inc()
}

// RecordReady records a counted ready.
func (m *Metrics) RecordReady() {
	if m == nil {
		return
	}
	m.ReadiesTotal.Inc()
}

// RecordDropped records a dropped peer message.
func (m *Metrics) RecordDropped() {
	if m == nil {
		return
	}
	m.DroppedTotal.Inc()
}

// RecordDelivery records a delivered write with its outcome.
func (m *Metrics) RecordDelivery(method, outcome string) {
	if m == nil {
		return
	}
	m.DeliveriesTotal.WithLabelValues(method, outcome).Inc()
}

// RecordRequest records a served request.
func (m *Metrics) RecordRequest(method, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, status).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordRetry records a link resend.
func (m *Metrics) RecordRetry() {
	if m == nil {
		return
	}
	m.LinkRetriesTotal.Inc()
}

// RecordQuorum records the result of a quorum call.
func (m *Metrics) RecordQuorum(result string) {
	if m == nil {
		return
	}
	m.QuorumResultsTotal.WithLabelValues(result).Inc()
}

// UpdateState updates the domain gauges.
func (m *Metrics) UpdateState(users, announcements int) {
	if m == nil {
		return
	}
	m.Users.Set(float64(users))
	m.Announcements.Set(float64(announcements))
}
