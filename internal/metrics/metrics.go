package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsPolled tracks events taken from the embedded node
	EventsPolled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lnbridge_events_polled_total",
			Help: "Total number of events received from the embedded node",
		},
		[]string{"kind"},
	)

	// EventsDispatched tracks events passed through the dispatcher, including injected ones
	EventsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lnbridge_events_dispatched_total",
			Help: "Total number of events fanned out to subscribers",
		},
		[]string{"kind"},
	)

	// PollErrors tracks failures fetching or acknowledging node events
	PollErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lnbridge_poll_errors_total",
			Help: "Total number of errors while polling the embedded node",
		},
		[]string{"stage"},
	)

	// DeliveryFailures tracks failed deliveries to subscriber handles
	DeliveryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lnbridge_delivery_failures_total",
			Help: "Total number of failed deliveries to subscribers",
		},
		[]string{"subscriber", "reason"},
	)

	// Subscribers tracks currently registered subscriber handles
	Subscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lnbridge_subscribers",
			Help: "Number of registered subscriber handles",
		},
	)

	// BrokerPublishes tracks broker publish attempts by result
	BrokerPublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lnbridge_broker_publishes_total",
			Help: "Total number of broker publish attempts",
		},
		[]string{"kind", "result"},
	)

	// DispatchLatency tracks the time spent in one Notify call
	DispatchLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lnbridge_dispatch_latency_seconds",
			Help:    "Time spent delivering one event",
			Buckets: prometheus.DefBuckets,
		},
	)

	// SinkWrites tracks events written by sinks
	SinkWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lnbridge_sink_writes_total",
			Help: "Total number of events written by sinks",
		},
		[]string{"sink", "result"},
	)

	// APIRequests tracks remote API calls
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lnbridge_api_requests_total",
			Help: "Total number of remote API requests",
		},
		[]string{"method", "code"},
	)

	// DBConnectionPoolUsage tracks journal connection pool usage percentage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lnbridge_db_connection_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
