package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "Current number of in-flight HTTP requests.",
	})

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "route", "status"})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latencies in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	SignalConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "signal_connections",
		Help: "Number of registered signaling connections.",
	})

	SignalEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "signal_events_total",
		Help: "Inbound signaling events by outcome.",
	}, []string{"event", "result"})

	SignalRateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "signal_rate_limited_total",
		Help: "Inbound events rejected by the per-connection rate limiter.",
	}, []string{"event"})

	SignalHandlerDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "signal_handler_duration_seconds",
		Help:    "Signaling event handler duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"event"})

	SignalActiveCalls = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "signal_active_calls",
		Help: "Number of live call sessions.",
	})

	SignalCallTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "signal_call_transitions_total",
		Help: "Call session transitions by resulting status and end reason.",
	}, []string{"status", "reason"})

	SignalStoreWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "signal_store_writes_total",
		Help: "Writes to the presence and call stores by result.",
	}, []string{"store", "result"})

	SignalFanoutDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "signal_fanout_dropped_total",
		Help: "Outbound messages dropped because a connection's send queue was full or closed.",
	})
)

func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPInFlight, HTTPRequests, HTTPDuration,
		SignalConnections, SignalEvents, SignalRateLimited, SignalHandlerDuration,
		SignalActiveCalls, SignalCallTransitions, SignalStoreWrites, SignalFanoutDropped,
	)
}
