package server

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes the dispatcher's per-cycle decisions as Prometheus
// counters for the "experimental visibility" §7 calls for. Registration is
// optional: NewNoopMetrics satisfies the same interface without touching a
// registry, for the common case of running without --metrics-addr.
type Metrics struct {
	requestsServed   *prometheus.CounterVec
	requestsDropped  prometheus.Counter
	repliesDropped   prometheus.Counter
	cacheHits        prometheus.Counter
	callbacksSent    prometheus.Counter
}

// NewMetrics registers the dispatcher's counters on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "facilitybook",
			Subsystem: "server",
			Name:      "requests_served_total",
			Help:      "Requests that reached the booking store, by operation.",
		}, []string{"op"}),
		requestsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "facilitybook", Subsystem: "server",
			Name: "requests_dropped_total", Help: "Requests dropped by simulated request loss.",
		}),
		repliesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "facilitybook", Subsystem: "server",
			Name: "replies_dropped_total", Help: "Outgoing datagrams dropped by simulated reply loss.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "facilitybook", Subsystem: "server",
			Name: "history_cache_hits_total", Help: "At-most-once duplicate requests served from the history cache.",
		}),
		callbacksSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "facilitybook", Subsystem: "server",
			Name: "monitor_callbacks_sent_total", Help: "MONITOR-UPDATE callbacks handed to the socket.",
		}),
	}
	reg.MustRegister(m.requestsServed, m.requestsDropped, m.repliesDropped, m.cacheHits, m.callbacksSent)
	return m
}

// NewNoopMetrics returns a Metrics that records nothing and was never
// registered anywhere; safe to use when metrics are disabled.
func NewNoopMetrics() *Metrics {
	return &Metrics{
		requestsServed: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "unregistered_requests_served"}, []string{"op"}),
		requestsDropped: prometheus.NewCounter(prometheus.CounterOpts{Name: "unregistered_requests_dropped"}),
		repliesDropped:  prometheus.NewCounter(prometheus.CounterOpts{Name: "unregistered_replies_dropped"}),
		cacheHits:       prometheus.NewCounter(prometheus.CounterOpts{Name: "unregistered_cache_hits"}),
		callbacksSent:   prometheus.NewCounter(prometheus.CounterOpts{Name: "unregistered_callbacks_sent"}),
	}
}

func (m *Metrics) RequestServed(op string) { m.requestsServed.WithLabelValues(op).Inc() }
func (m *Metrics) RequestDropped()         { m.requestsDropped.Inc() }
func (m *Metrics) ReplyDropped()           { m.repliesDropped.Inc() }
func (m *Metrics) CacheHit()               { m.cacheHits.Inc() }
func (m *Metrics) CallbackSent()           { m.callbacksSent.Inc() }
