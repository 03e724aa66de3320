// Package observability registers the daemon's prometheus collectors.
package observability

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	TicksTotal        prometheus.Counter
	MeasurementsTotal *prometheus.CounterVec
	ParseErrorsTotal  *prometheus.CounterVec
	QueryErrorsTotal  *prometheus.CounterVec
	EventsDropped     prometheus.Gauge
	QueryLatency      prometheus.Histogram
}

func NewMetrics() *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dmmlog_ticks_total",
			Help: "Polling passes started.",
		}),
		MeasurementsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dmmlog_measurements_total",
			Help: "Measurements recorded, by device.",
		}, []string{"device"}),
		ParseErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dmmlog_parse_errors_total",
			Help: "Replies that failed to parse as a float, by device.",
		}, []string{"device"}),
		QueryErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dmmlog_query_errors_total",
			Help: "Transport failures and timeouts, by device.",
		}, []string{"device"}),
		EventsDropped: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dmmlog_events_dropped",
			Help: "Events lost to full subscriber buffers.",
		}),
		QueryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dmmlog_query_latency_seconds",
			Help:    "Instrument query round-trip latency.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}

	prometheus.MustRegister(
		m.TicksTotal,
		m.MeasurementsTotal,
		m.ParseErrorsTotal,
		m.QueryErrorsTotal,
		m.EventsDropped,
		m.QueryLatency,
	)

	return m
}

// Nil-safe helpers: a nil *Metrics disables collection.

func (m *Metrics) Tick() {
	if m != nil {
		m.TicksTotal.Inc()
	}
}

func (m *Metrics) Measurement(device string) {
	if m != nil {
		m.MeasurementsTotal.WithLabelValues(device).Inc()
	}
}

func (m *Metrics) ParseError(device string) {
	if m != nil {
		m.ParseErrorsTotal.WithLabelValues(device).Inc()
	}
}

func (m *Metrics) QueryError(device string) {
	if m != nil {
		m.QueryErrorsTotal.WithLabelValues(device).Inc()
	}
}

func (m *Metrics) Dropped(n uint64) {
	if m != nil {
		m.EventsDropped.Set(float64(n))
	}
}

func (m *Metrics) ObserveQuery(seconds float64) {
	if m != nil {
		m.QueryLatency.Observe(seconds)
	}
}
