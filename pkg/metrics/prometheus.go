package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	eventsReceived *prometheus.CounterVec
	signalsEmitted *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	subscribers    prometheus.Gauge
	latency        *prometheus.HistogramVec
}

// New creates a recorder whose collectors are registered on reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		eventsReceived: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signaldna_events_received_total",
				Help: "Raw news payloads received, by origin",
			},
			[]string{"origin"},
		),
		signalsEmitted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signaldna_signals_emitted_total",
				Help: "Signal updates broadcast, by instrument and signal",
			},
			[]string{"instrument", "signal"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signaldna_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		subscribers: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "signaldna_subscribers",
				Help: "Currently connected dashboard subscribers",
			},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signaldna_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordEvent counts a raw payload from origin.
func (r *Recorder) RecordEvent(origin string) {
	r.eventsReceived.WithLabelValues(origin).Inc()
}

// RecordSignal counts a broadcast update.
func (r *Recorder) RecordSignal(instrument, signal string) {
	r.signalsEmitted.WithLabelValues(instrument, signal).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// SetSubscribers sets the connected-subscriber gauge.
func (r *Recorder) SetSubscribers(n int) {
	r.subscribers.Set(float64(n))
}

// Noop discards all measurements.
type Noop struct{}

func (Noop) RecordEvent(string)            {}
func (Noop) RecordSignal(string, string)   {}
func (Noop) RecordError(string)            {}
func (Noop) RecordLatency(string, float64) {}
func (Noop) SetSubscribers(int)            {}
