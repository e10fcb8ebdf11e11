package protocol

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome classifies what happened to one input line.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
	OutcomeBlank   Outcome = "blank"
)

// Recorder observes the adapter lifecycle
type Recorder interface {
	StateChanged(State)
	Observe(outcome Outcome, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) StateChanged(State)             {}
func (nopRecorder) Observe(Outcome, time.Duration) {}

// Metrics is a Recorder backed by prometheus collectors
type Metrics struct {
	requests *prometheus.CounterVec
	duration prometheus.Histogram
	state    prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with registerer, if any.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentiment_requests_total",
			Help: "Input lines handled, by outcome",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sentiment_inference_duration_seconds",
			Help:    "Time spent classifying a single line",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentiment_adapter_state",
			Help: "Current adapter state (0 starting, 1 ready, 2 processing, 3 terminated)",
		}),
	}

	if registerer != nil {
		registerer.MustRegister(m.requests)
		registerer.MustRegister(m.duration)
		registerer.MustRegister(m.state)
	}

	return m
}

func (m *Metrics) StateChanged(s State) {
	m.state.Set(float64(s))
}

func (m *Metrics) Observe(outcome Outcome, duration time.Duration) {
	m.requests.WithLabelValues(string(outcome)).Inc()
	if outcome != OutcomeBlank {
		m.duration.Observe(duration.Seconds())
	}
}
