package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	// Observation ingest counters
	ObservationsReceived  atomic.Uint64
	ObservationsMalformed atomic.Uint64
	ObservationsDropped   atomic.Uint64

	// Toggle dispatch counters
	ToggleSuccess atomic.Uint64
	ToggleFailure atomic.Uint64
	ToggleDropped atomic.Uint64

	// Controller transition counters
	Activations   atomic.Uint64
	Deactivations atomic.Uint64

	// Gauges
	MotionActive    atomic.Uint64 // 0 = idle, 1 = active
	BrokerConnected atomic.Uint64 // 0 = disconnected, 1 = connected
	LastMotionUnix  atomic.Uint64 // Unix seconds of last qualifying observation

	// Prometheus collectors
	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.registerPrometheusMetrics()

	return m
}

// registerPrometheusMetrics registers all metrics with Prometheus
func (m *Metrics) registerPrometheusMetrics() {
	// Ingest metrics
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "motiongate_observations_received_total",
			Help: "Total detection events received from the broker",
		},
		func() float64 { return float64(m.ObservationsReceived.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "motiongate_observations_malformed_total",
			Help: "Total detection events skipped as malformed",
		},
		func() float64 { return float64(m.ObservationsMalformed.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "motiongate_observations_dropped_total",
			Help: "Total observations dropped because the controller queue was full",
		},
		func() float64 { return float64(m.ObservationsDropped.Load()) },
	))

	// Toggle metrics
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "motiongate_toggle_success_total",
			Help: "Total stream toggle calls that succeeded",
		},
		func() float64 { return float64(m.ToggleSuccess.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "motiongate_toggle_failure_total",
			Help: "Total stream toggle calls that failed",
		},
		func() float64 { return float64(m.ToggleFailure.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "motiongate_toggle_dropped_total",
			Help: "Total toggle requests dropped because the sender queue was full",
		},
		func() float64 { return float64(m.ToggleDropped.Load()) },
	))

	// Transition metrics
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "motiongate_activations_total",
			Help: "Total idle to active transitions",
		},
		func() float64 { return float64(m.Activations.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "motiongate_deactivations_total",
			Help: "Total active to idle transitions",
		},
		func() float64 { return float64(m.Deactivations.Load()) },
	))

	// State gauges
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "motiongate_motion_active",
			Help: "Controller phase (0=idle, 1=active)",
		},
		func() float64 { return float64(m.MotionActive.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "motiongate_broker_connected",
			Help: "MQTT broker connection state (0=disconnected, 1=connected)",
		},
		func() float64 { return float64(m.BrokerConnected.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "motiongate_last_motion_timestamp_seconds",
			Help: "Unix timestamp of the last qualifying observation",
		},
		func() float64 { return float64(m.LastMotionUnix.Load()) },
	))
}

// SetMotionActive updates the phase gauge
func (m *Metrics) SetMotionActive(active bool) {
	if active {
		m.MotionActive.Store(1)
	} else {
		m.MotionActive.Store(0)
	}
}

// SetLastMotion records the timestamp of the latest qualifying observation
func (m *Metrics) SetLastMotion(t time.Time) {
	m.LastMotionUnix.Store(uint64(t.Unix()))
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer starts the metrics HTTP server
func (m *Metrics) StartServer(addr string) error {
	http.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, nil)
}
