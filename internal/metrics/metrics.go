// Package metrics exposes Prometheus collectors for the frame renderers.
package metrics

import (
	"time"

	"github.com/andresmejia3/framewall/internal/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the renderer metrics.
type Config struct {
	// Namespace is the metrics namespace (default: "framewall").
	Namespace string

	// Buckets are the histogram buckets for decode duration.
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: a fresh registry, so several Metrics can coexist in tests.
	Registry *prometheus.Registry
}

// Option configures Metrics.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithBuckets sets the decode histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "framewall",
		Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25},
	}
}

// Metrics holds the renderer collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	framesReceived   *prometheus.CounterVec
	framesDrawn      *prometheus.CounterVec
	decodeFailures   *prometheus.CounterVec
	staleDropped     *prometheus.CounterVec
	decodeDuration   *prometheus.HistogramVec
	connectionState  *prometheus.GaugeVec
	connectionErrors *prometheus.CounterVec
	outstandingRefs  *prometheus.GaugeVec
}

// New registers the renderer collectors.
func New(opts ...Option) *Metrics {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		registry: config.Registry,

		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "frames_received_total",
			Help:      "Binary frames received per surface",
		}, []string{"surface"}),

		framesDrawn: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "frames_drawn_total",
			Help:      "Frames decoded and drawn per surface",
		}, []string{"surface"}),

		decodeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "decode_failures_total",
			Help:      "Frames that could not be decoded as JPEG",
		}, []string{"surface"}),

		staleDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "stale_frames_dropped_total",
			Help:      "Decoded frames discarded because a newer frame was already drawn",
		}, []string{"surface"}),

		decodeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "decode_duration_seconds",
			Help:      "Time from frame receipt to draw",
			Buckets:   config.Buckets,
		}, []string{"surface"}),

		connectionState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "connection_state",
			Help:      "Connection state per surface (0 connecting, 1 open, 2 closed)",
		}, []string{"surface"}),

		connectionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "connection_errors_total",
			Help:      "Connection errors per surface",
		}, []string{"surface"}),

		outstandingRefs: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "outstanding_frame_refs",
			Help:      "Frame references created but not yet released",
		}, []string{"surface"}),
	}
}

// Registry returns the registry the collectors live in, for serving /metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) FrameReceived(surface string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(surface).Inc()
}

func (m *Metrics) FrameDrawn(surface string, since time.Time) {
	if m == nil {
		return
	}
	m.framesDrawn.WithLabelValues(surface).Inc()
	m.decodeDuration.WithLabelValues(surface).Observe(time.Since(since).Seconds())
}

func (m *Metrics) DecodeFailed(surface string) {
	if m == nil {
		return
	}
	m.decodeFailures.WithLabelValues(surface).Inc()
}

func (m *Metrics) StaleDropped(surface string) {
	if m == nil {
		return
	}
	m.staleDropped.WithLabelValues(surface).Inc()
}

func (m *Metrics) SetState(surface string, state types.ConnState) {
	if m == nil {
		return
	}
	m.connectionState.WithLabelValues(surface).Set(float64(state))
}

func (m *Metrics) ConnectionError(surface string) {
	if m == nil {
		return
	}
	m.connectionErrors.WithLabelValues(surface).Inc()
}

func (m *Metrics) RefsChanged(surface string, delta int) {
	if m == nil {
		return
	}
	m.outstandingRefs.WithLabelValues(surface).Add(float64(delta))
}
