// Package telemetry implements the SDK's latency histograms, error counters,
// streaming-event ring, and config snapshot, shippable through a pluggable
// metrics backend.
package telemetry

import "context"

// Counter is a monotonically increasing value.
type Counter interface {
	Inc(delta float64, labels ...string)
}

// Gauge is a value that can go up or down.
type Gauge interface {
	Set(value float64, labels ...string)
	Add(delta float64, labels ...string)
}

// Histogram records observations into buckets.
type Histogram interface {
	Observe(value float64, labels ...string)
}

// CommonOpts are the shared fields of every metric option struct.
type CommonOpts struct {
	Namespace string
	Subsystem string
	Name      string
	Help      string
	Labels    []string
}

// CounterOpts configures a Counter.
type CounterOpts struct{ CommonOpts }

// GaugeOpts configures a Gauge.
type GaugeOpts struct{ CommonOpts }

// HistogramOpts configures a Histogram.
type HistogramOpts struct {
	CommonOpts
	Buckets []float64
}

// Provider is the metrics backend abstraction. It is implemented by a no-op
// default, a Prometheus-backed provider, and an OpenTelemetry bridge, selected
// by the SDK's MetricsBackend config ("noop" | "prom" | "otel").
type Provider interface {
	NewCounter(opts CounterOpts) Counter
	NewGauge(opts GaugeOpts) Gauge
	NewHistogram(opts HistogramOpts) Histogram
	Health(ctx context.Context) error
}

type noopProvider struct{}
type noopCounter struct{}
type noopGauge struct{}
type noopHistogram struct{}

// NewNoopProvider returns a Provider that discards every observation.
func NewNoopProvider() Provider { return noopProvider{} }

func (noopProvider) NewCounter(CounterOpts) Counter       { return noopCounter{} }
func (noopProvider) NewGauge(GaugeOpts) Gauge             { return noopGauge{} }
func (noopProvider) NewHistogram(HistogramOpts) Histogram { return noopHistogram{} }
func (noopProvider) Health(context.Context) error         { return nil }

func (noopCounter) Inc(float64, ...string)       {}
func (noopGauge) Set(float64, ...string)         {}
func (noopGauge) Add(float64, ...string)         {}
func (noopHistogram) Observe(float64, ...string) {}
