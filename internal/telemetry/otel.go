package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// OTelProvider implements Provider backed by an OpenTelemetry MeterProvider.
// Gauges are simulated with an UpDownCounter, mirroring the teacher's bridge.
type OTelProvider struct {
	mp    *sdkmetric.MeterProvider
	meter metric.Meter
}

// NewOTelProvider builds a zero-config OpenTelemetry-backed provider. Callers
// wanting exporters attach them to the returned MeterProvider beforehand via
// sdkmetric.NewMeterProvider options; this constructor covers the common case.
func NewOTelProvider(mp *sdkmetric.MeterProvider) *OTelProvider {
	if mp == nil {
		mp = sdkmetric.NewMeterProvider()
	}
	return &OTelProvider{mp: mp, meter: mp.Meter("flagengine")}
}

// MeterProvider exposes the underlying provider for shutdown/flush by the caller.
func (p *OTelProvider) MeterProvider() *sdkmetric.MeterProvider { return p.mp }

func otelName(c CommonOpts) string {
	name := c.Name
	if c.Subsystem != "" {
		name = c.Subsystem + "." + name
	}
	if c.Namespace != "" {
		name = c.Namespace + "." + name
	}
	return name
}

func toAttrs(keys, values []string) []attribute.KeyValue {
	n := len(keys)
	if len(values) < n {
		n = len(values)
	}
	attrs := make([]attribute.KeyValue, n)
	for i := 0; i < n; i++ {
		attrs[i] = attribute.String(keys[i], values[i])
	}
	return attrs
}

func (p *OTelProvider) NewCounter(opts CounterOpts) Counter {
	inst, err := p.meter.Float64Counter(otelName(opts.CommonOpts), metric.WithDescription(opts.Help))
	if err != nil {
		return noopCounter{}
	}
	return &otelCounter{c: inst, labelKeys: opts.Labels}
}

func (p *OTelProvider) NewGauge(opts GaugeOpts) Gauge {
	inst, err := p.meter.Float64UpDownCounter(otelName(opts.CommonOpts), metric.WithDescription(opts.Help))
	if err != nil {
		return noopGauge{}
	}
	return &otelGauge{g: inst, labelKeys: opts.Labels}
}

func (p *OTelProvider) NewHistogram(opts HistogramOpts) Histogram {
	histOpts := []metric.Float64HistogramOption{metric.WithDescription(opts.Help)}
	if len(opts.Buckets) > 0 {
		histOpts = append(histOpts, metric.WithExplicitBucketBoundaries(opts.Buckets...))
	}
	inst, err := p.meter.Float64Histogram(otelName(opts.CommonOpts), histOpts...)
	if err != nil {
		return noopHistogram{}
	}
	return &otelHistogram{h: inst, labelKeys: opts.Labels}
}

func (p *OTelProvider) Health(ctx context.Context) error { return nil }

type otelCounter struct {
	c         metric.Float64Counter
	labelKeys []string
}

func (c *otelCounter) Inc(delta float64, labels ...string) {
	if delta <= 0 {
		return
	}
	c.c.Add(context.Background(), delta, metric.WithAttributes(toAttrs(c.labelKeys, labels)...))
}

type otelGauge struct {
	g         metric.Float64UpDownCounter
	labelKeys []string
}

func (g *otelGauge) Set(value float64, labels ...string) {
	// UpDownCounter has no Set; callers needing exact Set semantics should
	// prefer the Prometheus backend. Here we treat Set as an additive delta,
	// which is the best an UpDownCounter can approximate without tracking
	// prior state per label set.
	g.g.Add(context.Background(), value, metric.WithAttributes(toAttrs(g.labelKeys, labels)...))
}

func (g *otelGauge) Add(delta float64, labels ...string) {
	if delta == 0 {
		return
	}
	g.g.Add(context.Background(), delta, metric.WithAttributes(toAttrs(g.labelKeys, labels)...))
}

type otelHistogram struct {
	h         metric.Float64Histogram
	labelKeys []string
}

func (h *otelHistogram) Observe(value float64, labels ...string) {
	h.h.Record(context.Background(), value, metric.WithAttributes(toAttrs(h.labelKeys, labels)...))
}
