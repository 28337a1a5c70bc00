package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusProvider implements Provider backed by a Prometheus registry,
// grounded on the teacher's metrics.PrometheusProvider.
type PrometheusProvider struct {
	reg *prom.Registry

	mu         sync.RWMutex
	counters   map[string]*prom.CounterVec
	gauges     map[string]*prom.GaugeVec
	histograms map[string]*prom.HistogramVec
	problems   []error
}

// NewPrometheusProvider builds a provider. A nil registry creates a fresh one.
func NewPrometheusProvider(reg *prom.Registry) *PrometheusProvider {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	return &PrometheusProvider{
		reg:        reg,
		counters:   make(map[string]*prom.CounterVec),
		gauges:     make(map[string]*prom.GaugeVec),
		histograms: make(map[string]*prom.HistogramVec),
	}
}

// Registry exposes the underlying registry for wiring a promhttp.Handler.
func (p *PrometheusProvider) Registry() *prom.Registry { return p.reg }

func fqName(c CommonOpts) (string, error) {
	if c.Name == "" {
		return "", errors.New("telemetry: metric name required")
	}
	fq := c.Name
	if c.Subsystem != "" {
		fq = c.Subsystem + "_" + fq
	}
	if c.Namespace != "" {
		fq = c.Namespace + "_" + fq
	}
	return fq, nil
}

func (p *PrometheusProvider) NewCounter(opts CounterOpts) Counter {
	fq, err := fqName(opts.CommonOpts)
	if err != nil {
		return noopCounter{}
	}
	p.mu.RLock()
	cv := p.counters[fq]
	p.mu.RUnlock()
	if cv != nil {
		return &promCounter{cv: cv}
	}

	vec := prom.NewCounterVec(prom.CounterOpts{Name: fq, Help: opts.Help}, opts.Labels)
	if err := p.reg.Register(vec); err != nil {
		if are, ok := err.(prom.AlreadyRegisteredError); ok {
			vec = are.ExistingCollector.(*prom.CounterVec)
		} else {
			p.recordProblem(err)
			return noopCounter{}
		}
	}
	p.mu.Lock()
	p.counters[fq] = vec
	p.mu.Unlock()
	return &promCounter{cv: vec}
}

func (p *PrometheusProvider) NewGauge(opts GaugeOpts) Gauge {
	fq, err := fqName(opts.CommonOpts)
	if err != nil {
		return noopGauge{}
	}
	p.mu.RLock()
	gv := p.gauges[fq]
	p.mu.RUnlock()
	if gv != nil {
		return &promGauge{gv: gv}
	}

	vec := prom.NewGaugeVec(prom.GaugeOpts{Name: fq, Help: opts.Help}, opts.Labels)
	if err := p.reg.Register(vec); err != nil {
		if are, ok := err.(prom.AlreadyRegisteredError); ok {
			vec = are.ExistingCollector.(*prom.GaugeVec)
		} else {
			p.recordProblem(err)
			return noopGauge{}
		}
	}
	p.mu.Lock()
	p.gauges[fq] = vec
	p.mu.Unlock()
	return &promGauge{gv: vec}
}

func (p *PrometheusProvider) NewHistogram(opts HistogramOpts) Histogram {
	fq, err := fqName(opts.CommonOpts)
	if err != nil {
		return noopHistogram{}
	}
	p.mu.RLock()
	hv := p.histograms[fq]
	p.mu.RUnlock()
	if hv != nil {
		return &promHistogram{hv: hv}
	}

	buckets := opts.Buckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}
	vec := prom.NewHistogramVec(prom.HistogramOpts{Name: fq, Help: opts.Help, Buckets: buckets}, opts.Labels)
	if err := p.reg.Register(vec); err != nil {
		if are, ok := err.(prom.AlreadyRegisteredError); ok {
			vec = are.ExistingCollector.(*prom.HistogramVec)
		} else {
			p.recordProblem(err)
			return noopHistogram{}
		}
	}
	p.mu.Lock()
	p.histograms[fq] = vec
	p.mu.Unlock()
	return &promHistogram{hv: vec}
}

func (p *PrometheusProvider) Health(context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.problems) == 0 {
		return nil
	}
	return fmt.Errorf("telemetry: prometheus provider has %d registration problems (first: %v)", len(p.problems), p.problems[0])
}

func (p *PrometheusProvider) recordProblem(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.problems = append(p.problems, err)
}

type promCounter struct{ cv *prom.CounterVec }

func (c *promCounter) Inc(delta float64, labels ...string) {
	if delta <= 0 {
		return
	}
	c.cv.WithLabelValues(labels...).Add(delta)
}

type promGauge struct{ gv *prom.GaugeVec }

func (g *promGauge) Set(value float64, labels ...string) { g.gv.WithLabelValues(labels...).Set(value) }
func (g *promGauge) Add(delta float64, labels ...string) {
	if delta == 0 {
		return
	}
	g.gv.WithLabelValues(labels...).Add(delta)
}

type promHistogram struct{ hv *prom.HistogramVec }

func (h *promHistogram) Observe(value float64, labels ...string) {
	h.hv.WithLabelValues(labels...).Observe(value)
}
