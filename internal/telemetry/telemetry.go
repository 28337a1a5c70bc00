package telemetry

import (
	"sync"
)

// Telemetry aggregates the in-memory counters, latency histograms, and
// streaming-event ring the SDK tracks, plus a pluggable Provider for
// exporting the same signals to an external metrics backend.
type Telemetry struct {
	Provider Provider

	mu          sync.Mutex
	evalLatency map[string]*LatencyHistogram // per-method: getTreatment, getTreatments, track
	httpLatency map[string]*LatencyHistogram // per-endpoint: splitChanges, segmentChanges, auth

	counters *Counters
	stream   *StreamingEventRing
	session  *SessionLength

	evalLatencyObs Histogram
	httpLatencyObs Histogram
}

// New builds a Telemetry instance backed by the given metrics Provider. A nil
// Provider falls back to a no-op.
func New(provider Provider, startedAtMillis int64) *Telemetry {
	if provider == nil {
		provider = NewNoopProvider()
	}
	return &Telemetry{
		Provider:    provider,
		evalLatency: make(map[string]*LatencyHistogram),
		httpLatency: make(map[string]*LatencyHistogram),
		counters:    NewCounters(),
		stream:      NewStreamingEventRing(),
		session:     NewSessionLength(startedAtMillis),
		evalLatencyObs: provider.NewHistogram(HistogramOpts{
			CommonOpts: CommonOpts{Name: "evaluation_latency_microseconds", Labels: []string{"method"}},
		}),
		httpLatencyObs: provider.NewHistogram(HistogramOpts{
			CommonOpts: CommonOpts{Name: "http_latency_microseconds", Labels: []string{"endpoint"}},
		}),
	}
}

// Counters exposes the counter set for callers instrumenting errors/auth events.
func (t *Telemetry) Counters() *Counters { return t.counters }

// StreamingEvents exposes the streaming-event ring.
func (t *Telemetry) StreamingEvents() *StreamingEventRing { return t.stream }

// RecordEvaluationLatency records one evaluation's latency in microseconds
// against both the internal histogram table and the exported Provider.
func (t *Telemetry) RecordEvaluationLatency(method string, micros int64) {
	t.mu.Lock()
	h := t.evalLatency[method]
	if h == nil {
		h = &LatencyHistogram{}
		t.evalLatency[method] = h
	}
	h.Record(micros)
	t.mu.Unlock()
	t.evalLatencyObs.Observe(float64(micros), method)
}

// RecordHTTPLatency records one control-plane request's latency in microseconds.
func (t *Telemetry) RecordHTTPLatency(endpoint string, micros int64) {
	t.mu.Lock()
	h := t.httpLatency[endpoint]
	if h == nil {
		h = &LatencyHistogram{}
		t.httpLatency[endpoint] = h
	}
	h.Record(micros)
	t.mu.Unlock()
	t.httpLatencyObs.Observe(float64(micros), endpoint)
}

// EvaluationLatencySnapshot returns a copy of the per-method bucket counts.
func (t *Telemetry) EvaluationLatencySnapshot() map[string][BucketCount]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string][BucketCount]int64, len(t.evalLatency))
	for k, v := range t.evalLatency {
		out[k] = v.Counts()
	}
	return out
}

// HTTPLatencySnapshot returns a copy of the per-endpoint bucket counts.
func (t *Telemetry) HTTPLatencySnapshot() map[string][BucketCount]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string][BucketCount]int64, len(t.httpLatency))
	for k, v := range t.httpLatency {
		out[k] = v.Counts()
	}
	return out
}

// ResetLatency clears every histogram's buckets, called after a periodic
// stats payload ships.
func (t *Telemetry) ResetLatency() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, h := range t.evalLatency {
		h.Reset()
	}
	for _, h := range t.httpLatency {
		h.Reset()
	}
}

// StatsPayload is what the periodic stats shipment task sends.
type StatsPayload struct {
	EvaluationLatency map[string][BucketCount]int64
	HTTPLatency       map[string][BucketCount]int64
	MethodExceptions  map[string]int64
	HTTPErrors        map[string]map[int]int64
	LastSync          map[string]int64
	AuthRejections    int64
	TokenRefreshes    int64
	StreamingEvents   []StreamingEvent
	SessionLengthMs   int64
}

// BuildStatsPayload snapshots every counter/histogram for periodic shipment
// and resets the latency tables, matching the original SDK's ship-then-reset
// cadence for its in-memory stats.
func (t *Telemetry) BuildStatsPayload(nowMillis int64) StatsPayload {
	p := StatsPayload{
		EvaluationLatency: t.EvaluationLatencySnapshot(),
		HTTPLatency:       t.HTTPLatencySnapshot(),
		MethodExceptions:  t.counters.MethodExceptionsSnapshot(),
		HTTPErrors:        t.counters.HTTPErrorsSnapshot(),
		LastSync:          t.counters.LastSyncSnapshot(),
		AuthRejections:    t.counters.AuthRejections(),
		TokenRefreshes:    t.counters.TokenRefreshes(),
		StreamingEvents:   t.stream.Snapshot(),
		SessionLengthMs:   t.session.ElapsedMillis(nowMillis),
	}
	t.ResetLatency()
	return p
}
