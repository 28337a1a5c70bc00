package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelemetryRecordEvaluationLatency(t *testing.T) {
	tel := New(nil, 1000)
	tel.RecordEvaluationLatency("getTreatment", 500)
	tel.RecordEvaluationLatency("getTreatment", 2000)

	snap := tel.EvaluationLatencySnapshot()
	require.Contains(t, snap, "getTreatment")
	counts := snap["getTreatment"]
	assert.EqualValues(t, 1, counts[0])
}

func TestTelemetryBuildStatsPayloadResetsLatency(t *testing.T) {
	tel := New(nil, 1000)
	tel.RecordEvaluationLatency("getTreatment", 500)
	tel.Counters().IncAuthRejections()
	tel.StreamingEvents().Push(StreamingEvent{Type: "push_up"})

	payload := tel.BuildStatsPayload(5000)
	assert.EqualValues(t, 1, payload.EvaluationLatency["getTreatment"][0])
	assert.EqualValues(t, 1, payload.AuthRejections)
	assert.Len(t, payload.StreamingEvents, 1)
	assert.EqualValues(t, 4000, payload.SessionLengthMs)

	for _, c := range tel.EvaluationLatencySnapshot()["getTreatment"] {
		assert.EqualValues(t, 0, c)
	}
}

func TestTelemetryUsesProviderForExport(t *testing.T) {
	var observed []float64
	tel := New(&recordingProvider{observe: &observed}, 0)
	tel.RecordEvaluationLatency("getTreatment", 750)
	require.Len(t, observed, 1)
	assert.Equal(t, 750.0, observed[0])
}

type recordingProvider struct {
	observe *[]float64
}

func (p *recordingProvider) NewCounter(CounterOpts) Counter { return noopCounter{} }
func (p *recordingProvider) NewGauge(GaugeOpts) Gauge       { return noopGauge{} }
func (p *recordingProvider) NewHistogram(HistogramOpts) Histogram {
	return &recordingHistogram{observe: p.observe}
}
func (p *recordingProvider) Health(ctx context.Context) error { return nil }

type recordingHistogram struct{ observe *[]float64 }

func (h *recordingHistogram) Observe(value float64, labels ...string) {
	*h.observe = append(*h.observe, value)
}
