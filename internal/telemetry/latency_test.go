package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLatencyBucketFirstBucket(t *testing.T) {
	assert.Equal(t, 0, latencyBucket(0))
	assert.Equal(t, 0, latencyBucket(999))
}

func TestLatencyBucketExactBoundary(t *testing.T) {
	bounds := LatencyBuckets()
	assert.Equal(t, 1, latencyBucket(bounds[1]))
}

func TestLatencyBucketAboveCapCollapsesToLast(t *testing.T) {
	bounds := LatencyBuckets()
	last := bounds[BucketCount-1]
	assert.Equal(t, BucketCount-1, latencyBucket(last*100))
}

func TestLatencyHistogramRecordAndReset(t *testing.T) {
	var h LatencyHistogram
	h.Record(500)
	h.Record(1500)
	counts := h.Counts()
	assert.EqualValues(t, 1, counts[0])
	assert.EqualValues(t, 1, counts[1])

	h.Reset()
	counts = h.Counts()
	for _, c := range counts {
		assert.EqualValues(t, 0, c)
	}
}
