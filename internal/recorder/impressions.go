package recorder

import (
	"sync"
	"time"

	"github.com/99souls/flagengine/internal/dto"
)

// Mode selects how impressions are recorded.
type Mode string

const (
	ModeOptimized Mode = "OPTIMIZED"
	ModeDebug     Mode = "DEBUG"
	ModeNone      Mode = "NONE"
)

// DefaultQueueSize and DefaultBulkSize are the documented impressions
// pipeline defaults.
const (
	DefaultQueueSize = 10000
	DefaultBulkSize  = 5000
)

type dedupeKey struct {
	feature  string
	key      string
	treatment string
}

type counterKey struct {
	feature     string
	hourEpochMs int64
}

// ImpressionRecorder applies the per-mode dedupe policy and enqueues onto a
// bounded ring for the periodic flusher to ship.
type ImpressionRecorder struct {
	mode Mode
	ring *Ring[dto.Impression]

	mu      sync.Mutex
	lastHour map[dedupeKey]int64
	counts   map[counterKey]int64
}

// NewImpressionRecorder builds a recorder for the given mode and queue capacity.
func NewImpressionRecorder(mode Mode, queueSize int) *ImpressionRecorder {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &ImpressionRecorder{
		mode:     mode,
		ring:     NewRing[dto.Impression](queueSize),
		lastHour: make(map[dedupeKey]int64),
		counts:   make(map[counterKey]int64),
	}
}

func truncateToHour(unixMillis int64) int64 {
	t := time.UnixMilli(unixMillis).UTC()
	hour := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
	return hour.UnixMilli()
}

// Record applies the mode's policy to a freshly evaluated impression.
func (r *ImpressionRecorder) Record(imp dto.Impression) {
	switch r.mode {
	case ModeDebug:
		r.ring.Push(imp)

	case ModeNone:
		r.bumpCounter(imp)

	default: // ModeOptimized
		r.recordOptimized(imp)
	}
}

func (r *ImpressionRecorder) recordOptimized(imp dto.Impression) {
	hour := truncateToHour(imp.Time)
	key := dedupeKey{feature: imp.FeatureName, key: imp.MatchingKey, treatment: imp.Treatment}

	r.mu.Lock()
	cached, seen := r.lastHour[key]
	r.lastHour[key] = hour
	r.mu.Unlock()

	r.bumpCounter(imp)

	if seen && cached == hour {
		return // deduped: counted above, not emitted raw
	}

	if seen {
		imp.PreviousTime = cached
	}
	r.ring.Push(imp)
}

func (r *ImpressionRecorder) bumpCounter(imp dto.Impression) {
	hour := truncateToHour(imp.Time)
	k := counterKey{feature: imp.FeatureName, hourEpochMs: hour}
	r.mu.Lock()
	r.counts[k]++
	r.mu.Unlock()
}

// DrainImpressions removes up to bulkSize queued impressions for shipment.
func (r *ImpressionRecorder) DrainImpressions(bulkSize int) []dto.Impression {
	return r.ring.Drain(bulkSize)
}

// RequeueImpressions puts impressions back on the ring after a failed flush.
func (r *ImpressionRecorder) RequeueImpressions(imps []dto.Impression) {
	for _, imp := range imps {
		r.ring.Requeue(imp)
	}
}

// DrainCounts removes and resets every accumulated (feature, hour) counter,
// returning them as the wire-ready ImpressionCount records.
func (r *ImpressionRecorder) DrainCounts() []dto.ImpressionCount {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.counts) == 0 {
		return nil
	}
	out := make([]dto.ImpressionCount, 0, len(r.counts))
	for k, count := range r.counts {
		out = append(out, dto.ImpressionCount{Feature: k.feature, HourEpochMs: k.hourEpochMs, Count: count})
	}
	r.counts = make(map[counterKey]int64)
	return out
}

// Dropped returns how many impressions were discarded due to ring overflow.
func (r *ImpressionRecorder) Dropped() int64 { return r.ring.Dropped() }
