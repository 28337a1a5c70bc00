package recorder

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/99souls/flagengine/internal/dto"
)

// DefaultEventsQueueSize and DefaultEventsBulkSize are the documented events
// pipeline defaults.
const (
	DefaultEventsQueueSize = 10000
	DefaultEventsBulkSize  = 500
)

// ErrPropertiesTooLarge is returned synchronously from Record when an
// event's properties exceed the size or count limit — the caller's track()
// call fails fast rather than silently dropping the event downstream.
var ErrPropertiesTooLarge = errors.New("recorder: event properties exceed size limit")

// EventRecorder is the events analog of ImpressionRecorder: no deduplication,
// but enqueue-time validation the impressions pipeline doesn't need.
type EventRecorder struct {
	ring *Ring[dto.Event]
}

// NewEventRecorder builds a recorder with the given queue capacity.
func NewEventRecorder(queueSize int) *EventRecorder {
	if queueSize <= 0 {
		queueSize = DefaultEventsQueueSize
	}
	return &EventRecorder{ring: NewRing[dto.Event](queueSize)}
}

// Record validates properties size/count and enqueues the event. An oversize
// event is rejected synchronously rather than enqueued and dropped later.
func (r *EventRecorder) Record(ev dto.Event) error {
	if len(ev.Properties) > dto.MaxPropertiesCount {
		return fmt.Errorf("%w: %d properties exceeds limit of %d", ErrPropertiesTooLarge, len(ev.Properties), dto.MaxPropertiesCount)
	}
	if len(ev.Properties) > 0 {
		encoded, err := json.Marshal(ev.Properties)
		if err != nil {
			return fmt.Errorf("recorder: encoding event properties: %w", err)
		}
		ev.SizeBytes = len(encoded)
		if ev.SizeBytes > dto.MaxPropertiesBytes {
			return fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrPropertiesTooLarge, ev.SizeBytes, dto.MaxPropertiesBytes)
		}
	}

	r.ring.Push(ev)
	return nil
}

// Drain removes up to bulkSize queued events for shipment.
func (r *EventRecorder) Drain(bulkSize int) []dto.Event {
	return r.ring.Drain(bulkSize)
}

// Requeue puts events back on the ring after a failed flush.
func (r *EventRecorder) Requeue(events []dto.Event) {
	for _, ev := range events {
		r.ring.Requeue(ev)
	}
}

// Dropped returns how many events were discarded due to ring overflow.
func (r *EventRecorder) Dropped() int64 { return r.ring.Dropped() }
