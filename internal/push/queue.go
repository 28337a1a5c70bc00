package push

import (
	"sync/atomic"

	"github.com/99souls/flagengine/internal/dto"
)

// FlagJob is one unit of work for the flag worker: either an inline
// definition to apply (the applier itself falls back to a fetch when
// previousChangeNumber does not match), or a "go fetch up to this
// changeNumber" instruction when the event carried no usable definition or
// was a SPLIT_KILL. Stop is the sentinel that tells the worker to exit.
type FlagJob struct {
	Stop                 bool
	FetchOnly            bool
	Definition            *dto.FeatureFlag
	PreviousChangeNumber int64
	ChangeNumber         int64
}

// SegmentJob is one unit of work for the segment worker.
type SegmentJob struct {
	Stop         bool
	Name         string
	ChangeNumber int64
}

// FlagQueue is a bounded, single-writer-from-manager, single-reader-by-worker
// channel with drop-oldest overflow behavior and a dropped-item counter.
type FlagQueue struct {
	ch      chan FlagJob
	dropped atomic.Int64
}

// NewFlagQueue allocates a queue with the given capacity.
func NewFlagQueue(capacity int) *FlagQueue {
	return &FlagQueue{ch: make(chan FlagJob, capacity)}
}

// Push enqueues job, dropping the oldest queued item to make room if full.
func (q *FlagQueue) Push(job FlagJob) {
	for {
		select {
		case q.ch <- job:
			return
		default:
			select {
			case <-q.ch:
				q.dropped.Add(1)
			default:
			}
		}
	}
}

// C exposes the consumer side for the worker loop.
func (q *FlagQueue) C() <-chan FlagJob { return q.ch }

// Dropped returns the number of items evicted by overflow.
func (q *FlagQueue) Dropped() int64 { return q.dropped.Load() }

// SegmentQueue is the segment-kind analog of FlagQueue.
type SegmentQueue struct {
	ch      chan SegmentJob
	dropped atomic.Int64
}

// NewSegmentQueue allocates a queue with the given capacity.
func NewSegmentQueue(capacity int) *SegmentQueue {
	return &SegmentQueue{ch: make(chan SegmentJob, capacity)}
}

// Push enqueues job, dropping the oldest queued item to make room if full.
func (q *SegmentQueue) Push(job SegmentJob) {
	for {
		select {
		case q.ch <- job:
			return
		default:
			select {
			case <-q.ch:
				q.dropped.Add(1)
			default:
			}
		}
	}
}

// C exposes the consumer side for the worker loop.
func (q *SegmentQueue) C() <-chan SegmentJob { return q.ch }

// Dropped returns the number of items evicted by overflow.
func (q *SegmentQueue) Dropped() int64 { return q.dropped.Load() }
