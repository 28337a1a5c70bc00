package recorder

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/99souls/flagengine/internal/api"
	"github.com/99souls/flagengine/internal/telemetry"
)

// Shipper sends one drained batch to the control plane. A non-nil error is
// treated as transient unless it wraps an *api.StatusError for a 4xx status
// other than 408/429, in which case the pipeline is permanent-failed: see
// Flusher.flushOnce.
type Shipper[T any] func(ctx context.Context, batch []T) error

// Flusher periodically drains a bounded source and ships it, the same
// ticker/stop-channel/sync.Once shutdown shape as the teacher's rate
// limiter eviction loop. A permanent transport failure (4xx other than
// 408/429) halts the loop rather than retrying forever, leaving whatever
// state was already synced in place.
type Flusher[T any] struct {
	interval time.Duration
	bulkSize int
	endpoint string

	drain    func(n int) []T
	requeue  func([]T)
	ship     Shipper[T]
	counters *telemetry.Counters

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewFlusher builds a Flusher. drain and ship must be non-nil; requeue may
// be nil if a failed batch should simply be discarded. endpoint labels the
// HTTP-error counter on permanent failure; counters may be nil.
func NewFlusher[T any](interval time.Duration, bulkSize int, endpoint string, drain func(int) []T, requeue func([]T), ship Shipper[T], counters *telemetry.Counters) *Flusher[T] {
	return &Flusher[T]{
		interval: interval,
		bulkSize: bulkSize,
		endpoint: endpoint,
		drain:    drain,
		requeue:  requeue,
		ship:     ship,
		counters: counters,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the ticker goroutine.
func (f *Flusher[T]) Start(ctx context.Context) {
	f.wg.Add(1)
	go f.loop(ctx)
}

func (f *Flusher[T]) loop(ctx context.Context) {
	defer f.wg.Done()
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if f.flushOnce(ctx) {
				// Permanent transport failure: stop this pipeline rather than
				// retry every tick forever. Already-synced flag/segment state
				// keeps serving; only this batch kind stops shipping.
				return
			}
		case <-f.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// flushOnce drains and ships one batch. It returns true when the batch
// failed with a permanent transport error (a 4xx status other than 408/429),
// signaling the caller to stop the pipeline instead of retrying.
func (f *Flusher[T]) flushOnce(ctx context.Context) bool {
	batch := f.drain(f.bulkSize)
	if len(batch) == 0 {
		return false
	}
	err := f.ship(ctx, batch)
	if err == nil {
		return false
	}
	if permanent, status := classifyShipFailure(err); permanent {
		if f.counters != nil {
			f.counters.IncHTTPError(f.endpoint, status)
		}
		return true
	}
	if f.requeue != nil {
		f.requeue(batch)
	}
	return false
}

// classifyShipFailure reports whether err represents a permanent transport
// failure: an *api.StatusError for a 4xx status other than 408 (timeout) or
// 429 (rate limit), both of which are still worth retrying.
func classifyShipFailure(err error) (permanent bool, status int) {
	var statusErr *api.StatusError
	if !errors.As(err, &statusErr) {
		return false, 0
	}
	status = statusErr.StatusCode
	if status < 400 || status >= 500 {
		return false, status
	}
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests {
		return false, status
	}
	return true, status
}

// Flush drains and ships whatever is queued right now, ignoring the ticker
// and the permanent-failure halt — used for the manager's final
// flush-with-deadline at shutdown, which only gets one attempt regardless.
func (f *Flusher[T]) Flush(ctx context.Context) {
	f.flushOnce(ctx)
}

// Stop halts the ticker goroutine. Idempotent; safe to call more than once.
func (f *Flusher[T]) Stop() {
	f.stopOnce.Do(func() { close(f.stopCh) })
	f.wg.Wait()
}
