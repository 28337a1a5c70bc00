package telemetry

import "sync"

// StreamingEventRing is a fixed-capacity ring of recent streaming events,
// surfaced in the telemetry snapshot for diagnostics. Capacity is fixed at
// 20, matching the original SDK's streaming-event telemetry.
type StreamingEventRing struct {
	mu    sync.Mutex
	items []StreamingEvent
	cap   int
}

// StreamingEvent is one recorded push-subsystem transition.
type StreamingEvent struct {
	Type      string
	Data      int64
	Timestamp int64
}

// NewStreamingEventRing builds a ring with capacity 20.
func NewStreamingEventRing() *StreamingEventRing {
	return &StreamingEventRing{cap: 20}
}

// Push appends an event, dropping the oldest entry once the ring is full.
func (r *StreamingEventRing) Push(ev StreamingEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, ev)
	if len(r.items) > r.cap {
		r.items = r.items[len(r.items)-r.cap:]
	}
}

// Snapshot returns a copy of the currently retained events, oldest first.
func (r *StreamingEventRing) Snapshot() []StreamingEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StreamingEvent, len(r.items))
	copy(out, r.items)
	return out
}

// Counters holds the telemetry counters the original SDK tracks outside the
// pluggable metrics.Provider: in-process tallies reported in the periodic
// and init-time telemetry payloads.
type Counters struct {
	mu sync.Mutex

	methodExceptions map[string]int64
	httpErrors       map[httpErrorKey]int64
	lastSync         map[string]int64
	authRejections   int64
	tokenRefreshes   int64
}

type httpErrorKey struct {
	endpoint string
	status   int
}

// NewCounters builds an empty Counters set.
func NewCounters() *Counters {
	return &Counters{
		methodExceptions: make(map[string]int64),
		httpErrors:       make(map[httpErrorKey]int64),
		lastSync:         make(map[string]int64),
	}
}

// IncMethodException records a per-flag evaluation exception, keyed by the
// evaluator method name (getTreatment, getTreatments, ...).
func (c *Counters) IncMethodException(method string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.methodExceptions[method]++
}

// IncHTTPError records a non-2xx response from a named endpoint.
func (c *Counters) IncHTTPError(endpoint string, status int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.httpErrors[httpErrorKey{endpoint, status}]++
}

// SetLastSync records the unix-millis timestamp of the last successful sync
// for an endpoint (splits, segments, ...).
func (c *Counters) SetLastSync(endpoint string, unixMillis int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSync[endpoint] = unixMillis
}

// IncAuthRejections records one push-auth rejection.
func (c *Counters) IncAuthRejections() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authRejections++
}

// IncTokenRefreshes records one push-auth token refresh.
func (c *Counters) IncTokenRefreshes() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokenRefreshes++
}

// MethodExceptionsSnapshot returns a copy of per-method exception counts.
func (c *Counters) MethodExceptionsSnapshot() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.methodExceptions))
	for k, v := range c.methodExceptions {
		out[k] = v
	}
	return out
}

// HTTPErrorsSnapshot returns a copy of per-endpoint/status error counts.
func (c *Counters) HTTPErrorsSnapshot() map[string]map[int]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]map[int]int64)
	for k, v := range c.httpErrors {
		if out[k.endpoint] == nil {
			out[k.endpoint] = make(map[int]int64)
		}
		out[k.endpoint][k.status] = v
	}
	return out
}

// LastSyncSnapshot returns a copy of the per-endpoint last-sync timestamps.
func (c *Counters) LastSyncSnapshot() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.lastSync))
	for k, v := range c.lastSync {
		out[k] = v
	}
	return out
}

// AuthRejections returns the total count of push-auth rejections.
func (c *Counters) AuthRejections() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authRejections
}

// TokenRefreshes returns the total count of push-auth token refreshes.
func (c *Counters) TokenRefreshes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokenRefreshes
}
