package telemetry

import (
	"context"
	"sync"
	"time"
)

// StatsShipper sends a built StatsPayload to the control plane.
type StatsShipper func(ctx context.Context, payload StatsPayload) error

// SnapshotShipper sends the one-shot init ConfigSnapshot to the control plane.
type SnapshotShipper func(ctx context.Context, snapshot ConfigSnapshot) error

// StatsTask periodically builds and ships a stats payload, the same
// ticker/stop-channel/sync.Once shape used by the recorder package's Flusher.
type StatsTask struct {
	telemetry *Telemetry
	interval  time.Duration
	ship      StatsShipper
	now       func() int64

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewStatsTask builds a periodic stats shipment task. now supplies the
// current unix-millis timestamp for session-length accounting.
func NewStatsTask(t *Telemetry, interval time.Duration, ship StatsShipper, now func() int64) *StatsTask {
	return &StatsTask{telemetry: t, interval: interval, ship: ship, now: now, stopCh: make(chan struct{})}
}

// Start launches the ticker goroutine.
func (s *StatsTask) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.loop(ctx)
}

func (s *StatsTask) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.shipOnce(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *StatsTask) shipOnce(ctx context.Context) {
	payload := s.telemetry.BuildStatsPayload(s.now())
	_ = s.ship(ctx, payload)
}

// Flush ships whatever is queued right now, for shutdown-time final flush.
func (s *StatsTask) Flush(ctx context.Context) {
	s.shipOnce(ctx)
}

// Stop halts the ticker goroutine. Idempotent.
func (s *StatsTask) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// ShipSnapshot ships the one-shot config snapshot at ready time. It is not a
// recurring task: the caller invokes it exactly once after SyncAll succeeds.
func ShipSnapshot(ctx context.Context, snapshot ConfigSnapshot, ship SnapshotShipper) error {
	return ship(ctx, snapshot)
}
