package flagengine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/99souls/flagengine/internal/dto"
	"github.com/99souls/flagengine/internal/evaluator"
	"github.com/99souls/flagengine/internal/localhost"
	"github.com/99souls/flagengine/internal/logging"
	"github.com/99souls/flagengine/internal/push"
	"github.com/99souls/flagengine/internal/recorder"
	"github.com/99souls/flagengine/internal/registry"
	"github.com/99souls/flagengine/internal/storage"
	"github.com/99souls/flagengine/internal/synchronizer"
	"github.com/99souls/flagengine/internal/telemetry"
)

// Manager owns every background subsystem behind a Client: synchronization,
// streaming, recorder flushers, and telemetry shipment. Factory returns it
// alongside the Client; Client.Destroy stops it.
type Manager struct {
	cfg    Config
	apiKey string

	flagStore    *storage.FlagStore
	segmentStore *storage.SegmentStore

	evaluator    *evaluator.Evaluator
	synchronizer *synchronizer.Synchronizer

	impressions *recorder.ImpressionRecorder
	events      *recorder.EventRecorder

	impressionFlusher *recorder.Flusher[dto.Impression]
	countFlusher      *recorder.Flusher[dto.ImpressionCount]
	eventFlusher      *recorder.Flusher[dto.Event]

	telemetry *telemetry.Telemetry
	statsTask *telemetry.StatsTask

	logger logging.Logger

	pushManager  *push.Manager
	flagQueue    *push.FlagQueue
	segmentQueue *push.SegmentQueue

	flagFetcher    *synchronizer.PeriodicFetcher
	segmentFetcher *synchronizer.PeriodicFetcher

	fetchersMu      sync.Mutex
	fetchersRunning bool

	localhostSource *localhost.Source

	ready  atomic.Bool
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stopOnce sync.Once
}

func (m *Manager) syncAllSegments(ctx context.Context) error {
	for name := range m.flagStore.SegmentNamesInUse() {
		if err := m.synchronizer.SynchronizeSegment(ctx, name, nil); err != nil {
			return fmt.Errorf("flagengine: periodic segment sync %q: %w", name, err)
		}
	}
	return nil
}

func (m *Manager) startFetchers(ctx context.Context) {
	m.fetchersMu.Lock()
	defer m.fetchersMu.Unlock()
	if m.fetchersRunning {
		return
	}
	m.fetchersRunning = true
	m.flagFetcher.Start(ctx)
	m.segmentFetcher.Start(ctx)
}

func (m *Manager) stopFetchers() {
	m.fetchersMu.Lock()
	defer m.fetchersMu.Unlock()
	if !m.fetchersRunning {
		return
	}
	m.fetchersRunning = false
	m.flagFetcher.Stop()
	m.segmentFetcher.Stop()
}

// Start performs the initial sync, flips the readiness flag, and launches
// every background task: recorder flushers, telemetry shipment, and either
// the push manager (with polling as its fallback) or plain polling alone.
func (m *Manager) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	if m.cfg.OperationMode == ModeLocalhost {
		m.ready.Store(true)
		m.startLocalhostWatch(runCtx)
		return nil
	}

	if err := m.synchronizer.SyncAll(ctx); err != nil {
		cancel()
		return fmt.Errorf("flagengine: initial sync: %w", err)
	}
	m.ready.Store(true)

	if m.impressionFlusher != nil {
		m.impressionFlusher.Start(runCtx)
	}
	if m.countFlusher != nil {
		m.countFlusher.Start(runCtx)
	}
	if m.eventFlusher != nil {
		m.eventFlusher.Start(runCtx)
	}
	if m.statsTask != nil {
		m.statsTask.Start(runCtx)
	}

	if m.pushManager == nil {
		m.startFetchers(runCtx)
		return nil
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		push.RunFlagWorker(runCtx, m.flagQueue, m.synchronizer, func(err error) {
			m.logger.ErrorCtx(runCtx, "flag worker job failed", "error", err)
		})
	}()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		push.RunSegmentWorker(runCtx, m.segmentQueue, m.synchronizer, func(err error) {
			m.logger.ErrorCtx(runCtx, "segment worker job failed", "error", err)
		})
	}()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.pushManager.Run(runCtx)
	}()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.superviseStatus(runCtx)
	}()

	// Polling runs alongside streaming until the first PUSH_SUBSYSTEM_UP.
	m.startFetchers(runCtx)

	return nil
}

// superviseStatus multiplexes the push manager's external status into
// fallback-polling decisions: streaming up means polling stands down,
// anything else means polling (re)starts.
func (m *Manager) superviseStatus(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case status, ok := <-m.pushManager.Status():
			if !ok {
				return
			}
			switch status {
			case push.StatusSubsystemUp:
				if err := m.synchronizer.SyncAll(ctx); err != nil {
					m.logger.WarnCtx(ctx, "resync after streaming came up failed", "error", err)
					continue
				}
				m.stopFetchers()
			case push.StatusSubsystemDown, push.StatusRetryableError, push.StatusNonretryableError:
				m.startFetchers(ctx)
			}
		}
	}
}

func (m *Manager) startLocalhostWatch(ctx context.Context) {
	m.applyLocalhostSnapshot(m.localhostSource.Current())
	changes, errs := m.localhostSource.Watch(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-changes:
				if !ok {
					return
				}
				m.applyLocalhostSnapshot(snap)
			case err, ok := <-errs:
				if !ok {
					return
				}
				m.logger.WarnCtx(ctx, "localhost file watch error", "error", err)
			}
		}
	}()
}

func (m *Manager) applyLocalhostSnapshot(snap localhost.Snapshot) {
	for i := range snap.Definitions.Flags {
		m.flagStore.Put(&snap.Definitions.Flags[i])
	}
	for i := range snap.Definitions.Segments {
		seg := snap.Definitions.Segments[i]
		m.segmentStore.Update(seg.Name, seg.Keys, nil, seg.ChangeNumber)
	}
}

// Stop signals every background task to halt, in the documented order —
// push first, then fallback polling, then recorders, then telemetry — flushes
// whatever the recorders still have queued within a bounded deadline, and
// unregisters this instance from the process-wide factory registry.
func (m *Manager) Stop(ctx context.Context) error {
	m.stopOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
		}
		m.wg.Wait()
		m.stopFetchers()

		if m.impressionFlusher != nil {
			m.impressionFlusher.Stop()
		}
		if m.countFlusher != nil {
			m.countFlusher.Stop()
		}
		if m.eventFlusher != nil {
			m.eventFlusher.Stop()
		}
		if m.statsTask != nil {
			m.statsTask.Stop()
		}

		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if m.impressionFlusher != nil {
			m.impressionFlusher.Flush(flushCtx)
		}
		if m.countFlusher != nil {
			m.countFlusher.Flush(flushCtx)
		}
		if m.eventFlusher != nil {
			m.eventFlusher.Flush(flushCtx)
		}

		if m.localhostSource != nil {
			_ = m.localhostSource.StopWatching()
		}

		registry.Unregister(m.apiKey)
	})
	return nil
}
