package push

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/99souls/flagengine/internal/api"
	"github.com/99souls/flagengine/internal/dto"
	"github.com/99souls/flagengine/internal/streaming"
	"github.com/99souls/flagengine/internal/telemetry"
)

// Authenticator is the push manager's view of the REST auth endpoint.
type Authenticator interface {
	Authenticate(ctx context.Context) (dto.Token, error)
}

// FlagStore is the slice of internal/storage.FlagStore the manager writes
// to directly, for the immediate SPLIT_KILL effect (the rest of the
// update flows through FlagApplier via the queue/worker).
type FlagStore interface {
	Kill(name, defaultTreatment string, changeNumber int64)
}

// Manager owns the authenticate → connect → decode → dispatch lifecycle for
// the streaming connection. One Manager per client instance.
type Manager struct {
	auth         Authenticator
	stream       streaming.StreamClient
	flags        FlagStore
	flagQueue    *FlagQueue
	segmentQueue *SegmentQueue
	counters     *telemetry.Counters

	statusCh chan ExternalStatus
	state    atomic.Value // State
}

// NewManager wires a Manager from its collaborators. statusBuffer sizes the
// external-status channel; a small buffer (e.g. 8) is enough since only the
// status supervisor reads it and only distinct transitions matter. counters
// may be nil, in which case auth-rejection/token-refresh events are simply
// not tallied.
func NewManager(auth Authenticator, stream streaming.StreamClient, flags FlagStore, flagQueue *FlagQueue, segmentQueue *SegmentQueue, statusBuffer int, counters *telemetry.Counters) *Manager {
	if statusBuffer <= 0 {
		statusBuffer = 8
	}
	return &Manager{
		auth:         auth,
		stream:       stream,
		flags:        flags,
		flagQueue:    flagQueue,
		segmentQueue: segmentQueue,
		counters:     counters,
		statusCh:     make(chan ExternalStatus, statusBuffer),
	}
}

// Status returns the read side of the external status channel for the
// status supervisor to consume.
func (m *Manager) Status() <-chan ExternalStatus { return m.statusCh }

// State returns the manager's current position in the connection state
// machine. StateIdle is reported before Run's first authentication attempt.
func (m *Manager) State() State {
	v, _ := m.state.Load().(State)
	if v == "" {
		return StateIdle
	}
	return v
}

func (m *Manager) setState(s State) { m.state.Store(s) }

func (m *Manager) recordAuthRejection(err error) {
	if m.counters == nil {
		return
	}
	var statusErr *api.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 {
		m.counters.IncAuthRejections()
	}
}

func (m *Manager) publish(s ExternalStatus) {
	select {
	case m.statusCh <- s:
	default:
		// Supervisor is slow/absent; the latest status matters more than an
		// old one sitting in a full buffer, so make room and retry once.
		select {
		case <-m.statusCh:
		default:
		}
		select {
		case m.statusCh <- s:
		default:
		}
	}
}

// Run drives the connection lifecycle until ctx is canceled. It reconnects
// on transport failure with exponential backoff and gives up (reporting
// PUSH_NONRETRYABLE_ERROR) after too many consecutive failures, or at once
// when authentication is rejected with a 4xx status.
func (m *Manager) Run(ctx context.Context) {
	defer m.setState(StateStopped)
	consecutiveFailures := 0
	bo := newReconnectBackoff()

	for {
		if ctx.Err() != nil {
			return
		}

		m.setState(StateConnecting)
		token, err := m.auth.Authenticate(ctx)
		if err != nil {
			m.recordAuthRejection(err)
			m.setState(StateDisconnected)
			var statusErr *api.StatusError
			if errors.As(err, &statusErr) && statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 {
				m.publish(StatusNonretryableError)
				return
			}
			consecutiveFailures++
			m.publish(StatusRetryableError)
			if consecutiveFailures >= maxConsecutiveFailures {
				m.publish(StatusNonretryableError)
				return
			}
			if !sleepCtx(ctx, bo.NextBackOff()) {
				return
			}
			continue
		}
		if !token.PushEnabled {
			m.setState(StateDisconnected)
			m.publish(StatusNonretryableError)
			return
		}

		if m.runConnection(ctx, token) {
			// Clean disconnect triggered by token refresh or a resumable
			// CONTROL message: reconnect immediately without penalizing backoff.
			m.setState(StateDisconnected)
			consecutiveFailures = 0
			bo = newReconnectBackoff()
			continue
		}

		m.setState(StateDisconnected)
		consecutiveFailures++
		m.publish(StatusRetryableError)
		if consecutiveFailures >= maxConsecutiveFailures {
			m.publish(StatusNonretryableError)
			return
		}
		if !sleepCtx(ctx, bo.NextBackOff()) {
			return
		}
	}
}

// runConnection manages a single streaming connection's lifetime. It
// returns true for a clean/expected disconnect (reconnect immediately, no
// backoff) and false for a transport failure (caller applies backoff).
func (m *Manager) runConnection(ctx context.Context, token dto.Token) bool {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, errs, err := m.stream.Connect(connCtx, token.Channels, token.RawToken)
	if err != nil {
		return false
	}

	occupancy := newOccupancyTracker(primaryChannel(token.Channels))
	m.setState(StateConnected)
	m.publish(StatusSubsystemUp)

	refreshDelay := time.Until(token.ExpirationTime) - 10*time.Minute
	if refreshDelay < time.Second {
		refreshDelay = time.Second
	}
	refreshTimer := time.NewTimer(refreshDelay)
	defer refreshTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return true
		case <-refreshTimer.C:
			if m.counters != nil {
				m.counters.IncTokenRefreshes()
			}
			return true
		case err, ok := <-errs:
			if ok && err != nil {
				return false
			}
		case raw, ok := <-events:
			if !ok {
				return false
			}
			m.handleEvent(ctx, raw, occupancy)
		}
	}
}

func primaryChannel(channels []string) string {
	for _, c := range channels {
		if strings.HasSuffix(c, "_splits") {
			return c
		}
	}
	if len(channels) > 0 {
		return channels[0]
	}
	return ""
}

func (m *Manager) handleEvent(ctx context.Context, raw streaming.RawEvent, occupancy *occupancyTracker) {
	env, err := streaming.DecodeEnvelope(raw)
	if err != nil {
		return
	}

	switch env.Type {
	case streaming.EventSplitUpdate:
		m.handleSplitUpdate(env)

	case streaming.EventSplitKill:
		m.flags.Kill(env.SplitName, env.DefaultTreatment, env.ChangeNumber)
		m.flagQueue.Push(FlagJob{FetchOnly: true, ChangeNumber: env.ChangeNumber})

	case streaming.EventSegmentUpdate:
		m.segmentQueue.Push(SegmentJob{Name: env.SegmentName, ChangeNumber: env.ChangeNumber})

	case streaming.EventControl:
		switch env.ControlType {
		case streaming.ControlStreamingPaused:
			m.publish(StatusSubsystemDown)
		case streaming.ControlStreamingResumed:
			m.publish(StatusSubsystemUp)
		case streaming.ControlStreamingDisabled:
			m.publish(StatusNonretryableError)
		}

	case streaming.EventOccupancy:
		if occupancy.Update(raw.Event, env.PublishersCount) {
			m.publish(StatusSubsystemDown)
		} else {
			m.publish(StatusSubsystemUp)
		}
	}
}

func (m *Manager) handleSplitUpdate(env streaming.Envelope) {
	if env.Definition == "" {
		m.flagQueue.Push(FlagJob{FetchOnly: true, ChangeNumber: env.ChangeNumber})
		return
	}

	raw, err := streaming.DecodeDefinition(env.Compression, env.Definition)
	if err != nil {
		m.flagQueue.Push(FlagJob{FetchOnly: true, ChangeNumber: env.ChangeNumber})
		return
	}

	var flag dto.FeatureFlag
	if err := json.Unmarshal(raw, &flag); err != nil {
		m.flagQueue.Push(FlagJob{FetchOnly: true, ChangeNumber: env.ChangeNumber})
		return
	}

	m.flagQueue.Push(FlagJob{
		Definition:           &flag,
		PreviousChangeNumber: env.PreviousChangeNumber,
		ChangeNumber:         env.ChangeNumber,
	})
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
