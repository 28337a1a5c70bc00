// Package synchronizer drives the periodic and on-demand fetch loops that
// keep local storage current with the control plane: a full bootstrap sync,
// per-entity polling, and the "apply this update without a round trip"
// shortcut the push manager uses for SPLIT_UPDATE events carrying an
// embedded definition.
package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/99souls/flagengine/internal/api"
	"github.com/99souls/flagengine/internal/dto"
	"github.com/99souls/flagengine/internal/telemetry"
)

// Endpoint names used for the per-endpoint HTTP-error/last-sync counters,
// matching the telemetry package's http_latency_microseconds labels.
const (
	endpointSplitChanges   = "splitChanges"
	endpointSegmentChanges = "segmentChanges"
)

// FlagFetcher is the subset of the REST port the synchronizer needs for flags.
type FlagFetcher interface {
	FetchSplitChanges(ctx context.Context, since int64) (*dto.SplitChangesResult, error)
}

// SegmentFetcher is the subset of the REST port the synchronizer needs for segments.
type SegmentFetcher interface {
	FetchSegmentChanges(ctx context.Context, name string, since int64) (*dto.SegmentDiff, error)
}

// FlagStore is the slice of internal/storage.FlagStore the synchronizer writes to.
type FlagStore interface {
	Put(f *dto.FeatureFlag)
	Remove(name string)
	ChangeNumber() int64
	SetChangeNumber(n int64)
	SegmentNamesInUse() map[string]struct{}
}

// SegmentStore is the slice of internal/storage.SegmentStore the synchronizer writes to.
type SegmentStore interface {
	Update(name string, added, removed []string, till int64)
	ChangeNumber(name string) int64
	EnsureKnown(name string)
}

// Config controls retry/backoff behavior. Zero values fall back to the
// documented defaults.
type Config struct {
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
}

func (c Config) withDefaults() Config {
	if c.RetryMaxAttempts <= 0 {
		c.RetryMaxAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 100 * time.Millisecond
	}
	return c
}

// Synchronizer owns the fetch-and-apply loops for flags and segments.
type Synchronizer struct {
	flagFetcher    FlagFetcher
	segmentFetcher SegmentFetcher
	flags          FlagStore
	segments       SegmentStore
	cfg            Config
	sleep          func(time.Duration)
	counters       *telemetry.Counters
}

// New builds a Synchronizer. flagFetcher/segmentFetcher/flags/segments must
// be non-nil. counters may be nil, in which case per-endpoint HTTP-error and
// last-sync tracking is simply skipped.
func New(flagFetcher FlagFetcher, segmentFetcher SegmentFetcher, flags FlagStore, segments SegmentStore, cfg Config, counters *telemetry.Counters) *Synchronizer {
	return &Synchronizer{
		flagFetcher:    flagFetcher,
		segmentFetcher: segmentFetcher,
		flags:          flags,
		segments:       segments,
		cfg:            cfg.withDefaults(),
		sleep:          time.Sleep,
		counters:       counters,
	}
}

// reportSuccess records a successful fetch's timestamp against endpoint.
func (s *Synchronizer) reportSuccess(endpoint string) {
	if s.counters == nil {
		return
	}
	s.counters.SetLastSync(endpoint, time.Now().UnixMilli())
}

// reportFailure records err's status code against endpoint, when err wraps
// an *api.StatusError.
func (s *Synchronizer) reportFailure(endpoint string, err error) {
	if s.counters == nil {
		return
	}
	var statusErr *api.StatusError
	if errors.As(err, &statusErr) {
		s.counters.IncHTTPError(endpoint, statusErr.StatusCode)
	}
}

// SyncAll performs the startup bootstrap: flags to quiescence, then every
// segment referenced by an active flag to quiescence. It runs sequentially
// and gates the manager's readiness signal.
func (s *Synchronizer) SyncAll(ctx context.Context) error {
	if err := s.SynchronizeFlags(ctx, nil); err != nil {
		return fmt.Errorf("synchronizer: initial flag sync: %w", err)
	}

	for name := range s.flags.SegmentNamesInUse() {
		if err := s.SynchronizeSegment(ctx, name, nil); err != nil {
			return fmt.Errorf("synchronizer: initial segment sync %q: %w", name, err)
		}
	}
	return nil
}

// SynchronizeFlags fetches and applies flag diffs until the local change
// number catches up to till (or to the backend's own since==till quiescence
// point when till is nil).
func (s *Synchronizer) SynchronizeFlags(ctx context.Context, till *int64) error {
	if till != nil && *till < s.flags.ChangeNumber() {
		return nil
	}

	attempt := 0
	for {
		cn := s.flags.ChangeNumber()
		result, err := s.flagFetcher.FetchSplitChanges(ctx, cn)
		if err != nil {
			s.reportFailure(endpointSplitChanges, err)
			return fmt.Errorf("synchronizer: fetching split changes: %w", err)
		}
		s.reportSuccess(endpointSplitChanges)

		for i := range result.Splits {
			f := result.Splits[i]
			if f.Status == dto.StatusArchived {
				s.flags.Remove(f.Name)
			} else {
				s.flags.Put(&f)
			}
		}
		s.flags.SetChangeNumber(result.Till)

		if result.Till == result.Since {
			return nil
		}
		if till != nil && result.Till >= *till {
			return nil
		}

		if till != nil && result.Till < *till {
			attempt++
			if attempt >= s.cfg.RetryMaxAttempts {
				return nil
			}
			s.sleep(s.cfg.RetryBaseDelay)
		}
	}
}

// SynchronizeSegment is the per-segment analog of SynchronizeFlags.
func (s *Synchronizer) SynchronizeSegment(ctx context.Context, name string, till *int64) error {
	s.segments.EnsureKnown(name)

	if till != nil && *till < s.segments.ChangeNumber(name) {
		return nil
	}

	attempt := 0
	for {
		cn := s.segments.ChangeNumber(name)
		diff, err := s.segmentFetcher.FetchSegmentChanges(ctx, name, cn)
		if err != nil {
			s.reportFailure(endpointSegmentChanges, err)
			return fmt.Errorf("synchronizer: fetching segment changes for %q: %w", name, err)
		}
		s.reportSuccess(endpointSegmentChanges)

		s.segments.Update(name, diff.Added, diff.Removed, diff.Till)

		if diff.Till == diff.Since {
			return nil
		}
		if till != nil && diff.Till >= *till {
			return nil
		}

		if till != nil && diff.Till < *till {
			attempt++
			if attempt >= s.cfg.RetryMaxAttempts {
				return nil
			}
			s.sleep(s.cfg.RetryBaseDelay)
		}
	}
}

// ApplyInstantUpdate installs a flag definition pushed inline on a
// SPLIT_UPDATE event without a round trip, provided the event's
// previousChangeNumber matches the current local cursor exactly. Otherwise
// it falls back to a bounded SynchronizeFlags fetch up to the event's
// changeNumber.
func (s *Synchronizer) ApplyInstantUpdate(ctx context.Context, def dto.FeatureFlag, previousChangeNumber int64) error {
	if previousChangeNumber == s.flags.ChangeNumber() {
		if def.Status == dto.StatusArchived {
			s.flags.Remove(def.Name)
		} else {
			s.flags.Put(&def)
		}
		s.flags.SetChangeNumber(def.ChangeNumber)
		return nil
	}
	till := def.ChangeNumber
	return s.SynchronizeFlags(ctx, &till)
}
