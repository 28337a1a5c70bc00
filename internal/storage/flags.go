// Package storage holds the in-memory flag and segment stores. Both follow a
// reader-writer discipline: a sync.RWMutex guards a name-indexed map, and every
// write publishes a fresh *entity value rather than mutating one in place, so a
// reader that already holds a pointer keeps seeing a consistent snapshot even
// while a writer is in flight (copy-on-write per entity, mirroring the locked
// LRU map in the teacher's resource manager).
package storage

import (
	"sync"
	"sync/atomic"

	"github.com/99souls/flagengine/internal/dto"
)

// FlagStore holds FeatureFlag definitions indexed by name, plus the
// process-wide change number cursor for the whole collection.
type FlagStore struct {
	mu           sync.RWMutex
	flags        map[string]*dto.FeatureFlag
	changeNumber atomic.Int64
}

// NewFlagStore returns an empty store with changeNumber defaulted to -1, as
// required by the synchronizer's "no sync yet" sentinel.
func NewFlagStore() *FlagStore {
	s := &FlagStore{flags: make(map[string]*dto.FeatureFlag)}
	s.changeNumber.Store(-1)
	return s
}

// Get returns the current definition for name, or false if unknown or archived.
func (s *FlagStore) Get(name string) (*dto.FeatureFlag, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.flags[name]
	return f, ok
}

// GetAll returns a snapshot map of every active flag, safe to range over
// without holding the store's lock.
func (s *FlagStore) GetAll() map[string]*dto.FeatureFlag {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*dto.FeatureFlag, len(s.flags))
	for k, v := range s.flags {
		out[k] = v
	}
	return out
}

// Put installs (or replaces) a flag definition. Archived flags are removed
// instead of stored, matching the synchronizer's apply-diff loop.
func (s *FlagStore) Put(f *dto.FeatureFlag) {
	if f == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.Status == dto.StatusArchived {
		delete(s.flags, f.Name)
		return
	}
	s.flags[f.Name] = f
}

// Remove deletes a flag by name; a no-op if it is not present.
func (s *FlagStore) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flags, name)
}

// Kill marks a flag killed in place (copy-on-write: a new *FeatureFlag value is
// published) without waiting for the next full fetch, per the SPLIT_KILL event.
func (s *FlagStore) Kill(name, defaultTreatment string, changeNumber int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.flags[name]
	if !ok {
		return
	}
	next := *cur
	next.Killed = true
	next.DefaultTreatment = defaultTreatment
	next.ChangeNumber = changeNumber
	s.flags[name] = &next
}

// ChangeNumber returns the collection-wide cursor (monotone non-decreasing).
func (s *FlagStore) ChangeNumber() int64 { return s.changeNumber.Load() }

// SetChangeNumber advances the cursor. Callers are responsible for only ever
// calling this with non-decreasing values; the store does not clamp.
func (s *FlagStore) SetChangeNumber(n int64) { s.changeNumber.Store(n) }

// NamesByTrafficType counts active flags for a given traffic type, used by the
// client facade to validate track() calls against known traffic types.
func (s *FlagStore) NamesByTrafficType(trafficType string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, f := range s.flags {
		if f.TrafficTypeName == trafficType {
			n++
		}
	}
	return n
}

// SegmentNamesInUse returns the set of segment names referenced, transitively
// through IN_SEGMENT matchers, by every currently active flag.
func (s *FlagStore) SegmentNamesInUse() map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make(map[string]struct{})
	for _, f := range s.flags {
		for _, c := range f.Conditions {
			for _, m := range c.Matcher.Matchers {
				if m.Type == dto.MatcherInSegment && m.SegmentName != "" {
					names[m.SegmentName] = struct{}{}
				}
			}
		}
	}
	return names
}
