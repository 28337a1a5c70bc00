package synchronizer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/99souls/flagengine/internal/api"
	"github.com/99souls/flagengine/internal/dto"
	"github.com/99souls/flagengine/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFlagFetcher struct {
	pages []*dto.SplitChangesResult
	calls int
}

func (f *fakeFlagFetcher) FetchSplitChanges(ctx context.Context, since int64) (*dto.SplitChangesResult, error) {
	idx := f.calls
	if idx >= len(f.pages) {
		idx = len(f.pages) - 1
	}
	f.calls++
	return f.pages[idx], nil
}

type fakeSegmentFetcher struct {
	diffs map[string][]*dto.SegmentDiff
	calls map[string]int
}

func (f *fakeSegmentFetcher) FetchSegmentChanges(ctx context.Context, name string, since int64) (*dto.SegmentDiff, error) {
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	idx := f.calls[name]
	pages := f.diffs[name]
	if idx >= len(pages) {
		idx = len(pages) - 1
	}
	f.calls[name]++
	return pages[idx], nil
}

type fakeFlagStore struct {
	flags map[string]*dto.FeatureFlag
	cn    int64
}

func newFakeFlagStore() *fakeFlagStore {
	return &fakeFlagStore{flags: map[string]*dto.FeatureFlag{}, cn: -1}
}
func (s *fakeFlagStore) Put(f *dto.FeatureFlag)  { s.flags[f.Name] = f }
func (s *fakeFlagStore) Remove(name string)      { delete(s.flags, name) }
func (s *fakeFlagStore) ChangeNumber() int64     { return s.cn }
func (s *fakeFlagStore) SetChangeNumber(n int64) { s.cn = n }
func (s *fakeFlagStore) SegmentNamesInUse() map[string]struct{} {
	out := map[string]struct{}{}
	for _, f := range s.flags {
		for _, c := range f.Conditions {
			for _, m := range c.Matcher.Matchers {
				if m.Type == dto.MatcherInSegment {
					out[m.SegmentName] = struct{}{}
				}
			}
		}
	}
	return out
}

type fakeSegmentStore struct {
	cns  map[string]int64
	keys map[string]map[string]bool
}

func newFakeSegmentStore() *fakeSegmentStore {
	return &fakeSegmentStore{cns: map[string]int64{}, keys: map[string]map[string]bool{}}
}
func (s *fakeSegmentStore) EnsureKnown(name string) {
	if _, ok := s.cns[name]; !ok {
		s.cns[name] = -1
		s.keys[name] = map[string]bool{}
	}
}
func (s *fakeSegmentStore) ChangeNumber(name string) int64 { return s.cns[name] }
func (s *fakeSegmentStore) Update(name string, added, removed []string, till int64) {
	s.EnsureKnown(name)
	for _, k := range removed {
		delete(s.keys[name], k)
	}
	for _, k := range added {
		s.keys[name][k] = true
	}
	s.cns[name] = till
}

func TestSynchronizeFlagsSingleIteration(t *testing.T) {
	fetcher := &fakeFlagFetcher{pages: []*dto.SplitChangesResult{
		{Splits: []dto.FeatureFlag{{Name: "demo", Status: dto.StatusActive}}, Since: -1, Till: -1},
	}}
	flags := newFakeFlagStore()
	sync := New(fetcher, &fakeSegmentFetcher{}, flags, newFakeSegmentStore(), Config{}, nil)

	err := sync.SynchronizeFlags(context.Background(), nil)
	require.NoError(t, err)
	assert.EqualValues(t, -1, flags.ChangeNumber())
	assert.Contains(t, flags.flags, "demo")
}

func TestSynchronizeFlagsArchivedRemoves(t *testing.T) {
	fetcher := &fakeFlagFetcher{pages: []*dto.SplitChangesResult{
		{Splits: []dto.FeatureFlag{{Name: "demo", Status: dto.StatusArchived}}, Since: 1, Till: 1},
	}}
	flags := newFakeFlagStore()
	flags.Put(&dto.FeatureFlag{Name: "demo", Status: dto.StatusActive})
	sync := New(fetcher, &fakeSegmentFetcher{}, flags, newFakeSegmentStore(), Config{}, nil)

	require.NoError(t, sync.SynchronizeFlags(context.Background(), nil))
	assert.NotContains(t, flags.flags, "demo")
}

func TestSynchronizeFlagsMultiPageUntilTill(t *testing.T) {
	fetcher := &fakeFlagFetcher{pages: []*dto.SplitChangesResult{
		{Splits: nil, Since: -1, Till: 10},
		{Splits: nil, Since: 10, Till: 20},
	}}
	flags := newFakeFlagStore()
	sync := New(fetcher, &fakeSegmentFetcher{}, flags, newFakeSegmentStore(), Config{RetryBaseDelay: time.Millisecond}, nil)

	till := int64(20)
	require.NoError(t, sync.SynchronizeFlags(context.Background(), &till))
	assert.EqualValues(t, 20, flags.ChangeNumber())
	assert.Equal(t, 2, fetcher.calls)
}

func TestSynchronizeFlagsBoundedRetryOnCDNBypass(t *testing.T) {
	// Every page reports till=5 even though the caller asked for till=100:
	// the synchronizer must give up after RetryMaxAttempts rather than loop forever.
	fetcher := &fakeFlagFetcher{pages: []*dto.SplitChangesResult{
		{Splits: nil, Since: -1, Till: 5},
	}}
	flags := newFakeFlagStore()
	sync := New(fetcher, &fakeSegmentFetcher{}, flags, newFakeSegmentStore(), Config{RetryMaxAttempts: 3, RetryBaseDelay: time.Millisecond}, nil)

	till := int64(100)
	require.NoError(t, sync.SynchronizeFlags(context.Background(), &till))
	assert.LessOrEqual(t, fetcher.calls, 3)
}

func TestSynchronizeSegment(t *testing.T) {
	fetcher := &fakeSegmentFetcher{diffs: map[string][]*dto.SegmentDiff{
		"beta_users": {{Name: "beta_users", Added: []string{"alice"}, Since: -1, Till: -1}},
	}}
	segs := newFakeSegmentStore()
	sync := New(&fakeFlagFetcher{pages: []*dto.SplitChangesResult{{}}}, fetcher, newFakeFlagStore(), segs, Config{}, nil)

	require.NoError(t, sync.SynchronizeSegment(context.Background(), "beta_users", nil))
	assert.True(t, segs.keys["beta_users"]["alice"])
}

func TestApplyInstantUpdateMatchingCursor(t *testing.T) {
	flags := newFakeFlagStore()
	flags.cn = 10
	sync := New(&fakeFlagFetcher{pages: []*dto.SplitChangesResult{{}}}, &fakeSegmentFetcher{}, flags, newFakeSegmentStore(), Config{}, nil)

	def := dto.FeatureFlag{Name: "demo", Status: dto.StatusActive, ChangeNumber: 11}
	require.NoError(t, sync.ApplyInstantUpdate(context.Background(), def, 10))
	assert.Contains(t, flags.flags, "demo")
	assert.EqualValues(t, 11, flags.ChangeNumber())
}

type fakeFailingFlagFetcher struct {
	err error
}

func (f *fakeFailingFlagFetcher) FetchSplitChanges(ctx context.Context, since int64) (*dto.SplitChangesResult, error) {
	return nil, f.err
}

func TestSynchronizeFlagsReportsHTTPErrorToCounters(t *testing.T) {
	counters := telemetry.NewCounters()
	fetcher := &fakeFailingFlagFetcher{err: fmt.Errorf("api: fetching split changes: %w", &api.StatusError{StatusCode: 500, Body: "boom"})}
	flags := newFakeFlagStore()
	sync := New(fetcher, &fakeSegmentFetcher{}, flags, newFakeSegmentStore(), Config{}, counters)

	err := sync.SynchronizeFlags(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, map[string]map[int]int64{"splitChanges": {500: 1}}, counters.HTTPErrorsSnapshot())
}

func TestSynchronizeFlagsReportsLastSyncToCounters(t *testing.T) {
	counters := telemetry.NewCounters()
	fetcher := &fakeFlagFetcher{pages: []*dto.SplitChangesResult{
		{Splits: nil, Since: -1, Till: -1},
	}}
	flags := newFakeFlagStore()
	sync := New(fetcher, &fakeSegmentFetcher{}, flags, newFakeSegmentStore(), Config{}, counters)

	require.NoError(t, sync.SynchronizeFlags(context.Background(), nil))
	assert.Contains(t, counters.LastSyncSnapshot(), "splitChanges")
}

func TestApplyInstantUpdateCursorMismatchFallsBackToFetch(t *testing.T) {
	fetcher := &fakeFlagFetcher{pages: []*dto.SplitChangesResult{
		{Splits: []dto.FeatureFlag{{Name: "demo", Status: dto.StatusActive, ChangeNumber: 11}}, Since: 5, Till: 11},
	}}
	flags := newFakeFlagStore()
	flags.cn = 5
	sync := New(fetcher, &fakeSegmentFetcher{}, flags, newFakeSegmentStore(), Config{}, nil)

	def := dto.FeatureFlag{Name: "demo", Status: dto.StatusActive, ChangeNumber: 11}
	require.NoError(t, sync.ApplyInstantUpdate(context.Background(), def, 999))
	assert.Equal(t, 1, fetcher.calls)
	assert.Contains(t, flags.flags, "demo")
}
