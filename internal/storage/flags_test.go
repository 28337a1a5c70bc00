package storage

import (
	"sync"
	"testing"

	"github.com/99souls/flagengine/internal/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagStorePutGetRemove(t *testing.T) {
	s := NewFlagStore()
	assert.EqualValues(t, -1, s.ChangeNumber())

	s.Put(&dto.FeatureFlag{Name: "feature_a", Status: dto.StatusActive, TrafficTypeName: "user"})
	f, ok := s.Get("feature_a")
	require.True(t, ok)
	assert.Equal(t, "feature_a", f.Name)

	s.Remove("feature_a")
	_, ok = s.Get("feature_a")
	assert.False(t, ok)
}

func TestFlagStorePutArchivedRemoves(t *testing.T) {
	s := NewFlagStore()
	s.Put(&dto.FeatureFlag{Name: "feature_a", Status: dto.StatusActive})
	s.Put(&dto.FeatureFlag{Name: "feature_a", Status: dto.StatusArchived})
	_, ok := s.Get("feature_a")
	assert.False(t, ok)
}

func TestFlagStoreKillDoesNotMutateOldSnapshot(t *testing.T) {
	s := NewFlagStore()
	s.Put(&dto.FeatureFlag{Name: "feature_a", Status: dto.StatusActive, DefaultTreatment: "off"})

	before, _ := s.Get("feature_a")
	require.False(t, before.Killed)

	s.Kill("feature_a", "on", 42)

	after, _ := s.Get("feature_a")
	assert.True(t, after.Killed)
	assert.Equal(t, "on", after.DefaultTreatment)
	assert.EqualValues(t, 42, after.ChangeNumber)

	// The pointer captured before the kill must still observe the old value:
	// Kill copies rather than mutates in place.
	assert.False(t, before.Killed)
}

func TestFlagStoreNamesByTrafficType(t *testing.T) {
	s := NewFlagStore()
	s.Put(&dto.FeatureFlag{Name: "a", Status: dto.StatusActive, TrafficTypeName: "user"})
	s.Put(&dto.FeatureFlag{Name: "b", Status: dto.StatusActive, TrafficTypeName: "user"})
	s.Put(&dto.FeatureFlag{Name: "c", Status: dto.StatusActive, TrafficTypeName: "account"})

	assert.Equal(t, 2, s.NamesByTrafficType("user"))
	assert.Equal(t, 1, s.NamesByTrafficType("account"))
	assert.Equal(t, 0, s.NamesByTrafficType("unknown"))
}

func TestFlagStoreSegmentNamesInUse(t *testing.T) {
	s := NewFlagStore()
	s.Put(&dto.FeatureFlag{
		Name:   "feature_a",
		Status: dto.StatusActive,
		Conditions: []dto.Condition{
			{Matcher: dto.CombiningMatcher{Matchers: []dto.Matcher{
				{Type: dto.MatcherInSegment, SegmentName: "beta_users"},
			}}},
		},
	})

	names := s.SegmentNamesInUse()
	_, ok := names["beta_users"]
	assert.True(t, ok)
}

func TestFlagStoreConcurrentAccess(t *testing.T) {
	s := NewFlagStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			s.Put(&dto.FeatureFlag{Name: "flag", Status: dto.StatusActive})
		}(i)
		go func() {
			defer wg.Done()
			s.Get("flag")
		}()
	}
	wg.Wait()
}
