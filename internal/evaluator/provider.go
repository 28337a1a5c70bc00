package evaluator

import "github.com/99souls/flagengine/internal/dto"

// FlagProvider is the read-only slice of storage the Evaluator needs. Storage
// satisfies this directly; tests can supply a map-backed fake.
type FlagProvider interface {
	Get(name string) (*dto.FeatureFlag, bool)
}

// SegmentProvider answers membership queries for IN_SEGMENT matchers.
type SegmentProvider interface {
	Contains(name, key string) bool
}
