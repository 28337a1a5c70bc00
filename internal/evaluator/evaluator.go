// Package evaluator walks a feature flag's condition chain against a
// matching key, bucketing key, and attribute set, and returns the treatment
// the caller should receive. It never panics across its exported boundary:
// every per-flag failure is recovered and downgraded to CONTROL, mirroring
// the per-task error containment in the teacher's pipeline workers.
package evaluator

import (
	"github.com/99souls/flagengine/internal/dto"
	"github.com/99souls/flagengine/internal/hashing"
)

// Labels returned alongside a treatment, matching the vocabulary a caller's
// logs and telemetry dashboards key off of.
const (
	LabelDefinitionNotFound = "definition not found"
	LabelKilled             = "killed"
	LabelNotInSplit         = "not in split"
	LabelDefaultRule        = "default rule"
	LabelException          = "exception"
	LabelDepthExceeded      = "rule based segment depth exceeded"
)

// maxDependencyDepth bounds DEPENDENCY-matcher recursion; a flag graph that
// would exceed it is evaluated as CONTROL instead of walked further.
const maxDependencyDepth = 5

// Result is what a single flag evaluation produces.
type Result struct {
	Treatment      string
	Label          string
	ChangeNumber   int64
	Configuration  string
	HasConfig      bool
}

func controlResult(label string) Result {
	return Result{Treatment: hashing.ControlTreatment, Label: label}
}

// Evaluator resolves flags against injected flag/segment providers. It holds
// no mutable state of its own, so one instance is safe to share across
// goroutines and to reuse across the process lifetime.
type Evaluator struct {
	flags    FlagProvider
	segments SegmentProvider
}

// New builds an Evaluator reading from the given flag and segment providers.
func New(flags FlagProvider, segments SegmentProvider) *Evaluator {
	return &Evaluator{flags: flags, segments: segments}
}

// Evaluate resolves a single flag for the given keys and attributes.
func (e *Evaluator) Evaluate(matchingKey, bucketingKey, flagName string, attributes map[string]interface{}) (result Result) {
	if bucketingKey == "" {
		bucketingKey = matchingKey
	}
	defer func() {
		if r := recover(); r != nil {
			result = controlResult(LabelException)
		}
	}()
	return e.evaluate(matchingKey, bucketingKey, flagName, attributes, 0)
}

// EvaluateMany resolves a batch of flags for the same keys/attributes,
// recovering each flag's evaluation independently so one failing flag never
// prevents the others in the batch from returning a result.
func (e *Evaluator) EvaluateMany(matchingKey, bucketingKey string, flagNames []string, attributes map[string]interface{}) map[string]Result {
	if bucketingKey == "" {
		bucketingKey = matchingKey
	}
	out := make(map[string]Result, len(flagNames))
	for _, name := range flagNames {
		out[name] = e.Evaluate(matchingKey, bucketingKey, name, attributes)
	}
	return out
}

func (e *Evaluator) evaluate(matchingKey, bucketingKey, flagName string, attributes map[string]interface{}, depth int) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = controlResult(LabelException)
		}
	}()

	if depth > maxDependencyDepth {
		return controlResult(LabelDepthExceeded)
	}

	f, ok := e.flags.Get(flagName)
	if !ok {
		return controlResult(LabelDefinitionNotFound)
	}

	cfg, hasCfg := flagConfiguration(f)

	if f.Killed {
		return Result{
			Treatment:     f.DefaultTreatment,
			Label:         LabelKilled,
			ChangeNumber:  f.ChangeNumber,
			Configuration: cfg,
			HasConfig:     hasCfg,
		}
	}

	mc := matchContext{
		matchingKey:  matchingKey,
		bucketingKey: bucketingKey,
		attributes:   attributes,
		segments:     e.segments,
		depth:        depth,
		evalDep: func(name string, nextDepth int) Result {
			return e.evaluate(matchingKey, bucketingKey, name, attributes, nextDepth)
		},
	}

	algo := hashing.Algo(f.Algo)

	for _, cond := range f.Conditions {
		if !matchCombining(cond.Matcher, mc) {
			continue
		}

		if cond.ConditionType == dto.ConditionRollout && f.TrafficAllocation < 100 {
			allocBucket := hashing.Bucket(bucketingKey, f.TrafficAllocationSeed, algo)
			if allocBucket > f.TrafficAllocation {
				return Result{
					Treatment:     f.DefaultTreatment,
					Label:         LabelNotInSplit,
					ChangeNumber:  f.ChangeNumber,
					Configuration: cfg,
					HasConfig:     hasCfg,
				}
			}
		}

		treatment := hashing.Treatment(bucketingKey, f.Seed, cond.Partitions, algo)
		return Result{
			Treatment:     treatment,
			Label:         cond.Label,
			ChangeNumber:  f.ChangeNumber,
			Configuration: treatmentConfiguration(f, treatment),
			HasConfig:     hasTreatmentConfiguration(f, treatment),
		}
	}

	return Result{
		Treatment:     f.DefaultTreatment,
		Label:         LabelDefaultRule,
		ChangeNumber:  f.ChangeNumber,
		Configuration: treatmentConfiguration(f, f.DefaultTreatment),
		HasConfig:     hasTreatmentConfiguration(f, f.DefaultTreatment),
	}
}

func flagConfiguration(f *dto.FeatureFlag) (string, bool) {
	return treatmentConfiguration(f, f.DefaultTreatment), hasTreatmentConfiguration(f, f.DefaultTreatment)
}

func treatmentConfiguration(f *dto.FeatureFlag, treatment string) string {
	return f.Configurations[treatment]
}

func hasTreatmentConfiguration(f *dto.FeatureFlag, treatment string) bool {
	_, ok := f.Configurations[treatment]
	return ok
}
