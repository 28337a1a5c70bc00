package evaluator

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/99souls/flagengine/internal/dto"
)

// matchContext bundles everything a single matcher evaluation needs: the
// caller-supplied keys/attributes plus the segment provider and the
// dependency resolver (a closure back into the Evaluator, depth-bounded).
type matchContext struct {
	matchingKey  string
	bucketingKey string
	attributes   map[string]interface{}
	segments     SegmentProvider
	evalDep      func(flagName string, depth int) Result
	depth        int
}

// matchCombining applies a CombiningMatcher's AND/OR semantics across its
// member matchers, short-circuiting on the first decisive result.
func matchCombining(cm dto.CombiningMatcher, mc matchContext) bool {
	if len(cm.Matchers) == 0 {
		return true
	}
	if cm.Combiner == dto.CombinerOr {
		for _, m := range cm.Matchers {
			if matchOne(m, mc) {
				return true
			}
		}
		return false
	}
	// Default to AND semantics, matching the matcher-group's documented default.
	for _, m := range cm.Matchers {
		if !matchOne(m, mc) {
			return false
		}
	}
	return true
}

// matchOne dispatches a single tagged-variant matcher. A negate flag inverts
// whatever the underlying test decides.
func matchOne(m dto.Matcher, mc matchContext) bool {
	result := evalMatcher(m, mc)
	if m.Negate {
		return !result
	}
	return result
}

func attributeValue(m dto.Matcher, mc matchContext) (interface{}, bool) {
	if m.Attribute == "" {
		return mc.matchingKey, true
	}
	v, ok := mc.attributes[m.Attribute]
	return v, ok
}

func evalMatcher(m dto.Matcher, mc matchContext) bool {
	switch m.Type {
	case dto.MatcherAllKeys:
		return true

	case dto.MatcherInSegment:
		return mc.segments != nil && mc.segments.Contains(m.SegmentName, mc.matchingKey)

	case dto.MatcherWhitelist, dto.MatcherInSet:
		v, ok := attributeValue(m, mc)
		if !ok {
			return false
		}
		s, ok := v.(string)
		if !ok {
			return false
		}
		return containsString(m.Strings, s)

	case dto.MatcherEqualTo:
		n, ok := attributeNumber(m, mc)
		return ok && n == m.Value

	case dto.MatcherGreaterThanOrEqual:
		n, ok := attributeNumber(m, mc)
		return ok && n >= m.Value

	case dto.MatcherLessThanOrEqual:
		n, ok := attributeNumber(m, mc)
		return ok && n <= m.Value

	case dto.MatcherBetween:
		n, ok := attributeNumber(m, mc)
		return ok && n >= m.LowValue && n <= m.HighValue

	case dto.MatcherStartsWith:
		v, ok := attributeString(m, mc)
		if !ok {
			return false
		}
		for _, s := range m.Strings {
			if strings.HasPrefix(v, s) {
				return true
			}
		}
		return false

	case dto.MatcherEndsWith:
		v, ok := attributeString(m, mc)
		if !ok {
			return false
		}
		for _, s := range m.Strings {
			if strings.HasSuffix(v, s) {
				return true
			}
		}
		return false

	case dto.MatcherContains:
		v, ok := attributeString(m, mc)
		if !ok {
			return false
		}
		for _, s := range m.Strings {
			if strings.Contains(v, s) {
				return true
			}
		}
		return false

	case dto.MatcherMatchesRegex:
		v, ok := attributeString(m, mc)
		if !ok || len(m.Strings) == 0 {
			return false
		}
		re, err := regexp.Compile(m.Strings[0])
		if err != nil {
			return false
		}
		return re.MatchString(v)

	case dto.MatcherContainsAnyOf, dto.MatcherContainsAllOf, dto.MatcherPartOf, dto.MatcherEqualToSet:
		return evalSetMatcher(m, mc)

	case dto.MatcherEqualToBoolean:
		v, ok := attributeValue(m, mc)
		if !ok {
			return false
		}
		b, ok := v.(bool)
		return ok && b == m.BoolValue

	case dto.MatcherDependency:
		result := mc.evalDep(m.DependencyFlag, mc.depth+1)
		return containsString(m.DependencyTreatments, result.Treatment)

	case dto.MatcherInRuleBasedSegment:
		// Rule-based segment definitions are not part of the storage model this
		// SDK carries; treat the matcher as unsupported rather than invent a
		// resolution path, same as an unrecognized matcher variant.
		return false

	default:
		return false
	}
}

func attributeNumber(m dto.Matcher, mc matchContext) (float64, bool) {
	v, ok := attributeValue(m, mc)
	if !ok {
		return 0, false
	}
	if m.Unit == dto.UnitDatetime {
		t, ok := toTime(v)
		if !ok {
			return 0, false
		}
		return float64(t.Unix()), true
	}
	return toFloat64(v)
}

func attributeString(m dto.Matcher, mc matchContext) (string, bool) {
	v, ok := attributeValue(m, mc)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func evalSetMatcher(m dto.Matcher, mc matchContext) bool {
	v, ok := attributeValue(m, mc)
	if !ok {
		return false
	}
	set, ok := toStringSlice(v)
	if !ok {
		return false
	}

	switch m.Type {
	case dto.MatcherContainsAnyOf:
		for _, s := range set {
			if containsString(m.Strings, s) {
				return true
			}
		}
		return false
	case dto.MatcherContainsAllOf:
		for _, want := range m.Strings {
			if !containsString(set, want) {
				return false
			}
		}
		return true
	case dto.MatcherPartOf:
		for _, s := range set {
			if !containsString(m.Strings, s) {
				return false
			}
		}
		return true
	case dto.MatcherEqualToSet:
		if len(set) != len(m.Strings) {
			return false
		}
		for _, s := range set {
			if !containsString(m.Strings, s) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func containsString(set []string, want string) bool {
	for _, s := range set {
		if s == want {
			return true
		}
	}
	return false
}

func toStringSlice(v interface{}) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func toFloat64(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case int64:
		return time.UnixMilli(t), true
	case float64:
		return time.UnixMilli(int64(t)), true
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		return parsed, err == nil
	default:
		return time.Time{}, false
	}
}
