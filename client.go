package flagengine

import (
	"context"
	"fmt"
	"time"

	"github.com/99souls/flagengine/internal/dto"
	"github.com/99souls/flagengine/internal/evaluator"
)

// Client is the host-application-facing evaluation surface: GetTreatment,
// GetTreatments, Track, Destroy. It never blocks on network I/O — every
// method reads in-memory state and enqueues work for background tasks.
type Client struct {
	manager *Manager
}

func (c *Client) ready() bool { return c.manager.ready.Load() }

func notReadyResult() evaluator.Result {
	return evaluator.Result{Treatment: "control", Label: "not ready"}
}

// GetTreatment resolves a single flag for matchingKey, recording an
// impression as a side effect. Returns CONTROL with label "not ready" before
// the initial sync completes.
func (c *Client) GetTreatment(matchingKey, bucketingKey, flagName string, attributes map[string]interface{}) string {
	return c.evaluateOne("getTreatment", matchingKey, bucketingKey, flagName, attributes).Treatment
}

// GetTreatments resolves a batch of flags for the same keys, recording one
// impression per flag.
func (c *Client) GetTreatments(matchingKey, bucketingKey string, flagNames []string, attributes map[string]interface{}) map[string]string {
	out := make(map[string]string, len(flagNames))
	if !c.ready() {
		for _, name := range flagNames {
			out[name] = notReadyResult().Treatment
		}
		c.manager.telemetry.Counters().IncMethodException("getTreatments")
		return out
	}

	start := time.Now()
	results := c.manager.evaluator.EvaluateMany(matchingKey, bucketingKey, flagNames, attributes)
	c.manager.telemetry.RecordEvaluationLatency("getTreatments", time.Since(start).Microseconds())

	now := time.Now().UnixMilli()
	for name, res := range results {
		out[name] = res.Treatment
		c.recordImpression(name, matchingKey, bucketingKey, res, now)
	}
	return out
}

func (c *Client) evaluateOne(method, matchingKey, bucketingKey, flagName string, attributes map[string]interface{}) evaluator.Result {
	if !c.ready() {
		c.manager.telemetry.Counters().IncMethodException(method)
		return notReadyResult()
	}

	start := time.Now()
	res := c.manager.evaluator.Evaluate(matchingKey, bucketingKey, flagName, attributes)
	c.manager.telemetry.RecordEvaluationLatency(method, time.Since(start).Microseconds())
	if res.Label == evaluator.LabelException {
		c.manager.telemetry.Counters().IncMethodException(method)
	}

	c.recordImpression(flagName, matchingKey, bucketingKey, res, time.Now().UnixMilli())
	return res
}

func (c *Client) recordImpression(flagName, matchingKey, bucketingKey string, res evaluator.Result, nowMillis int64) {
	label := res.Label
	if !c.manager.cfg.LabelsEnabled {
		label = ""
	}
	c.manager.impressions.Record(dto.Impression{
		MatchingKey:  matchingKey,
		BucketingKey: bucketingKey,
		FeatureName:  flagName,
		Treatment:    res.Treatment,
		Label:        label,
		ChangeNumber: res.ChangeNumber,
		Time:         nowMillis,
	})
}

// Track records a custom event for later shipment. Returns an error if the
// client is not ready yet, or if properties exceed the documented
// size/count limits — the event is never queued in either case.
func (c *Client) Track(key, trafficType, eventType string, value *float64, properties map[string]interface{}) error {
	if !c.ready() {
		return fmt.Errorf("flagengine: client not ready")
	}
	return c.manager.events.Record(dto.Event{
		Key:             key,
		TrafficTypeName: trafficType,
		EventTypeID:     eventType,
		Value:           value,
		Timestamp:       time.Now().UnixMilli(),
		Properties:      properties,
	})
}

// Destroy stops the backing Manager, releasing every background task and
// flushing queued recorder state one last time.
func (c *Client) Destroy() error {
	return c.manager.Stop(context.Background())
}
