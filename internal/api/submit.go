package api

import (
	"context"

	"github.com/99souls/flagengine/internal/dto"
)

// SubmitImpressions posts a batch of impressions to /testImpressions/bulk,
// grouped by feature name as the control plane's bulk endpoint expects.
func (c *Client) SubmitImpressions(ctx context.Context, impressions []dto.Impression) error {
	grouped := make(map[string][]dto.Impression)
	for _, imp := range impressions {
		grouped[imp.FeatureName] = append(grouped[imp.FeatureName], imp)
	}
	type entry struct {
		TestName       string           `json:"testName"`
		KeyImpressions []dto.Impression `json:"keyImpressions"`
	}
	payload := make([]entry, 0, len(grouped))
	for feature, imps := range grouped {
		payload = append(payload, entry{TestName: feature, KeyImpressions: imps})
	}
	return c.post(ctx, "/api/testImpressions/bulk", payload)
}

// SubmitImpressionCounts posts hourly dedupe counters to /testImpressions/count.
func (c *Client) SubmitImpressionCounts(ctx context.Context, counts []dto.ImpressionCount) error {
	return c.post(ctx, "/api/testImpressions/count", struct {
		PerFeature []dto.ImpressionCount `json:"pf"`
	}{PerFeature: counts})
}

// SubmitEvents posts a batch of track() events to /events/bulk.
func (c *Client) SubmitEvents(ctx context.Context, events []dto.Event) error {
	return c.post(ctx, "/api/events/bulk", events)
}
