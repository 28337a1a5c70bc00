package api

import "context"

// SubmitTelemetryUsage posts the periodic stats payload to /metrics/usage.
func (c *Client) SubmitTelemetryUsage(ctx context.Context, payload interface{}) error {
	return c.post(ctx, "/api/metrics/usage", payload)
}

// SubmitTelemetryConfig posts the one-shot init config snapshot to /metrics/config.
func (c *Client) SubmitTelemetryConfig(ctx context.Context, snapshot interface{}) error {
	return c.post(ctx, "/api/metrics/config", snapshot)
}
