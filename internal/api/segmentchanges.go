package api

import (
	"context"
	"net/url"
	"strconv"

	"github.com/99souls/flagengine/internal/dto"
)

// SegmentChangesFetcher is the synchronizer's view of the per-segment diff
// endpoint.
type SegmentChangesFetcher interface {
	FetchSegmentChanges(ctx context.Context, name string, since int64) (*dto.SegmentDiff, error)
}

// FetchSegmentChanges retrieves the membership diff for name since the given
// cursor.
func (c *Client) FetchSegmentChanges(ctx context.Context, name string, since int64) (*dto.SegmentDiff, error) {
	var diff dto.SegmentDiff
	path := "/api/segmentChanges/" + url.PathEscape(name)
	query := map[string]string{"since": strconv.FormatInt(since, 10)}
	if err := c.get(ctx, path, query, &diff); err != nil {
		return nil, err
	}
	return &diff, nil
}
