package api

import (
	"context"
	"strconv"

	"github.com/99souls/flagengine/internal/dto"
)

// SplitChangesFetcher is the synchronizer's view of the flag-definitions
// endpoint: a single paginated-by-changeNumber fetch.
type SplitChangesFetcher interface {
	FetchSplitChanges(ctx context.Context, since int64) (*dto.SplitChangesResult, error)
}

// FetchSplitChanges retrieves every flag definition change after since.
func (c *Client) FetchSplitChanges(ctx context.Context, since int64) (*dto.SplitChangesResult, error) {
	var result dto.SplitChangesResult
	query := map[string]string{"since": strconv.FormatInt(since, 10)}
	if err := c.get(ctx, "/api/splitChanges", query, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
