package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/99souls/flagengine/internal/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitImpressionsGroupsByFeature(t *testing.T) {
	var gotPath string
	var gotBody []map[string]interface{}
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
	})

	err := c.SubmitImpressions(context.Background(), []dto.Impression{
		{FeatureName: "demo", MatchingKey: "k1", Treatment: "on"},
		{FeatureName: "demo", MatchingKey: "k2", Treatment: "off"},
		{FeatureName: "other", MatchingKey: "k3", Treatment: "on"},
	})
	require.NoError(t, err)
	assert.Equal(t, "/api/testImpressions/bulk", gotPath)
	assert.Len(t, gotBody, 2)
}

func TestSubmitEventsPostsBatch(t *testing.T) {
	var gotPath string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	})

	err := c.SubmitEvents(context.Background(), []dto.Event{{Key: "k1", EventTypeID: "purchase"}})
	require.NoError(t, err)
	assert.Equal(t, "/api/events/bulk", gotPath)
}

func TestSubmitImpressionCountsPostsPayload(t *testing.T) {
	var gotPath string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	})

	err := c.SubmitImpressionCounts(context.Background(), []dto.ImpressionCount{{Feature: "demo", Count: 3}})
	require.NoError(t, err)
	assert.Equal(t, "/api/testImpressions/count", gotPath)
}
