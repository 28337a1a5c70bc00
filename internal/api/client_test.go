package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Metadata: Metadata{
			SDKVersion:  "go-1.0.0",
			MachineName: "host-1",
			MachineIP:   "10.0.0.1",
		},
	})
}

func TestFetchSplitChangesSendsAuthAndMetadataHeaders(t *testing.T) {
	var gotAuth, gotVersion string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotVersion = r.Header.Get("SplitSDKVersion")
		assert.Equal(t, "-1", r.URL.Query().Get("since"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"splits": []interface{}{}, "since": -1, "till": -1,
		})
	})

	result, err := c.FetchSplitChanges(context.Background(), -1)
	require.NoError(t, err)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "go-1.0.0", gotVersion)
	assert.EqualValues(t, -1, result.Till)
}

func TestFetchSplitChangesNon2xxReturnsStatusError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	})

	_, err := c.FetchSplitChanges(context.Background(), 0)
	require.Error(t, err)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
}

func TestFetchSegmentChangesEscapesName(t *testing.T) {
	var gotPath string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"name": "beta users", "added": []string{}, "removed": []string{}, "since": -1, "till": -1,
		})
	})

	diff, err := c.FetchSegmentChanges(context.Background(), "beta users", -1)
	require.NoError(t, err)
	assert.Equal(t, "/api/segmentChanges/beta%20users", gotPath)
	assert.Equal(t, "beta users", diff.Name)
}

func TestAuthenticatePushDisabled(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"pushEnabled": false, "token": ""})
	})

	token, err := c.Authenticate(context.Background())
	require.NoError(t, err)
	assert.False(t, token.PushEnabled)
}
