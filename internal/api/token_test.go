package api

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signTestToken(t *testing.T, claims streamingClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte("irrelevant-since-unverified"))
	require.NoError(t, err)
	return signed
}

func TestParseTokenExtractsChannelsAndExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	raw := signTestToken(t, streamingClaims{
		Capability: map[string]interface{}{
			"mySplitId_segments": []string{"subscribe"},
			"mySplitId_splits":   []string{"subscribe"},
		},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})

	token, err := ParseToken(raw, true)
	require.NoError(t, err)
	assert.True(t, token.PushEnabled)
	assert.ElementsMatch(t, []string{"mySplitId_segments", "mySplitId_splits"}, token.Channels)
	assert.WithinDuration(t, exp, token.ExpirationTime, time.Second)
}

func TestParseTokenPushDisabledSkipsDecode(t *testing.T) {
	token, err := ParseToken("not-a-jwt", false)
	require.NoError(t, err)
	assert.False(t, token.PushEnabled)
	assert.Empty(t, token.Channels)
}
