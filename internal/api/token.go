package api

import (
	"fmt"
	"time"

	"github.com/99souls/flagengine/internal/dto"
	"github.com/golang-jwt/jwt/v5"
)

// streamingClaims is the subset of the auth token's JWT payload the push
// manager needs: the channel capability map and standard exp/iat claims.
// The token is issued and signed by the control plane purely so the client
// can read its own grants back; the SDK trusts the TLS channel it arrived on
// and does not verify the signature.
type streamingClaims struct {
	Capability map[string]interface{} `json:"x-ably-capability"`
	jwt.RegisteredClaims
}

// ParseToken decodes the JWT issued by /v2/auth into a dto.Token, extracting
// the channel list from its capability claim without verifying the signature.
func ParseToken(raw string, pushEnabled bool) (dto.Token, error) {
	if !pushEnabled || raw == "" {
		return dto.Token{PushEnabled: false, RawToken: raw}, nil
	}

	var claims streamingClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, &claims); err != nil {
		return dto.Token{}, fmt.Errorf("api: parsing jwt: %w", err)
	}

	channels := make([]string, 0, len(claims.Capability))
	for ch := range claims.Capability {
		channels = append(channels, ch)
	}

	var exp, iat time.Time
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		iat = claims.IssuedAt.Time
	}

	return dto.Token{
		PushEnabled:    true,
		Channels:       channels,
		ExpirationTime: exp,
		IssuedAt:       iat,
		RawToken:       raw,
	}, nil
}
