package api

import (
	"context"
	"fmt"

	"github.com/99souls/flagengine/internal/dto"
)

// Authenticator is the synchronizer/push-manager's view of the streaming
// auth endpoint: exchange the SDK key for a short-lived streaming token.
type Authenticator interface {
	Authenticate(ctx context.Context) (dto.Token, error)
}

// authResponse is the wire shape of /v2/auth.
type authResponse struct {
	PushEnabled bool   `json:"pushEnabled"`
	Token       string `json:"token"`
}

// Authenticate exchanges the configured API key for a streaming token. A
// 4xx response increments the caller's auth-rejection counter by returning a
// *StatusError the caller can inspect.
func (c *Client) Authenticate(ctx context.Context) (dto.Token, error) {
	var resp authResponse
	if err := c.get(ctx, "/api/v2/auth", nil, &resp); err != nil {
		return dto.Token{}, fmt.Errorf("api: authenticate: %w", err)
	}

	token, err := ParseToken(resp.Token, resp.PushEnabled)
	if err != nil {
		return dto.Token{}, fmt.Errorf("api: parsing streaming token: %w", err)
	}
	return token, nil
}
