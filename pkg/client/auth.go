package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fruitsalade/ecloud/pkg/models"
	"github.com/fruitsalade/ecloud/pkg/protocol"
)

// Register creates an account. It does not sign in.
func (c *Client) Register(ctx context.Context, email, password, name string) (*models.User, error) {
	var resp protocol.RegisterResponse
	err := c.doJSON(ctx, request{
		op:     "register",
		method: "POST",
		path:   "/auth/register",
		expect: []int{http.StatusCreated, http.StatusOK},
	}, protocol.RegisterRequest{Email: email, Password: password, Name: name}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.User, nil
}

// Login exchanges credentials for a token pair.
func (c *Client) Login(ctx context.Context, email, password string) (models.Tokens, error) {
	return c.tokenCall(ctx, "login", "/auth/login", protocol.LoginRequest{Email: email, Password: password})
}

// Refresh exchanges a refresh token for a new token pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (models.Tokens, error) {
	return c.tokenCall(ctx, "refresh", "/auth/refresh", protocol.RefreshRequest{RefreshToken: refreshToken})
}

func (c *Client) tokenCall(ctx context.Context, op, path string, body any) (models.Tokens, error) {
	var resp protocol.TokenResponse
	err := c.doJSON(ctx, request{op: op, method: "POST", path: path}, body, &resp)
	if err != nil {
		return models.Tokens{}, err
	}
	if resp.AccessToken == "" {
		return models.Tokens{}, fmt.Errorf("%s: no access token in response", op)
	}
	return models.Tokens{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}, nil
}

// Logout revokes the refresh token on the server.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	return c.doJSON(ctx, request{op: "logout", method: "POST", path: "/auth/logout"},
		protocol.RefreshRequest{RefreshToken: refreshToken}, nil)
}
