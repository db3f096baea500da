package client

import (
	"context"
	"net/http"

	"github.com/fruitsalade/ecloud/pkg/models"
	"github.com/fruitsalade/ecloud/pkg/protocol"
)

// Me returns the current account.
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := c.doJSON(ctx, request{op: "me", method: "GET", path: "/me", idempotent: true}, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateProfile changes the display name.
func (c *Client) UpdateProfile(ctx context.Context, name string) (*models.User, error) {
	var user models.User
	err := c.doJSON(ctx, request{op: "update-profile", method: "POST", path: "/me/profile"},
		protocol.UpdateProfileRequest{Name: name}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ChangeEmail changes the sign-in email; the current password confirms it.
func (c *Client) ChangeEmail(ctx context.Context, currentPassword, newEmail string) (*models.User, error) {
	var user models.User
	err := c.doJSON(ctx, request{op: "change-email", method: "POST", path: "/me/email"},
		protocol.ChangeEmailRequest{CurrentPassword: currentPassword, NewEmail: newEmail}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ChangePassword sets a new password.
func (c *Client) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	return c.doJSON(ctx, request{
		op:     "change-password",
		method: "POST",
		path:   "/me/password",
		expect: []int{http.StatusNoContent, http.StatusOK},
	}, protocol.ChangePasswordRequest{CurrentPassword: currentPassword, NewPassword: newPassword}, nil)
}
