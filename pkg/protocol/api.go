// Package protocol defines the e-cloud API request/response types.
package protocol

import (
	"time"

	"github.com/fruitsalade/ecloud/pkg/models"
)

// ErrorResponse is returned on API errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// RegisterResponse is returned by POST /auth/register.
type RegisterResponse struct {
	User *models.User `json:"user"`
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse is returned by POST /auth/login and POST /auth/refresh.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// RefreshRequest is the body for POST /auth/refresh and POST /auth/logout.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// CreateFolderRequest is the body for POST /folders.
type CreateFolderRequest struct {
	Name     string `json:"name"`
	ParentID string `json:"parent_id"`
}

// MoveRequest is the body for POST /move/{id}. Empty ParentID moves to root.
type MoveRequest struct {
	ParentID string `json:"parent_id"`
}

// UnzipResponse is returned by POST /files/unzip.
type UnzipResponse struct {
	Message      string         `json:"message"`
	CreatedCount int            `json:"created_count"`
	CreatedNodes []*models.Node `json:"created_nodes"`
	CreatedPaths []string       `json:"created_paths"`
	RootParentID string         `json:"root_parent_id"`
	Timestamp    time.Time      `json:"timestamp"`
}

// UpdateProfileRequest is the JSON body for POST /me/profile.
type UpdateProfileRequest struct {
	Name string `json:"name"`
}

// ChangeEmailRequest is the body for POST /me/email.
type ChangeEmailRequest struct {
	CurrentPassword string `json:"current_password"`
	NewEmail        string `json:"new_email"`
}

// ChangePasswordRequest is the body for POST /me/password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}
