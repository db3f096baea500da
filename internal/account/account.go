// Package account backs the account settings dialog: profile name, sign-in
// email and password.
package account

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/fruitsalade/ecloud/internal/authform"
	"github.com/fruitsalade/ecloud/internal/events"
	"github.com/fruitsalade/ecloud/internal/logging"
	"github.com/fruitsalade/ecloud/internal/session"
	"github.com/fruitsalade/ecloud/pkg/models"
)

const (
	MinNameLength     = 2
	MinPasswordLength = 8
)

var (
	ErrNameTooShort     = errors.New("name must be at least 2 characters")
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrPasswordRequired = errors.New("current password is required")
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	ErrPasswordMismatch = errors.New("passwords do not match")
)

// API is the remote side of the account settings.
type API interface {
	Me(ctx context.Context) (*models.User, error)
	UpdateProfile(ctx context.Context, name string) (*models.User, error)
	ChangeEmail(ctx context.Context, currentPassword, newEmail string) (*models.User, error)
	ChangePassword(ctx context.Context, currentPassword, newPassword string) error
}

// Settings holds the loaded profile.
type Settings struct {
	runner session.Runner
	api    API
	bus    *events.Bus
	log    *zap.Logger

	mu   sync.Mutex
	user *models.User
}

// New creates account settings with nothing loaded.
func New(runner session.Runner, api API, bus *events.Bus) *Settings {
	return &Settings{runner: runner, api: api, bus: bus, log: logging.Named("account")}
}

// User returns the last loaded profile, or nil.
func (s *Settings) User() *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// Load fetches the current profile.
func (s *Settings) Load(ctx context.Context) (*models.User, error) {
	user, err := s.fetch(ctx, s.api.Me)
	if err != nil {
		return nil, err
	}
	s.set(user)
	return user, nil
}

// Rename sets the display name.
func (s *Settings) Rename(ctx context.Context, name string) (*models.User, error) {
	name = strings.TrimSpace(name)
	if len([]rune(name)) < MinNameLength {
		return nil, ErrNameTooShort
	}
	user, err := s.fetch(ctx, func(ctx context.Context) (*models.User, error) {
		return s.api.UpdateProfile(ctx, name)
	})
	if err != nil {
		s.log.Warn("rename failed", zap.Error(err))
		return nil, err
	}
	s.set(user)
	s.bus.Publish(events.AccountChanged())
	return user, nil
}

// ChangeEmail moves the account to a new sign-in email.
func (s *Settings) ChangeEmail(ctx context.Context, currentPassword, newEmail string) (*models.User, error) {
	newEmail = strings.TrimSpace(newEmail)
	if !authform.ValidEmail(newEmail) {
		return nil, ErrInvalidEmail
	}
	if currentPassword == "" {
		return nil, ErrPasswordRequired
	}
	user, err := s.fetch(ctx, func(ctx context.Context) (*models.User, error) {
		return s.api.ChangeEmail(ctx, currentPassword, newEmail)
	})
	if err != nil {
		s.log.Warn("change email failed", zap.Error(err))
		return nil, err
	}
	s.set(user)
	s.bus.Publish(events.AccountChanged())
	return user, nil
}

// ChangePassword replaces the password after checking length and confirmation.
func (s *Settings) ChangePassword(ctx context.Context, currentPassword, newPassword, confirm string) error {
	if currentPassword == "" {
		return ErrPasswordRequired
	}
	if len(newPassword) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if newPassword != confirm {
		return ErrPasswordMismatch
	}
	err := s.runner.Do(ctx, func(ctx context.Context) error {
		return s.api.ChangePassword(ctx, currentPassword, newPassword)
	})
	if err != nil {
		s.log.Warn("change password failed", zap.Error(err))
		return err
	}
	s.bus.Publish(events.AccountChanged())
	return nil
}

func (s *Settings) set(u *models.User) {
	s.mu.Lock()
	s.user = u
	s.mu.Unlock()
}

func (s *Settings) fetch(ctx context.Context, fn func(ctx context.Context) (*models.User, error)) (*models.User, error) {
	var user *models.User
	err := s.runner.Do(ctx, func(ctx context.Context) error {
		var err error
		user, err = fn(ctx)
		return err
	})
	return user, err
}
