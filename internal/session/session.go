// Package session owns the signed-in user's token pair: where it is stored,
// how it is refreshed, and how authenticated calls recover from expiry.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fruitsalade/ecloud/internal/logging"
	"github.com/fruitsalade/ecloud/internal/metrics"
	"github.com/fruitsalade/ecloud/pkg/client"
	"github.com/fruitsalade/ecloud/pkg/models"
)

var (
	// ErrUnauthorized means the call failed authorization even after a
	// refresh attempt. The session has been cleared.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNoRefreshToken means there is no refresh token to exchange.
	ErrNoRefreshToken = errors.New("no refresh token")
)

// API is the subset of the remote API the session drives.
type API interface {
	Login(ctx context.Context, email, password string) (models.Tokens, error)
	Register(ctx context.Context, email, password, name string) (*models.User, error)
	Refresh(ctx context.Context, refreshToken string) (models.Tokens, error)
	Logout(ctx context.Context, refreshToken string) error
}

// Runner runs remote calls with credentials attached. *Session implements
// it with the refresh-and-retry policy of Call.
type Runner interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// Session is the token store plus the refresh coordinator.
type Session struct {
	store Store
	api   API
	log   *zap.Logger

	mu     sync.RWMutex
	access string

	refreshes singleflight.Group
}

// Open creates a session and loads any persisted tokens.
func Open(store Store, api API) (*Session, error) {
	tokens, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return &Session{
		store:  store,
		api:    api,
		log:    logging.Named("session"),
		access: tokens.AccessToken,
	}, nil
}

// AccessToken returns the in-memory access token, falling back to the store.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	token := s.access
	s.mu.RUnlock()
	if token != "" {
		return token
	}

	tokens, err := s.store.Load()
	if err != nil {
		s.log.Warn("load session failed", zap.Error(err))
		return ""
	}
	return tokens.AccessToken
}

// RefreshToken returns the persisted refresh token.
func (s *Session) RefreshToken() string {
	tokens, err := s.store.Load()
	if err != nil {
		s.log.Warn("load session failed", zap.Error(err))
		return ""
	}
	return tokens.RefreshToken
}

// Authenticated reports whether an access token is present.
func (s *Session) Authenticated() bool {
	return s.AccessToken() != ""
}

func (s *Session) set(tokens models.Tokens) error {
	s.mu.Lock()
	s.access = tokens.AccessToken
	s.mu.Unlock()
	return s.store.Save(tokens)
}

// Clear forgets both tokens.
func (s *Session) Clear() error {
	s.mu.Lock()
	s.access = ""
	s.mu.Unlock()
	return s.store.Clear()
}

// Login exchanges credentials for tokens and persists them.
func (s *Session) Login(ctx context.Context, email, password string) error {
	tokens, err := s.api.Login(ctx, email, password)
	if err != nil {
		return err
	}
	if err := s.set(tokens); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	s.log.Info("signed in", zap.String("email", email))
	return nil
}

// Register creates the account and signs in with the same credentials.
// An empty name defaults to the local part of the email.
func (s *Session) Register(ctx context.Context, email, password, name string) error {
	if strings.TrimSpace(name) == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	if _, err := s.api.Register(ctx, email, password, name); err != nil {
		return err
	}
	return s.Login(ctx, email, password)
}

// Logout revokes the refresh token remotely when possible and always clears
// the local session.
func (s *Session) Logout(ctx context.Context) error {
	if rt := s.RefreshToken(); rt != "" {
		if err := s.api.Logout(ctx, rt); err != nil {
			s.log.Debug("remote logout failed", zap.Error(err))
		}
	}
	if err := s.Clear(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Refresh exchanges the refresh token for a new pair. Concurrent callers
// share a single network call and all observe its outcome. A failed refresh
// clears the session. The exchange is not cancelled when ctx is, so one
// impatient caller cannot fail the others.
func (s *Session) Refresh(ctx context.Context) bool {
	v, _, _ := s.refreshes.Do("refresh", func() (any, error) {
		return s.refresh(context.WithoutCancel(ctx)), nil
	})
	return v.(bool)
}

func (s *Session) refresh(ctx context.Context) bool {
	rt := s.RefreshToken()
	if rt == "" {
		s.log.Debug("refresh skipped", zap.Error(ErrNoRefreshToken))
		return false
	}

	tokens, err := s.api.Refresh(ctx, rt)
	if err == nil && tokens.AccessToken == "" {
		err = errors.New("refresh response without access token")
	}
	if err != nil {
		metrics.RecordTokenRefresh(false)
		s.log.Warn("token refresh failed", zap.Error(err))
		if cerr := s.Clear(); cerr != nil {
			s.log.Error("clear session failed", zap.Error(cerr))
		}
		return false
	}

	if tokens.RefreshToken == "" {
		tokens.RefreshToken = rt
	}
	if err := s.set(tokens); err != nil {
		s.log.Error("save refreshed session failed", zap.Error(err))
	}
	metrics.RecordTokenRefresh(true)
	return true
}

// Call runs fn with the current bearer token. If fn fails with an
// authorization error the session refreshes once and fn runs once more.
// A failed refresh or a second authorization error clears the session and
// returns ErrUnauthorized.
func Call[T any](ctx context.Context, s *Session, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	res, err := fn(client.WithBearer(ctx, s.AccessToken()))
	if !client.IsUnauthorized(err) {
		return res, err
	}

	if !s.Refresh(ctx) {
		metrics.RecordAuthRetry(false)
		if cerr := s.Clear(); cerr != nil {
			s.log.Error("clear session failed", zap.Error(cerr))
		}
		return zero, ErrUnauthorized
	}

	res, err = fn(client.WithBearer(ctx, s.AccessToken()))
	if client.IsUnauthorized(err) {
		metrics.RecordAuthRetry(false)
		if cerr := s.Clear(); cerr != nil {
			s.log.Error("clear session failed", zap.Error(cerr))
		}
		return zero, ErrUnauthorized
	}
	metrics.RecordAuthRetry(err == nil)
	return res, err
}

// Do is Call for operations without a result.
func (s *Session) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := Call(ctx, s, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// ExpiresWithin reports whether the access token expires within d. The
// token's exp claim is read without verifying the signature; tokens that
// are not JWTs or carry no exp are treated as not expiring. A missing
// token counts as expired.
func (s *Session) ExpiresWithin(d time.Duration) bool {
	token := s.AccessToken()
	if token == "" {
		return true
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Now().Add(d).After(exp.Time)
}

// KeepAlive refreshes the session in the background whenever the access
// token is about to expire. The loop stops when ctx is cancelled or a
// refresh fails; the returned channel is closed once it has.
func (s *Session) KeepAlive(ctx context.Context, interval, margin time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if s.RefreshToken() == "" || !s.ExpiresWithin(margin) {
					continue
				}
				s.log.Info("access token expiring soon, refreshing")
				if !s.Refresh(ctx) {
					s.log.Warn("background refresh failed, session cleared")
					return
				}
			}
		}
	}()
	return done
}
