package authform

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"go.uber.org/zap"

	"github.com/fruitsalade/ecloud/internal/logging"
	"github.com/fruitsalade/ecloud/pkg/client"
)

// Authenticator performs the remote side of the screen. *session.Session
// satisfies it.
type Authenticator interface {
	Login(ctx context.Context, email, password string) error
	Register(ctx context.Context, email, password, name string) error
	Refresh(ctx context.Context) bool
	AccessToken() string
}

// Outcome tells the front end where to go after a submission.
type Outcome int

const (
	Stay Outcome = iota
	NavigateDashboard
)

// Screen is the state of the auth screen.
type Screen struct {
	auth Authenticator
	log  *zap.Logger

	mu      sync.Mutex
	mode    Mode
	form    Form
	errors  FieldErrors
	loading bool
	mounted bool
}

// NewScreen creates a screen in sign-in mode.
func NewScreen(auth Authenticator) *Screen {
	return &Screen{
		auth:   auth,
		log:    logging.Named("authform"),
		errors: FieldErrors{},
	}
}

// Mount marks the screen live and, when no access token is held, tries a
// silent refresh so a returning user can skip the form. It reports whether
// the user is signed in afterwards.
func (s *Screen) Mount(ctx context.Context) bool {
	s.mu.Lock()
	s.mounted = true
	s.mu.Unlock()

	if s.auth.AccessToken() != "" {
		return true
	}
	return s.auth.Refresh(ctx)
}

// Unmount marks the screen gone. Submissions that finish later leave its
// state untouched.
func (s *Screen) Unmount() {
	s.mu.Lock()
	s.mounted = false
	s.mu.Unlock()
}

// Mode returns the active mode.
func (s *Screen) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode switches mode and clears errors.
func (s *Screen) SetMode(m Mode) {
	s.mu.Lock()
	s.mode = m
	s.errors = FieldErrors{}
	s.mu.Unlock()
}

// Toggle flips between sign-in and registration.
func (s *Screen) Toggle() Mode {
	next := ModeRegister
	if s.Mode() == ModeRegister {
		next = ModeLogin
	}
	s.SetMode(next)
	return next
}

// SetForm replaces the field values.
func (s *Screen) SetForm(f Form) {
	s.mu.Lock()
	s.form = f
	s.mu.Unlock()
}

// Form returns the field values.
func (s *Screen) Form() Form {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.form
}

// Strength is the meter value for the current password.
func (s *Screen) Strength() int {
	return PasswordStrength(s.Form().Password)
}

// Errors returns a copy of the current field errors.
func (s *Screen) Errors() FieldErrors {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.errors)
}

// Loading reports whether a submission is in progress.
func (s *Screen) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Submit validates the form and, when it passes, signs in or registers.
// Validation failures return ErrInvalid without touching the network.
// Remote failures are recorded under FieldServer and returned.
func (s *Screen) Submit(ctx context.Context) (Outcome, error) {
	s.mu.Lock()
	mode, form := s.mode, s.form
	if errs := Validate(mode, form); len(errs) > 0 {
		s.errors = errs
		s.mu.Unlock()
		return Stay, ErrInvalid
	}
	s.errors = FieldErrors{}
	s.loading = true
	s.mu.Unlock()

	var err error
	if mode == ModeRegister {
		err = s.auth.Register(ctx, form.Email, form.Password, form.Name)
	} else {
		err = s.auth.Login(ctx, form.Email, form.Password)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mounted {
		return outcome(err), err
	}
	s.loading = false
	if err != nil {
		s.errors[FieldServer] = serverMessage(mode, err)
		s.log.Debug("auth submit failed", zap.String("mode", mode.String()), zap.Error(err))
	}
	return outcome(err), err
}

func outcome(err error) Outcome {
	if err != nil {
		return Stay
	}
	return NavigateDashboard
}

func serverMessage(mode Mode, err error) string {
	if msg := client.ServerMessage(err); msg != "" {
		return msg
	}
	if code := client.StatusCode(err); code != 0 {
		if mode == ModeRegister {
			return fmt.Sprintf("Register failed (%d)", code)
		}
		return fmt.Sprintf("Login failed (%d)", code)
	}
	return err.Error()
}
