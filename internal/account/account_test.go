package account

import (
	"context"
	"errors"
	"testing"

	"github.com/fruitsalade/ecloud/internal/events"
	"github.com/fruitsalade/ecloud/pkg/models"
)

type direct struct{}

func (direct) Do(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

type fakeAPI struct {
	calls int
	err   error
	user  models.User
	pw    string
}

func (f *fakeAPI) Me(ctx context.Context) (*models.User, error) {
	f.calls++
	u := f.user
	return &u, f.err
}

func (f *fakeAPI) UpdateProfile(ctx context.Context, name string) (*models.User, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	f.user.Name = name
	u := f.user
	return &u, nil
}

func (f *fakeAPI) ChangeEmail(ctx context.Context, currentPassword, newEmail string) (*models.User, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	f.user.Email = newEmail
	u := f.user
	return &u, nil
}

func (f *fakeAPI) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	f.calls++
	f.pw = newPassword
	return f.err
}

func newSettings(api *fakeAPI) (*Settings, *events.Bus) {
	bus := events.NewBus()
	return New(direct{}, api, bus), bus
}

func TestLoad(t *testing.T) {
	api := &fakeAPI{user: models.User{ID: "u1", Email: "a@b.co", Name: "Ann"}}
	s, _ := newSettings(api)
	u, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if u.Name != "Ann" || s.User() == nil || s.User().ID != "u1" {
		t.Errorf("unexpected user %+v", u)
	}
}

func TestValidationBlocksCalls(t *testing.T) {
	api := &fakeAPI{}
	s, bus := newSettings(api)
	ctx := context.Background()

	if _, err := s.Rename(ctx, " a "); !errors.Is(err, ErrNameTooShort) {
		t.Errorf("expected ErrNameTooShort, got %v", err)
	}
	if _, err := s.ChangeEmail(ctx, "pw", "not-an-email"); !errors.Is(err, ErrInvalidEmail) {
		t.Errorf("expected ErrInvalidEmail, got %v", err)
	}
	if _, err := s.ChangeEmail(ctx, "", "x@y.io"); !errors.Is(err, ErrPasswordRequired) {
		t.Errorf("expected ErrPasswordRequired, got %v", err)
	}
	if err := s.ChangePassword(ctx, "old", "short", "short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Errorf("expected ErrPasswordTooShort, got %v", err)
	}
	if err := s.ChangePassword(ctx, "old", "longenough1", "longenough2"); !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("expected ErrPasswordMismatch, got %v", err)
	}
	if api.calls != 0 {
		t.Errorf("expected no remote calls, got %d", api.calls)
	}
	if bus.Generation() != 0 {
		t.Errorf("expected no invalidation, got generation %d", bus.Generation())
	}
}

func TestChangesInvalidateAccount(t *testing.T) {
	api := &fakeAPI{user: models.User{ID: "u1", Email: "a@b.co", Name: "Ann"}}
	s, bus := newSettings(api)
	sub := bus.Subscribe(events.Topic{Query: events.QueryAccount})
	defer bus.Unsubscribe(sub)
	ctx := context.Background()

	u, err := s.Rename(ctx, "  Annie ")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if u.Name != "Annie" {
		t.Errorf("expected trimmed name, got %q", u.Name)
	}
	if _, err := s.ChangeEmail(ctx, "pw", "new@b.co"); err != nil {
		t.Fatalf("ChangeEmail: %v", err)
	}
	if s.User().Email != "new@b.co" {
		t.Errorf("expected stored email update, got %q", s.User().Email)
	}
	if err := s.ChangePassword(ctx, "pw", "longenough1", "longenough1"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if api.pw != "longenough1" {
		t.Errorf("unexpected password sent %q", api.pw)
	}
	if got := len(sub.C); got != 3 {
		t.Errorf("expected 3 account invalidations, got %d", got)
	}
}

func TestRemoteFailureKeepsProfile(t *testing.T) {
	api := &fakeAPI{user: models.User{ID: "u1", Name: "Ann"}}
	s, bus := newSettings(api)
	if _, err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	gen := bus.Generation()

	api.err = errors.New("update failed with status 500")
	if _, err := s.Rename(context.Background(), "Bob"); err == nil {
		t.Fatal("expected error")
	}
	if s.User().Name != "Ann" {
		t.Errorf("expected profile unchanged, got %q", s.User().Name)
	}
	if bus.Generation() != gen {
		t.Error("failed change must not invalidate")
	}
}
