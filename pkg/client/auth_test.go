package client

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/fruitsalade/ecloud/pkg/models"
	"github.com/fruitsalade/ecloud/pkg/protocol"
)

func TestLogin_Success(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/auth/login" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req protocol.LoginRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Email != "alice@example.com" {
			t.Errorf("expected alice@example.com, got %s", req.Email)
		}
		writeJSON(w, 200, protocol.TokenResponse{AccessToken: "a1", RefreshToken: "r1"})
	}))
	defer ts.Close()

	tokens, err := c.Login(context.Background(), "alice@example.com", "pass1234")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tokens.AccessToken != "a1" || tokens.RefreshToken != "r1" {
		t.Errorf("unexpected tokens: %+v", tokens)
	}
}

func TestLogin_Failure(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, protocol.ErrorResponse{Error: "invalid credentials"})
	}))
	defer ts.Close()

	_, err := c.Login(context.Background(), "alice@example.com", "wrong")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "401") || ServerMessage(err) != "invalid credentials" {
		t.Errorf("expected 401 invalid credentials, got: %v", err)
	}
}

func TestLogin_MissingAccessToken(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]string{"refresh_token": "r"})
	}))
	defer ts.Close()

	if _, err := c.Login(context.Background(), "a@b.io", "x"); err == nil {
		t.Fatal("expected error for response without access token")
	}
}

func TestRefresh_SendsRefreshToken(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req protocol.RefreshRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.RefreshToken != "old-r" {
			t.Errorf("expected old-r, got %s", req.RefreshToken)
		}
		writeJSON(w, 200, protocol.TokenResponse{AccessToken: "new-a", RefreshToken: "new-r"})
	}))
	defer ts.Close()

	tokens, err := c.Refresh(context.Background(), "old-r")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tokens.AccessToken != "new-a" {
		t.Errorf("expected new-a, got %s", tokens.AccessToken)
	}
}

func TestRegister(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req protocol.RegisterRequest
		json.NewDecoder(r.Body).Decode(&req)
		writeJSON(w, http.StatusCreated, protocol.RegisterResponse{User: &models.User{ID: "u1", Email: req.Email, Name: req.Name}})
	}))
	defer ts.Close()

	user, err := c.Register(context.Background(), "bob@example.com", "longpassword", "Bob")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.Name != "Bob" {
		t.Errorf("expected Bob, got %s", user.Name)
	}
}

func TestLogout(t *testing.T) {
	var got string
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req protocol.RefreshRequest
		json.NewDecoder(r.Body).Decode(&req)
		got = req.RefreshToken
		writeJSON(w, 200, map[string]string{"status": "ok"})
	}))
	defer ts.Close()

	if err := c.Logout(context.Background(), "r1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "r1" {
		t.Errorf("expected r1 revoked, got %q", got)
	}
}

func TestAccountCalls(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/me":
			writeJSON(w, 200, models.User{ID: "u", Email: "a@b.io"})
		case "/me/profile":
			var req protocol.UpdateProfileRequest
			json.NewDecoder(r.Body).Decode(&req)
			writeJSON(w, 200, models.User{ID: "u", Name: req.Name})
		case "/me/email":
			var req protocol.ChangeEmailRequest
			json.NewDecoder(r.Body).Decode(&req)
			writeJSON(w, 200, models.User{ID: "u", Email: req.NewEmail})
		case "/me/password":
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer ts.Close()

	ctx := context.Background()
	if u, err := c.Me(ctx); err != nil || u.Email != "a@b.io" {
		t.Errorf("me: %+v %v", u, err)
	}
	if u, err := c.UpdateProfile(ctx, "Ann"); err != nil || u.Name != "Ann" {
		t.Errorf("profile: %+v %v", u, err)
	}
	if u, err := c.ChangeEmail(ctx, "pw", "new@b.io"); err != nil || u.Email != "new@b.io" {
		t.Errorf("email: %+v %v", u, err)
	}
	if err := c.ChangePassword(ctx, "pw", "newpassword"); err != nil {
		t.Errorf("password: %v", err)
	}
}
