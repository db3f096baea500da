package dashboard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fruitsalade/ecloud/internal/browser"
	"github.com/fruitsalade/ecloud/internal/events"
	"github.com/fruitsalade/ecloud/internal/session"
	"github.com/fruitsalade/ecloud/pkg/models"
)

type fakeAuth struct {
	token       string
	refreshOK   bool
	refreshes   int
	unauthorize bool
	loggedOut   bool
}

func (f *fakeAuth) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if f.unauthorize {
		return session.ErrUnauthorized
	}
	return fn(ctx)
}

func (f *fakeAuth) AccessToken() string { return f.token }

func (f *fakeAuth) Refresh(ctx context.Context) bool {
	f.refreshes++
	return f.refreshOK
}

func (f *fakeAuth) Logout(ctx context.Context) error {
	f.loggedOut = true
	return nil
}

// tree: root > docs > work
type fakeAPI struct {
	mu       sync.Mutex
	children map[string][]*models.Node
	parents  map[string]*models.Node
	lists    atomic.Int32
}

func newFakeAPI() *fakeAPI {
	docs := &models.Node{ID: "docs", Type: "folder", Name: "Docs"}
	work := &models.Node{ID: "work", Type: "folder", Name: "Work", ParentID: "docs"}
	return &fakeAPI{
		children: map[string][]*models.Node{
			"":     {docs, {ID: "f1", Type: "file", Name: "a.txt"}},
			"docs": {work},
			"work": {{ID: "f2", Type: "file", Name: "b.txt", ParentID: "work"}},
		},
		parents: map[string]*models.Node{"work": docs},
	}
}

func (f *fakeAPI) ListChildren(ctx context.Context, parentID string) ([]*models.Node, error) {
	f.lists.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.children[parentID], nil
}

func (f *fakeAPI) ParentOf(ctx context.Context, id string) (*models.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.parents[id], nil
}

func newShell(auth *fakeAuth, api *fakeAPI) (*Shell, *events.Bus) {
	bus := events.NewBus()
	view := browser.NewView(auth, nil, bus)
	return NewShell(auth, api, bus, view), bus
}

func TestFolderID(t *testing.T) {
	for in, want := range map[string]string{"root": "", "": "", "/": "", "abc": "abc", "/abc/": "abc"} {
		if got := FolderID(in); got != want {
			t.Errorf("FolderID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBootstrap(t *testing.T) {
	tests := []struct {
		name string
		auth *fakeAuth
		want State
		refs int
	}{
		{"no token", &fakeAuth{}, StateRedirectAuth, 0},
		{"refresh ok", &fakeAuth{token: "t", refreshOK: true}, StateReady, 1},
		{"refresh fails", &fakeAuth{token: "t"}, StateRedirectAuth, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newShell(tt.auth, newFakeAPI())
			if got := s.Bootstrap(context.Background()); got != tt.want {
				t.Errorf("Bootstrap = %s, want %s", got, tt.want)
			}
			if tt.auth.refreshes != tt.refs {
				t.Errorf("expected %d refreshes, got %d", tt.refs, tt.auth.refreshes)
			}
		})
	}
}

func TestToggleSidebar(t *testing.T) {
	s, _ := newShell(&fakeAuth{}, newFakeAPI())

	s.ToggleSidebar(1280)
	if docked, mobile := s.Sidebar(); docked || mobile {
		t.Errorf("desktop toggle: docked=%v mobile=%v", docked, mobile)
	}
	s.ToggleSidebar(767)
	if docked, mobile := s.Sidebar(); docked || !mobile {
		t.Errorf("mobile toggle: docked=%v mobile=%v", docked, mobile)
	}
	s.OpenUpload(false)
	if _, mobile := s.Sidebar(); mobile {
		t.Error("opening upload should close the overlay")
	}
}

func TestNavigateBuildsBreadcrumbs(t *testing.T) {
	api := newFakeAPI()
	s, _ := newShell(&fakeAuth{}, api)
	ctx := context.Background()

	if err := s.Navigate(ctx, "work", "Work"); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	crumbs := s.Breadcrumbs()
	want := []Crumb{{Name: RootName}, {ID: "docs", Name: "Docs"}, {ID: "work", Name: "Work"}}
	if len(crumbs) != len(want) {
		t.Fatalf("expected %v, got %v", want, crumbs)
	}
	for i := range want {
		if crumbs[i] != want[i] {
			t.Errorf("crumb %d = %+v, want %+v", i, crumbs[i], want[i])
		}
	}
	if nodes := s.View().Nodes(); len(nodes) != 1 || nodes[0].ID != "f2" {
		t.Errorf("expected work listing, got %v", nodes)
	}

	if err := s.Back(ctx); err != nil {
		t.Fatalf("Back: %v", err)
	}
	if s.FolderID() != "docs" || len(s.Breadcrumbs()) != 2 {
		t.Errorf("expected docs after back, got %q %v", s.FolderID(), s.Breadcrumbs())
	}

	s.Navigate(ctx, "root", "")
	if s.FolderID() != "" || len(s.Breadcrumbs()) != 1 {
		t.Errorf("expected root, got %q %v", s.FolderID(), s.Breadcrumbs())
	}
}

func TestNavigateClearsSelection(t *testing.T) {
	s, _ := newShell(&fakeAuth{}, newFakeAPI())
	ctx := context.Background()

	s.Navigate(ctx, "", "")
	s.View().Click("f1", browser.Modifiers{})
	if len(s.View().Selected()) != 1 {
		t.Fatal("expected a selection")
	}
	s.Navigate(ctx, "docs", "Docs")
	if len(s.View().Selected()) != 0 {
		t.Error("navigation should clear the selection")
	}
}

func TestUnauthorizedRedirects(t *testing.T) {
	auth := &fakeAuth{token: "t", refreshOK: true}
	s, _ := newShell(auth, newFakeAPI())
	s.Bootstrap(context.Background())

	auth.unauthorize = true
	err := s.Reload(context.Background())
	if !errors.Is(err, session.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if s.State() != StateRedirectAuth {
		t.Errorf("expected redirect, got %s", s.State())
	}
}

func TestWatchReloadsOnInvalidation(t *testing.T) {
	api := newFakeAPI()
	s, bus := newShell(&fakeAuth{}, api)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Navigate(ctx, "", "")
	go s.Watch(ctx)

	deadline := time.Now().Add(time.Second)
	for bus.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	before := api.lists.Load()
	bus.Publish(events.FolderChanged("unrelated"))
	bus.Publish(events.FolderChanged(""))

	for api.lists.Load() == before && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(10 * time.Millisecond)
	if got := api.lists.Load() - before; got != 1 {
		t.Errorf("expected exactly one reload, got %d", got)
	}
}

func TestModalsAndLogout(t *testing.T) {
	auth := &fakeAuth{token: "t", refreshOK: true}
	s, _ := newShell(auth, newFakeAPI())
	s.Bootstrap(context.Background())

	s.OpenUpload(true)
	s.SetNewFolderOpen(true)
	s.SetPreview(&models.Node{ID: "x"})
	m := s.Modals()
	if !m.Upload || !m.UploadZip || !m.NewFolder || m.Preview == nil {
		t.Errorf("unexpected modals %+v", m)
	}
	s.CloseUpload()
	if m := s.Modals(); m.Upload || m.UploadZip {
		t.Error("closing upload should reset the zip flag")
	}

	s.Logout(context.Background())
	if !auth.loggedOut || s.State() != StateRedirectAuth {
		t.Error("logout should end the session and redirect")
	}
	if m := s.Modals(); m.NewFolder || m.Preview != nil {
		t.Error("logout should close modals")
	}
}

func TestViewMode(t *testing.T) {
	s, _ := newShell(&fakeAuth{}, newFakeAPI())
	s.SetViewMode(browser.ViewList)
	if s.ViewMode() != browser.ViewList {
		t.Error("expected list mode")
	}
}
