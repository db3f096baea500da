// Package dashboard is the signed-in shell: the auth gate, sidebar,
// breadcrumbs, view mode, modal flags and the current folder listing.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/fruitsalade/ecloud/internal/browser"
	"github.com/fruitsalade/ecloud/internal/events"
	"github.com/fruitsalade/ecloud/internal/logging"
	"github.com/fruitsalade/ecloud/internal/session"
	"github.com/fruitsalade/ecloud/pkg/models"
)

// MobileBreakpoint is the viewport width below which the sidebar is an
// overlay.
const MobileBreakpoint = 768

// RootName labels the root crumb.
const RootName = "My Files"

// maxDepth bounds breadcrumb resolution.
const maxDepth = 64

// State is the gate state of the shell.
type State int

const (
	StateLoading State = iota
	StateReady
	StateRedirectAuth
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRedirectAuth:
		return "redirect-auth"
	}
	return "loading"
}

// Authority is what the shell needs from the session.
type Authority interface {
	session.Runner
	AccessToken() string
	Refresh(ctx context.Context) bool
	Logout(ctx context.Context) error
}

// API is the remote side of the shell.
type API interface {
	ListChildren(ctx context.Context, parentID string) ([]*models.Node, error)
	ParentOf(ctx context.Context, id string) (*models.Node, error)
}

// Crumb is one breadcrumb entry.
type Crumb struct {
	ID   string
	Name string
}

// Modals are the visibility flags of the shell's overlays.
type Modals struct {
	Upload          bool
	UploadZip       bool
	NewFolder       bool
	AccountSettings bool
	Preview         *models.Node
}

// FolderID maps a route parameter to a folder id; the root sentinels
// "root", "" and "/" map to "".
func FolderID(route string) string {
	return models.FolderFromRoute(route)
}

// Shell is the dashboard state.
type Shell struct {
	auth Authority
	api  API
	bus  *events.Bus
	view *browser.View
	log  *zap.Logger

	mu          sync.Mutex
	state       State
	sidebarOpen bool
	mobileOpen  bool
	folderID    string
	crumbs      []Crumb
	modals      Modals
}

// NewShell creates a shell in the loading state. view receives the current
// folder's listing.
func NewShell(auth Authority, api API, bus *events.Bus, view *browser.View) *Shell {
	return &Shell{
		auth:        auth,
		api:         api,
		bus:         bus,
		view:        view,
		log:         logging.Named("dashboard"),
		sidebarOpen: true,
		crumbs:      []Crumb{{Name: RootName}},
	}
}

// Bootstrap gates the shell: with a token present it refreshes, and a
// successful refresh unlocks the shell. Anything else redirects to sign-in.
func (s *Shell) Bootstrap(ctx context.Context) State {
	next := StateRedirectAuth
	if s.auth.AccessToken() != "" && s.auth.Refresh(ctx) {
		next = StateReady
	}
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
	s.log.Debug("bootstrap", zap.Stringer("state", next))
	return next
}

// State returns the gate state.
func (s *Shell) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Shell) redirect() {
	s.mu.Lock()
	s.state = StateRedirectAuth
	s.mu.Unlock()
}

// checkAuth moves the shell to the sign-in redirect when err says the
// session is gone.
func (s *Shell) checkAuth(err error) error {
	if errors.Is(err, session.ErrUnauthorized) {
		s.redirect()
	}
	return err
}

// ToggleSidebar toggles the overlay below the mobile breakpoint and the
// docked sidebar otherwise.
func (s *Shell) ToggleSidebar(width int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if width < MobileBreakpoint {
		s.mobileOpen = !s.mobileOpen
	} else {
		s.sidebarOpen = !s.sidebarOpen
	}
}

// CloseMobileSidebar hides the overlay.
func (s *Shell) CloseMobileSidebar() {
	s.mu.Lock()
	s.mobileOpen = false
	s.mu.Unlock()
}

// Sidebar reports the docked and overlay visibility.
func (s *Shell) Sidebar() (docked, mobile bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sidebarOpen, s.mobileOpen
}

// SetViewMode switches the listing layout.
func (s *Shell) SetViewMode(m browser.ViewMode) {
	s.view.SetMode(m)
}

// ViewMode returns the listing layout.
func (s *Shell) ViewMode() browser.ViewMode {
	return s.view.Mode()
}

// View returns the listing state.
func (s *Shell) View() *browser.View {
	return s.view
}

// OpenUpload shows the upload modal, in zip-extract mode when zip is set.
func (s *Shell) OpenUpload(zip bool) {
	s.mu.Lock()
	s.modals.Upload = true
	s.modals.UploadZip = zip
	s.mobileOpen = false
	s.mu.Unlock()
}

// CloseUpload hides the upload modal and resets the zip flag.
func (s *Shell) CloseUpload() {
	s.mu.Lock()
	s.modals.Upload = false
	s.modals.UploadZip = false
	s.mu.Unlock()
}

// SetNewFolderOpen shows or hides the new-folder modal.
func (s *Shell) SetNewFolderOpen(open bool) {
	s.mu.Lock()
	s.modals.NewFolder = open
	s.mu.Unlock()
}

// SetAccountSettingsOpen shows or hides the account settings modal.
func (s *Shell) SetAccountSettingsOpen(open bool) {
	s.mu.Lock()
	s.modals.AccountSettings = open
	s.mu.Unlock()
}

// SetPreview shows the preview panel for node, or hides it when nil.
func (s *Shell) SetPreview(node *models.Node) {
	s.mu.Lock()
	s.modals.Preview = node
	s.mu.Unlock()
}

// Modals returns the modal flags.
func (s *Shell) Modals() Modals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modals
}

// FolderID returns the current folder.
func (s *Shell) FolderID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.folderID
}

// Breadcrumbs returns the path from the root to the current folder.
func (s *Shell) Breadcrumbs() []Crumb {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.crumbs)
}

// Navigate makes folderID current, resolves its breadcrumbs by walking
// parents and loads its listing. name labels the folder itself; when empty
// a known crumb name is reused.
func (s *Shell) Navigate(ctx context.Context, folderID, name string) error {
	folderID = FolderID(folderID)

	crumbs := []Crumb{{Name: RootName}}
	if folderID != "" {
		ancestors, err := s.ancestors(ctx, folderID)
		if err != nil {
			return s.checkAuth(fmt.Errorf("resolve breadcrumbs: %w", err))
		}
		if name == "" {
			name = s.knownName(folderID)
		}
		crumbs = append(crumbs, ancestors...)
		crumbs = append(crumbs, Crumb{ID: folderID, Name: name})
	}

	s.mu.Lock()
	s.folderID = folderID
	s.crumbs = crumbs
	s.mobileOpen = false
	s.mu.Unlock()

	return s.Reload(ctx)
}

func (s *Shell) knownName(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.crumbs {
		if c.ID == id {
			return c.Name
		}
	}
	if s.view != nil {
		if n := s.view.Node(id); n != nil {
			return n.Name
		}
	}
	return id
}

// ancestors returns the folders above id, outermost first.
func (s *Shell) ancestors(ctx context.Context, id string) ([]Crumb, error) {
	var chain []Crumb
	current := id
	for range maxDepth {
		var parent *models.Node
		err := s.auth.Do(ctx, func(ctx context.Context) error {
			var err error
			parent, err = s.api.ParentOf(ctx, current)
			return err
		})
		if err != nil {
			return nil, err
		}
		if parent == nil || parent.ID == "" {
			break
		}
		chain = append(chain, Crumb{ID: parent.ID, Name: parent.Name})
		current = parent.ID
	}
	slices.Reverse(chain)
	return chain, nil
}

// Back navigates to the parent of the current folder.
func (s *Shell) Back(ctx context.Context) error {
	crumbs := s.Breadcrumbs()
	if len(crumbs) < 2 {
		return s.Navigate(ctx, "", "")
	}
	parent := crumbs[len(crumbs)-2]
	return s.Navigate(ctx, parent.ID, parent.Name)
}

// Reload fetches the current folder's children into the view. An
// unrecoverable authorization failure redirects to sign-in.
func (s *Shell) Reload(ctx context.Context) error {
	folderID := s.FolderID()
	var nodes []*models.Node
	err := s.auth.Do(ctx, func(ctx context.Context) error {
		var err error
		nodes, err = s.api.ListChildren(ctx, folderID)
		return err
	})
	if err != nil {
		return s.checkAuth(fmt.Errorf("list folder: %w", err))
	}
	// Drop results for a folder the user has already left.
	if s.FolderID() != folderID {
		return nil
	}
	s.view.SetNodes(folderID, nodes)
	return nil
}

// Invalidate forwards a mutation to the bus.
func (s *Shell) Invalidate(inv events.Invalidation) {
	s.bus.Publish(inv)
}

// Watch reloads the listing whenever the current folder's children are
// invalidated. It blocks until ctx is cancelled.
func (s *Shell) Watch(ctx context.Context) {
	sub := s.bus.Subscribe(events.Topic{Query: events.QueryChildren, FolderID: events.AnyFolder})
	defer s.bus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case inv, ok := <-sub.C:
			if !ok {
				return
			}
			topic := events.Topic{Query: events.QueryChildren, FolderID: s.FolderID()}
			if !inv.Touches(topic) {
				continue
			}
			if err := s.Reload(ctx); err != nil {
				s.log.Warn("reload failed", zap.Error(err))
			}
		}
	}
}

// Logout ends the session and redirects to sign-in.
func (s *Shell) Logout(ctx context.Context) error {
	err := s.auth.Logout(ctx)
	s.mu.Lock()
	s.state = StateRedirectAuth
	s.modals = Modals{}
	s.mu.Unlock()
	s.view.SetNodes("", nil)
	return err
}
