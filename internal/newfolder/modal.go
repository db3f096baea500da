// Package newfolder is the create-folder modal.
package newfolder

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/ecloud/internal/events"
	"github.com/fruitsalade/ecloud/internal/logging"
	"github.com/fruitsalade/ecloud/internal/session"
	"github.com/fruitsalade/ecloud/pkg/models"
)

// SuccessDelay is how long the success state shows before the modal closes.
const SuccessDelay = 700 * time.Millisecond

// ErrNameRequired is returned when the name is blank.
var ErrNameRequired = errors.New("folder name is required")

// State is the modal's phase.
type State int

const (
	StateIdle State = iota
	StateCreating
	StateSuccess
	StateClosed
)

// API is the remote side of the modal.
type API interface {
	CreateFolder(ctx context.Context, name, parentID string) (*models.Node, error)
}

// Modal is the create-folder form.
type Modal struct {
	runner session.Runner
	api    API
	bus    *events.Bus
	log    *zap.Logger

	// Delay overrides SuccessDelay; tests shorten it.
	Delay time.Duration
	// OnClose runs when the modal closes itself after a success.
	OnClose func()

	mu       sync.Mutex
	state    State
	name     string
	folderID string
	errMsg   string
	timer    *time.Timer
}

// NewModal creates a closed modal.
func NewModal(runner session.Runner, api API, bus *events.Bus) *Modal {
	return &Modal{
		runner: runner,
		api:    api,
		bus:    bus,
		log:    logging.Named("newfolder"),
		Delay:  SuccessDelay,
		state:  StateClosed,
	}
}

// Open shows the modal for the folder named by route.
func (m *Modal) Open(route string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
	m.folderID = models.FolderFromRoute(route)
	m.state = StateIdle
}

// SetName sets the name field.
func (m *Modal) SetName(name string) {
	m.mu.Lock()
	m.name = name
	m.mu.Unlock()
}

// State returns the phase.
func (m *Modal) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Error returns the message shown under the field.
func (m *Modal) Error() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errMsg
}

// Create submits the form. On success the modal shows its success state
// and closes itself after Delay.
func (m *Modal) Create(ctx context.Context) (*models.Node, error) {
	m.mu.Lock()
	name := strings.TrimSpace(m.name)
	if name == "" {
		m.errMsg = "Folder name is required"
		m.mu.Unlock()
		return nil, ErrNameRequired
	}
	parentID := m.folderID
	m.errMsg = ""
	m.state = StateCreating
	m.mu.Unlock()

	var node *models.Node
	err := m.runner.Do(ctx, func(ctx context.Context) error {
		var err error
		node, err = m.api.CreateFolder(ctx, name, parentID)
		return err
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.log.Warn("create folder failed", zap.String("name", name), zap.Error(err))
		m.errMsg = "Failed to create folder"
		if m.state == StateCreating {
			m.state = StateIdle
		}
		return nil, err
	}

	m.bus.Publish(events.FolderChanged(parentID))
	if m.state != StateCreating {
		// Closed while the request was in flight.
		return node, nil
	}
	m.state = StateSuccess
	m.timer = time.AfterFunc(m.Delay, m.autoClose)
	return node, nil
}

func (m *Modal) autoClose() {
	m.mu.Lock()
	if m.state != StateSuccess {
		m.mu.Unlock()
		return
	}
	m.resetLocked()
	m.state = StateClosed
	onClose := m.OnClose
	m.mu.Unlock()

	if onClose != nil {
		onClose()
	}
}

// Close hides the modal and clears the form.
func (m *Modal) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
	m.state = StateClosed
}

func (m *Modal) resetLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.name = ""
	m.errMsg = ""
}
