// Package upload is the upload modal: every picked or dropped file becomes
// a task that uploads in parallel and reports its own progress.
package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"

	nanoid "github.com/jaevor/go-nanoid"
	"go.uber.org/zap"

	"github.com/fruitsalade/ecloud/internal/events"
	"github.com/fruitsalade/ecloud/internal/logging"
	"github.com/fruitsalade/ecloud/internal/metrics"
	"github.com/fruitsalade/ecloud/internal/session"
	"github.com/fruitsalade/ecloud/pkg/models"
	"github.com/fruitsalade/ecloud/pkg/protocol"
)

// Mode selects plain upload or server-side zip extraction.
type Mode int

const (
	ModePlain Mode = iota
	ModeZip
)

func (m Mode) String() string {
	if m == ModeZip {
		return "zip"
	}
	return "plain"
}

// Status is the lifecycle of a task.
type Status string

const (
	StatusUploading Status = "uploading"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Task is one file being uploaded.
type Task struct {
	ID       string
	Name     string
	Size     int64
	Sent     int64
	Progress int // percent
	Status   Status
	Err      error
}

// Source is a file to upload. Open is called once per attempt.
type Source struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// FileSource describes a local file.
func FileSource(path string) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Source{}, err
	}
	if info.IsDir() {
		return Source{}, fmt.Errorf("%s is a directory", path)
	}
	return Source{
		Name: filepath.Base(path),
		Size: info.Size(),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

// API is the remote side of the modal.
type API interface {
	Upload(ctx context.Context, parentID, name string, content io.Reader) (*models.Node, error)
	UploadZip(ctx context.Context, parentID, name string, content io.Reader) (*protocol.UnzipResponse, error)
}

const (
	idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	idLength   = 9
)

// Modal is the upload modal state.
type Modal struct {
	runner session.Runner
	api    API
	bus    *events.Bus
	newID  func() string
	log    *zap.Logger

	mu       sync.Mutex
	mode     Mode
	folderID string
	tasks    []*Task
	wg       sync.WaitGroup
}

// NewModal creates a closed modal.
func NewModal(runner session.Runner, api API, bus *events.Bus) (*Modal, error) {
	newID, err := nanoid.CustomASCII(idAlphabet, idLength)
	if err != nil {
		return nil, fmt.Errorf("task id generator: %w", err)
	}
	return &Modal{
		runner: runner,
		api:    api,
		bus:    bus,
		newID:  newID,
		log:    logging.Named("upload"),
	}, nil
}

// Open targets the modal at a folder route in the given mode.
func (m *Modal) Open(route string, mode Mode) {
	m.mu.Lock()
	m.folderID = models.FolderFromRoute(route)
	m.mode = mode
	m.mu.Unlock()
}

// Mode returns the upload mode.
func (m *Modal) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// FolderID returns the destination folder.
func (m *Modal) FolderID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.folderID
}

// Add starts one task per source and returns their ids. All tasks run at
// once; nothing orders or limits them.
func (m *Modal) Add(ctx context.Context, sources ...Source) []string {
	m.mu.Lock()
	mode, folderID := m.mode, m.folderID
	ids := make([]string, 0, len(sources))
	started := make([]*Task, 0, len(sources))
	for _, src := range sources {
		t := &Task{ID: m.newID(), Name: src.Name, Size: src.Size, Status: StatusUploading}
		m.tasks = append(m.tasks, t)
		ids = append(ids, t.ID)
		started = append(started, t)
	}
	m.wg.Add(len(sources))
	m.mu.Unlock()

	for i, src := range sources {
		go func() {
			defer m.wg.Done()
			m.run(ctx, started[i], src, mode, folderID)
		}()
	}
	return ids
}

func (m *Modal) run(ctx context.Context, t *Task, src Source, mode Mode, folderID string) {
	err := m.runner.Do(ctx, func(ctx context.Context) error {
		rc, err := src.Open()
		if err != nil {
			return fmt.Errorf("open %s: %w", src.Name, err)
		}
		defer rc.Close()

		m.setSent(t, 0)
		body := &progressReader{r: rc, onRead: func(n int64) { m.addSent(t, n) }}
		if mode == ModeZip {
			_, err = m.api.UploadZip(ctx, folderID, src.Name, body)
		} else {
			_, err = m.api.Upload(ctx, folderID, src.Name, body)
		}
		return err
	})

	m.mu.Lock()
	sent := t.Sent
	if err != nil {
		t.Status = StatusError
		t.Err = err
	} else {
		t.Status = StatusCompleted
		t.Progress = 100
	}
	m.mu.Unlock()

	status := string(StatusCompleted)
	if err != nil {
		status = string(StatusError)
		m.log.Warn("upload failed", zap.String("name", src.Name), zap.Error(err))
	}
	metrics.RecordUpload(mode.String(), status, sent)
	m.bus.Publish(events.FolderChanged(folderID))
}

func (m *Modal) setSent(t *Task, n int64) {
	m.mu.Lock()
	t.Sent = n
	t.Progress = 0
	m.mu.Unlock()
}

func (m *Modal) addSent(t *Task, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.Sent += n
	if t.Size > 0 {
		// 100 is reserved for confirmed completion.
		t.Progress = min(99, int(t.Sent*100/t.Size))
	}
}

// Wait blocks until every started task has finished.
func (m *Modal) Wait() {
	m.wg.Wait()
}

// Tasks returns a snapshot of the tasks in the order they were added.
func (m *Modal) Tasks() []Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Task, len(m.tasks))
	for i, t := range m.tasks {
		out[i] = *t
	}
	return out
}

// Task returns one task by id.
func (m *Modal) Task(id string) (Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := slices.IndexFunc(m.tasks, func(t *Task) bool { return t.ID == id })
	if i < 0 {
		return Task{}, false
	}
	return *m.tasks[i], true
}

// Close discards the task list and resets the mode. Uploads still in
// flight keep running; their results are simply no longer shown.
func (m *Modal) Close() {
	m.mu.Lock()
	m.tasks = nil
	m.mode = ModePlain
	m.mu.Unlock()
}

type progressReader struct {
	r      io.Reader
	onRead func(n int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.onRead(int64(n))
	}
	return n, err
}
