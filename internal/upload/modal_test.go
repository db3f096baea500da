package upload

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/fruitsalade/ecloud/internal/events"
	"github.com/fruitsalade/ecloud/pkg/models"
	"github.com/fruitsalade/ecloud/pkg/protocol"
)

type direct struct{}

func (direct) Do(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

type fakeAPI struct {
	mu       sync.Mutex
	uploaded map[string]string
	zipped   []string
	parents  []string
	fail     map[string]bool
}

func (f *fakeAPI) record(parentID, name string, content io.Reader) error {
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.parents = append(f.parents, parentID)
	if f.fail[name] {
		return errors.New("upload failed with status 500")
	}
	if f.uploaded == nil {
		f.uploaded = make(map[string]string)
	}
	f.uploaded[name] = string(data)
	return nil
}

func (f *fakeAPI) Upload(ctx context.Context, parentID, name string, content io.Reader) (*models.Node, error) {
	if err := f.record(parentID, name, content); err != nil {
		return nil, err
	}
	return &models.Node{ID: "n-" + name, Name: name}, nil
}

func (f *fakeAPI) UploadZip(ctx context.Context, parentID, name string, content io.Reader) (*protocol.UnzipResponse, error) {
	if err := f.record(parentID, name, content); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.zipped = append(f.zipped, name)
	f.mu.Unlock()
	return &protocol.UnzipResponse{CreatedCount: 2}, nil
}

func memSource(name, body string) Source {
	return Source{
		Name: name,
		Size: int64(len(body)),
		Open: func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader(body)), nil },
	}
}

func newModal(t *testing.T, api *fakeAPI) (*Modal, *events.Bus) {
	t.Helper()
	bus := events.NewBus()
	m, err := NewModal(direct{}, api, bus)
	if err != nil {
		t.Fatalf("NewModal: %v", err)
	}
	return m, bus
}

func TestUploadTasksComplete(t *testing.T) {
	api := &fakeAPI{fail: map[string]bool{"bad.txt": true}}
	m, bus := newModal(t, api)
	m.Open("root", ModePlain)

	ids := m.Add(context.Background(), memSource("a.txt", "alpha"), memSource("bad.txt", "x"), memSource("c.txt", "charlie"))
	if len(ids) != 3 {
		t.Fatalf("expected 3 ids, got %d", len(ids))
	}
	for _, id := range ids {
		if len(id) != idLength {
			t.Errorf("expected %d-char id, got %q", idLength, id)
		}
	}
	m.Wait()

	tasks := m.Tasks()
	want := []Status{StatusCompleted, StatusError, StatusCompleted}
	for i, task := range tasks {
		if task.Status != want[i] {
			t.Errorf("task %s: status %s, want %s", task.Name, task.Status, want[i])
		}
	}
	if tasks[0].Progress != 100 || tasks[0].Sent != 5 {
		t.Errorf("completed task should be at 100%%, got %+v", tasks[0])
	}
	if tasks[1].Err == nil {
		t.Error("failed task should carry its error")
	}
	if api.uploaded["c.txt"] != "charlie" {
		t.Errorf("unexpected upload content %q", api.uploaded["c.txt"])
	}
	for _, p := range api.parents {
		if p != "" {
			t.Errorf("root sentinel should map to empty parent, got %q", p)
		}
	}
	if bus.Generation() != 3 {
		t.Errorf("expected an invalidation per task, got %d", bus.Generation())
	}
}

func TestUploadZipMode(t *testing.T) {
	api := &fakeAPI{}
	m, _ := newModal(t, api)
	m.Open("folder-1", ModeZip)

	m.Add(context.Background(), memSource("bundle.zip", "PK"))
	m.Wait()

	if len(api.zipped) != 1 || api.parents[0] != "folder-1" {
		t.Errorf("expected zip upload into folder-1, got %v %v", api.zipped, api.parents)
	}
}

func TestUploadOpenFailure(t *testing.T) {
	m, _ := newModal(t, &fakeAPI{})
	m.Open("", ModePlain)

	src := Source{Name: "gone", Open: func() (io.ReadCloser, error) { return nil, os.ErrNotExist }}
	ids := m.Add(context.Background(), src)
	m.Wait()

	task, ok := m.Task(ids[0])
	if !ok || task.Status != StatusError || !errors.Is(task.Err, os.ErrNotExist) {
		t.Errorf("expected error task, got %+v", task)
	}
}

func TestCloseDiscardsTasks(t *testing.T) {
	m, _ := newModal(t, &fakeAPI{})
	m.Open("", ModeZip)
	m.Add(context.Background(), memSource("a.txt", "a"))
	m.Close()
	m.Wait()

	if len(m.Tasks()) != 0 {
		t.Error("close should discard tasks")
	}
	if m.Mode() != ModePlain {
		t.Error("close should reset the mode")
	}
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	os.WriteFile(path, []byte("# hi"), 0o644)

	src, err := FileSource(path)
	if err != nil {
		t.Fatalf("FileSource: %v", err)
	}
	if src.Name != "notes.md" || src.Size != 4 {
		t.Errorf("unexpected source %+v", src)
	}
	rc, err := src.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	rc.Close()

	if _, err := FileSource(dir); err == nil {
		t.Error("directories should be rejected")
	}
}

func TestProgressReader(t *testing.T) {
	var total int64
	r := &progressReader{r: strings.NewReader("0123456789"), onRead: func(n int64) { total += n }}
	io.Copy(io.Discard, r)
	if total != 10 {
		t.Errorf("expected 10 bytes counted, got %d", total)
	}
}
