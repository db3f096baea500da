package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/fruitsalade/ecloud/internal/logging"
	"github.com/fruitsalade/ecloud/internal/metrics"
	"github.com/fruitsalade/ecloud/internal/session"
	"github.com/fruitsalade/ecloud/pkg/cache"
	"github.com/fruitsalade/ecloud/pkg/client"
	"github.com/fruitsalade/ecloud/pkg/models"
)

var (
	// ErrTooLarge is returned when a file exceeds MaxSize.
	ErrTooLarge = errors.New("file too large to preview")

	// ErrNothingOpen is returned by Download when no content is loaded.
	ErrNothingOpen = errors.New("no preview content")
)

// Downloader fetches file content.
type Downloader interface {
	Download(ctx context.Context, id string) (*client.Content, error)
}

// Keys understood by HandleKey.
const (
	KeyEscape     = "Escape"
	KeyArrowLeft  = "ArrowLeft"
	KeyArrowRight = "ArrowRight"
	KeyZoomIn     = "+"
	KeyZoomOut    = "-"
)

// State is a snapshot of the panel.
type State struct {
	Open        bool
	Loading     bool
	Node        *models.Node
	View        View
	Text        string
	BlobPath    string
	ContentType string
	Error       string
	Index       int // position in the previewable list, -1 if absent
	Count       int
	Image       ImageViewer
}

// Previewer is the preview panel of the file view.
type Previewer struct {
	runner session.Runner
	api    Downloader
	blobs  *cache.Cache
	log    *zap.Logger

	mu          sync.Mutex
	list        []*models.Node
	open        bool
	loading     bool
	node        *models.Node
	view        View
	text        string
	blobKey     string
	contentType string
	errMsg      string
	image       ImageViewer
	seq         uint64
}

// NewPreviewer creates a closed panel. Binary content is held in blobs.
func NewPreviewer(runner session.Runner, api Downloader, blobs *cache.Cache) *Previewer {
	return &Previewer{
		runner: runner,
		api:    api,
		blobs:  blobs,
		log:    logging.Named("preview"),
		image:  NewImageViewer(),
	}
}

// SetList sets the listing that Next and Prev walk. Only previewable nodes
// are kept, in their original order.
func (p *Previewer) SetList(nodes []*models.Node) {
	filtered := Filter(nodes)
	p.mu.Lock()
	p.list = filtered
	p.mu.Unlock()
}

// Open loads node into the panel. Folders are ignored. Oversized files open
// the panel in an error state and return ErrTooLarge.
func (p *Previewer) Open(ctx context.Context, node *models.Node) error {
	if node == nil || node.IsFolder() {
		return nil
	}

	p.mu.Lock()
	p.seq++
	seq := p.seq
	p.image.Reset()
	if node.Size > MaxSize {
		p.releaseLocked()
		p.open = true
		p.node = node
		p.view = ViewNone
		p.text = ""
		p.errMsg = fmt.Sprintf("file is too large to preview (max %s)", models.FormatSize(MaxSize))
		p.mu.Unlock()
		return ErrTooLarge
	}
	p.loading = true
	p.errMsg = ""
	p.text = ""
	p.releaseLocked()
	p.mu.Unlock()

	var (
		data        []byte
		contentType string
	)
	err := p.runner.Do(ctx, func(ctx context.Context) error {
		content, err := p.api.Download(ctx, node.ID)
		if err != nil {
			return err
		}
		defer content.Body.Close()
		contentType = content.ContentType
		data, err = io.ReadAll(io.LimitReader(content.Body, MaxSize+1))
		if err != nil {
			return fmt.Errorf("read content: %w", err)
		}
		if len(data) > MaxSize {
			return ErrTooLarge
		}
		return nil
	})

	view := Route(node, contentType)
	var blobKey string
	if err == nil && view != ViewText && !p.superseded(seq) {
		blobKey, err = p.storeBlob(node, seq, data, contentType)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if seq != p.seq {
		// A later Open or a Close superseded this one.
		if blobKey != "" {
			p.blobs.Release(blobKey)
		}
		return err
	}

	p.loading = false
	p.open = true
	if err != nil {
		p.log.Warn("preview failed", zap.String("id", node.ID), zap.Error(err))
		p.node = node
		p.view = ViewNone
		p.errMsg = "failed to load preview"
		return err
	}

	p.node = node
	p.view = view
	p.contentType = contentType
	if view == ViewText {
		p.text = string(data)
	} else {
		p.blobKey = blobKey
	}
	metrics.RecordPreviewBytes(int64(len(data)))
	p.reportBlobs()
	return nil
}

func (p *Previewer) superseded(seq uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return seq != p.seq
}

// storeBlob caches a load's content under a key unique to that load, so an
// overlapping load of the same node never touches this one's blob.
func (p *Previewer) storeBlob(node *models.Node, seq uint64, data []byte, contentType string) (string, error) {
	if node.Mime != "" {
		contentType = node.Mime
	}
	key := "preview-" + node.ID + "-" + strconv.FormatUint(seq, 10)
	if _, err := p.blobs.Put(key, bytes.NewReader(data), contentType); err != nil {
		return "", err
	}
	if err := p.blobs.Pin(key); err != nil {
		return "", err
	}
	return key, nil
}

// releaseLocked drops the current blob. Must be called with lock held.
func (p *Previewer) releaseLocked() {
	if p.blobKey != "" {
		p.blobs.Release(p.blobKey)
		p.blobKey = ""
		p.reportBlobs()
	}
}

func (p *Previewer) reportBlobs() {
	_, _, n := p.blobs.Stats()
	metrics.SetPreviewBlobsActive(n)
}

// Close hides the panel and releases its content.
func (p *Previewer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	p.open = false
	p.loading = false
	p.node = nil
	p.view = ViewNone
	p.text = ""
	p.errMsg = ""
	p.contentType = ""
	p.releaseLocked()
	p.image.Reset()
}

// Teardown releases everything the panel holds, including blobs left by
// loads that are still in flight when they complete.
func (p *Previewer) Teardown() {
	p.Close()
	p.mu.Lock()
	p.list = nil
	p.mu.Unlock()
}

func (p *Previewer) indexLocked() int {
	if p.node == nil {
		return -1
	}
	for i, n := range p.list {
		if n.ID == p.node.ID {
			return i
		}
	}
	return -1
}

// Next opens the following previewable node. It reports whether it moved.
func (p *Previewer) Next(ctx context.Context) (bool, error) {
	p.mu.Lock()
	i := p.indexLocked()
	if i < 0 || i >= len(p.list)-1 {
		p.mu.Unlock()
		return false, nil
	}
	next := p.list[i+1]
	p.mu.Unlock()
	return true, p.Open(ctx, next)
}

// Prev opens the preceding previewable node. It reports whether it moved.
func (p *Previewer) Prev(ctx context.Context) (bool, error) {
	p.mu.Lock()
	i := p.indexLocked()
	if i <= 0 {
		p.mu.Unlock()
		return false, nil
	}
	prev := p.list[i-1]
	p.mu.Unlock()
	return true, p.Open(ctx, prev)
}

// OpenIndex opens the i-th previewable node, as a thumbnail strip would.
func (p *Previewer) OpenIndex(ctx context.Context, i int) error {
	p.mu.Lock()
	if i < 0 || i >= len(p.list) {
		p.mu.Unlock()
		return nil
	}
	node := p.list[i]
	p.mu.Unlock()
	return p.Open(ctx, node)
}

// HandleKey applies a key press while the panel is open. It reports whether
// the key was consumed.
func (p *Previewer) HandleKey(ctx context.Context, key string) (bool, error) {
	if !p.IsOpen() {
		return false, nil
	}
	switch key {
	case KeyEscape:
		p.Close()
		return true, nil
	case KeyArrowLeft:
		_, err := p.Prev(ctx)
		return true, err
	case KeyArrowRight:
		_, err := p.Next(ctx)
		return true, err
	case KeyZoomIn:
		p.ZoomIn()
		return true, nil
	case KeyZoomOut:
		p.ZoomOut()
		return true, nil
	}
	return false, nil
}

// ZoomIn zooms the image viewer in.
func (p *Previewer) ZoomIn() {
	p.mu.Lock()
	p.image.ZoomIn()
	p.mu.Unlock()
}

// ZoomOut zooms the image viewer out.
func (p *Previewer) ZoomOut() {
	p.mu.Lock()
	p.image.ZoomOut()
	p.mu.Unlock()
}

// Rotate turns the image a quarter turn.
func (p *Previewer) Rotate() {
	p.mu.Lock()
	p.image.Rotate()
	p.mu.Unlock()
}

// BeginPan starts panning the image; see ImageViewer.BeginPan.
func (p *Previewer) BeginPan(x, y float64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.image.BeginPan(x, y)
}

// MovePan continues a pan.
func (p *Previewer) MovePan(x, y float64) {
	p.mu.Lock()
	p.image.MovePan(x, y)
	p.mu.Unlock()
}

// EndPan finishes a pan.
func (p *Previewer) EndPan() {
	p.mu.Lock()
	p.image.EndPan()
	p.mu.Unlock()
}

// IsOpen reports whether the panel is visible.
func (p *Previewer) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

// State returns a snapshot of the panel.
func (p *Previewer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := State{
		Open:        p.open,
		Loading:     p.loading,
		Node:        p.node,
		View:        p.view,
		Text:        p.text,
		ContentType: p.contentType,
		Error:       p.errMsg,
		Index:       p.indexLocked(),
		Count:       len(p.list),
		Image:       p.image,
	}
	if p.blobKey != "" {
		if e, ok := p.blobs.Get(p.blobKey); ok {
			st.BlobPath = e.LocalPath
		}
	}
	return st
}

// Download writes the loaded content to w and returns the suggested file
// name.
func (p *Previewer) Download(w io.Writer) (string, error) {
	p.mu.Lock()
	node, text, key := p.node, p.text, p.blobKey
	p.mu.Unlock()

	if node == nil {
		return "", ErrNothingOpen
	}
	name := node.Name
	if strings.TrimSpace(name) == "" {
		name = "file"
	}

	if key == "" {
		if text == "" {
			return "", ErrNothingOpen
		}
		_, err := io.WriteString(w, text)
		return name, err
	}

	rc, err := p.blobs.Open(key)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	if _, err := io.Copy(w, rc); err != nil {
		return "", fmt.Errorf("copy preview: %w", err)
	}
	return name, nil
}
