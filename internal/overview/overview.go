// Package overview computes the storage overview panel of a folder: the
// per-type usage bar and the summary cards.
package overview

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fruitsalade/ecloud/internal/events"
	"github.com/fruitsalade/ecloud/internal/logging"
	"github.com/fruitsalade/ecloud/internal/session"
	"github.com/fruitsalade/ecloud/pkg/models"
)

// Category groups stat types for colouring the usage bar.
type Category string

const (
	CategoryImage    Category = "image"
	CategoryVideo    Category = "video"
	CategoryAudio    Category = "audio"
	CategoryCode     Category = "code"
	CategoryDocument Category = "document"
	CategoryFolder   Category = "folder"
	CategoryOther    Category = "other"
)

var categories = map[string]Category{
	"png": CategoryImage, "jpg": CategoryImage, "jpeg": CategoryImage, "gif": CategoryImage,
	"bmp": CategoryImage, "svg": CategoryImage, "webp": CategoryImage,
	"mp4": CategoryVideo, "mov": CategoryVideo, "mkv": CategoryVideo, "avi": CategoryVideo, "webm": CategoryVideo,
	"mp3": CategoryAudio, "wav": CategoryAudio, "flac": CategoryAudio, "aac": CategoryAudio,
	"js": CategoryCode, "ts": CategoryCode, "go": CategoryCode, "py": CategoryCode, "rb": CategoryCode,
	"java": CategoryCode, "c": CategoryCode, "cpp": CategoryCode, "rs": CategoryCode,
	"pdf": CategoryDocument, "doc": CategoryDocument, "docx": CategoryDocument, "xls": CategoryDocument,
	"xlsx": CategoryDocument, "ppt": CategoryDocument, "pptx": CategoryDocument, "txt": CategoryDocument,
	"md": CategoryDocument, "folder": CategoryFolder,
}

// CategoryOf maps a stat type (an extension, "folder" or "unknown") to its
// category.
func CategoryOf(statType string) Category {
	if c, ok := categories[strings.ToLower(statType)]; ok {
		return c
	}
	return CategoryOther
}

// Segment is one slice of the usage bar.
type Segment struct {
	Type     string
	Count    int
	Percent  float64
	Category Category
}

// Summary feeds the summary cards.
type Summary struct {
	TotalItems int
	Files      int
	Folders    int
	Bytes      int64
}

// Report is the overview of one folder.
type Report struct {
	FolderID string
	Segments []Segment
	Summary  Summary
}

// Label renders a segment legend entry, e.g. "png 42% · 3".
func (s Segment) Label() string {
	return fmt.Sprintf("%s %s%% · %d", s.Type, strings.TrimSuffix(fmt.Sprintf("%.1f", s.Percent), ".0"), s.Count)
}

// API is the remote side of the overview.
type API interface {
	FolderStats(ctx context.Context, parentID string, recursive bool) (*models.FolderStats, error)
	ListChildren(ctx context.Context, parentID string) ([]*models.Node, error)
}

// Overview loads reports.
type Overview struct {
	runner    session.Runner
	api       API
	bus       *events.Bus
	log       *zap.Logger
	Recursive bool
}

// New creates an overview loader.
func New(runner session.Runner, api API, bus *events.Bus) *Overview {
	return &Overview{runner: runner, api: api, bus: bus, log: logging.Named("overview")}
}

// Load fetches the folder's stats and children concurrently. Either fetch
// may fail on its own; the report then carries whatever did load and the
// error says what did not.
func (o *Overview) Load(ctx context.Context, folderID string) (Report, error) {
	var (
		stats    *models.FolderStats
		children []*models.Node
		statsErr error
		listErr  error
		g        errgroup.Group
	)
	g.Go(func() error {
		statsErr = o.runner.Do(ctx, func(ctx context.Context) error {
			var err error
			stats, err = o.api.FolderStats(ctx, folderID, o.Recursive)
			return err
		})
		return nil
	})
	g.Go(func() error {
		listErr = o.runner.Do(ctx, func(ctx context.Context) error {
			var err error
			children, err = o.api.ListChildren(ctx, folderID)
			return err
		})
		return nil
	})
	g.Wait()

	if statsErr != nil {
		o.log.Warn("fetch stats failed", zap.String("folder", folderID), zap.Error(statsErr))
		statsErr = fmt.Errorf("folder stats: %w", statsErr)
	}
	if listErr != nil {
		o.log.Warn("fetch children failed", zap.String("folder", folderID), zap.Error(listErr))
		listErr = fmt.Errorf("list children: %w", listErr)
	}
	return Build(folderID, stats, children), errors.Join(statsErr, listErr)
}

// Build assembles a report. Segments are ordered by descending percent,
// ties by type. The item total prefers the server's count and falls back to
// the number of children.
func Build(folderID string, stats *models.FolderStats, children []*models.Node) Report {
	r := Report{FolderID: folderID}

	if stats != nil {
		r.Summary.TotalItems = stats.TotalItems
		for _, s := range stats.Stats {
			r.Segments = append(r.Segments, Segment{
				Type:     s.Type,
				Count:    s.Count,
				Percent:  s.Percent,
				Category: CategoryOf(s.Type),
			})
		}
		slices.SortStableFunc(r.Segments, func(a, b Segment) int {
			if c := cmp.Compare(b.Percent, a.Percent); c != 0 {
				return c
			}
			return cmp.Compare(a.Type, b.Type)
		})
	} else {
		r.Summary.TotalItems = len(children)
	}

	for _, n := range children {
		if n.IsFolder() {
			r.Summary.Folders++
			continue
		}
		r.Summary.Files++
		r.Summary.Bytes += n.Size
	}
	return r
}

// Watch reloads the folder's report whenever its stats or children are
// invalidated and passes each result to fn. It blocks until ctx is
// cancelled.
func (o *Overview) Watch(ctx context.Context, folderID string, fn func(Report, error)) {
	sub := o.bus.Subscribe(events.FolderTopics(folderID)...)
	defer o.bus.Unsubscribe(sub)

	fn(o.Load(ctx, folderID))
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.C:
			if !ok {
				return
			}
			fn(o.Load(ctx, folderID))
		}
	}
}
