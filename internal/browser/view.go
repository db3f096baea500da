// Package browser holds the state of the file grid/list: the nodes on
// screen, the selection, optimistic deletes and drag-and-drop moves.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fruitsalade/ecloud/internal/events"
	"github.com/fruitsalade/ecloud/internal/logging"
	"github.com/fruitsalade/ecloud/internal/metrics"
	"github.com/fruitsalade/ecloud/internal/preview"
	"github.com/fruitsalade/ecloud/internal/session"
	"github.com/fruitsalade/ecloud/pkg/models"
)

// ViewMode is the layout of the listing.
type ViewMode int

const (
	ViewGrid ViewMode = iota
	ViewList
)

func (m ViewMode) String() string {
	if m == ViewList {
		return "list"
	}
	return "grid"
}

// Modifiers are the keys held during a click.
type Modifiers struct {
	Shift, Ctrl, Meta bool
}

// Multi reports whether the click toggles selection membership.
func (m Modifiers) Multi() bool {
	return m.Shift || m.Ctrl || m.Meta
}

// Action is what the front end should do after a click.
type Action int

const (
	ActionNone Action = iota
	ActionSelect
	ActionNavigate
	ActionPreview
	ActionOpen
)

// API is the remote side of the mutations the view performs.
type API interface {
	Delete(ctx context.Context, id string) error
	Move(ctx context.Context, id, parentID string) (*models.Node, error)
}

// View is the state of one folder listing.
type View struct {
	runner session.Runner
	api    API
	bus    *events.Bus
	log    *zap.Logger

	mu       sync.Mutex
	folderID string
	nodes    []*models.Node
	rank     map[string]int // position in the last listing
	mode     ViewMode
	selected map[string]struct{}
	removing map[string]struct{}
	dragOver string
}

// NewView creates an empty view.
func NewView(runner session.Runner, api API, bus *events.Bus) *View {
	return &View{
		runner:   runner,
		api:      api,
		bus:      bus,
		log:      logging.Named("browser"),
		selected: make(map[string]struct{}),
		removing: make(map[string]struct{}),
	}
}

// SetNodes replaces the listing. Changing folder clears the selection.
func (v *View) SetNodes(folderID string, nodes []*models.Node) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if folderID != v.folderID {
		clear(v.selected)
		v.dragOver = ""
	}
	v.folderID = folderID
	v.nodes = slices.Clone(nodes)
	v.rank = make(map[string]int, len(nodes))
	for i, n := range nodes {
		v.rank[n.ID] = i
	}
}

// FolderID returns the folder being shown.
func (v *View) FolderID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.folderID
}

// Nodes returns the nodes in display order.
func (v *View) Nodes() []*models.Node {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.nodes)
}

// Node returns the node with id, if shown.
func (v *View) Node(id string) *models.Node {
	v.mu.Lock()
	defer v.mu.Unlock()
	if i := v.indexLocked(id); i >= 0 {
		return v.nodes[i]
	}
	return nil
}

func (v *View) indexLocked(id string) int {
	return slices.IndexFunc(v.nodes, func(n *models.Node) bool { return n.ID == id })
}

// SetMode switches between grid and list layout.
func (v *View) SetMode(m ViewMode) {
	v.mu.Lock()
	v.mode = m
	v.mu.Unlock()
}

// Mode returns the layout.
func (v *View) Mode() ViewMode {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mode
}

// Previewable returns the previewable nodes in display order.
func (v *View) Previewable() []*models.Node {
	return preview.Filter(v.Nodes())
}

// Selected returns the selected ids in display order.
func (v *View) Selected() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.selectedLocked()
}

func (v *View) selectedLocked() []string {
	ids := make([]string, 0, len(v.selected))
	for _, n := range v.nodes {
		if _, ok := v.selected[n.ID]; ok {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

// IsSelected reports whether id is selected.
func (v *View) IsSelected(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.selected[id]
	return ok
}

// ClearSelection empties the selection.
func (v *View) ClearSelection() {
	v.mu.Lock()
	clear(v.selected)
	v.mu.Unlock()
}

// Removing reports whether id has a delete in flight.
func (v *View) Removing(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.removing[id]
	return ok
}

// Click handles a single click. A folder navigates. With a modifier a file
// toggles its selection membership; without one it becomes the only
// selection and, when previewable, opens the preview.
func (v *View) Click(id string, mods Modifiers) (Action, *models.Node) {
	v.mu.Lock()
	defer v.mu.Unlock()

	i := v.indexLocked(id)
	if i < 0 {
		return ActionNone, nil
	}
	node := v.nodes[i]
	if node.IsFolder() {
		return ActionNavigate, node
	}

	if mods.Multi() {
		if _, ok := v.selected[id]; ok {
			delete(v.selected, id)
		} else {
			v.selected[id] = struct{}{}
		}
		return ActionSelect, node
	}

	clear(v.selected)
	v.selected[id] = struct{}{}
	if preview.Previewable(node) {
		return ActionPreview, node
	}
	return ActionSelect, node
}

// DoubleClick opens a node: folders navigate, previewable files preview,
// anything else falls back to download.
func (v *View) DoubleClick(id string) (Action, *models.Node) {
	node := v.Node(id)
	switch {
	case node == nil:
		return ActionNone, nil
	case node.IsFolder():
		return ActionNavigate, node
	case preview.Previewable(node):
		return ActionPreview, node
	}
	return ActionOpen, node
}

// Delete removes id from the view at once and deletes it remotely. If the
// remote call fails the node goes back to its original position. The
// folder is invalidated either way so the next fetch reconciles.
func (v *View) Delete(ctx context.Context, id string) error {
	v.mu.Lock()
	idx := v.indexLocked(id)
	if idx < 0 {
		v.mu.Unlock()
		return nil
	}
	node := v.nodes[idx]
	folderID := v.folderID
	v.nodes = slices.Delete(v.nodes, idx, idx+1)
	v.removing[id] = struct{}{}
	delete(v.selected, id)
	v.mu.Unlock()

	err := v.runner.Do(ctx, func(ctx context.Context) error {
		return v.api.Delete(ctx, id)
	})

	v.mu.Lock()
	delete(v.removing, id)
	if err != nil {
		v.restoreLocked(idx, node)
		metrics.RecordRollback("delete")
		v.log.Warn("delete failed, restoring node", zap.String("id", id), zap.Error(err))
	}
	v.mu.Unlock()

	metrics.RecordDelete(err == nil)
	v.bus.Publish(events.FolderChanged(folderID))
	return err
}

// restoreLocked puts node back in listing order: before the first shown
// node that came after it. Rollbacks that finish out of order still land
// where they were. Nodes the listing never had go to idx, clamped.
func (v *View) restoreLocked(idx int, node *models.Node) {
	if r, ok := v.rank[node.ID]; ok {
		idx = slices.IndexFunc(v.nodes, func(n *models.Node) bool {
			nr, known := v.rank[n.ID]
			return known && nr > r
		})
		if idx < 0 {
			idx = len(v.nodes)
		}
	}
	idx = min(max(0, idx), len(v.nodes))
	v.nodes = slices.Insert(v.nodes, idx, node)
}

// DragPayload is the data carried by a drag.
type DragPayload struct {
	IDs []string `json:"ids"`
}

// DragPayload serialises the ids a drag of id carries: the whole selection
// when id is part of it, otherwise id alone.
func (v *View) DragPayload(id string) ([]byte, error) {
	v.mu.Lock()
	ids := []string{id}
	if _, ok := v.selected[id]; ok {
		ids = v.selectedLocked()
	}
	v.mu.Unlock()
	return json.Marshal(DragPayload{IDs: ids})
}

// ParsePayload decodes a drag payload.
func ParsePayload(data []byte) ([]string, error) {
	var p DragPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse drag payload: %w", err)
	}
	return p.IDs, nil
}

// DragOver highlights folderID as the drop target.
func (v *View) DragOver(folderID string) {
	v.mu.Lock()
	v.dragOver = folderID
	v.mu.Unlock()
}

// DragLeave clears the highlight if it is still on folderID.
func (v *View) DragLeave(folderID string) {
	v.mu.Lock()
	if v.dragOver == folderID {
		v.dragOver = ""
	}
	v.mu.Unlock()
}

// DragTarget returns the highlighted folder id.
func (v *View) DragTarget() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.dragOver
}

// ErrNotFolder is returned when a drop targets a file.
var ErrNotFolder = errors.New("drop target is not a folder")

// MoveResult reports the outcome of a drop.
type MoveResult struct {
	Moved  []string
	Failed map[string]error
}

// Drop moves the ids in payload into targetID. The target itself is never
// moved into itself. Moved nodes leave the view at once and all moves run
// concurrently; nodes whose move fails return to their original positions.
func (v *View) Drop(ctx context.Context, targetID string, payload []byte) (MoveResult, error) {
	v.DragLeave(targetID)

	ids, err := ParsePayload(payload)
	if err != nil {
		return MoveResult{}, err
	}
	return v.Move(ctx, targetID, ids)
}

// Move is Drop with the ids already decoded.
func (v *View) Move(ctx context.Context, targetID string, ids []string) (MoveResult, error) {
	result := MoveResult{Failed: make(map[string]error)}

	seen := make(map[string]bool, len(ids))
	toMove := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || id == targetID || seen[id] {
			continue
		}
		seen[id] = true
		toMove = append(toMove, id)
	}
	if len(toMove) == 0 {
		return result, nil
	}

	type removed struct {
		idx  int
		node *models.Node
	}

	v.mu.Lock()
	if i := v.indexLocked(targetID); i >= 0 && !v.nodes[i].IsFolder() {
		v.mu.Unlock()
		return result, ErrNotFolder
	}
	folderID := v.folderID
	original := make(map[string]removed, len(toMove))
	for i, n := range v.nodes {
		if seen[n.ID] {
			original[n.ID] = removed{idx: i, node: n}
		}
	}
	v.nodes = slices.DeleteFunc(v.nodes, func(n *models.Node) bool { return seen[n.ID] })
	for _, id := range toMove {
		delete(v.selected, id)
	}
	v.dragOver = ""
	v.mu.Unlock()

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, id := range toMove {
		g.Go(func() error {
			err := v.runner.Do(ctx, func(ctx context.Context) error {
				_, err := v.api.Move(ctx, id, targetID)
				return err
			})
			metrics.RecordMove(err == nil)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed[id] = err
			} else {
				result.Moved = append(result.Moved, id)
			}
			return nil
		})
	}
	g.Wait()

	if len(result.Failed) > 0 {
		restore := make([]removed, 0, len(result.Failed))
		for id := range result.Failed {
			if r, ok := original[id]; ok {
				restore = append(restore, r)
			}
		}
		slices.SortFunc(restore, func(a, b removed) int { return a.idx - b.idx })

		v.mu.Lock()
		for _, r := range restore {
			v.restoreLocked(r.idx, r.node)
			metrics.RecordRollback("move")
		}
		v.mu.Unlock()
	}

	slices.Sort(result.Moved)
	v.bus.Publish(events.MoveInvalidation(folderID, targetID))

	var errs []error
	for id, err := range result.Failed {
		v.log.Warn("move failed, restoring node", zap.String("id", id), zap.Error(err))
		errs = append(errs, fmt.Errorf("move %s: %w", id, err))
	}
	return result, errors.Join(errs...)
}
