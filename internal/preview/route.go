// Package preview decides which files can be previewed and drives the
// preview panel: fetching content, holding blobs, the image viewer and
// keyboard navigation.
package preview

import (
	"strings"

	"github.com/fruitsalade/ecloud/pkg/models"
)

// MaxSize is the largest file the panel will fetch.
const MaxSize = 8 << 20

// View is the renderer a file is routed to.
type View int

const (
	ViewNone View = iota
	ViewText
	ViewImage
	ViewPDF
	ViewAudio
	ViewVideo
	ViewDownload
)

var viewNames = map[View]string{
	ViewNone:     "none",
	ViewText:     "text",
	ViewImage:    "image",
	ViewPDF:      "pdf",
	ViewAudio:    "audio",
	ViewVideo:    "video",
	ViewDownload: "download",
}

func (v View) String() string {
	return viewNames[v]
}

// Previewable reports whether node can be shown in the panel.
func Previewable(node *models.Node) bool {
	if node == nil || node.IsFolder() {
		return false
	}
	if node.Size > MaxSize {
		return false
	}
	mime := strings.ToLower(node.Mime)
	kind := node.Kind()
	switch {
	case strings.HasPrefix(mime, "image/"),
		strings.HasPrefix(mime, "text/"),
		strings.HasPrefix(mime, "audio/"),
		strings.HasPrefix(mime, "video/"),
		mime == "application/pdf",
		kind == models.KindPDF,
		kind == models.KindCode:
		return true
	}
	return false
}

// Filter returns the previewable nodes of list, in order.
func Filter(list []*models.Node) []*models.Node {
	out := make([]*models.Node, 0, len(list))
	for _, n := range list {
		if Previewable(n) {
			out = append(out, n)
		}
	}
	return out
}

// Route picks the renderer for node. The node's own MIME type wins; the
// type reported by the download is used when the node has none.
func Route(node *models.Node, detected string) View {
	mime := strings.ToLower(node.Mime)
	if mime == "" {
		mime = strings.ToLower(detected)
	}
	kind := node.Kind()
	switch {
	case strings.HasPrefix(mime, "text/") || kind == models.KindCode:
		return ViewText
	case strings.HasPrefix(mime, "image/"):
		return ViewImage
	case mime == "application/pdf" || kind == models.KindPDF:
		return ViewPDF
	case strings.HasPrefix(mime, "audio/"):
		return ViewAudio
	case strings.HasPrefix(mime, "video/"):
		return ViewVideo
	}
	return ViewDownload
}
