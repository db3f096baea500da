// Package models contains the data types shared by the API client and the
// UI state packages.
package models

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Wire values of Node.Type.
const (
	TypeFile   = "file"
	TypeFolder = "folder"
)

// Kind is the UI type tag derived from a node's MIME type and name.
type Kind string

const (
	KindFolder       Kind = "folder"
	KindDocument     Kind = "document"
	KindImage        Kind = "image"
	KindVideo        Kind = "video"
	KindAudio        Kind = "audio"
	KindCode         Kind = "code"
	KindSpreadsheet  Kind = "spreadsheet"
	KindPresentation Kind = "presentation"
	KindPDF          Kind = "pdf"
)

// Node represents a file or folder owned by the current account.
type Node struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id,omitempty"`
	ParentID  string    `json:"parent_id,omitempty"` // root: empty
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Size      int64     `json:"size,omitempty"`
	Mime      string    `json:"mime,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsFolder reports whether the node is a folder.
func (n *Node) IsFolder() bool {
	return n.Type == TypeFolder
}

// Ext returns the lower-case extension of the node name without the dot.
func (n *Node) Ext() string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(n.Name), "."))
}

var extKinds = map[string]Kind{
	"go": KindCode, "js": KindCode, "ts": KindCode, "tsx": KindCode, "jsx": KindCode,
	"py": KindCode, "rb": KindCode, "java": KindCode, "c": KindCode, "h": KindCode,
	"cpp": KindCode, "rs": KindCode, "sh": KindCode, "json": KindCode, "yaml": KindCode,
	"yml": KindCode, "toml": KindCode, "sql": KindCode, "css": KindCode, "html": KindCode,
	"xls": KindSpreadsheet, "xlsx": KindSpreadsheet, "csv": KindSpreadsheet, "ods": KindSpreadsheet,
	"ppt": KindPresentation, "pptx": KindPresentation, "odp": KindPresentation, "key": KindPresentation,
	"pdf": KindPDF,
	"png": KindImage, "jpg": KindImage, "jpeg": KindImage, "gif": KindImage, "bmp": KindImage,
	"svg": KindImage, "webp": KindImage,
	"mp4": KindVideo, "mov": KindVideo, "mkv": KindVideo, "avi": KindVideo, "webm": KindVideo,
	"mp3": KindAudio, "wav": KindAudio, "flac": KindAudio, "aac": KindAudio, "ogg": KindAudio,
}

// Kind derives the UI type tag. MIME wins over the extension except for
// generic text and octet-stream types.
func (n *Node) Kind() Kind {
	if n.IsFolder() {
		return KindFolder
	}
	mime := strings.ToLower(n.Mime)
	switch {
	case mime == "application/pdf":
		return KindPDF
	case strings.HasPrefix(mime, "image/"):
		return KindImage
	case strings.HasPrefix(mime, "video/"):
		return KindVideo
	case strings.HasPrefix(mime, "audio/"):
		return KindAudio
	}
	if k, ok := extKinds[n.Ext()]; ok {
		return k
	}
	return KindDocument
}

// User is the current account profile.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FolderStat is one row of a folder's type breakdown. Type is "folder",
// "unknown", or a lower-case file extension.
type FolderStat struct {
	Type    string  `json:"type"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// FolderStats is the aggregate usage of a folder's immediate children.
type FolderStats struct {
	ParentID   string       `json:"parent_id"`
	TotalItems int          `json:"total_items"`
	Stats      []FolderStat `json:"stats"`
}

// Tokens is the session credential pair.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Empty reports whether neither token is set.
func (t Tokens) Empty() bool {
	return t.AccessToken == "" && t.RefreshToken == ""
}

// FormatSize renders a byte count for display, e.g. "1.5 MB". Zero renders
// as "-".
func FormatSize(bytes int64) string {
	if bytes <= 0 {
		return "-"
	}
	units := []string{"Bytes", "KB", "MB", "GB", "TB"}
	value := float64(bytes)
	i := 0
	for value >= 1024 && i < len(units)-1 {
		value /= 1024
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%d %s", bytes, units[0])
	}
	s := strconv.FormatFloat(value, 'f', 1, 64)
	s = strings.TrimSuffix(s, ".0")
	return s + " " + units[i]
}

// FolderFromRoute maps a folder route parameter to a folder id. The root
// sentinels "root", "" and "/" map to "", the root's parent id.
func FolderFromRoute(route string) string {
	route = strings.TrimSpace(route)
	switch route {
	case "", "/", "root":
		return ""
	}
	return strings.Trim(route, "/")
}
