package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fruitsalade/ecloud/pkg/models"
	"github.com/fruitsalade/ecloud/pkg/protocol"
	"github.com/fruitsalade/ecloud/pkg/retry"
)

func testClient(handler http.Handler) (*Client, *httptest.Server) {
	ts := httptest.NewServer(handler)
	c := New(Config{
		BaseURL: ts.URL,
		RetryConfig: retry.Config{
			MaxAttempts: 3,
			InitialWait: time.Millisecond,
			MaxWait:     time.Millisecond,
		},
	})
	return c, ts
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestListChildren_Root(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files" {
			t.Errorf("expected /files, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("expected bearer tok, got %q", r.Header.Get("Authorization"))
		}
		writeJSON(w, 200, []models.Node{{ID: "a", Name: "a.txt", Type: "file"}})
	}))
	defer ts.Close()

	nodes, err := c.ListChildren(WithBearer(context.Background(), "tok"), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nodes) != 1 || nodes[0].ID != "a" {
		t.Errorf("unexpected nodes: %+v", nodes)
	}
}

func TestListChildren_Folder(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/folders/f1" {
			t.Errorf("expected /folders/f1, got %s", r.URL.Path)
		}
		writeJSON(w, 200, []models.Node{})
	}))
	defer ts.Close()

	if _, err := c.ListChildren(context.Background(), "f1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNoBearerWithoutToken(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("expected no Authorization header, got %q", r.Header.Get("Authorization"))
		}
		writeJSON(w, 200, []models.Node{})
	}))
	defer ts.Close()

	c.ListChildren(context.Background(), "")
}

func TestReadRetriedOnServerError(t *testing.T) {
	var attempts atomic.Int32
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, 200, models.FolderStats{TotalItems: 4})
	}))
	defer ts.Close()

	stats, err := c.FolderStats(context.Background(), "f1", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalItems != 4 {
		t.Errorf("expected 4 items, got %d", stats.TotalItems)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestMutationNotRetried(t *testing.T) {
	var attempts atomic.Int32
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, err := c.Move(context.Background(), "n1", "f2")
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts.Load() != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", attempts.Load())
	}
	if StatusCode(err) != 500 {
		t.Errorf("expected status 500, got %d", StatusCode(err))
	}
}

func TestUnauthorizedNotRetried(t *testing.T) {
	var attempts atomic.Int32
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		writeJSON(w, http.StatusUnauthorized, protocol.ErrorResponse{Error: "invalid token"})
	}))
	defer ts.Close()

	_, err := c.Me(context.Background())
	if !IsUnauthorized(err) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
	if ServerMessage(err) != "invalid token" {
		t.Errorf("expected server message, got %q", ServerMessage(err))
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts.Load())
	}
}

func TestIsUnauthorized(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"api 401", &APIError{Op: "me", StatusCode: 401}, true},
		{"api 403", &APIError{Op: "me", StatusCode: 403}, false},
		{"wrapped 401", fmt.Errorf("list: %w", &APIError{StatusCode: 401}), true},
		{"message pattern", errors.New("request failed with status 401"), true},
		{"no match", errors.New("port 4010 refused"), false},
		{"status code pattern", errors.New("upstream returned status code: 401"), true},
		{"reason phrase", errors.New("request failed: 401 Unauthorized"), true},
		{"parenthesised", errors.New("me failed (401)"), true},
		{"bare number", errors.New("file 401 missing"), false},
		{"other status", errors.New("request failed with status 4010"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUnauthorized(tt.err); got != tt.want {
				t.Errorf("IsUnauthorized(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestParentOf(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/folder/child/parent":
			writeJSON(w, 200, models.Node{ID: "p", Name: "Parent", Type: "folder"})
		case "/folder/top/parent":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte("null"))
		default:
			w.WriteHeader(404)
		}
	}))
	defer ts.Close()

	p, err := c.ParentOf(context.Background(), "child")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil || p.ID != "p" {
		t.Fatalf("expected parent p, got %+v", p)
	}

	p, err = c.ParentOf(context.Background(), "top")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Errorf("expected nil parent for top-level node, got %+v", p)
	}
}

func TestDownload(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("hello"))
	}))
	defer ts.Close()

	content, err := c.Download(context.Background(), "f")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer content.Body.Close()
	data, _ := io.ReadAll(content.Body)
	if string(data) != "hello" {
		t.Errorf("expected hello, got %q", data)
	}
	if content.ContentType != "text/plain" {
		t.Errorf("expected text/plain, got %s", content.ContentType)
	}
}

func TestDeleteAndMove(t *testing.T) {
	var gotMove protocol.MoveRequest
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == "DELETE" && r.URL.Path == "/files/n1":
			w.WriteHeader(http.StatusNoContent)
		case r.Method == "POST" && r.URL.Path == "/move/n1":
			json.NewDecoder(r.Body).Decode(&gotMove)
			writeJSON(w, 200, models.Node{ID: "n1", ParentID: gotMove.ParentID})
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer ts.Close()

	if err := c.Delete(context.Background(), "n1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	node, err := c.Move(context.Background(), "n1", "dst")
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if gotMove.ParentID != "dst" || node.ParentID != "dst" {
		t.Errorf("expected parent dst, got body=%q node=%q", gotMove.ParentID, node.ParentID)
	}
}

func TestCreateFolder(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req protocol.CreateFolderRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Name != "Docs" || req.ParentID != "" {
			t.Errorf("unexpected body: %+v", req)
		}
		writeJSON(w, http.StatusCreated, models.Node{ID: "new", Name: req.Name, Type: "folder"})
	}))
	defer ts.Close()

	node, err := c.CreateFolder(context.Background(), "Docs", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !node.IsFolder() {
		t.Error("expected folder node")
	}
}

func TestUploadMultipart(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files/upload" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if r.FormValue("parent_id") != "f1" {
			t.Errorf("expected parent_id f1, got %q", r.FormValue("parent_id"))
		}
		f, fh, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if fh.Filename != "notes.txt" || string(data) != "hi there" {
			t.Errorf("unexpected file %s: %q", fh.Filename, data)
		}
		if !strings.HasPrefix(fh.Header.Get("Content-Type"), "text/plain") {
			t.Errorf("expected text/plain part, got %s", fh.Header.Get("Content-Type"))
		}
		writeJSON(w, http.StatusCreated, models.Node{ID: "u1", Name: fh.Filename, Size: int64(len(data))})
	}))
	defer ts.Close()

	node, err := c.Upload(context.Background(), "f1", "notes.txt", strings.NewReader("hi there"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if node.ID != "u1" || node.Size != 8 {
		t.Errorf("unexpected node: %+v", node)
	}
}

func TestUploadZip(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files/unzip" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		writeJSON(w, http.StatusCreated, protocol.UnzipResponse{CreatedCount: 3, RootParentID: "r"})
	}))
	defer ts.Close()

	resp, err := c.UploadZip(context.Background(), "", "a.zip", strings.NewReader("PK"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.CreatedCount != 3 {
		t.Errorf("expected 3 created, got %d", resp.CreatedCount)
	}
}

func TestUploadServerError(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, protocol.ErrorResponse{Error: "file required"})
	}))
	defer ts.Close()

	_, err := c.Upload(context.Background(), "", "x.bin", strings.NewReader("x"))
	if err == nil || !strings.Contains(err.Error(), "file required") {
		t.Fatalf("expected server message in error, got %v", err)
	}
}
