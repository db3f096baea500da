package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/fruitsalade/ecloud/pkg/models"
	"github.com/fruitsalade/ecloud/pkg/protocol"
)

// ListChildren lists the immediate children of a folder. An empty parentID
// lists the root.
func (c *Client) ListChildren(ctx context.Context, parentID string) ([]*models.Node, error) {
	path := "/files?parent_id="
	if parentID != "" {
		path = "/folders/" + url.PathEscape(parentID)
	}
	var nodes []*models.Node
	err := c.doJSON(ctx, request{op: "list", method: "GET", path: path, idempotent: true}, nil, &nodes)
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

// FolderStats returns the per-type breakdown of a folder's children.
func (c *Client) FolderStats(ctx context.Context, parentID string, recursive bool) (*models.FolderStats, error) {
	path := "/folders/" + url.PathEscape(parentID) + "/stats"
	if recursive {
		path += "?recursive=true"
	}
	var stats models.FolderStats
	err := c.doJSON(ctx, request{op: "stats", method: "GET", path: path, idempotent: true}, nil, &stats)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// ParentOf returns the parent folder of id, or nil when id sits at the root.
func (c *Client) ParentOf(ctx context.Context, id string) (*models.Node, error) {
	resp, err := c.send(ctx, request{
		op:         "parent",
		method:     "GET",
		path:       "/folder/" + url.PathEscape(id) + "/parent",
		idempotent: true,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read parent response: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	var node models.Node
	if err := json.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parse parent response: %w", err)
	}
	if node.ID == "" {
		return nil, nil
	}
	return &node, nil
}

// Content is a downloaded node body.
type Content struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64 // -1 when unknown
}

// Download streams a file's content. The caller closes Body.
func (c *Client) Download(ctx context.Context, id string) (*Content, error) {
	resp, err := c.send(ctx, request{
		op:         "download",
		method:     "GET",
		path:       "/files/" + url.PathEscape(id) + "/download",
		idempotent: true,
	})
	if err != nil {
		return nil, err
	}
	return &Content{
		Body:        resp.Body,
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
	}, nil
}

// Delete removes a file or folder (recursively, server side).
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.doJSON(ctx, request{
		op:     "delete",
		method: "DELETE",
		path:   "/files/" + url.PathEscape(id),
		expect: []int{http.StatusNoContent, http.StatusOK},
	}, nil, nil)
}

// Move re-parents a node. An empty parentID moves it to the root.
func (c *Client) Move(ctx context.Context, id, parentID string) (*models.Node, error) {
	var node models.Node
	err := c.doJSON(ctx, request{
		op:     "move",
		method: "POST",
		path:   "/move/" + url.PathEscape(id),
	}, protocol.MoveRequest{ParentID: parentID}, &node)
	if err != nil {
		return nil, err
	}
	return &node, nil
}

// CreateFolder creates a folder under parentID ("" for root).
func (c *Client) CreateFolder(ctx context.Context, name, parentID string) (*models.Node, error) {
	var node models.Node
	err := c.doJSON(ctx, request{
		op:     "mkdir",
		method: "POST",
		path:   "/folders",
		expect: []int{http.StatusCreated, http.StatusOK},
	}, protocol.CreateFolderRequest{Name: name, ParentID: parentID}, &node)
	if err != nil {
		return nil, err
	}
	return &node, nil
}
