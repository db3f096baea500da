package client

import (
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"

	"github.com/fruitsalade/ecloud/pkg/models"
	"github.com/fruitsalade/ecloud/pkg/protocol"
)

// Upload sends a single file into parentID ("" for root).
func (c *Client) Upload(ctx context.Context, parentID, name string, content io.Reader) (*models.Node, error) {
	var node models.Node
	if err := c.multipart(ctx, "upload", "/files/upload", parentID, name, content, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// UploadZip sends a zip archive that the server extracts into a new folder
// under parentID.
func (c *Client) UploadZip(ctx context.Context, parentID, name string, content io.Reader) (*protocol.UnzipResponse, error) {
	var resp protocol.UnzipResponse
	if err := c.multipart(ctx, "unzip", "/files/unzip", parentID, name, content, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// multipart streams a parent_id field and a file part without buffering the
// file in memory.
func (c *Client) multipart(ctx context.Context, op, path, parentID, name string, content io.Reader, out any) error {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writeMultipart(mw, parentID, name, content)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	resp, err := c.send(ctx, request{
		op:          op,
		method:      "POST",
		path:        path,
		body:        pr,
		contentType: mw.FormDataContentType(),
		expect:      []int{http.StatusCreated, http.StatusOK},
	})
	// Unblock the writer goroutine if the request never drained the pipe.
	pr.Close()
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decode(op, resp, out)
}

func writeMultipart(mw *multipart.Writer, parentID, name string, content io.Reader) error {
	if err := mw.WriteField("parent_id", parentID); err != nil {
		return err
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(name)))
	h.Set("Content-Type", ContentTypeFor(name))
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, content)
	return err
}

// ContentTypeFor guesses a MIME type from a file name.
func ContentTypeFor(name string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); t != "" {
		return t
	}
	return "application/octet-stream"
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
