package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/gosimple/slug"
	"github.com/spf13/afero"
)

const defaultFilename = "download"

// Upload sends the content of r as multipart form under the field "file".
func (c *Client) Upload(ctx context.Context, path, filename string, r io.Reader, out any) error {
	if filename == "" {
		return newClientError(errors.New("filename must not be empty"))
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return newClientError(fmt.Errorf("failed to create form file: %v", err))
	}
	if _, err := io.Copy(part, r); err != nil {
		return newClientError(fmt.Errorf("failed to read upload: %v", err))
	}
	if err := writer.Close(); err != nil {
		return newClientError(fmt.Errorf("failed to close multipart writer: %v", err))
	}

	return c.Do(ctx, Request{
		Method:      http.MethodPost,
		Path:        path,
		Body:        body,
		ContentType: writer.FormDataContentType(),
	}, out)
}

// Saver stores downloaded content locally.
type Saver interface {
	Save(ctx context.Context, filename string, data []byte) error
}

// Download fetches the raw content at path and hands it to saver under filename. The response isn't
// wrapped in an envelope. filename defaults to "download".
func (c *Client) Download(ctx context.Context, path, filename string, saver Saver) error {
	req := Request{
		Method: http.MethodGet,
		Path:   path,
		Header: http.Header{"Accept": []string{"*/*"}},
	}

	var data []byte
	err := c.send(ctx, req, func(_ int, body []byte) error {
		data = body
		return nil
	})
	if err != nil {
		return err
	}

	if err := saver.Save(ctx, SanitizeFilename(filename), data); err != nil {
		return newClientError(fmt.Errorf("failed to save %q: %v", filename, err))
	}
	return nil
}

// SanitizeFilename turns name into a filename safe to create on any filesystem. The extension is
// kept.
func SanitizeFilename(name string) string {
	name = path.Base(filepath.ToSlash(name))
	if name == "." || name == "/" {
		return defaultFilename
	}
	ext := path.Ext(name)
	base := slug.Make(strings.TrimSuffix(name, ext))
	if base == "" {
		base = defaultFilename
	}
	return base + strings.ToLower(ext)
}

// NewFileSaver returns a [Saver] writing files into dir.
func NewFileSaver(fs afero.Fs, dir string) *FileSaver {
	return &FileSaver{fs: fs, dir: dir}
}

type FileSaver struct {
	fs  afero.Fs
	dir string
}

func (s *FileSaver) Save(_ context.Context, filename string, data []byte) error {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	return afero.WriteFile(s.fs, filepath.Join(s.dir, filename), data, 0o644)
}
