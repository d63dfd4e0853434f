package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/raphaelgruber/chatsync-go/internal/metrics"
)

// ProgressFunc receives transfer progress as a percentage in [0, 100].
type ProgressFunc func(percent int)

// progressReader reports the share of total bytes read so far. It only calls
// back when the percentage changes.
type progressReader struct {
	r        io.Reader
	total    int64
	read     int64
	last     int
	progress ProgressFunc
}

func newProgressReader(r io.Reader, total int64, fn ProgressFunc) *progressReader {
	return &progressReader{r: r, total: total, last: -1, progress: fn}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.progress != nil && p.total > 0 {
		pct := int(p.read * 100 / p.total)
		if pct > 100 {
			pct = 100
		}
		if pct != p.last {
			p.last = pct
			p.progress(pct)
		}
	}
	return n, err
}

// multipartBody encodes a single file part plus extra fields.
func multipartBody(field, filename string, r io.Reader, fields map[string]string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", k, err)
		}
	}
	part, err := w.CreateFormFile(field, filename)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, "", fmt.Errorf("copy file: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func (c *Client) upload(ctx context.Context, path, field, filename string, r io.Reader, fields map[string]string, progress ProgressFunc, result any) error {
	buf, contentType, err := multipartBody(field, filename, r, fields)
	if err != nil {
		return err
	}
	size := int64(buf.Len())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolve(path), newProgressReader(buf, size, progress))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	return c.do(req, result)
}

// UploadFile uploads a message attachment and returns the server-side path
// to put in the message's fileUrl.
func (c *Client) UploadFile(ctx context.Context, filename string, r io.Reader, progress ProgressFunc) (string, error) {
	var resp struct {
		Data struct {
			FilePath string `json:"filePath"`
		} `json:"data"`
	}
	err := c.timed(metrics.OpUpload, func() error {
		return c.upload(ctx, routeUploadFile, "file", filename, r, nil, progress, &resp)
	})
	if err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}
	if resp.Data.FilePath == "" {
		return "", fmt.Errorf("upload file: empty file path")
	}
	return resp.Data.FilePath, nil
}

// UploadChannelImage sets a channel image and returns its URL.
func (c *Client) UploadChannelImage(ctx context.Context, channelID, filename string, r io.Reader, progress ProgressFunc) (string, error) {
	var resp struct {
		URL string `json:"url"`
	}
	fields := map[string]string{"channelId": channelID}
	err := c.timed(metrics.OpUpload, func() error {
		return c.upload(ctx, routeUploadChannelImg, "image", filename, r, fields, progress, &resp)
	})
	if err != nil {
		return "", fmt.Errorf("upload channel image: %w", err)
	}
	return resp.URL, nil
}

// Download streams the file at fileURL into w. fileURL is either absolute or
// a server-relative path as stored in messages.
func (c *Client) Download(ctx context.Context, fileURL string, w io.Writer, progress ProgressFunc) (int64, error) {
	target := fileURL
	if u, err := url.Parse(fileURL); err != nil || !u.IsAbs() {
		target = c.baseURL.ResolveReference(&url.URL{Path: strings.TrimLeft(fileURL, "/")}).String()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("download: %w", checkStatus(resp, body))
	}

	n, err := io.Copy(w, newProgressReader(resp.Body, resp.ContentLength, progress))
	if err != nil {
		return n, fmt.Errorf("download: %w", err)
	}
	return n, nil
}
