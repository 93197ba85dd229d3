// Package upload is the client side of the media uploader contract:
// it turns inline image bytes into a publicly reachable URL for channels
// that cannot accept inline binaries.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"notiq/internal/metrics"
	"notiq/pkg/logx"
)

type File struct {
	Filename    string
	Content     []byte
	ContentType string
}

// Uploader converts a file into a public URL. Failures propagate to the
// caller; no retry is performed here.
type Uploader interface {
	Upload(ctx context.Context, f File) (string, error)
}

type Config struct {
	// Endpoint receives a multipart POST with a "file" part.
	Endpoint string
	// Token, when set, is sent as a bearer token.
	Token string
	// Timeout bounds one upload call. Zero means 30s.
	Timeout time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
	log  logx.Logger
}

func NewClient(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("upload: endpoint required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: timeout}, log: log}, nil
}

func (c *Client) Upload(ctx context.Context, f File) (string, error) {
	url, err := c.upload(ctx, f)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("error").Inc()
		return "", err
	}
	metrics.UploadsTotal.WithLabelValues("ok").Inc()
	return url, nil
}

func (c *Client) upload(ctx context.Context, f File) (string, error) {
	if len(f.Content) == 0 {
		return "", fmt.Errorf("upload: empty content for %q", f.Filename)
	}
	name := f.Filename
	if name == "" {
		name = "upload.png"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	if f.ContentType != "" {
		hdr.Set("Content-Type", f.ContentType)
	}
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return "", fmt.Errorf("upload: build form: %w", err)
	}
	if _, err := part.Write(f.Content); err != nil {
		return "", fmt.Errorf("upload: write form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("upload: close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("upload: http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("upload: decode response: %w", err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("upload: response missing url")
	}

	c.log.Debug("media uploaded", logx.String("filename", name), logx.Int("bytes", len(f.Content)))
	return out.URL, nil
}
