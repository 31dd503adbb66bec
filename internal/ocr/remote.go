package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// DefaultRemoteURL is the address of the bundled EasyOCR server.
const DefaultRemoteURL = "http://localhost:5001/ocr"

const maxRemoteResponse = 1 << 20

// RemoteConfig configures the HTTP backend.
type RemoteConfig struct {
	Name    string
	URL     string
	Timeout time.Duration
}

// RemoteBackend posts the image as a data URI to an OCR microservice.
type RemoteBackend struct {
	name   string
	url    string
	client *http.Client
}

type remoteRequest struct {
	Base64 string `json:"base64"`
}

type remoteResponse struct {
	Text  *string `json:"text"`
	Error string  `json:"error,omitempty"`
}

// NewRemoteBackend validates the URL. client may be shared across backends;
// nil gets a client with cfg.Timeout.
func NewRemoteBackend(cfg RemoteConfig, client *http.Client) (*RemoteBackend, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultRemoteURL
	}
	if cfg.Name == "" {
		cfg.Name = "remote"
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ConfigError("remote backend", "invalid remote OCR URL: "+cfg.URL)
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &RemoteBackend{name: cfg.Name, url: cfg.URL, client: client}, nil
}

func (b *RemoteBackend) Name() string { return b.name }

// URL returns the recognition endpoint.
func (b *RemoteBackend) URL() string { return b.url }

// DataURI encodes data with a MIME type derived from name's extension.
func DataURI(name string, data []byte) string {
	return "data:" + MimeTypeFromFileName(name) + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func (b *RemoteBackend) Recognize(ctx context.Context, path string) (string, error) {
	const op = "recognize"
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}

	body, err := json.Marshal(remoteRequest{Base64: DataURI(path, data)})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%s: %w", b.name, ctx.Err())
		}
		return "", BackendError(op, b.name, "remote OCR service unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteResponse))
	if err != nil {
		return "", BackendError(op, b.name, "failed to read remote response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e := BackendError(op, b.name, "remote OCR service returned an error", nil)
		e.StatusCode = resp.StatusCode
		if msg := strings.TrimSpace(string(raw)); msg != "" {
			e.Err = errors.New(truncate(msg, defaultMaxLogBytes))
		}
		return "", e
	}

	var out remoteResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", BackendError(op, b.name, "malformed remote response", err)
	}
	if out.Text == nil {
		return "", nil
	}
	return strings.TrimSpace(*out.Text), nil
}

// HealthURL is the sibling health endpoint of the recognition URL: the last
// path element is replaced, so http://gw/svc/ocr probes http://gw/svc/health.
func (b *RemoteBackend) HealthURL() string {
	u, err := url.Parse(b.url)
	if err != nil {
		return ""
	}
	dir := strings.TrimSuffix(u.Path, "/")
	if i := strings.LastIndex(dir, "/"); i >= 0 {
		dir = dir[:i]
	} else {
		dir = ""
	}
	u.Path = dir + "/health"
	u.RawPath = ""
	u.RawQuery = ""
	return u.String()
}

// Health probes HealthURL and expects a 2xx status.
func (b *RemoteBackend) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.HealthURL(), nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return BackendError("health", b.name, "remote OCR service unreachable", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxRemoteResponse))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e := BackendError("health", b.name, "remote OCR service unhealthy", nil)
		e.StatusCode = resp.StatusCode
		return e
	}
	return nil
}
