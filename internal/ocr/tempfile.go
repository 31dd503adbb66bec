package ocr

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	msgBase64Required = "Base64 image data is required and cannot be empty"
	msgBase64Invalid  = "Invalid base64 format. Please provide a valid base64 encoded image"
	msgImageRequired  = "Image data is required and cannot be empty"

	defaultSampleName = "captcha"
	maxNameLength     = 64
)

// TempFiles writes request payloads to uniquely named files so that
// path-based backends can read them.
type TempFiles struct {
	dir    string
	logger *slog.Logger
}

// NewTempFiles creates a guard rooted at dir, or os.TempDir() when dir is empty.
func NewTempFiles(dir string, logger *slog.Logger) *TempFiles {
	if dir == "" {
		dir = os.TempDir()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TempFiles{dir: dir, logger: logger}
}

// Dir returns the directory temp files are created in.
func (g *TempFiles) Dir() string { return g.dir }

// TempFile is a materialized payload. The holder must call Release.
type TempFile struct {
	path   string
	owned  bool
	logger *slog.Logger
}

// Path returns the file location.
func (t *TempFile) Path() string { return t.path }

// Release deletes the file. It is safe to call more than once; deletion
// failures are logged, not returned.
func (t *TempFile) Release() {
	if t == nil || !t.owned {
		return
	}
	t.owned = false
	if err := os.Remove(t.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		t.logger.Warn("temp file cleanup failed", "path", t.path, "error", err)
	}
}

// Materialize writes data to a new file named <uuid>-<name>.
func (g *TempFiles) Materialize(data []byte, name string) (*TempFile, error) {
	if len(data) == 0 {
		return nil, invalidInput("materialize", msgImageRequired)
	}

	path := filepath.Join(g.dir, uuid.NewString()+"-"+sampleName(name, data))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tf := &TempFile{path: path, owned: true, logger: g.logger}

	if _, err := f.Write(data); err != nil {
		f.Close()
		tf.Release()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		tf.Release()
		return nil, fmt.Errorf("close temp file: %w", err)
	}
	return tf, nil
}

// MaterializeBase64 decodes text (optionally a data URI) and materializes it.
// Nothing touches the filesystem unless decoding succeeds.
func (g *TempFiles) MaterializeBase64(text, name string) (*TempFile, error) {
	data, mime, err := DecodeBase64Image(text)
	if err != nil {
		return nil, err
	}
	if !IsImageExtension(name) {
		if ext := ExtensionForMimeType(mime); ext != "" {
			name = withExtension(name, ext)
		}
	}
	return g.Materialize(data, name)
}

// DecodeBase64Image decodes plain base64 or a data:<mime>;base64,<payload> URI.
// The returned mime is empty when no data URI header was present.
func DecodeBase64Image(text string) ([]byte, string, error) {
	payload := strings.TrimSpace(text)
	if payload == "" {
		return nil, "", invalidInput("decode base64", msgBase64Required)
	}

	var mime string
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 {
			return nil, "", invalidInput("decode base64", msgBase64Invalid)
		}
		mime = strings.TrimSuffix(payload[len("data:"):comma], ";base64")
		payload = payload[comma+1:]
	}
	payload = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, payload)
	if payload == "" {
		return nil, "", invalidInput("decode base64", msgBase64Required)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		var rawErr error
		if data, rawErr = base64.RawStdEncoding.DecodeString(payload); rawErr != nil {
			e := invalidInput("decode base64", msgBase64Invalid)
			e.Err = err
			return nil, "", e
		}
	}
	if len(data) == 0 {
		return nil, "", invalidInput("decode base64", msgBase64Required)
	}
	return data, mime, nil
}

// sampleName keeps the caller's base name when it is safe and carries an
// image extension; otherwise the extension is derived from the content.
func sampleName(name string, data []byte) string {
	base := baseName(name)
	if IsImageExtension(base) {
		return base
	}
	ext := ".png"
	if mime, ok := DetectImageType(data); ok {
		ext = ExtensionForMimeType(mime)
	}
	return strings.TrimSuffix(base, filepath.Ext(base)) + ext
}

func baseName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, base)
	base = strings.TrimLeft(base, ".")
	if base == "" || strings.Trim(base, "_") == "" {
		base = defaultSampleName
	}
	if len(base) > maxNameLength {
		base = base[len(base)-maxNameLength:]
	}
	return base
}
