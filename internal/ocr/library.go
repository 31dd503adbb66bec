package ocr

import (
	"context"
	"strings"
)

// LibraryConfig configures the in-process tesseract backend.
type LibraryConfig struct {
	Name      string
	Whitelist string
	Blacklist string
	Language  string
	PSM       int
}

// LibraryBackend runs tesseract in-process through gosseract. It is only
// available in binaries built with the tesseractlib tag.
type LibraryBackend struct {
	cfg LibraryConfig
}

// LibraryAvailable reports whether the binary was built with gosseract.
func LibraryAvailable() bool { return libraryAvailable }

// NewLibraryBackend fails with a configuration error when the binary was
// built without tesseract library support.
func NewLibraryBackend(cfg LibraryConfig) (*LibraryBackend, error) {
	if !libraryAvailable {
		return nil, ConfigError("library backend", "built without tesseract library support (build with -tags tesseractlib)")
	}
	if cfg.Name == "" {
		cfg.Name = "library"
	}
	if cfg.Whitelist == "" {
		cfg.Whitelist = DefaultWhitelist
	}
	if cfg.Blacklist == "" {
		cfg.Blacklist = DefaultBlacklist
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.PSM == 0 {
		cfg.PSM = DefaultPSM
	}
	return &LibraryBackend{cfg: cfg}, nil
}

func (b *LibraryBackend) Name() string { return b.cfg.Name }

// Recognize runs the engine on its own goroutine so that a cancelled
// request returns immediately; the engine call itself runs to completion.
func (b *LibraryBackend) Recognize(ctx context.Context, path string) (string, error) {
	type reply struct {
		text string
		err  error
	}
	ch := make(chan reply, 1)
	go func() {
		text, err := b.recognize(path)
		ch <- reply{text, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return "", BackendError("recognize", b.cfg.Name, "tesseract library failed", r.err)
		}
		return strings.TrimSpace(r.text), nil
	}
}
