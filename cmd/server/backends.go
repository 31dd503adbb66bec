package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/facturaIA/captcha-ocr-service/internal/ai"
	"github.com/facturaIA/captcha-ocr-service/internal/config"
	"github.com/facturaIA/captcha-ocr-service/internal/ocr"
)

// buildDispatcher registers every enabled backend. The returned func
// releases provider clients.
func buildDispatcher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*ocr.Dispatcher, func(), error) {
	temp := ocr.NewTempFiles(cfg.Paths.TempDir, logger)
	guard := ocr.NewPathGuard(append([]string{temp.Dir()}, cfg.Paths.AllowedDirs...)...)
	d := ocr.NewDispatcher(guard, temp, logger)
	closers := []func(){}
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if p := cfg.OCR.Preprocess; p.Enabled {
		d.UsePreprocessor(ocr.NewPreprocessor(ocr.PreprocessOptions{
			MinHeight: p.MinHeight,
			MaxScale:  p.MaxScale,
			Contrast:  p.Contrast,
			Sharpen:   p.Sharpen,
		}, logger))
	}

	b := cfg.Backends
	if b.Tesseract.Enabled {
		oem, psm := b.Tesseract.OEM, b.Tesseract.PSM
		d.Register(ocr.NewTesseractCLI(ocr.TesseractConfig{
			Name:      "tesseract",
			Binary:    b.Tesseract.Binary,
			Whitelist: b.Tesseract.Whitelist,
			Blacklist: b.Tesseract.Blacklist,
			Language:  b.Tesseract.Language,
			OEM:       &oem,
			PSM:       &psm,
			OutputDir: temp.Dir(),
		}, &ocr.Runner{Logger: logger, Timeout: b.Tesseract.Timeout}))
	}

	scripts := []struct {
		name string
		cfg  config.ScriptConfig
	}{
		{"easyocr", b.EasyOCR},
		{"paddleocr", b.PaddleOCR},
	}
	for _, s := range scripts {
		if !s.cfg.Enabled {
			continue
		}
		backend, err := ocr.NewScriptBackend(ocr.ScriptConfig{
			Name:        s.name,
			Interpreter: s.cfg.Interpreter,
			Script:      s.cfg.Script,
			Dir:         cfg.Paths.ScriptDir,
		}, &ocr.Runner{Logger: logger, Timeout: s.cfg.Timeout})
		if err != nil {
			return nil, closeAll, err
		}
		d.Register(backend)
	}

	if b.Remote.Enabled {
		remote, err := ocr.NewRemoteBackend(ocr.RemoteConfig{
			Name:    "remote",
			URL:     b.Remote.URL,
			Timeout: b.Remote.Timeout,
		}, &http.Client{Timeout: b.Remote.Timeout})
		if err != nil {
			return nil, closeAll, err
		}
		d.Register(remote)

		if b.Remote.Fallback != "" {
			secondary, ok := d.Backend(b.Remote.Fallback)
			if !ok {
				return nil, closeAll, ocr.ConfigError("configure fallback", "fallback backend is not registered: "+b.Remote.Fallback)
			}
			chain, err := ocr.NewFallback(config.FallbackName, remote, secondary, logger)
			if err != nil {
				return nil, closeAll, err
			}
			d.Register(chain)
		}
	}

	if b.Library.Enabled {
		lib, err := ocr.NewLibraryBackend(ocr.LibraryConfig{
			Name:      "library",
			Whitelist: b.Library.Whitelist,
			Blacklist: b.Library.Blacklist,
			Language:  b.Library.Language,
			PSM:       b.Library.PSM,
		})
		if err != nil {
			return nil, closeAll, err
		}
		d.Register(lib)
	}

	if o := cfg.AI.OpenAI; o.Enabled {
		vision := ai.NewVisionBackend(ai.NewOpenAIProvider(o.APIKey, o.BaseURL, o.Model), cfg.AI.Whitelist)
		vision.Timeout = cfg.AI.Timeout
		d.Register(vision)
	}
	if g := cfg.AI.Gemini; g.Enabled {
		provider, err := ai.NewGeminiProvider(ctx, g.APIKey, g.Model)
		if err != nil {
			return nil, closeAll, err
		}
		closers = append(closers, func() { provider.Close() })
		vision := ai.NewVisionBackend(provider, cfg.AI.Whitelist)
		vision.Timeout = cfg.AI.Timeout
		d.Register(vision)
	}

	for name, err := range d.Health(ctx) {
		if err != nil {
			logger.Warn("backend not available at startup", "backend", name, "error", err)
		}
	}
	return d, closeAll, nil
}
