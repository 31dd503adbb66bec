package ocr

import (
	"bytes"
	"log/slog"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// PreprocessOptions tunes the enhancement pipeline.
type PreprocessOptions struct {
	// MinHeight upscales smaller images; captchas are often under 50px tall.
	MinHeight int
	// MaxScale caps the upscale factor.
	MaxScale float64
	Contrast float64
	Sharpen  float64
}

// DefaultPreprocessOptions returns the settings used when none are configured.
func DefaultPreprocessOptions() PreprocessOptions {
	return PreprocessOptions{MinHeight: 100, MaxScale: 4, Contrast: 20, Sharpen: 1}
}

// Preprocessor enhances captcha images before recognition.
type Preprocessor struct {
	opts   PreprocessOptions
	logger *slog.Logger
}

// NewPreprocessor creates a preprocessor; zero options take their defaults.
func NewPreprocessor(opts PreprocessOptions, logger *slog.Logger) *Preprocessor {
	def := DefaultPreprocessOptions()
	if opts.MinHeight <= 0 {
		opts.MinHeight = def.MinHeight
	}
	if opts.MaxScale < 1 {
		opts.MaxScale = def.MaxScale
	}
	if opts.Contrast == 0 {
		opts.Contrast = def.Contrast
	}
	if opts.Sharpen == 0 {
		opts.Sharpen = def.Sharpen
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Preprocessor{opts: opts, logger: logger}
}

// Process upscales, converts to grayscale, raises contrast, sharpens and
// re-encodes as PNG. On any failure it returns the original bytes and false.
func (p *Preprocessor) Process(data []byte) ([]byte, bool) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		p.logger.Warn("preprocess skipped, image not decodable", "error", err, "bytes", len(data))
		return data, false
	}

	b := img.Bounds()
	if h := b.Dy(); h > 0 && h < p.opts.MinHeight {
		scale := float64(p.opts.MinHeight) / float64(h)
		if scale > p.opts.MaxScale {
			scale = p.opts.MaxScale
		}
		img = imaging.Resize(img, int(float64(b.Dx())*scale), 0, imaging.Lanczos)
	}
	gray := imaging.Grayscale(img)
	gray = imaging.AdjustContrast(gray, p.opts.Contrast)
	if p.opts.Sharpen > 0 {
		gray = imaging.Sharpen(gray, p.opts.Sharpen)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, gray, imaging.PNG); err != nil {
		p.logger.Warn("preprocess skipped, encode failed", "error", err)
		return data, false
	}
	p.logger.Debug("image enhanced", "in_bytes", len(data), "out_bytes", buf.Len())
	return buf.Bytes(), true
}
