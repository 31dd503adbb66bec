package ai

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/facturaIA/captcha-ocr-service/internal/ocr"
)

// CaptchaPrompt asks the model for the characters only.
const CaptchaPrompt = `This image is a captcha. Read the characters exactly as they appear.
Reply with only the characters, no spaces, no quotes, no explanation.`

// Provider is a multimodal model able to answer a prompt about an image.
type Provider interface {
	Name() string
	Describe(ctx context.Context, prompt string, image []byte, mimeType string) (string, error)
}

// VisionBackend adapts a Provider to the recognizer interface.
type VisionBackend struct {
	provider  Provider
	prompt    string
	whitelist string
	// Timeout bounds one model call; zero leaves it to the caller's context.
	Timeout time.Duration
}

// NewVisionBackend wraps provider. An empty whitelist keeps every
// non-space character of the reply.
func NewVisionBackend(provider Provider, whitelist string) *VisionBackend {
	return &VisionBackend{provider: provider, prompt: CaptchaPrompt, whitelist: whitelist}
}

func (v *VisionBackend) Name() string { return v.provider.Name() }

func (v *VisionBackend) Recognize(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	callCtx := ctx
	if v.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, v.Timeout)
		defer cancel()
	}
	reply, err := v.provider.Describe(callCtx, v.prompt, data, ocr.MimeTypeFromFileName(path))
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%s: %w", v.Name(), ctx.Err())
		}
		return "", ocr.BackendError("recognize", v.Name(), "vision model request failed", err)
	}
	return Filter(reply, v.whitelist), nil
}

// Filter strips whitespace, quotes and backticks from a model reply and,
// when whitelist is set, every character not in it.
func Filter(reply, whitelist string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(reply) {
		switch {
		case unicode.IsSpace(r), r == '"', r == '\'', r == '`':
			continue
		case whitelist != "" && !strings.ContainsRune(whitelist, r):
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
