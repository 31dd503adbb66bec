package ocr

import (
	"context"
	"errors"
	"log/slog"
)

// Fallback tries Primary and, only when it fails with a backend execution
// error, Secondary. The primary failure is always logged.
type Fallback struct {
	name      string
	primary   Recognizer
	secondary Recognizer
	logger    *slog.Logger
}

// NewFallback chains primary to secondary under name.
func NewFallback(name string, primary, secondary Recognizer, logger *slog.Logger) (*Fallback, error) {
	if primary == nil || secondary == nil {
		return nil, ConfigError("fallback", "fallback chain needs a primary and a secondary backend")
	}
	if name == "" {
		name = primary.Name()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{name: name, primary: primary, secondary: secondary, logger: logger}, nil
}

func (f *Fallback) Name() string { return f.name }

// Chain returns the primary and secondary backend names.
func (f *Fallback) Chain() (string, string) {
	return f.primary.Name(), f.secondary.Name()
}

func (f *Fallback) Recognize(ctx context.Context, path string) (string, error) {
	text, err := f.primary.Recognize(ctx, path)
	if err == nil || !errors.Is(err, ErrBackendExecution) || ctx.Err() != nil {
		return text, err
	}

	f.logger.WarnContext(ctx, "primary backend failed, using fallback",
		"backend", f.name,
		"primary", f.primary.Name(),
		"secondary", f.secondary.Name(),
		"error", err,
	)
	return f.secondary.Recognize(ctx, path)
}

// Health is nil when either backend in the chain is available.
func (f *Fallback) Health(ctx context.Context) error {
	perr := checkHealth(ctx, f.primary)
	if perr == nil {
		return nil
	}
	if serr := checkHealth(ctx, f.secondary); serr != nil {
		return errors.Join(perr, serr)
	}
	return nil
}

func checkHealth(ctx context.Context, r Recognizer) error {
	if hc, ok := r.(HealthChecker); ok {
		return hc.Health(ctx)
	}
	return nil
}
