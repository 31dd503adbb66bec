package ocr

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Recognizer is implemented by every recognition backend.
// Recognize receives a path that has already passed PathGuard.Check.
type Recognizer interface {
	Name() string
	Recognize(ctx context.Context, path string) (string, error)
}

// HealthChecker is implemented by backends that can report availability.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Result is a successful recognition. On error it is the zero value.
type Result struct {
	Backend  string
	Text     string
	Duration time.Duration
}

type state string

const (
	stateUnchecked  state = "unchecked"
	stateValidated  state = "validated"
	stateDispatched state = "dispatched"
	stateSucceeded  state = "succeeded"
	stateFailed     state = "failed"
)

// Dispatcher routes recognition requests to named backends. Register all
// backends before serving; the registry is read-only afterwards.
type Dispatcher struct {
	backends     map[string]Recognizer
	guard        *PathGuard
	temp         *TempFiles
	preprocessor *Preprocessor
	logger       *slog.Logger
}

// NewDispatcher creates a dispatcher with no backends.
func NewDispatcher(guard *PathGuard, temp *TempFiles, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if temp == nil {
		temp = NewTempFiles("", logger)
	}
	if guard == nil {
		guard = NewPathGuard(temp.Dir(), DataDir)
	}
	return &Dispatcher{
		backends: make(map[string]Recognizer),
		guard:    guard,
		temp:     temp,
		logger:   logger,
	}
}

// UsePreprocessor enables image enhancement for byte and base64 input.
func (d *Dispatcher) UsePreprocessor(p *Preprocessor) { d.preprocessor = p }

// Register adds r under r.Name(), replacing any backend with the same name.
func (d *Dispatcher) Register(r Recognizer) {
	d.backends[r.Name()] = r
}

// Backends returns the registered backend names in sorted order.
func (d *Dispatcher) Backends() []string {
	names := make([]string, 0, len(d.backends))
	for name := range d.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Backend returns the backend registered under name.
func (d *Dispatcher) Backend(name string) (Recognizer, bool) {
	r, ok := d.backends[name]
	return r, ok
}

// Health reports availability for every backend that can check itself.
// A nil value means the backend is available.
func (d *Dispatcher) Health(ctx context.Context) map[string]error {
	out := make(map[string]error, len(d.backends))
	for name, r := range d.backends {
		if hc, ok := r.(HealthChecker); ok {
			out[name] = hc.Health(ctx)
		} else {
			out[name] = nil
		}
	}
	return out
}

// Recognize validates path and runs the named backend on it.
func (d *Dispatcher) Recognize(ctx context.Context, backend, path string) (Result, error) {
	start := time.Now()
	st := stateUnchecked

	r, ok := d.backends[backend]
	if !ok {
		err := &Error{Kind: KindNotFound, Op: "dispatch", Backend: backend, Message: "Unknown OCR backend: " + backend}
		d.logDispatch(ctx, backend, st, start, err)
		return Result{}, err
	}
	if err := d.guard.Check(path); err != nil {
		d.logDispatch(ctx, backend, st, start, err)
		return Result{}, err
	}
	st = stateValidated

	if err := ctx.Err(); err != nil {
		d.logDispatch(ctx, backend, st, start, err)
		return Result{}, err
	}
	st = stateDispatched

	text, err := r.Recognize(ctx, path)
	if err != nil {
		d.logDispatch(ctx, backend, st, start, err)
		return Result{}, err
	}
	res := Result{Backend: backend, Text: strings.TrimSpace(text), Duration: time.Since(start)}
	d.logDispatch(ctx, backend, stateSucceeded, start, nil)
	return res, nil
}

// RecognizeBytes materializes data, runs the backend and releases the file.
func (d *Dispatcher) RecognizeBytes(ctx context.Context, backend string, data []byte, name string) (Result, error) {
	if len(data) == 0 {
		return Result{}, invalidInput("recognize", msgImageRequired)
	}
	if _, ok := d.backends[backend]; !ok {
		return d.Recognize(ctx, backend, "")
	}
	data, name = d.preprocess(data, name)

	tf, err := d.temp.Materialize(data, name)
	if err != nil {
		return Result{}, err
	}
	defer tf.Release()
	return d.Recognize(ctx, backend, tf.Path())
}

// RecognizeBase64 decodes text (plain base64 or a data URI) and recognizes it.
// Nothing is written to disk when decoding fails.
func (d *Dispatcher) RecognizeBase64(ctx context.Context, backend, text, name string) (Result, error) {
	if _, ok := d.backends[backend]; !ok {
		return d.Recognize(ctx, backend, "")
	}
	if d.preprocessor == nil {
		tf, err := d.temp.MaterializeBase64(text, name)
		if err != nil {
			return Result{}, err
		}
		defer tf.Release()
		return d.Recognize(ctx, backend, tf.Path())
	}

	data, mime, err := DecodeBase64Image(text)
	if err != nil {
		return Result{}, err
	}
	if !IsImageExtension(name) {
		if ext := ExtensionForMimeType(mime); ext != "" {
			name = withExtension(name, ext)
		}
	}
	return d.RecognizeBytes(ctx, backend, data, name)
}

func (d *Dispatcher) preprocess(data []byte, name string) ([]byte, string) {
	if d.preprocessor == nil {
		return data, name
	}
	out, changed := d.preprocessor.Process(data)
	if !changed {
		return data, name
	}
	return out, withExtension(name, ".png")
}

func (d *Dispatcher) logDispatch(ctx context.Context, backend string, reached state, start time.Time, err error) {
	attrs := []any{
		"backend", backend,
		"reached", string(reached),
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if err == nil {
		d.logger.InfoContext(ctx, "recognition "+string(stateSucceeded), attrs...)
		return
	}
	attrs = append(attrs, "kind", KindOf(err).String(), "error", err)
	if IsCallerError(err) {
		d.logger.InfoContext(ctx, "recognition "+string(stateFailed), attrs...)
		return
	}
	d.logger.WarnContext(ctx, "recognition "+string(stateFailed), attrs...)
}

func withExtension(name, ext string) string {
	base := baseName(name)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ext
}
