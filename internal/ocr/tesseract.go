package ocr

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Tesseract defaults tuned for short single-word captchas.
const (
	DefaultTesseractBinary = "tesseract"
	DefaultWhitelist       = "0123456789"
	DefaultBlacklist       = "abcdefghijklmnopqrstuvwxyz!@#$%^&*()_+=-][}{|/?.,<> "
	DefaultLanguage        = "eng"
	DefaultOEM             = 3
	DefaultPSM             = 8
)

// TesseractConfig configures the command-line backend.
type TesseractConfig struct {
	Name      string
	Binary    string
	Whitelist string
	Blacklist string
	Language  string
	// OEM and PSM take their defaults when nil, so 0 (legacy engine,
	// OSD only) stays selectable. Negative values omit the flag.
	OEM *int
	PSM *int
	// OutputDir receives the transient <uuid>-out.txt files.
	OutputDir string
}

// TesseractCLI runs the tesseract executable once per request.
type TesseractCLI struct {
	cfg    TesseractConfig
	runner *Runner
}

// NewTesseractCLI fills in defaults for every empty field of cfg.
func NewTesseractCLI(cfg TesseractConfig, runner *Runner) *TesseractCLI {
	if cfg.Name == "" {
		cfg.Name = "tesseract"
	}
	if cfg.Binary == "" {
		cfg.Binary = DefaultTesseractBinary
	}
	if cfg.Whitelist == "" {
		cfg.Whitelist = DefaultWhitelist
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.OEM == nil {
		oem := DefaultOEM
		cfg.OEM = &oem
	}
	if cfg.PSM == nil {
		psm := DefaultPSM
		cfg.PSM = &psm
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = os.TempDir()
	}
	if runner == nil {
		runner = &Runner{}
	}
	return &TesseractCLI{cfg: cfg, runner: runner}
}

func (t *TesseractCLI) Name() string { return t.cfg.Name }

// Args builds the argument list for one invocation.
func (t *TesseractCLI) Args(input, outputPrefix string) []string {
	args := []string{input, outputPrefix, "-c", "tessedit_char_whitelist=" + t.cfg.Whitelist}
	if t.cfg.Blacklist != "" {
		args = append(args, "-c", "tessedit_char_blacklist="+t.cfg.Blacklist)
	}
	args = append(args, "-l", t.cfg.Language)
	if *t.cfg.OEM >= 0 {
		args = append(args, "--oem", strconv.Itoa(*t.cfg.OEM))
	}
	if *t.cfg.PSM >= 0 {
		args = append(args, "--psm", strconv.Itoa(*t.cfg.PSM))
	}
	return args
}

// Recognize runs tesseract on path and returns the trimmed contents of the
// output file, which is removed on every exit path.
func (t *TesseractCLI) Recognize(ctx context.Context, path string) (string, error) {
	const op = "recognize"
	prefix := filepath.Join(t.cfg.OutputDir, uuid.NewString()+"-out")
	output := prefix + ".txt"
	defer func() {
		if err := os.Remove(output); err != nil && !errors.Is(err, fs.ErrNotExist) {
			t.runner.logger().Warn("tesseract output cleanup failed", "path", output, "error", err)
		}
	}()

	outcome, err := t.runner.Run(ctx, t.cfg.Binary, t.Args(path, prefix)...)
	if err != nil {
		return "", err
	}
	if !outcome.Success() {
		return "", &Error{
			Kind:    KindBackendExecution,
			Op:      op,
			Backend: t.cfg.Name,
			Message: "tesseract exited with an error",
			Outcome: &outcome,
		}
	}

	text, err := os.ReadFile(output)
	if err != nil {
		return "", BackendError(op, t.cfg.Name, "tesseract produced no output file", err)
	}
	return strings.TrimSpace(string(text)), nil
}

// Version returns the first line tesseract prints for --version.
func (t *TesseractCLI) Version(ctx context.Context) (string, error) {
	outcome, err := t.runner.Run(ctx, t.cfg.Binary, "--version")
	if err != nil {
		return "", err
	}
	if !outcome.Success() {
		return "", &Error{Kind: KindBackendExecution, Op: "version", Backend: t.cfg.Name, Message: "version probe failed", Outcome: &outcome}
	}
	// tesseract 3.x writes its banner to stderr
	out := outcome.Stdout
	if strings.TrimSpace(out) == "" {
		out = outcome.Stderr
	}
	line, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	return strings.TrimSpace(line), nil
}

// Health checks that the binary is on PATH.
func (t *TesseractCLI) Health(ctx context.Context) error {
	if _, ok := LookPath(t.cfg.Binary); !ok {
		return ConfigError("health", t.cfg.Binary+" not found in PATH")
	}
	return nil
}
