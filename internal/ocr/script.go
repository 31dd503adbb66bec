package ocr

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// Bundled recognition scripts, looked up in the script directory.
const (
	EasyOCRScript      = "easy_ocr.py"
	PaddleOCRScript    = "paddle_ocr.py"
	DefaultInterpreter = "python3"
)

// ScriptConfig configures a script backend. Script is resolved against Dir,
// or against the running binary's directory when Dir is empty.
type ScriptConfig struct {
	Name        string
	Interpreter string
	Script      string
	Dir         string
}

// ScriptBackend runs `<interpreter> <script> <input>` and reads stdout.
type ScriptBackend struct {
	name        string
	interpreter string
	script      string
	runner      *Runner
}

// NewScriptBackend resolves the script location once at startup.
func NewScriptBackend(cfg ScriptConfig, runner *Runner) (*ScriptBackend, error) {
	if strings.TrimSpace(cfg.Script) == "" {
		return nil, ConfigError("script backend", "script path is required")
	}
	if cfg.Interpreter == "" {
		cfg.Interpreter = DefaultInterpreter
	}
	if cfg.Name == "" {
		cfg.Name = strings.TrimSuffix(filepath.Base(cfg.Script), filepath.Ext(cfg.Script))
	}
	script, err := resolveScript(cfg.Script, cfg.Dir)
	if err != nil {
		e := ConfigError("script backend", "cannot resolve script directory")
		e.Err = err
		return nil, e
	}
	if runner == nil {
		runner = &Runner{}
	}
	return &ScriptBackend{name: cfg.Name, interpreter: cfg.Interpreter, script: script, runner: runner}, nil
}

// NewEasyOCRScript is the "easyocr" variant backed by easy_ocr.py.
func NewEasyOCRScript(dir, interpreter string, runner *Runner) (*ScriptBackend, error) {
	return NewScriptBackend(ScriptConfig{Name: "easyocr", Interpreter: interpreter, Script: EasyOCRScript, Dir: dir}, runner)
}

// NewPaddleOCRScript is the "paddleocr" variant backed by paddle_ocr.py.
func NewPaddleOCRScript(dir, interpreter string, runner *Runner) (*ScriptBackend, error) {
	return NewScriptBackend(ScriptConfig{Name: "paddleocr", Interpreter: interpreter, Script: PaddleOCRScript, Dir: dir}, runner)
}

func resolveScript(script, dir string) (string, error) {
	if filepath.IsAbs(script) {
		return filepath.Clean(script), nil
	}
	if !filepath.IsAbs(dir) {
		exe, err := os.Executable()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(filepath.Dir(exe), dir)
	}
	return filepath.Join(dir, script), nil
}

func (s *ScriptBackend) Name() string { return s.name }

// Script returns the resolved script path.
func (s *ScriptBackend) Script() string { return s.script }

func (s *ScriptBackend) Recognize(ctx context.Context, path string) (string, error) {
	outcome, err := s.runner.Run(ctx, s.interpreter, s.script, path)
	if err != nil {
		return "", err
	}
	if !outcome.Success() {
		return "", &Error{
			Kind:    KindBackendExecution,
			Op:      "recognize",
			Backend: s.name,
			Message: "recognition script exited with an error",
			Outcome: &outcome,
		}
	}
	return strings.TrimSpace(outcome.Stdout), nil
}

// Health checks the interpreter is on PATH and the script file exists.
func (s *ScriptBackend) Health(ctx context.Context) error {
	if _, ok := LookPath(s.interpreter); !ok {
		return ConfigError("health", s.interpreter+" not found in PATH")
	}
	if _, err := os.Stat(s.script); err != nil {
		return ConfigError("health", "script not found: "+s.script)
	}
	return nil
}
