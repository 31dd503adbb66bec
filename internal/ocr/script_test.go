package ocr

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestScriptBackend_Recognize(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	script := filepath.Join(dir, EasyOCRScript)
	os.WriteFile(script, []byte(`printf '  %s-042\n' "$(basename "$1")"`), 0o644)

	b, err := NewEasyOCRScript(dir, "/bin/sh", &Runner{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Name() != "easyocr" || b.Script() != script {
		t.Fatalf("unexpected backend %s %s", b.Name(), b.Script())
	}

	text, err := b.Recognize(context.Background(), filepath.Join(dir, "in.png"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "in.png-042" {
		t.Fatalf("expected trimmed stdout, got %q", text)
	}
}

func TestScriptBackend_Failure(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	script := filepath.Join(dir, PaddleOCRScript)
	os.WriteFile(script, []byte(`echo "Error: model missing" >&2; exit 2`), 0o644)

	b, err := NewPaddleOCRScript(dir, "/bin/sh", &Runner{Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	_, err = b.Recognize(context.Background(), "in.png")
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindBackendExecution || e.Outcome.ExitCode != 2 {
		t.Fatalf("expected backend execution error with exit code 2, got %v", err)
	}
	if e.Backend != "paddleocr" {
		t.Fatalf("unexpected backend name %q", e.Backend)
	}
}

func TestNewScriptBackend_ResolvesRelativeToExecutable(t *testing.T) {
	b, err := NewScriptBackend(ScriptConfig{Script: "scripts/easy_ocr.py"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	exe, _ := os.Executable()
	want := filepath.Join(filepath.Dir(exe), "scripts", "easy_ocr.py")
	if b.Script() != want {
		t.Fatalf("expected %s, got %s", want, b.Script())
	}
	if b.Name() != "easy_ocr" {
		t.Fatalf("expected name derived from script, got %s", b.Name())
	}
}

func TestNewScriptBackend_RequiresScript(t *testing.T) {
	if _, err := NewScriptBackend(ScriptConfig{}, nil); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestScriptBackend_Health(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	b, _ := NewEasyOCRScript(dir, "/bin/sh", nil)
	if err := b.Health(context.Background()); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected missing script to be reported, got %v", err)
	}
	os.WriteFile(filepath.Join(dir, EasyOCRScript), []byte(""), 0o644)
	if err := b.Health(context.Background()); err != nil {
		t.Fatalf("expected healthy, got %v", err)
	}
}
