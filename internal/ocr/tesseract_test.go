package ocr

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeTesseract records its arguments and writes text to <prefix>.txt.
func fakeTesseract(t *testing.T, dir, text string) (bin, argsFile string) {
	t.Helper()
	argsFile = filepath.Join(dir, "args")
	bin = writeExecutable(t, dir, "tesseract",
		`for a in "$@"; do echo "$a"; done > "`+argsFile+`"
printf '%s\n' "`+text+`" > "$2.txt"`)
	return bin, argsFile
}

func TestTesseractCLI_Args(t *testing.T) {
	tc := NewTesseractCLI(TesseractConfig{Blacklist: "abc"}, nil)
	got := strings.Join(tc.Args("/tmp/in.png", "/tmp/x-out"), " ")
	want := "/tmp/in.png /tmp/x-out -c tessedit_char_whitelist=0123456789 -c tessedit_char_blacklist=abc -l eng --oem 3 --psm 8"
	if got != want {
		t.Fatalf("args mismatch\n got: %s\nwant: %s", got, want)
	}

	tc = NewTesseractCLI(TesseractConfig{Whitelist: "ABC", Language: "deu", OEM: intPtr(1), PSM: intPtr(7)}, nil)
	got = strings.Join(tc.Args("in", "out"), " ")
	if got != "in out -c tessedit_char_whitelist=ABC -l deu --oem 1 --psm 7" {
		t.Fatalf("unexpected args: %s", got)
	}
}

func intPtr(v int) *int { return &v }

func TestTesseractCLI_ZeroModesAreKept(t *testing.T) {
	tc := NewTesseractCLI(TesseractConfig{OEM: intPtr(0), PSM: intPtr(0)}, nil)
	got := strings.Join(tc.Args("in", "out"), " ")
	if !strings.HasSuffix(got, "--oem 0 --psm 0") {
		t.Fatalf("expected explicit zero modes, got: %s", got)
	}

	tc = NewTesseractCLI(TesseractConfig{OEM: intPtr(-1), PSM: intPtr(-1)}, nil)
	got = strings.Join(tc.Args("in", "out"), " ")
	if strings.Contains(got, "--oem") || strings.Contains(got, "--psm") {
		t.Fatalf("negative modes must omit the flags, got: %s", got)
	}
}

func TestTesseractCLI_Recognize(t *testing.T) {
	dir := t.TempDir()
	outDir := t.TempDir()
	bin, argsFile := fakeTesseract(t, dir, "  042  ")
	input := filepath.Join(dir, "captcha.png")
	os.WriteFile(input, []byte("x"), 0o600)

	tc := NewTesseractCLI(TesseractConfig{Binary: bin, OutputDir: outDir}, &Runner{Logger: quietLogger()})
	text, err := tc.Recognize(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "042" {
		t.Fatalf("expected 042, got %q", text)
	}

	args, _ := os.ReadFile(argsFile)
	lines := strings.Split(strings.TrimSpace(string(args)), "\n")
	if lines[0] != input || !strings.HasPrefix(lines[1], outDir) || !strings.HasSuffix(lines[1], "-out") {
		t.Fatalf("unexpected input/prefix args: %v", lines)
	}
	if lines[3] != "tessedit_char_whitelist=0123456789" {
		t.Fatalf("expected digit whitelist, got %v", lines)
	}
	if names := listDir(t, outDir); len(names) != 0 {
		t.Fatalf("output file not removed: %v", names)
	}
}

func TestTesseractCLI_NonZeroExit(t *testing.T) {
	dir := t.TempDir()
	outDir := t.TempDir()
	bin := writeExecutable(t, dir, "tesseract", `echo partial > "$2.txt"; echo "no such file" >&2; exit 1`)

	tc := NewTesseractCLI(TesseractConfig{Binary: bin, OutputDir: outDir}, &Runner{Logger: quietLogger()})
	_, err := tc.Recognize(context.Background(), filepath.Join(dir, "missing.png"))
	if !errors.Is(err, ErrBackendExecution) {
		t.Fatalf("expected backend execution error, got %v", err)
	}
	var e *Error
	if !errors.As(err, &e) || e.Outcome == nil {
		t.Fatalf("expected outcome in error, got %#v", err)
	}
	if e.Outcome.ExitCode != 1 || strings.TrimSpace(e.Outcome.Stderr) != "no such file" {
		t.Fatalf("unexpected outcome: %+v", e.Outcome)
	}
	if !strings.Contains(err.Error(), "exit code 1") || !strings.Contains(err.Error(), bin) {
		t.Fatalf("diagnostics missing from error: %v", err)
	}
	if names := listDir(t, outDir); len(names) != 0 {
		t.Fatalf("output file not removed after failure: %v", names)
	}
}

func TestTesseractCLI_MissingOutput(t *testing.T) {
	dir := t.TempDir()
	bin := writeExecutable(t, dir, "tesseract", `exit 0`)
	tc := NewTesseractCLI(TesseractConfig{Binary: bin, OutputDir: t.TempDir()}, &Runner{Logger: quietLogger()})
	if _, err := tc.Recognize(context.Background(), "in.png"); !errors.Is(err, ErrBackendExecution) {
		t.Fatalf("expected backend execution error, got %v", err)
	}
}

func TestTesseractCLI_Version(t *testing.T) {
	dir := t.TempDir()
	bin := writeExecutable(t, dir, "tesseract", `echo "tesseract 5.3.0"; echo " leptonica-1.82.0"`)
	tc := NewTesseractCLI(TesseractConfig{Binary: bin}, &Runner{Logger: quietLogger()})
	v, err := tc.Version(context.Background())
	if err != nil || v != "tesseract 5.3.0" {
		t.Fatalf("unexpected version %q err=%v", v, err)
	}
	if err := tc.Health(context.Background()); err != nil {
		t.Fatalf("expected healthy, got %v", err)
	}

	missing := NewTesseractCLI(TesseractConfig{Binary: "no-such-tesseract-binary"}, nil)
	if err := missing.Health(context.Background()); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
