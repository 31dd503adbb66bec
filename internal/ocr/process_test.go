package ocr

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRunner_CapturesOutput(t *testing.T) {
	bin := writeExecutable(t, t.TempDir(), "tool", `echo "out $1"; echo "err $2" >&2`)
	r := &Runner{Logger: quietLogger()}

	out, err := r.Run(context.Background(), bin, "a", "b c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Success() || out.ExitCode != 0 {
		t.Fatalf("expected success, got exit %d", out.ExitCode)
	}
	if strings.TrimSpace(out.Stdout) != "out a" || strings.TrimSpace(out.Stderr) != "err b c" {
		t.Fatalf("unexpected streams stdout=%q stderr=%q", out.Stdout, out.Stderr)
	}
	if !strings.Contains(out.CommandLine(), `"b c"`) {
		t.Fatalf("expected quoted argument in command line, got %s", out.CommandLine())
	}
}

func TestRunner_NonZeroExitIsNotAnError(t *testing.T) {
	bin := writeExecutable(t, t.TempDir(), "fail", `echo "no such file" >&2; exit 1`)
	r := &Runner{Logger: quietLogger()}

	out, err := r.Run(context.Background(), bin)
	if err != nil {
		t.Fatalf("non-zero exit must not be an error, got %v", err)
	}
	if out.Success() || out.ExitCode != 1 {
		t.Fatalf("expected exit code 1, got %d", out.ExitCode)
	}
	if strings.TrimSpace(out.Stderr) != "no such file" {
		t.Fatalf("unexpected stderr %q", out.Stderr)
	}
}

func TestRunner_MissingBinary(t *testing.T) {
	r := &Runner{Logger: quietLogger()}
	_, err := r.Run(context.Background(), "definitely-not-a-real-ocr-binary")
	if !errors.Is(err, ErrBackendExecution) {
		t.Fatalf("expected backend execution error, got %v", err)
	}
}

func TestRunner_Timeout(t *testing.T) {
	bin := writeExecutable(t, t.TempDir(), "slow", `sleep 5`)
	r := &Runner{Logger: quietLogger(), Timeout: 100 * time.Millisecond, WaitDelay: 100 * time.Millisecond}

	start := time.Now()
	_, err := r.Run(context.Background(), bin)
	if !errors.Is(err, ErrBackendExecution) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected timeout backend error, got %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Fatal("process was not killed on timeout")
	}
}

func TestRunner_CallerCancellation(t *testing.T) {
	bin := writeExecutable(t, t.TempDir(), "slow", `sleep 5`)
	r := &Runner{Logger: quietLogger(), WaitDelay: 100 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	p, err := r.Start(ctx, bin)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()

	select {
	case <-p.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("process not abandoned after cancellation")
	}
	_, err = p.Wait()
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrBackendExecution) {
		t.Fatal("caller cancellation must not be reported as a backend failure")
	}
}

func TestRunner_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &Runner{Logger: quietLogger(), Timeout: time.Second}

	_, err := r.Run(ctx, "true")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrBackendExecution) {
		t.Fatalf("caller cancellation must not be a backend error: %v", err)
	}
}
