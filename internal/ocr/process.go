package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const (
	defaultWaitDelay   = 2 * time.Second
	defaultMaxLogBytes = 512
)

// Outcome is the captured result of one subprocess invocation.
type Outcome struct {
	Command  string
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Success reports whether the process exited with code 0.
func (o Outcome) Success() bool { return o.ExitCode == 0 }

// CommandLine renders the invocation for diagnostics.
func (o Outcome) CommandLine() string {
	parts := make([]string, 0, len(o.Args)+1)
	parts = append(parts, quoteArg(o.Command))
	for _, a := range o.Args {
		parts = append(parts, quoteArg(a))
	}
	return strings.Join(parts, " ")
}

func quoteArg(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\"'") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

// Runner launches external executables with captured output.
// The zero value is usable.
type Runner struct {
	Logger *slog.Logger
	// Timeout bounds each invocation; zero means only the caller's context applies.
	Timeout time.Duration
	// WaitDelay bounds how long Wait blocks on output pipes after a kill.
	WaitDelay time.Duration
	// MaxLogBytes truncates stdout/stderr in log records.
	MaxLogBytes int
}

// Pending is a started process. Wait may be called from any goroutine,
// and more than once.
type Pending struct {
	done    chan struct{}
	outcome Outcome
	err     error
}

// Done is closed once the process has exited and its output is collected.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the process exits.
func (p *Pending) Wait() (Outcome, error) {
	<-p.done
	return p.outcome, p.err
}

// Start launches name asynchronously. A failure to start is returned as a
// KindBackendExecution error.
func (r *Runner) Start(ctx context.Context, name string, args ...string) (*Pending, error) {
	parent := ctx
	cancel := context.CancelFunc(func() {})
	if r.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = defaultWaitDelay
	}

	outcome := Outcome{Command: name, Args: append([]string(nil), args...), ExitCode: -1}
	started := time.Now()
	if err := cmd.Start(); err != nil {
		cancel()
		outcome.Duration = time.Since(started)
		if parent.Err() != nil {
			err = fmt.Errorf("%s: %w", name, parent.Err())
			r.log(ctx, outcome, err)
			return nil, err
		}
		r.log(ctx, outcome, err)
		return nil, BackendError("start process", name, "failed to start process", err)
	}

	p := &Pending{done: make(chan struct{})}
	go func() {
		defer close(p.done)
		defer cancel()

		waitErr := cmd.Wait()
		outcome.Duration = time.Since(started)
		outcome.Stdout = stdout.String()
		outcome.Stderr = stderr.String()
		if cmd.ProcessState != nil {
			outcome.ExitCode = cmd.ProcessState.ExitCode()
		}

		var exitErr *exec.ExitError
		switch {
		case parent.Err() != nil:
			p.err = fmt.Errorf("%s: %w", name, parent.Err())
		case ctx.Err() != nil:
			p.err = BackendError("wait process", name, fmt.Sprintf("process timed out after %s", r.Timeout), ctx.Err())
		case waitErr != nil && !errors.As(waitErr, &exitErr):
			p.err = BackendError("wait process", name, "process did not complete", waitErr)
		}
		p.outcome = outcome
		r.log(ctx, outcome, p.err)
	}()
	return p, nil
}

// Run starts name and waits for it. A non-zero exit is reported in the
// Outcome, not as an error.
func (r *Runner) Run(ctx context.Context, name string, args ...string) (Outcome, error) {
	p, err := r.Start(ctx, name, args...)
	if err != nil {
		return Outcome{Command: name, Args: args, ExitCode: -1}, err
	}
	return p.Wait()
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func (r *Runner) log(ctx context.Context, o Outcome, err error) {
	logger := r.logger()
	limit := r.MaxLogBytes
	if limit <= 0 {
		limit = defaultMaxLogBytes
	}
	level := slog.LevelInfo
	if err != nil || !o.Success() {
		level = slog.LevelWarn
	}
	attrs := []any{
		"command", o.Command,
		"args", o.Args,
		"exit_code", o.ExitCode,
		"duration_ms", o.Duration.Milliseconds(),
		"stdout", truncate(o.Stdout, limit),
		"stderr", truncate(o.Stderr, limit),
	}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	logger.Log(context.WithoutCancel(ctx), level, "process finished", attrs...)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}

// LookPath reports the resolved location of an executable.
func LookPath(name string) (string, bool) {
	p, err := exec.LookPath(name)
	if err != nil {
		return "", false
	}
	return p, true
}
