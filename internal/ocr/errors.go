package ocr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a recognition failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindAccessDenied
	KindNotFound
	KindBackendExecution
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindAccessDenied:
		return "access_denied"
	case KindNotFound:
		return "not_found"
	case KindBackendExecution:
		return "backend_execution"
	case KindConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrAccessDenied     = errors.New("access denied")
	ErrNotFound         = errors.New("not found")
	ErrBackendExecution = errors.New("backend execution failed")
	ErrConfiguration    = errors.New("configuration error")
)

// Error is the error type returned by every component in this package.
type Error struct {
	Kind    Kind
	Op      string
	Backend string
	Message string
	// Outcome is set when a subprocess ran and exited unsuccessfully.
	Outcome *Outcome
	// StatusCode is set when a remote backend answered with a non-2xx status.
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Backend != "" {
		b.WriteString(e.Backend)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Outcome != nil {
		fmt.Fprintf(&b, " (exit code %d: %s)", e.Outcome.ExitCode, e.Outcome.CommandLine())
		if stderr := strings.TrimSpace(e.Outcome.Stderr); stderr != "" {
			fmt.Fprintf(&b, " stderr=%q", stderr)
		}
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrNotFound) and friends match on kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrInvalidInput:
		return e.Kind == KindInvalidInput
	case ErrAccessDenied:
		return e.Kind == KindAccessDenied
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrBackendExecution:
		return e.Kind == KindBackendExecution
	case ErrConfiguration:
		return e.Kind == KindConfiguration
	}
	return false
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsCallerError reports whether err was caused by the request rather than a backend.
func IsCallerError(err error) bool {
	switch KindOf(err) {
	case KindInvalidInput, KindAccessDenied, KindNotFound:
		return true
	}
	return false
}

// Message returns the client-safe message of the first *Error in err's chain.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ""
}

func invalidInput(op, msg string) *Error {
	return &Error{Kind: KindInvalidInput, Op: op, Message: msg}
}

// BackendError builds a KindBackendExecution error.
func BackendError(op, backend, msg string, err error) *Error {
	return &Error{Kind: KindBackendExecution, Op: op, Backend: backend, Message: msg, Err: err}
}

// ConfigError builds a KindConfiguration error.
func ConfigError(op, msg string) *Error {
	return &Error{Kind: KindConfiguration, Op: op, Message: msg}
}
