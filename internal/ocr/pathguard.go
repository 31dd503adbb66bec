package ocr

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DataDir is the fixed data directory allowed besides the temp directory.
const DataDir = "/data/"

// PathGuard restricts backend input paths to an allow-list of directories.
type PathGuard struct {
	allowed []string
}

// NewPathGuard builds a guard for dirs. With no dirs it permits the system
// temp directory and DataDir.
func NewPathGuard(dirs ...string) *PathGuard {
	if len(dirs) == 0 {
		dirs = []string{os.TempDir(), DataDir}
	}
	g := &PathGuard{}
	for _, d := range dirs {
		if strings.TrimSpace(d) == "" {
			continue
		}
		if abs, err := resolveDir(d); err == nil {
			g.allowed = append(g.allowed, abs)
		}
	}
	return g
}

// Allowed returns the resolved allow-list.
func (g *PathGuard) Allowed() []string {
	return append([]string(nil), g.allowed...)
}

// IsPermitted reports whether the directory containing path lies within one
// of the allowed directories. An existing path is checked after resolving
// its symlinks, so a link inside an allowed directory cannot point outside.
func (g *PathGuard) IsPermitted(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	dir, err := resolveDir(filepath.Dir(path))
	if err != nil {
		return false
	}
	if abs, err := filepath.Abs(path); err == nil {
		if resolved, err := filepath.EvalSymlinks(abs); err == nil {
			dir = filepath.Dir(filepath.Clean(resolved))
		}
	}
	for _, allowed := range g.allowed {
		if within(dir, allowed) {
			return true
		}
	}
	return false
}

// Check validates path before any backend sees it.
func (g *PathGuard) Check(path string) error {
	const op = "check input"
	if strings.TrimSpace(path) == "" {
		return invalidInput(op, "Input file path is required")
	}
	if !g.IsPermitted(path) {
		return &Error{Kind: KindAccessDenied, Op: op, Message: "Input file must be in a permitted directory"}
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Error{Kind: KindNotFound, Op: op, Message: "Input file does not exist"}
	}
	if err != nil {
		return &Error{Kind: KindAccessDenied, Op: op, Message: "Input file is not readable", Err: err}
	}
	if info.IsDir() {
		return invalidInput(op, "Input path is a directory")
	}
	return nil
}

// resolveDir returns the absolute, cleaned form of dir with symlinks
// resolved when the directory exists.
func resolveDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return filepath.Clean(abs), nil
}

func within(dir, root string) bool {
	if dir == root {
		return true
	}
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
