package worker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/zjrosen/strand/internal/protocol"
)

// ErrPathNotAllowed is returned for any file operation outside the allowed
// directories.
var ErrPathNotAllowed = errors.New("path is outside the allowed directories")

// Executor performs the worker's file tools, confined to a set of allowed
// directories. Every invocation is recorded in the tool log, which the
// worker syncs back through the protocol.
type Executor struct {
	allowed []string
	entries []protocol.ToolLogEntry
}

// NewExecutor builds an executor confined to the given directories. With no
// directories, every file operation is refused.
func NewExecutor(allowedDirs []string) (*Executor, error) {
	allowed := make([]string, 0, len(allowedDirs))
	for _, dir := range allowedDirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("resolving allowed directory %s: %w", dir, err)
		}
		allowed = append(allowed, filepath.Clean(abs))
	}
	return &Executor{allowed: allowed}, nil
}

// AllowedDirectories returns the resolved directory allowlist.
func (e *Executor) AllowedDirectories() []string {
	return append([]string{}, e.allowed...)
}

// ToolLog returns every invocation recorded so far.
func (e *Executor) ToolLog() []protocol.ToolLogEntry {
	return append([]protocol.ToolLogEntry{}, e.entries...)
}

// ReadFile reads a file inside the allowed directories.
func (e *Executor) ReadFile(path string) (string, error) {
	resolved, err := e.resolve(path)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(resolved) // #nosec G304 -- resolved against the allowlist above
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}

	e.record("read_file", fmt.Sprintf("%s (%d bytes)", resolved, len(data)))
	return string(data), nil
}

// WriteFile writes a file inside the allowed directories. The tool log
// entry carries a summary of the change against the previous content.
func (e *Executor) WriteFile(path, content string) error {
	resolved, err := e.resolve(path)
	if err != nil {
		return err
	}

	old := ""
	if data, err := os.ReadFile(resolved); err == nil { // #nosec G304 -- resolved against the allowlist above
		old = string(data)
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	e.record("write_file", fmt.Sprintf("%s %s", resolved, diffSummary(old, content)))
	return nil
}

// ListDir lists the entries of a directory inside the allowed directories.
func (e *Executor) ListDir(path string) ([]string, error) {
	resolved, err := e.resolve(path)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", path, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}

	e.record("list_dir", fmt.Sprintf("%s (%d entries)", resolved, len(names)))
	return names, nil
}

func (e *Executor) resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}
	abs = filepath.Clean(abs)

	for _, dir := range e.allowed {
		if abs == dir || strings.HasPrefix(abs, dir+string(filepath.Separator)) {
			return abs, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrPathNotAllowed, path)
}

func (e *Executor) record(tool, detail string) {
	e.entries = append(e.entries, protocol.ToolLogEntry{
		Tool:      tool,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	})
}

// diffSummary condenses a content change into "+N/-M chars".
func diffSummary(old, new string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(old, new, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var added, removed int
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += len(d.Text)
		case diffmatchpatch.DiffDelete:
			removed += len(d.Text)
		}
	}
	return fmt.Sprintf("(+%d/-%d chars)", added, removed)
}
