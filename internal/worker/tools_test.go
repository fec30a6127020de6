package worker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExecutor_RefusesPathsOutsideAllowlist(t *testing.T) {
	exec, err := NewExecutor([]string{t.TempDir()})
	require.NoError(t, err)

	_, err = exec.ReadFile("/etc/passwd")
	require.ErrorIs(t, err, ErrPathNotAllowed)

	err = exec.WriteFile("/tmp/outside.txt", "nope")
	require.ErrorIs(t, err, ErrPathNotAllowed)

	_, err = exec.ListDir("/")
	require.ErrorIs(t, err, ErrPathNotAllowed)
}

func TestExecutor_RefusesTraversalOutOfAllowlist(t *testing.T) {
	dir := t.TempDir()
	exec, err := NewExecutor([]string{dir})
	require.NoError(t, err)

	_, err = exec.ReadFile(filepath.Join(dir, "..", "sibling.txt"))
	require.ErrorIs(t, err, ErrPathNotAllowed)
}

func TestExecutor_EmptyAllowlistRefusesEverything(t *testing.T) {
	exec, err := NewExecutor(nil)
	require.NoError(t, err)

	_, err = exec.ReadFile("anything.txt")
	require.ErrorIs(t, err, ErrPathNotAllowed)
}

func TestExecutor_WriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	exec, err := NewExecutor([]string{dir})
	require.NoError(t, err)

	path := filepath.Join(dir, "notes", "todo.txt")
	require.NoError(t, exec.WriteFile(path, "buy milk\n"))

	content, err := exec.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "buy milk\n", content)
}

func TestExecutor_WriteRecordsDiffSummary(t *testing.T) {
	dir := t.TempDir()
	exec, err := NewExecutor([]string{dir})
	require.NoError(t, err)

	path := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("- old note\n"), 0o644))

	require.NoError(t, exec.WriteFile(path, "- old note\n- new note\n"))

	entries := exec.ToolLog()
	require.Len(t, entries, 1)
	require.Equal(t, "write_file", entries[0].Tool)
	require.Contains(t, entries[0].Detail, "+11/-0")
}

func TestExecutor_ListDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b"), 0o644))

	exec, err := NewExecutor([]string{dir})
	require.NoError(t, err)

	names, err := exec.ListDir(dir)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a.txt", "b.txt"}, names)
}

func TestExecutor_ToolLogAccumulates(t *testing.T) {
	dir := t.TempDir()
	exec, err := NewExecutor([]string{dir})
	require.NoError(t, err)

	path := filepath.Join(dir, "f.txt")
	require.NoError(t, exec.WriteFile(path, "one"))
	_, err = exec.ReadFile(path)
	require.NoError(t, err)
	_, err = exec.ListDir(dir)
	require.NoError(t, err)

	entries := exec.ToolLog()
	require.Len(t, entries, 3)
	require.Equal(t, "write_file", entries[0].Tool)
	require.Equal(t, "read_file", entries[1].Tool)
	require.Equal(t, "list_dir", entries[2].Tool)
	for _, entry := range entries {
		require.False(t, entry.Timestamp.IsZero())
	}
}
