package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/strand/internal/log"
)

// requiredKeys are the top-level keys every accepted snapshot must carry,
// each with the JSON type it must have. A snapshot failing this check is
// rejected whole; there is no partial merge of a malformed snapshot.
var requiredKeys = map[string]func(json.RawMessage) bool{
	"tasks":                isJSONArray,
	"task_history":         isJSONArray,
	"current_task":         isJSONObjectOrNull,
	"conversation_history": isJSONArray,
	"tool_log":             isJSONArray,
	"operation":            isJSONString,
	"allowed_directories":  isJSONArray,
}

// Store persists SharedState snapshots to a single JSON file. Writes are
// atomic (temp file then rename), so readers never observe a half-written
// snapshot.
type Store struct {
	path string
}

// NewStore creates a store writing to the given snapshot path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the canonical snapshot path.
func (st *Store) Path() string {
	return st.path
}

// Save serializes the full state and writes it atomically. A save failure is
// recoverable (the next save supersedes it); callers log the error and carry
// on rather than abort.
func (st *Store) Save(s SharedState) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	dir := filepath.Dir(st.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	// Write atomically (write to temp, then rename)
	temp, err := os.CreateTemp(dir, ".strand-state.tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(data); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tempPath, st.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	log.Debug(log.CatState, "state snapshot saved", "path", st.path, "bytes", len(data))
	return nil
}

// Load reads the snapshot, falling back to defaults whenever the file is
// absent, empty, unparseable, or structurally invalid. An unparseable file
// is renamed aside with a timestamp so it can be inspected; it is never
// deleted silently.
func (st *Store) Load() SharedState {
	data, err := os.ReadFile(st.path)
	if os.IsNotExist(err) {
		return Default()
	}
	if err != nil {
		log.Warn(log.CatState, "cannot read state snapshot, using defaults", "path", st.path, "error", err)
		return Default()
	}
	if len(data) == 0 {
		return Default()
	}

	if !json.Valid(data) {
		backup := st.backupCorrupt()
		log.Warn(log.CatState, "state snapshot is not valid JSON, using defaults",
			"path", st.path, "backup", backup)
		return Default()
	}

	if err := Validate(data); err != nil {
		log.Warn(log.CatState, "state snapshot rejected, using defaults", "path", st.path, "error", err)
		return Default()
	}

	// Unmarshal over defaults so additive schema changes keep their zero
	// values instead of nils.
	s := Default()
	if err := json.Unmarshal(data, &s); err != nil {
		backup := st.backupCorrupt()
		log.Warn(log.CatState, "state snapshot failed to decode, using defaults",
			"path", st.path, "backup", backup, "error", err)
		return Default()
	}
	normalize(&s)
	return s
}

// Validate checks that the raw snapshot carries every required top-level key
// with the right JSON type.
func Validate(data []byte) error {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return fmt.Errorf("snapshot is not a JSON object: %w", err)
	}

	for key, check := range requiredKeys {
		raw, ok := top[key]
		if !ok {
			return fmt.Errorf("snapshot missing required key %q", key)
		}
		if !check(raw) {
			return fmt.Errorf("snapshot key %q has wrong type", key)
		}
	}
	return nil
}

// Clear deletes the snapshot file. Safe to call when absent.
func (st *Store) Clear() error {
	err := os.Remove(st.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing state snapshot: %w", err)
	}
	return nil
}

// backupCorrupt renames the bad snapshot aside and returns the backup path,
// or "" if the rename itself failed.
func (st *Store) backupCorrupt() string {
	backup := fmt.Sprintf("%s.corrupt-%s", st.path, time.Now().Format("20060102-150405"))
	if err := os.Rename(st.path, backup); err != nil {
		log.Warn(log.CatState, "cannot back up corrupt snapshot", "path", st.path, "error", err)
		return ""
	}
	return backup
}

func firstByte(raw json.RawMessage) byte {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b
	}
	return 0
}

func isJSONArray(raw json.RawMessage) bool { return firstByte(raw) == '[' }

func isJSONString(raw json.RawMessage) bool { return firstByte(raw) == '"' }

func isJSONObjectOrNull(raw json.RawMessage) bool {
	b := firstByte(raw)
	return b == '{' || b == 'n'
}

// normalize replaces nil collections (a snapshot may carry JSON nulls for
// them) so downstream code can append without nil checks.
func normalize(s *SharedState) {
	d := Default()
	if s.Tasks == nil {
		s.Tasks = d.Tasks
	}
	if s.TaskHistory == nil {
		s.TaskHistory = d.TaskHistory
	}
	if s.ConversationHistory == nil {
		s.ConversationHistory = d.ConversationHistory
	}
	if s.ToolLog == nil {
		s.ToolLog = d.ToolLog
	}
	if s.AllowedDirectories == nil {
		s.AllowedDirectories = d.AllowedDirectories
	}
}
