// Package protocol defines the newline-delimited JSON wire protocol spoken
// by worker processes on stdout. Each line is one Update. Updates are decoded
// and validated exactly once, at this boundary; downstream code only ever
// sees the typed variants.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// UpdateKind identifies the variant of an Update.
type UpdateKind string

const (
	// KindStatus is a lifecycle status change; "completed" and "error" are terminal.
	KindStatus UpdateKind = "status"
	// KindProgress reports incremental progress on the current operation.
	KindProgress UpdateKind = "progress"
	// KindStateSync carries a partial state snapshot to fold into shared state.
	KindStateSync UpdateKind = "state_sync"
	// KindHeartbeat is an advisory liveness signal.
	KindHeartbeat UpdateKind = "heartbeat"
)

// Status values carried by a status update.
const (
	StatusInitializing = "initializing"
	StatusProcessing   = "processing"
	StatusCompleted    = "completed"
	StatusError        = "error"
)

// Task is a single unit of planned work, as carried on the wire and in the
// persisted snapshot.
type Task struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

// ConversationEntry is one message in the conversation history.
type ConversationEntry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ToolLogEntry records one tool invocation performed by a worker.
type ToolLogEntry struct {
	Tool      string    `json:"tool"`
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusUpdate is the payload of a KindStatus update.
type StatusUpdate struct {
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	Response string `json:"response,omitempty"` // Set when Status == "completed"
	Error    string `json:"error,omitempty"`    // Set when Status == "error"
}

// ProgressUpdate is the payload of a KindProgress update.
type ProgressUpdate struct {
	Operation string            `json:"operation"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
}

// StateDelta is the payload of a KindStateSync update. Nil fields were absent
// on the wire and must be left untouched by the reducer.
type StateDelta struct {
	Tasks               *[]Task              `json:"tasks,omitempty"`
	CurrentTask         *Task                `json:"current_task,omitempty"`
	ConversationHistory *[]ConversationEntry `json:"conversation_history,omitempty"`
	ToolLog             *[]ToolLogEntry      `json:"tool_log,omitempty"`
	Operation           *string              `json:"operation,omitempty"`
}

// HeartbeatUpdate is the payload of a KindHeartbeat update.
type HeartbeatUpdate struct {
	Message string  `json:"message"`
	Elapsed float64 `json:"elapsed"` // Seconds since the worker started
}

// Update is one structured event emitted by a worker process.
// Exactly one of the variant pointers is non-nil, matching Kind.
// Updates are immutable once parsed.
type Update struct {
	Kind      UpdateKind
	EmittedAt time.Time

	Status    *StatusUpdate
	Progress  *ProgressUpdate
	StateSync *StateDelta
	Heartbeat *HeartbeatUpdate

	// Raw is the original wire line, kept for debugging.
	Raw json.RawMessage
}

// IsTerminal reports whether this update ends a request's lifecycle.
// Only a status update with value "completed" or "error" is terminal.
func (u *Update) IsTerminal() bool {
	if u.Kind != KindStatus || u.Status == nil {
		return false
	}
	return u.Status.Status == StatusCompleted || u.Status.Status == StatusError
}

// IsError reports whether this is a terminal error status.
func (u *Update) IsError() bool {
	return u.Kind == KindStatus && u.Status != nil && u.Status.Status == StatusError
}

// rawUpdate mirrors the wire format of a single line. All variants share one
// flat object distinguished by the type field.
type rawUpdate struct {
	Type      UpdateKind `json:"type"`
	Timestamp time.Time  `json:"timestamp"`

	// status fields
	Status   string `json:"status,omitempty"`
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`

	// progress fields (Message is shared with status and heartbeat)
	Message   string            `json:"message,omitempty"`
	Operation string            `json:"operation,omitempty"`
	Details   map[string]string `json:"details,omitempty"`

	// state_sync fields
	Data *StateDelta `json:"data,omitempty"`

	// heartbeat fields. Elapsed is a pointer so zero seconds still round-trips
	// and a missing field is detectable.
	Elapsed *float64 `json:"elapsed,omitempty"`
}

// ParseUpdate decodes one protocol line into an Update, validating that the
// required fields for its variant are present. A parse or validation failure
// is a protocol-level error: callers log it, drop the line, and continue.
func ParseUpdate(line []byte) (Update, error) {
	var raw rawUpdate
	if err := json.Unmarshal(line, &raw); err != nil {
		return Update{}, fmt.Errorf("decoding update: %w", err)
	}

	u := Update{
		Kind:      raw.Type,
		EmittedAt: raw.Timestamp,
	}

	switch raw.Type {
	case KindStatus:
		if !validStatus(raw.Status) {
			return Update{}, fmt.Errorf("status update with unknown status %q", raw.Status)
		}
		u.Status = &StatusUpdate{
			Status:   raw.Status,
			Message:  raw.Message,
			Response: raw.Response,
			Error:    raw.Error,
		}
	case KindProgress:
		if raw.Operation == "" {
			return Update{}, fmt.Errorf("progress update missing operation")
		}
		u.Progress = &ProgressUpdate{
			Operation: raw.Operation,
			Message:   raw.Message,
			Details:   raw.Details,
		}
	case KindStateSync:
		if raw.Data == nil {
			return Update{}, fmt.Errorf("state_sync update missing data")
		}
		u.StateSync = raw.Data
	case KindHeartbeat:
		if raw.Message == "" {
			return Update{}, fmt.Errorf("heartbeat update missing message")
		}
		if raw.Elapsed == nil {
			return Update{}, fmt.Errorf("heartbeat update missing elapsed")
		}
		u.Heartbeat = &HeartbeatUpdate{
			Message: raw.Message,
			Elapsed: *raw.Elapsed,
		}
	case "":
		return Update{}, fmt.Errorf("update missing type field")
	default:
		return Update{}, fmt.Errorf("unknown update type %q", raw.Type)
	}

	u.Raw = make([]byte, len(line))
	copy(u.Raw, line)

	return u, nil
}

func validStatus(s string) bool {
	switch s {
	case StatusInitializing, StatusProcessing, StatusCompleted, StatusError:
		return true
	}
	return false
}
