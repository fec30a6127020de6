// Package state holds the shared application state folded from worker
// updates, the reducer that folds them, and the durable snapshot store.
package state

import (
	"github.com/zjrosen/strand/internal/protocol"
)

// SharedState is the single mutable snapshot of conversation, task, and tool
// state. It is owned by the orchestrator and mutated only on its own tick;
// workers contribute to it solely through updates folded in by Apply.
type SharedState struct {
	Tasks               []protocol.Task              `json:"tasks"`
	TaskHistory         []protocol.Task              `json:"task_history"`
	CurrentTask         *protocol.Task               `json:"current_task"`
	ConversationHistory []protocol.ConversationEntry `json:"conversation_history"`
	ToolLog             []protocol.ToolLogEntry      `json:"tool_log"`
	Operation           string                       `json:"operation"`
	AllowedDirectories  []string                     `json:"allowed_directories"`
}

// Default returns the state used when no snapshot exists or a snapshot is
// rejected. Collections are non-nil so the serialized form always carries
// every required key as the right JSON type.
func Default() SharedState {
	return SharedState{
		Tasks:               []protocol.Task{},
		TaskHistory:         []protocol.Task{},
		CurrentTask:         nil,
		ConversationHistory: []protocol.ConversationEntry{},
		ToolLog:             []protocol.ToolLogEntry{},
		Operation:           "",
		AllowedDirectories:  []string{},
	}
}

// Clone returns a deep copy. The orchestrator hands clones to the renderer
// so presentation code can never mutate the canonical state.
func (s SharedState) Clone() SharedState {
	out := s
	out.Tasks = append([]protocol.Task{}, s.Tasks...)
	out.TaskHistory = append([]protocol.Task{}, s.TaskHistory...)
	out.ConversationHistory = append([]protocol.ConversationEntry{}, s.ConversationHistory...)
	out.ToolLog = append([]protocol.ToolLogEntry{}, s.ToolLog...)
	out.AllowedDirectories = append([]string{}, s.AllowedDirectories...)
	if s.CurrentTask != nil {
		t := *s.CurrentTask
		out.CurrentTask = &t
	}
	return out
}

// AppendConversation adds one entry to the conversation history.
func (s *SharedState) AppendConversation(entry protocol.ConversationEntry) {
	s.ConversationHistory = append(s.ConversationHistory, entry)
}
