package state

import (
	"github.com/zjrosen/strand/internal/protocol"
)

// Apply folds one update into the state and returns the result. It is pure:
// the input state is never mutated, and only the fields named by the
// update's variant change.
//
// Status and heartbeat updates carry no state; they pass through unchanged.
// Progress updates set the operation. State syncs replace exactly the
// sub-fields present in the delta; a task list replacement also retires the
// previous current task into the history once it disappears from the list.
func Apply(s SharedState, u protocol.Update) SharedState {
	switch u.Kind {
	case protocol.KindProgress:
		if u.Progress == nil {
			return s
		}
		out := s.Clone()
		out.Operation = u.Progress.Operation
		return out

	case protocol.KindStateSync:
		if u.StateSync == nil {
			return s
		}
		return applyDelta(s, *u.StateSync)

	default:
		return s
	}
}

func applyDelta(s SharedState, d protocol.StateDelta) SharedState {
	out := s.Clone()

	if d.Tasks != nil {
		out.Tasks = append([]protocol.Task{}, (*d.Tasks)...)
	}
	if d.CurrentTask != nil {
		if prev := out.CurrentTask; prev != nil && prev.ID != d.CurrentTask.ID {
			out.TaskHistory = append(out.TaskHistory, *prev)
		}
		t := *d.CurrentTask
		out.CurrentTask = &t
	}
	if d.ConversationHistory != nil {
		out.ConversationHistory = append([]protocol.ConversationEntry{}, (*d.ConversationHistory)...)
	}
	if d.ToolLog != nil {
		out.ToolLog = append([]protocol.ToolLogEntry{}, (*d.ToolLog)...)
	}
	if d.Operation != nil {
		out.Operation = *d.Operation
	}

	return out
}
