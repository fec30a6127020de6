package worker

import "strings"

// Intent is the classified purpose of a request.
type Intent int

const (
	// IntentSummarize is the fallback: report on the current state.
	IntentSummarize Intent = iota
	// IntentAddTask adds a new task.
	IntentAddTask
	// IntentCompleteTask marks an existing task done.
	IntentCompleteTask
	// IntentRemoveTask deletes an existing task.
	IntentRemoveTask
	// IntentListTasks enumerates tasks.
	IntentListTasks
	// IntentSaveNote appends to the notes file.
	IntentSaveNote
)

func (i Intent) String() string {
	switch i {
	case IntentAddTask:
		return "add_task"
	case IntentCompleteTask:
		return "complete_task"
	case IntentRemoveTask:
		return "remove_task"
	case IntentListTasks:
		return "list_tasks"
	case IntentSaveNote:
		return "save_note"
	default:
		return "summarize"
	}
}

// keyword groups checked in order; the first group with a match wins.
var intentKeywords = []struct {
	intent   Intent
	keywords []string
}{
	{IntentSaveNote, []string{"note:", "note "}},
	{IntentCompleteTask, []string{"done", "complete", "finish", "check off"}},
	{IntentRemoveTask, []string{"remove", "delete", "drop", "forget"}},
	{IntentAddTask, []string{"add", "remember to", "remind me", "todo:", "need to"}},
	{IntentListTasks, []string{"list", "show", "what's on", "whats on", "what is on"}},
}

// classify maps a request to an intent with keyword matching. Anything
// unrecognized falls through to a summary of the current state.
func classify(input string) Intent {
	lower := strings.ToLower(strings.TrimSpace(input))
	for _, group := range intentKeywords {
		for _, kw := range group.keywords {
			if strings.Contains(lower, kw) {
				return group.intent
			}
		}
	}
	return IntentSummarize
}

// extractTaskText strips the leading verb phrase from a task request,
// leaving the task description.
var taskPrefixes = []string{
	"add a task to", "add a task", "add task", "add",
	"remember to", "remind me to", "remind me",
	"mark", "complete", "finish", "check off",
	"remove", "delete", "drop", "forget about", "forget",
	"todo:", "need to",
}

func extractTaskText(input string) string {
	text := strings.TrimSpace(input)
	lower := strings.ToLower(text)
	for _, prefix := range taskPrefixes {
		if strings.HasPrefix(lower, prefix) {
			text = strings.TrimSpace(text[len(prefix):])
			break
		}
	}
	// Trailing markers like "as done" carry no description content
	for _, suffix := range []string{"as done", "as complete", "as finished"} {
		lower = strings.ToLower(text)
		if strings.HasSuffix(lower, suffix) {
			text = strings.TrimSpace(text[:len(text)-len(suffix)])
		}
	}
	return text
}

// extractNoteText pulls the note body out of "note: ..." style requests.
func extractNoteText(input string) string {
	text := strings.TrimSpace(input)
	lower := strings.ToLower(text)
	for _, prefix := range []string{"save a note:", "save note:", "note:", "note that", "note"} {
		if strings.HasPrefix(lower, prefix) {
			return strings.TrimSpace(text[len(prefix):])
		}
	}
	return text
}
