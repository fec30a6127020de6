// Package worker implements the worker side of the stdout protocol: it
// takes one request, performs the task work, and streams status, progress,
// state syncs, and heartbeats back to the orchestrator as NDJSON lines.
//
// The harness contract is strict: on any internal fault the worker emits a
// terminal error status rather than crashing silently.
package worker

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zjrosen/strand/internal/protocol"
	"github.com/zjrosen/strand/internal/state"
)

// DefaultHeartbeatInterval is how often the worker emits advisory liveness
// updates while working.
const DefaultHeartbeatInterval = 5 * time.Second

// Options configures a worker run.
type Options struct {
	// StatePath is the shared snapshot to seed from. The worker only reads
	// it; persistence stays with the orchestrator.
	StatePath string

	// AllowedDirectories confines file tools. When empty, the seeded
	// snapshot's allowlist is used.
	AllowedDirectories []string

	// HeartbeatInterval overrides the advisory heartbeat cadence.
	HeartbeatInterval time.Duration
}

// Runner executes one request and emits protocol lines to out.
type Runner struct {
	emitter *protocol.Emitter
	opts    Options
}

// NewRunner creates a worker runner writing protocol lines to out.
func NewRunner(out io.Writer, opts Options) *Runner {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	return &Runner{
		emitter: protocol.NewEmitter(out),
		opts:    opts,
	}
}

// Run processes one request to a terminal status. The returned error mirrors
// the terminal error status for the process exit code; the protocol stream
// always carries the authoritative outcome.
func (r *Runner) Run(ctx context.Context, input string) error {
	if err := r.emitter.Status(protocol.StatusInitializing, "starting up"); err != nil {
		return err
	}

	seed := state.Default()
	if r.opts.StatePath != "" {
		seed = state.NewStore(r.opts.StatePath).Load()
	}

	stop := r.startHeartbeats(ctx)
	defer stop()

	if err := r.emitter.Status(protocol.StatusProcessing, "processing request"); err != nil {
		return err
	}

	response, err := r.process(ctx, input, seed)
	if err != nil {
		_ = r.emitter.Failed(err.Error())
		return err
	}

	if err := r.emitter.Completed(response); err != nil {
		return err
	}
	return nil
}

// process classifies the request, executes it against the seeded state, and
// syncs the resulting state back over the stream.
func (r *Runner) process(ctx context.Context, input string, seed state.SharedState) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", fmt.Errorf("empty request")
	}

	intent := classify(input)
	if err := r.emitter.Progress("classify_request", "classified request",
		map[string]string{"intent": intent.String()}); err != nil {
		return "", err
	}

	allowed := r.opts.AllowedDirectories
	if len(allowed) == 0 {
		allowed = seed.AllowedDirectories
	}
	exec, err := NewExecutor(allowed)
	if err != nil {
		return "", err
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	response, tasks, current, err := r.execute(intent, input, seed, exec)
	if err != nil {
		return "", err
	}

	operation := ""
	delta := protocol.StateDelta{
		Tasks:     &tasks,
		Operation: &operation,
	}
	if current != nil {
		delta.CurrentTask = current
	}
	if entries := exec.ToolLog(); len(entries) > 0 {
		merged := append(append([]protocol.ToolLogEntry{}, seed.ToolLog...), entries...)
		delta.ToolLog = &merged
	}
	if err := r.emitter.StateSync(delta); err != nil {
		return "", err
	}

	return response, nil
}

// execute runs one classified intent and returns the response plus the
// replacement task list.
func (r *Runner) execute(intent Intent, input string, seed state.SharedState, exec *Executor) (string, []protocol.Task, *protocol.Task, error) {
	tasks := append([]protocol.Task{}, seed.Tasks...)

	switch intent {
	case IntentAddTask:
		desc := extractTaskText(input)
		if desc == "" {
			return "", nil, nil, fmt.Errorf("could not find a task description in %q", input)
		}
		task := protocol.Task{ID: uuid.NewString(), Description: desc, Status: "pending"}
		tasks = append(tasks, task)
		if err := r.emitter.Progress("add_task", "added task",
			map[string]string{"description": desc}); err != nil {
			return "", nil, nil, err
		}
		return fmt.Sprintf("Added %q to your tasks (%d total).", desc, len(tasks)), tasks, &task, nil

	case IntentCompleteTask:
		desc := extractTaskText(input)
		idx := findTask(tasks, desc)
		if idx < 0 {
			return "", nil, nil, fmt.Errorf("no task matching %q", desc)
		}
		tasks[idx].Status = "done"
		if err := r.emitter.Progress("complete_task", "completed task",
			map[string]string{"description": tasks[idx].Description}); err != nil {
			return "", nil, nil, err
		}
		return fmt.Sprintf("Marked %q as done.", tasks[idx].Description), tasks, &tasks[idx], nil

	case IntentRemoveTask:
		desc := extractTaskText(input)
		idx := findTask(tasks, desc)
		if idx < 0 {
			return "", nil, nil, fmt.Errorf("no task matching %q", desc)
		}
		removed := tasks[idx]
		tasks = append(tasks[:idx], tasks[idx+1:]...)
		if err := r.emitter.Progress("remove_task", "removed task",
			map[string]string{"description": removed.Description}); err != nil {
			return "", nil, nil, err
		}
		return fmt.Sprintf("Removed %q.", removed.Description), tasks, nil, nil

	case IntentListTasks:
		if err := r.emitter.Progress("list_tasks", "listing tasks",
			map[string]string{"count": fmt.Sprintf("%d", len(tasks))}); err != nil {
			return "", nil, nil, err
		}
		return formatTaskList(tasks), tasks, nil, nil

	case IntentSaveNote:
		note := extractNoteText(input)
		if note == "" {
			return "", nil, nil, fmt.Errorf("could not find note text in %q", input)
		}
		if err := r.emitter.Progress("save_note", "saving note", nil); err != nil {
			return "", nil, nil, err
		}
		path, err := r.saveNote(exec, note)
		if err != nil {
			return "", nil, nil, err
		}
		return fmt.Sprintf("Saved your note to %s.", path), tasks, nil, nil

	default:
		if err := r.emitter.Progress("summarize", "summarizing state", nil); err != nil {
			return "", nil, nil, err
		}
		return summarize(tasks), tasks, nil, nil
	}
}

// saveNote appends the note to notes.md in the first allowed directory.
func (r *Runner) saveNote(exec *Executor, note string) (string, error) {
	dirs := exec.AllowedDirectories()
	if len(dirs) == 0 {
		return "", fmt.Errorf("no allowed directories configured for notes")
	}

	path := dirs[0] + "/notes.md"
	existing, err := exec.ReadFile(path)
	if err != nil {
		existing = "" // first note
	}

	content := existing
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += "- " + note + "\n"

	if err := exec.WriteFile(path, content); err != nil {
		return "", err
	}
	return path, nil
}

// startHeartbeats emits advisory liveness updates until the returned stop
// function is called.
func (r *Runner) startHeartbeats(ctx context.Context) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(r.opts.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = r.emitter.Heartbeat("working")
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() { close(done) }
}

func findTask(tasks []protocol.Task, desc string) int {
	needle := strings.ToLower(strings.TrimSpace(desc))
	if needle == "" {
		return -1
	}
	for i, t := range tasks {
		if strings.Contains(strings.ToLower(t.Description), needle) {
			return i
		}
	}
	return -1
}

func formatTaskList(tasks []protocol.Task) string {
	if len(tasks) == 0 {
		return "You have no tasks."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You have %d task(s):\n", len(tasks))
	for i, t := range tasks {
		marker := " "
		if t.Status == "done" {
			marker = "x"
		}
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, marker, t.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

func summarize(tasks []protocol.Task) string {
	done := 0
	for _, t := range tasks {
		if t.Status == "done" {
			done++
		}
	}
	if len(tasks) == 0 {
		return "Nothing on your list yet. Ask me to add a task to get started."
	}
	return fmt.Sprintf("You have %d task(s), %d of them done.", len(tasks), done)
}
