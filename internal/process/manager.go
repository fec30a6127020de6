package process

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zjrosen/strand/internal/log"
	"github.com/zjrosen/strand/internal/protocol"
)

// DefaultHeartbeatStaleAfter is how long a request may go without any update
// before an advisory staleness warning is logged. Silence is logged, never
// acted on: cancellation is user- or shutdown-driven only.
const DefaultHeartbeatStaleAfter = 30 * time.Second

// Config holds configuration for the process manager.
type Config struct {
	// Command and Args form the worker command line; the request input is
	// appended as the final argument.
	Command string
	Args    []string

	// GracePeriod is how long Terminate waits between SIGTERM and SIGKILL.
	GracePeriod time.Duration

	// HeartbeatStaleAfter bounds silent time before an advisory warning.
	HeartbeatStaleAfter time.Duration
}

// TaggedUpdate pairs an update with the request it came from, so updates
// from concurrent requests are never merged without attribution.
type TaggedUpdate struct {
	ProcessID string
	Update    protocol.Update
}

// workerHandle is the slice of Handle the manager depends on. Tests inject
// scripted fakes through the launch hook.
type workerHandle interface {
	ID() string
	ReadUpdates() []protocol.Update
	IsRunning() bool
	Status() Status
	StreamDone() bool
	Terminate(grace time.Duration)
	Cleanup()
}

var _ workerHandle = (*Handle)(nil)

type launchFunc func(ctx context.Context, id, input string) (workerHandle, error)

// requestContext tracks one outstanding request from launch to cleanup.
type requestContext struct {
	processID   string
	input       string
	startedAt   time.Time
	lastEvent   time.Time
	staleWarned bool
	complete    bool
	result      *Result
	handle      workerHandle
}

// Manager tracks all active requests, aggregates their updates each poll,
// and surfaces per-request results. It never blocks: polling drains whatever
// output is currently available and returns.
type Manager struct {
	cfg    Config
	launch launchFunc

	mu       sync.Mutex
	requests map[string]*requestContext
	order    []string // processIDs in start order, for deterministic polling
}

// NewManager creates a Manager that spawns workers with the configured
// command line.
func NewManager(cfg Config) *Manager {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if cfg.HeartbeatStaleAfter <= 0 {
		cfg.HeartbeatStaleAfter = DefaultHeartbeatStaleAfter
	}

	m := &Manager{
		cfg:      cfg,
		requests: make(map[string]*requestContext),
	}
	m.launch = func(ctx context.Context, id, input string) (workerHandle, error) {
		args := append(append([]string{}, cfg.Args...), input)
		return Launch(ctx, id, cfg.Command, args...)
	}
	return m
}

// StartProcess launches a worker for the given input and returns its unique
// process ID. IDs are never reused. Does not block on the worker. A spawn
// failure is returned immediately; nothing is tracked for the failed attempt.
func (m *Manager) StartProcess(ctx context.Context, input string) (string, error) {
	id := uuid.NewString()

	h, err := m.launch(ctx, id, input)
	if err != nil {
		return "", err
	}

	now := time.Now()
	m.mu.Lock()
	m.requests[id] = &requestContext{
		processID: id,
		input:     input,
		startedAt: now,
		lastEvent: now,
		handle:    h,
	}
	m.order = append(m.order, id)
	m.mu.Unlock()

	log.Info(log.CatOrch, "request started", "processID", id)
	return id, nil
}

// PollUpdates drains every non-complete request's handle and returns the
// updates tagged with their process IDs. A terminal status update marks its
// request complete and records the result; updates arriving after the
// terminal line are dropped. Safe to call every tick with zero active
// requests: it returns immediately with no work done.
func (m *Manager) PollUpdates() []TaggedUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.requests) == 0 {
		return nil
	}

	var out []TaggedUpdate
	now := time.Now()

	for _, id := range m.order {
		rc := m.requests[id]
		if rc == nil || rc.complete {
			continue
		}

		for _, u := range rc.handle.ReadUpdates() {
			rc.lastEvent = now
			rc.staleWarned = false

			out = append(out, TaggedUpdate{ProcessID: id, Update: u})

			if d := DispatchUpdate(u); d.Terminal {
				rc.complete = true
				rc.result = resultFromUpdate(id, u, rc.startedAt)
				if d.Failed {
					log.Warn(log.CatOrch, "request failed", "processID", id, "error", rc.result.Err)
				} else {
					log.Info(log.CatOrch, "request completed", "processID", id, "duration", rc.result.Duration)
				}
				// The completed line is the end-of-stream marker
				break
			}
		}

		if rc.complete {
			continue
		}

		// Worker gone without a terminal update: synthesize a failure so the
		// request is never silently stuck.
		if rc.handle.StreamDone() && rc.handle.Status().IsTerminal() {
			rc.complete = true
			rc.result = failedResult(id,
				fmt.Sprintf("worker exited (%s) before completing", rc.handle.Status()), rc.startedAt)
			log.Warn(log.CatOrch, "worker died without terminal status", "processID", id)
			continue
		}

		// Advisory only: a silent worker is logged, never killed.
		if now.Sub(rc.lastEvent) > m.cfg.HeartbeatStaleAfter && !rc.staleWarned {
			rc.staleWarned = true
			log.Warn(log.CatOrch, "no updates from worker beyond heartbeat interval",
				"processID", id, "silentFor", now.Sub(rc.lastEvent).Round(time.Second))
		}
	}

	return out
}

// GetProcessResult returns the terminal result for a request, or nil while
// it is still running (or if the ID is unknown).
func (m *Manager) GetProcessResult(processID string) *Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	rc := m.requests[processID]
	if rc == nil || !rc.complete {
		return nil
	}
	return rc.result
}

// Input returns the original input for a tracked request.
func (m *Manager) Input(processID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rc := m.requests[processID]
	if rc == nil {
		return "", false
	}
	return rc.input, true
}

// ActiveCount returns the number of requests not yet complete.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, rc := range m.requests {
		if !rc.complete {
			n++
		}
	}
	return n
}

// CleanupCompletedProcesses releases resources for every completed request
// and stops tracking it. Call only after results have been consumed via
// GetProcessResult, so completed requests are never dropped unread.
func (m *Manager) CleanupCompletedProcesses() {
	m.mu.Lock()
	var done []*requestContext
	remaining := m.order[:0]
	for _, id := range m.order {
		rc := m.requests[id]
		if rc != nil && rc.complete {
			done = append(done, rc)
			delete(m.requests, id)
			continue
		}
		remaining = append(remaining, id)
	}
	m.order = remaining
	m.mu.Unlock()

	for _, rc := range done {
		rc.handle.Cleanup()
		log.Debug(log.CatOrch, "request cleaned up", "processID", rc.processID)
	}
}

// Terminate force-stops one active request with SIGTERM/grace/SIGKILL
// escalation, records a cancellation result, and cleans up its handle.
func (m *Manager) Terminate(processID string) error {
	m.mu.Lock()
	rc := m.requests[processID]
	if rc == nil {
		m.mu.Unlock()
		return fmt.Errorf("unknown process: %s", processID)
	}
	h := rc.handle
	m.mu.Unlock()

	h.Terminate(m.cfg.GracePeriod)

	m.mu.Lock()
	if !rc.complete {
		rc.complete = true
		rc.result = failedResult(processID, "cancelled", rc.startedAt)
	}
	m.mu.Unlock()

	log.Info(log.CatOrch, "request terminated", "processID", processID)
	return nil
}

// TerminateAll force-stops every active request. Used on shutdown.
func (m *Manager) TerminateAll() {
	m.mu.Lock()
	ids := make([]string, len(m.order))
	copy(ids, m.order)
	m.mu.Unlock()

	for _, id := range ids {
		_ = m.Terminate(id)
	}
}
