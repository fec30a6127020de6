package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/zjrosen/strand/internal/log"
	"github.com/zjrosen/strand/internal/protocol"
)

// ErrSpawn is returned when the OS cannot create the worker process.
var ErrSpawn = errors.New("failed to spawn worker process")

// DefaultGracePeriod is how long Terminate waits after SIGTERM before
// force-killing the process.
const DefaultGracePeriod = 3 * time.Second

// updateBufferSize bounds how many parsed updates can sit unread between
// polls before the reader goroutine backs off.
const updateBufferSize = 256

// Handle owns one spawned worker process and its pipes. A background reader
// turns the raw stdout stream into parsed updates; callers drain them with
// non-blocking ReadUpdates calls. Handles are created by Launch and owned
// exclusively by the Manager.
type Handle struct {
	id        string
	cmd       *exec.Cmd
	startedAt time.Time

	updates    chan protocol.Update
	streamDone atomic.Bool

	status Status
	ctx    context.Context
	cancel context.CancelFunc
	exited chan struct{}

	mu          sync.RWMutex
	wg          sync.WaitGroup
	readers     sync.WaitGroup
	cleanupOnce sync.Once
}

// Launch spawns a worker process with stdout captured and stdin connected to
// the null device (the protocol is one-directional). The returned handle is
// already reading output in the background.
func Launch(ctx context.Context, id, command string, args ...string) (*Handle, error) {
	procCtx, cancel := context.WithCancel(ctx)

	log.Debug(log.CatProc, "launching worker", "id", id, "command", command)

	// #nosec G204 -- command comes from configuration, not from worker output
	cmd := exec.CommandContext(procCtx, command, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrSpawn, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: stderr pipe: %v", ErrSpawn, err)
	}

	h := &Handle{
		id:        id,
		cmd:       cmd,
		startedAt: time.Now(),
		updates:   make(chan protocol.Update, updateBufferSize),
		status:    StatusPending,
		ctx:       procCtx,
		cancel:    cancel,
		exited:    make(chan struct{}),
	}

	if err := cmd.Start(); err != nil {
		cancel()
		log.ErrorErr(log.CatProc, "worker spawn failed", err, "id", id)
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	log.Debug(log.CatProc, "worker started", "id", id, "pid", cmd.Process.Pid)
	h.setStatus(StatusRunning)

	h.wg.Add(3)
	h.readers.Add(2)
	go h.readLoop(stdout)
	go h.stderrLoop(stderr)
	go h.waitLoop()

	return h, nil
}

// ID returns the process identifier assigned at launch.
func (h *Handle) ID() string {
	return h.id
}

// StartedAt returns when the process was launched.
func (h *Handle) StartedAt() time.Time {
	return h.startedAt
}

// PID returns the OS process ID, or -1 if unavailable.
func (h *Handle) PID() int {
	if h.cmd == nil || h.cmd.Process == nil {
		return -1
	}
	return h.cmd.Process.Pid
}

// Status returns the current process status. Thread-safe.
func (h *Handle) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

// IsRunning returns true while the OS process is alive.
func (h *Handle) IsRunning() bool {
	return h.Status() == StatusRunning
}

// StreamDone returns true once the stdout stream has been fully consumed.
// Updates may still be buffered; drain with ReadUpdates.
func (h *Handle) StreamDone() bool {
	return h.streamDone.Load()
}

// ReadUpdates returns every update currently available without blocking.
// Returns an empty slice when no complete line has arrived since the last
// call; callers are expected to poll.
func (h *Handle) ReadUpdates() []protocol.Update {
	var out []protocol.Update
	for {
		select {
		case u, ok := <-h.updates:
			if !ok {
				return out
			}
			out = append(out, u)
		default:
			return out
		}
	}
}

// Terminate stops the process with escalation: SIGTERM first, then SIGKILL
// if it has not exited within the grace period. Cleanup always runs,
// whichever path was taken. Safe to call on an already-exited process.
func (h *Handle) Terminate(grace time.Duration) {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}

	h.mu.Lock()
	alreadyDone := h.status.IsTerminal()
	if !alreadyDone {
		h.status = StatusTerminated
	}
	h.mu.Unlock()

	if !alreadyDone && h.cmd.Process != nil {
		log.Debug(log.CatProc, "terminating worker", "id", h.id, "grace", grace)
		if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			log.Debug(log.CatProc, "SIGTERM failed, process likely gone", "id", h.id, "error", err)
		}

		select {
		case <-h.exited:
		case <-time.After(grace):
			log.Warn(log.CatProc, "worker ignored SIGTERM, killing", "id", h.id)
			_ = h.cmd.Process.Kill()
			<-h.exited
		}
	}

	h.Cleanup()
}

// Cleanup releases OS resources. Idempotent; safe to call multiple times.
func (h *Handle) Cleanup() {
	h.cleanupOnce.Do(func() {
		h.cancel()
		h.wg.Wait()
		log.Debug(log.CatProc, "worker cleaned up", "id", h.id)
	})
}

func (h *Handle) setStatus(s Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = s
}

// readLoop reads stdout chunks, buffers partial lines, and parses each
// complete line as one update. Malformed lines are logged and dropped; they
// never abort the loop.
func (h *Handle) readLoop(stdout io.Reader) {
	defer h.wg.Done()
	defer h.readers.Done()
	defer close(h.updates)
	defer h.streamDone.Store(true)

	var lb lineBuffer
	buf := make([]byte, 32*1024)

	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			for _, line := range lb.Append(buf[:n]) {
				h.handleLine(line)
			}
		}
		if err != nil {
			// End of stream: an unterminated final line is complete now
			if last := lb.Flush(); len(last) > 0 {
				h.handleLine(last)
			}
			return
		}
	}
}

func (h *Handle) handleLine(line []byte) {
	u, err := protocol.ParseUpdate(line)
	if err != nil {
		preview := line
		if len(preview) > 120 {
			preview = preview[:120]
		}
		log.Warn(log.CatProc, "dropping malformed protocol line",
			"id", h.id, "error", err, "line", string(preview))
		return
	}

	select {
	case h.updates <- u:
	case <-h.ctx.Done():
	}
}

// stderrLoop logs worker stderr for diagnostics.
func (h *Handle) stderrLoop(stderr io.Reader) {
	defer h.wg.Done()
	defer h.readers.Done()

	var lb lineBuffer
	buf := make([]byte, 8*1024)
	for {
		n, err := stderr.Read(buf)
		if n > 0 {
			for _, line := range lb.Append(buf[:n]) {
				log.Debug(log.CatProc, "STDERR", "id", h.id, "line", string(line))
			}
		}
		if err != nil {
			if last := lb.Flush(); len(last) > 0 {
				log.Debug(log.CatProc, "STDERR", "id", h.id, "line", string(last))
			}
			return
		}
	}
}

// waitLoop reaps the process and records its final status.
func (h *Handle) waitLoop() {
	defer h.wg.Done()
	defer close(h.exited)

	// Wait closes the stdout/stderr pipes, so the read loops must drain to
	// EOF first or a fast exit discards buffered updates.
	h.readers.Wait()
	err := h.cmd.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.status == StatusTerminated {
		log.Debug(log.CatProc, "worker terminated", "id", h.id)
		return
	}
	if errors.Is(h.ctx.Err(), context.Canceled) {
		h.status = StatusTerminated
		return
	}
	if err != nil {
		h.status = StatusFailed
		log.Debug(log.CatProc, "worker exited with error", "id", h.id, "error", err)
	} else {
		h.status = StatusExited
		log.Debug(log.CatProc, "worker exited", "id", h.id)
	}
}
