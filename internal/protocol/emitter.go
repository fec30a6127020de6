package protocol

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// Emitter writes protocol lines to a worker's output stream.
// It is the worker-side half of the wire protocol: one JSON object per line,
// every object stamped with the emission time. Writes are serialized so
// concurrent tool goroutines cannot interleave partial lines.
type Emitter struct {
	w       io.Writer
	mu      sync.Mutex
	started time.Time
	now     func() time.Time
}

// NewEmitter creates an Emitter writing to w.
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{
		w:       w,
		started: time.Now(),
		now:     time.Now,
	}
}

// emit marshals the raw object and writes it as one newline-terminated line.
func (e *Emitter) emit(raw rawUpdate) error {
	raw.Timestamp = e.now()

	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encoding update: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing update: %w", err)
	}
	return nil
}

// Status emits a non-terminal status line.
func (e *Emitter) Status(status, message string) error {
	return e.emit(rawUpdate{Type: KindStatus, Status: status, Message: message})
}

// Completed emits the terminal success status carrying the final response.
// This is the sole sanctioned end-of-stream marker.
func (e *Emitter) Completed(response string) error {
	return e.emit(rawUpdate{Type: KindStatus, Status: StatusCompleted, Response: response})
}

// Failed emits the terminal error status.
func (e *Emitter) Failed(errMsg string) error {
	return e.emit(rawUpdate{Type: KindStatus, Status: StatusError, Error: errMsg})
}

// Progress emits a progress line for the named operation.
func (e *Emitter) Progress(operation, message string, details map[string]string) error {
	return e.emit(rawUpdate{Type: KindProgress, Operation: operation, Message: message, Details: details})
}

// StateSync emits a partial state snapshot for the orchestrator to fold in.
func (e *Emitter) StateSync(delta StateDelta) error {
	return e.emit(rawUpdate{Type: KindStateSync, Data: &delta})
}

// Heartbeat emits an advisory liveness signal with elapsed seconds since the
// emitter was created.
func (e *Emitter) Heartbeat(message string) error {
	elapsed := e.now().Sub(e.started).Seconds()
	return e.emit(rawUpdate{
		Type:    KindHeartbeat,
		Message: message,
		Elapsed: &elapsed,
	})
}
