package process

import (
	"time"

	"github.com/zjrosen/strand/internal/protocol"
)

// Result is the terminal outcome of one request, built from the worker's
// final status update (or synthesized when the worker dies without one).
type Result struct {
	ProcessID  string
	Completed  bool // false means the request failed or was cancelled
	Response   string
	Err        string
	FinishedAt time.Time
	Duration   time.Duration
}

// Disposition classifies one update for the caller: which variant it is,
// whether it ends the request, and whether it does so with an error.
type Disposition struct {
	Kind     protocol.UpdateKind
	Terminal bool
	Failed   bool
}

// DispatchUpdate is the pure classification function mapping an update to a
// caller-actionable disposition. A terminal error is fatal for its own
// request only; it never affects other in-flight requests or the
// orchestrator loop.
func DispatchUpdate(u protocol.Update) Disposition {
	return Disposition{
		Kind:     u.Kind,
		Terminal: u.IsTerminal(),
		Failed:   u.IsError(),
	}
}

// resultFromUpdate builds a Result from a terminal status update.
func resultFromUpdate(processID string, u protocol.Update, startedAt time.Time) *Result {
	now := time.Now()
	r := &Result{
		ProcessID:  processID,
		FinishedAt: now,
		Duration:   now.Sub(startedAt),
	}
	if u.Status != nil && u.Status.Status == protocol.StatusCompleted {
		r.Completed = true
		r.Response = u.Status.Response
	} else if u.Status != nil {
		r.Err = u.Status.Error
		if r.Err == "" {
			r.Err = u.Status.Message
		}
		if r.Err == "" {
			r.Err = "worker reported an error"
		}
	}
	return r
}

// failedResult synthesizes a Result for a request that ended without a
// terminal update (crash, kill, or cancellation).
func failedResult(processID, reason string, startedAt time.Time) *Result {
	now := time.Now()
	return &Result{
		ProcessID:  processID,
		FinishedAt: now,
		Duration:   now.Sub(startedAt),
		Err:        reason,
	}
}
