package process

// Status represents the lifecycle state of a worker process.
type Status int

const (
	// StatusPending indicates the process has not yet started.
	StatusPending Status = iota
	// StatusRunning indicates the process is actively running.
	StatusRunning
	// StatusExited indicates the process exited on its own.
	StatusExited
	// StatusFailed indicates the process exited with an error.
	StatusFailed
	// StatusTerminated indicates the process was stopped by Terminate.
	StatusTerminated
)

// String returns a human-readable representation of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusExited:
		return "exited"
	case StatusFailed:
		return "failed"
	case StatusTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// IsTerminal returns true once the process can no longer produce output.
func (s Status) IsTerminal() bool {
	return s == StatusExited || s == StatusFailed || s == StatusTerminated
}
