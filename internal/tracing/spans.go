package tracing

// Span attribute keys used across the request lifecycle.
const (
	AttrRequestInput = "request.input_chars"
	AttrProcessID    = "process.id"
	AttrUpdateKind   = "update.kind"
	AttrOperation    = "worker.operation"
	AttrErrorMessage = "error.message"
	AttrResponseLen  = "response.chars"
)

// Span names.
const (
	SpanRequest = "strand.request"
	SpanSave    = "strand.state.save"
)

// Event names recorded on request spans.
const (
	EventWorkerSpawned  = "worker.spawned"
	EventWorkerTerminal = "worker.terminal"
	EventStateFolded    = "state.folded"
	EventCancelled      = "request.cancelled"
)
