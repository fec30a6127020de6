// Package orchestrator drives the request lifecycle: it owns the shared
// state, starts worker processes for user input, folds their streamed
// updates in on every tick, and persists state at each terminal transition.
//
// The orchestrator is deliberately not safe for concurrent use. It is driven
// from a single event loop (the UI tick); workers run in parallel as OS
// processes but only ever reach the shared state through updates folded in
// here.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/strand/internal/log"
	"github.com/zjrosen/strand/internal/process"
	"github.com/zjrosen/strand/internal/protocol"
	"github.com/zjrosen/strand/internal/pubsub"
	"github.com/zjrosen/strand/internal/state"
	"github.com/zjrosen/strand/internal/tracing"
)

// Phase is the orchestrator's position in the request lifecycle.
type Phase int

const (
	// PhaseIdle means no request is in flight.
	PhaseIdle Phase = iota
	// PhaseProcessing means a worker is active and being polled.
	PhaseProcessing
	// PhaseCompleted means the last request finished successfully.
	PhaseCompleted
	// PhaseFailed means the last request ended in an error or was cancelled.
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseProcessing:
		return "processing"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// EventKind identifies what an orchestrator event reports.
type EventKind string

const (
	// EventStateChanged reports folded-in progress; the request continues.
	EventStateChanged EventKind = "state_changed"
	// EventCompleted reports a successful terminal transition.
	EventCompleted EventKind = "completed"
	// EventFailed reports a failed or cancelled request.
	EventFailed EventKind = "failed"
)

// Event is published to the renderer after every fold and every terminal
// transition. State is a clone; the renderer may read it freely but its
// mutations never reach the canonical state.
type Event struct {
	Kind      EventKind
	ProcessID string
	Phase     Phase
	State     state.SharedState
	Response  string
	Err       string
}

// RequestRecord is the archived summary of one finished request.
type RequestRecord struct {
	ProcessID  string
	Input      string
	Response   string
	Err        string
	Completed  bool
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
}

// Recorder archives finished requests. Archive failures are logged and
// swallowed; the archive is an audit trail, not a dependency of the loop.
type Recorder interface {
	RecordRequest(ctx context.Context, rec RequestRecord) error
}

// ProcessManager is the subset of process.Manager the orchestrator drives.
type ProcessManager interface {
	StartProcess(ctx context.Context, input string) (string, error)
	PollUpdates() []process.TaggedUpdate
	GetProcessResult(processID string) *process.Result
	CleanupCompletedProcesses()
	Terminate(processID string) error
	TerminateAll()
}

// Config holds the orchestrator's collaborators.
type Config struct {
	Manager ProcessManager
	Store   *state.Store

	// Archive records finished requests. Optional.
	Archive Recorder

	// Tracer traces each request from submission to terminal update.
	// Optional; a no-op tracer is used when nil.
	Tracer trace.Tracer
}

// Orchestrator is the single-threaded driver of the request lifecycle.
type Orchestrator struct {
	manager ProcessManager
	store   *state.Store
	archive Recorder
	tracer  trace.Tracer

	state state.SharedState
	phase Phase

	activeID    string
	activeInput string
	startedAt   time.Time

	spanCtx context.Context
	span    trace.Span

	lastResponse string
	lastError    string

	broker *pubsub.Broker[Event]
}

// New builds an orchestrator, loading state from the store (defaults when no
// snapshot exists).
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Manager == nil {
		return nil, fmt.Errorf("process manager is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("state store is required")
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}

	return &Orchestrator{
		manager: cfg.Manager,
		store:   cfg.Store,
		archive: cfg.Archive,
		tracer:  tracer,
		state:   cfg.Store.Load(),
		phase:   PhaseIdle,
		broker:  pubsub.NewBroker[Event](),
	}, nil
}

// Subscribe returns a channel of orchestrator events for the renderer. The
// subscription is dropped when ctx is cancelled.
func (o *Orchestrator) Subscribe(ctx context.Context) <-chan pubsub.Event[Event] {
	return o.broker.Subscribe(ctx)
}

// State returns a clone of the current shared state.
func (o *Orchestrator) State() state.SharedState {
	return o.state.Clone()
}

// Phase returns the current lifecycle phase.
func (o *Orchestrator) Phase() Phase {
	return o.phase
}

// ActiveProcessID returns the in-flight request's process ID, or "".
func (o *Orchestrator) ActiveProcessID() string {
	return o.activeID
}

// LastResponse returns the response of the most recent completed request.
func (o *Orchestrator) LastResponse() string {
	return o.lastResponse
}

// LastError returns the error of the most recent failed request.
func (o *Orchestrator) LastError() string {
	return o.lastError
}

// Reload replaces the in-memory state with the persisted snapshot. Only
// permitted while no request is in flight, so an active request's folds are
// never clobbered by an external write.
func (o *Orchestrator) Reload() error {
	if o.phase == PhaseProcessing {
		return fmt.Errorf("cannot reload while a request is being processed")
	}

	o.state = o.store.Load()
	log.Debug(log.CatOrch, "state reloaded from snapshot")
	o.publish(EventStateChanged, Event{})
	return nil
}

// Submit starts a worker for the given input. The input is recorded into the
// conversation history optimistically, before the worker produces anything.
// Returns an error when a request is already in flight or the worker cannot
// be spawned; a spawn failure is fatal to this request only.
func (o *Orchestrator) Submit(ctx context.Context, input string) (string, error) {
	if o.phase == PhaseProcessing {
		return "", fmt.Errorf("a request is already being processed")
	}

	o.state.AppendConversation(protocol.ConversationEntry{
		Role:      "user",
		Content:   input,
		Timestamp: time.Now().UTC(),
	})

	spanCtx, span := o.tracer.Start(ctx, tracing.SpanRequest,
		trace.WithAttributes(attribute.Int(tracing.AttrRequestInput, len(input))))

	id, err := o.manager.StartProcess(ctx, input)
	if err != nil {
		span.SetStatus(codes.Error, "spawn failed")
		span.RecordError(err)
		span.End()
		log.ErrorErr(log.CatOrch, "request could not be started", err)
		o.publish(EventFailed, Event{Err: err.Error()})
		return "", fmt.Errorf("starting request: %w", err)
	}

	span.SetAttributes(attribute.String(tracing.AttrProcessID, id))
	span.AddEvent(tracing.EventWorkerSpawned)

	o.phase = PhaseProcessing
	o.activeID = id
	o.activeInput = input
	o.startedAt = time.Now()
	o.spanCtx = spanCtx
	o.span = span

	o.publish(EventStateChanged, Event{ProcessID: id})
	return id, nil
}

// Tick advances the loop one step: drains available updates, folds them into
// shared state, and handles the terminal transition when the request has
// finished. Safe to call every tick with nothing in flight.
func (o *Orchestrator) Tick() {
	tagged := o.manager.PollUpdates()

	folded := false
	for _, tu := range tagged {
		// Attribution guard: only the active request's updates are folded
		if tu.ProcessID != o.activeID {
			continue
		}
		if tu.Update.IsTerminal() {
			continue // handled below through the manager's result
		}

		next := state.Apply(o.state, tu.Update)
		if tu.Update.Kind == protocol.KindStateSync {
			o.span.AddEvent(tracing.EventStateFolded)
		}
		o.state = next
		folded = true
	}

	if o.phase == PhaseProcessing && o.activeID != "" {
		if res := o.manager.GetProcessResult(o.activeID); res != nil {
			o.finish(res)
			return
		}
	}

	if folded {
		o.publish(EventStateChanged, Event{ProcessID: o.activeID})
	}
}

// Cancel terminates the in-flight request. No-op when nothing is running.
func (o *Orchestrator) Cancel() error {
	if o.phase != PhaseProcessing || o.activeID == "" {
		return nil
	}

	o.span.AddEvent(tracing.EventCancelled)
	if err := o.manager.Terminate(o.activeID); err != nil {
		return fmt.Errorf("cancelling request: %w", err)
	}

	if res := o.manager.GetProcessResult(o.activeID); res != nil {
		o.finish(res)
	}
	return nil
}

// Shutdown terminates all active requests and persists state. The event
// broker is closed; subscribers see their channels drain and close.
func (o *Orchestrator) Shutdown() {
	if o.span != nil {
		o.span.AddEvent(tracing.EventCancelled)
		o.span.End()
		o.span = nil
	}
	o.manager.TerminateAll()
	o.manager.CleanupCompletedProcesses()
	o.persist()
	o.broker.Close()
}

// finish applies one terminal result: conversation bookkeeping, persistence,
// archiving, and the transition back to idle.
func (o *Orchestrator) finish(res *process.Result) {
	o.span.AddEvent(tracing.EventWorkerTerminal)

	if res.Completed {
		o.state.AppendConversation(protocol.ConversationEntry{
			Role:      "assistant",
			Content:   res.Response,
			Timestamp: time.Now().UTC(),
		})
		o.state.Operation = ""
		o.lastResponse = res.Response
		o.phase = PhaseCompleted
		o.span.SetAttributes(attribute.Int(tracing.AttrResponseLen, len(res.Response)))
		o.span.SetStatus(codes.Ok, "")
	} else {
		o.lastError = res.Err
		o.phase = PhaseFailed
		o.span.SetAttributes(attribute.String(tracing.AttrErrorMessage, res.Err))
		o.span.SetStatus(codes.Error, res.Err)
	}
	o.span.End()

	o.persist()
	o.record(res)
	o.manager.CleanupCompletedProcesses()

	kind := EventCompleted
	if !res.Completed {
		kind = EventFailed
	}
	o.publish(kind, Event{
		ProcessID: res.ProcessID,
		Response:  res.Response,
		Err:       res.Err,
	})

	// Terminal phases are transient: the loop is immediately ready for the
	// next request.
	o.phase = PhaseIdle
	o.activeID = ""
	o.activeInput = ""
	o.span = nil
	o.spanCtx = nil
}

// persist saves the snapshot. A save failure is recoverable and never
// interrupts the loop; the next successful save supersedes it.
func (o *Orchestrator) persist() {
	if err := o.store.Save(o.state); err != nil {
		log.ErrorErr(log.CatState, "state save failed, will retry on next transition", err)
	}
}

func (o *Orchestrator) record(res *process.Result) {
	if o.archive == nil {
		return
	}
	ctx := o.spanCtx
	if ctx == nil {
		ctx = context.Background()
	}
	rec := RequestRecord{
		ProcessID:  res.ProcessID,
		Input:      o.activeInput,
		Response:   res.Response,
		Err:        res.Err,
		Completed:  res.Completed,
		StartedAt:  o.startedAt,
		FinishedAt: res.FinishedAt,
		Duration:   res.Duration,
	}
	if err := o.archive.RecordRequest(ctx, rec); err != nil {
		log.ErrorErr(log.CatDB, "request archive write failed", err, "processID", res.ProcessID)
	}
}

func (o *Orchestrator) publish(kind EventKind, ev Event) {
	ev.Kind = kind
	ev.Phase = o.phase
	ev.State = o.state.Clone()
	o.broker.Publish(pubsub.UpdatedEvent, ev)
}
