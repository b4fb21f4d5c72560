package hitl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// DefaultMaxRounds bounds resume rounds so an agent that keeps proposing
// actions cannot loop forever.
const DefaultMaxRounds = 50

const malformedMessage = "Malformed interrupt"

// ErrIterationCeilingExceeded is returned when a run needs more resume
// rounds than allowed. It signals a stuck agent, not a broken backend.
var ErrIterationCeilingExceeded = errors.New("approval round ceiling exceeded")

// ExecutionError wraps a failure raised by the executor while streaming.
type ExecutionError struct {
	Round int
	Err   error
}

func (e *ExecutionError) Error() string {
	if e == nil || e.Err == nil {
		return "execution error"
	}
	return fmt.Sprintf("execution error (round %d): %v", e.Round, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

type Status string

const (
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
	StatusError     Status = "error"
)

type Result struct {
	Status     Status
	Transcript string
	Rounds     int
	Approvals  []ApprovalRecord
}

// Notifier receives human-facing notices while a run progresses.
type Notifier interface {
	ToolCalled(name string)
	ActionResolved(rec ApprovalRecord)
}

type nopNotifier struct{}

func (nopNotifier) ToolCalled(string)             {}
func (nopNotifier) ActionResolved(ApprovalRecord) {}

type runnerOptions struct {
	maxRounds int
	sink      io.Writer
	notifier  Notifier
	approver  Approver
	logger    zerolog.Logger
	quiet     bool
}

type Option func(*runnerOptions)

// WithMaxRounds sets the resume round ceiling. Values below 1 keep the default.
func WithMaxRounds(n int) Option {
	return func(o *runnerOptions) {
		if n > 0 {
			o.maxRounds = n
		}
	}
}

// WithSink sets where streamed text is written.
func WithSink(w io.Writer) Option {
	return func(o *runnerOptions) {
		if w != nil {
			o.sink = w
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(o *runnerOptions) {
		if n != nil {
			o.notifier = n
		}
	}
}

func WithApprover(a Approver) Option {
	return func(o *runnerOptions) {
		if a != nil {
			o.approver = a
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *runnerOptions) {
		o.logger = l
	}
}

// WithQuiet suppresses the separator newline written before tool notices.
func WithQuiet(quiet bool) Option {
	return func(o *runnerOptions) {
		o.quiet = quiet
	}
}

// Runner resolves approval interrupts until the executor finishes.
type Runner struct {
	exec Executor
	opts runnerOptions
}

func NewRunner(exec Executor, opts ...Option) *Runner {
	options := runnerOptions{
		maxRounds: DefaultMaxRounds,
		sink:      io.Discard,
		notifier:  nopNotifier{},
		approver:  AutoApprover{},
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Runner{exec: exec, opts: options}
}

// streamState is rebuilt for every Run; only the text survives resumes.
type streamState struct {
	round             int
	text              strings.Builder
	wroteText         bool
	toolCalls         map[string]string
	pending           map[string]ApprovalRequest
	pendingOrder      []string
	decisions         DecisionBatch
	interruptOccurred bool
	approvals         []ApprovalRecord
}

func newStreamState() *streamState {
	return &streamState{
		toolCalls: make(map[string]string),
		pending:   make(map[string]ApprovalRequest),
		decisions: make(DecisionBatch),
	}
}

// Run executes task and auto-resolves every interrupt. The returned result
// is never nil; its status tells completed, aborted and error apart.
func (r *Runner) Run(ctx context.Context, task string) (*Result, error) {
	state := newStreamState()

	if err := r.stream(ctx, TaskInput(task), state); err != nil {
		return r.finish(state, StatusError), err
	}

	for state.interruptOccurred {
		state.round++
		if state.round > r.opts.maxRounds {
			state.round = r.opts.maxRounds
			r.opts.logger.Error().Int("max_rounds", r.opts.maxRounds).Msg("agent kept interrupting, giving up")
			return r.finish(state, StatusAborted),
				fmt.Errorf("%w: exceeded %d rounds, the agent may be retrying rejected actions", ErrIterationCeilingExceeded, r.opts.maxRounds)
		}
		if err := ctx.Err(); err != nil {
			return r.finish(state, StatusError), &ExecutionError{Round: state.round, Err: err}
		}

		if err := r.resolvePending(ctx, state); err != nil {
			return r.finish(state, StatusError), err
		}

		batch := state.decisions
		state.decisions = make(DecisionBatch)
		state.interruptOccurred = false
		state.toolCalls = make(map[string]string)

		r.opts.logger.Debug().Int("round", state.round).Int("interrupts", len(batch)).Msg("resuming executor")
		if err := r.stream(ctx, ResumeInput(batch), state); err != nil {
			return r.finish(state, StatusError), err
		}
	}

	return r.finish(state, StatusCompleted), nil
}

func (r *Runner) finish(state *streamState, status Status) *Result {
	if state.wroteText {
		_, _ = io.WriteString(r.opts.sink, "\n")
	}
	return &Result{
		Status:     status,
		Transcript: state.text.String(),
		Rounds:     state.round,
		Approvals:  state.approvals,
	}
}

func (r *Runner) stream(ctx context.Context, in Input, state *streamState) error {
	events, err := r.exec.Stream(ctx, in)
	if err != nil {
		return &ExecutionError{Round: state.round, Err: err}
	}
	defer events.Close()

	for {
		ev, err := events.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return &ExecutionError{Round: state.round, Err: err}
		}
		r.handleEvent(ev, state)
	}
}

func (r *Runner) handleEvent(ev Event, state *streamState) {
	// sub-task output stays inside the delegating tool
	if len(ev.Namespace) > 0 {
		return
	}
	if ev.Source == SourceSummarization {
		return
	}

	switch ev.Kind {
	case EventText:
		if ev.Text == "" {
			return
		}
		_, _ = io.WriteString(r.opts.sink, ev.Text)
		state.text.WriteString(ev.Text)
		state.wroteText = true
	case EventToolCall:
		r.handleToolCall(ev.ToolCall, state)
	case EventInterrupt:
		r.collectInterrupts(ev.Interrupts, state)
	}
}

func (r *Runner) handleToolCall(chunk *ToolCallChunk, state *streamState) {
	if chunk == nil {
		return
	}
	var key string
	switch {
	case chunk.Index != nil:
		key = "idx:" + strconv.Itoa(*chunk.Index)
	case chunk.ID != "":
		key = "id:" + chunk.ID
	default:
		key = "unknown-" + strconv.Itoa(len(state.toolCalls))
	}
	if _, ok := state.toolCalls[key]; !ok {
		state.toolCalls[key] = ""
	}
	if chunk.Name == "" {
		return
	}
	state.toolCalls[key] = chunk.Name
	if state.wroteText && !r.opts.quiet {
		_, _ = io.WriteString(r.opts.sink, "\n")
	}
	r.opts.notifier.ToolCalled(chunk.Name)
}

func (r *Runner) collectInterrupts(interrupts []Interrupt, state *streamState) {
	for _, it := range interrupts {
		req, err := ParseApprovalRequest(it.Value)
		if err != nil {
			r.opts.logger.Warn().Err(err).Str("interrupt_id", it.ID).Msg("rejecting malformed interrupt")
			decision := Decision{Type: DecisionReject, Message: malformedMessage}
			state.decisions[it.ID] = DecisionList{Decisions: []Decision{decision}}
			// recorded against the round that delivers the rejection
			rec := ApprovalRecord{
				Round:       state.round + 1,
				InterruptID: it.ID,
				Decision:    decision,
				Mode:        r.opts.approver.Mode(),
				Malformed:   true,
			}
			state.approvals = append(state.approvals, rec)
			r.opts.notifier.ActionResolved(rec)
			// the executor is still paused and needs the rejection to move on
			state.interruptOccurred = true
			continue
		}
		if _, seen := state.pending[it.ID]; !seen {
			state.pendingOrder = append(state.pendingOrder, it.ID)
		}
		state.pending[it.ID] = req
		state.interruptOccurred = true
	}
}

// resolvePending asks the approver for every pending request, in arrival order.
func (r *Runner) resolvePending(ctx context.Context, state *streamState) error {
	order := state.pendingOrder
	pending := state.pending
	state.pending = make(map[string]ApprovalRequest)
	state.pendingOrder = nil

	for _, id := range order {
		req := pending[id]
		decisions, err := r.opts.approver.Decide(ctx, id, req)
		if err != nil {
			return &ExecutionError{Round: state.round, Err: fmt.Errorf("decide interrupt %s: %w", id, err)}
		}
		if len(decisions) != len(req.ActionRequests) {
			return &ExecutionError{
				Round: state.round,
				Err:   fmt.Errorf("%w: interrupt %s has %d actions, got %d decisions", ErrDecisionMismatch, id, len(req.ActionRequests), len(decisions)),
			}
		}
		for i, action := range req.ActionRequests {
			rec := ApprovalRecord{
				Round:       state.round,
				InterruptID: id,
				Action:      action.Name,
				Decision:    decisions[i],
				Mode:        r.opts.approver.Mode(),
			}
			state.approvals = append(state.approvals, rec)
			r.opts.notifier.ActionResolved(rec)
		}
		state.decisions[id] = DecisionList{Decisions: decisions}
	}
	return nil
}
