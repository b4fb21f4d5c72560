// Package agent adapts an eino chat model and tool set to the resumable
// executor the approval loop drives.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dyike/CortexDesk/internal/hitl"
)

const DefaultMaxSteps = 40

var (
	ErrMaxStepsExceeded = errors.New("agent exceeded max steps")
	ErrNotPaused        = errors.New("executor has no pending interrupt")
	ErrPaused           = errors.New("executor is waiting for decisions")
	ErrUnknownInterrupt = errors.New("unknown interrupt")
	ErrEmptyResponse    = errors.New("model returned an empty response")

	errStreamClosed = errors.New("event stream closed by reader")
)

// PromptFunc returns the system prompt for a new conversation.
type PromptFunc func(ctx context.Context) (string, error)

type Options struct {
	ThreadID     string
	SystemPrompt PromptFunc
	// InterruptOn names tools whose calls pause the executor for approval.
	InterruptOn []string
	MaxSteps    int
	Retry       RetryConfig
	Logger      *zerolog.Logger
}

// Executor runs ReAct steps against a chat model and pauses before gated
// tool calls. One executor holds one conversation thread.
type Executor struct {
	threadID  string
	model     model.ToolCallingChatModel
	toolsNode *compose.ToolsNode
	known     map[string]bool
	gated     map[string]bool
	prompt    PromptFunc
	maxSteps  int
	log       zerolog.Logger

	mu      sync.Mutex
	history []*schema.Message
	pending *pendingCalls
}

type pendingCalls struct {
	interruptID string
	calls       []schema.ToolCall
}

type resumePlan struct {
	calls     []schema.ToolCall
	decisions map[string]hitl.Decision // keyed by tool call id, gated calls only
}

func New(ctx context.Context, cm model.ToolCallingChatModel, tools []tool.BaseTool, opts Options) (*Executor, error) {
	if cm == nil {
		return nil, errors.New("chat model is required")
	}

	infos := make([]*schema.ToolInfo, 0, len(tools))
	wrapped := make([]tool.BaseTool, 0, len(tools))
	known := make(map[string]bool, len(tools))
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool info: %w", err)
		}
		inv, ok := t.(tool.InvokableTool)
		if !ok {
			return nil, fmt.Errorf("tool %s is not invokable", info.Name)
		}
		infos = append(infos, info)
		wrapped = append(wrapped, errorAsResult{inv})
		known[info.Name] = true
	}

	bound := cm
	if len(infos) > 0 {
		var err error
		if bound, err = cm.WithTools(infos); err != nil {
			return nil, fmt.Errorf("bind tools: %w", err)
		}
	}

	var node *compose.ToolsNode
	if len(wrapped) > 0 {
		var err error
		node, err = compose.NewToolNode(ctx, &compose.ToolsNodeConfig{Tools: wrapped})
		if err != nil {
			return nil, fmt.Errorf("create tools node: %w", err)
		}
	}

	gated := make(map[string]bool, len(opts.InterruptOn))
	for _, name := range opts.InterruptOn {
		gated[name] = true
	}

	threadID := opts.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}
	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	return &Executor{
		threadID:  threadID,
		model:     WrapModel(bound, opts.Retry),
		toolsNode: node,
		known:     known,
		gated:     gated,
		prompt:    opts.SystemPrompt,
		maxSteps:  maxSteps,
		log:       log.With().Str("thread_id", threadID).Logger(),
	}, nil
}

func (e *Executor) ThreadID() string {
	return e.threadID
}

// Stream starts a task or resumes a paused one. Calls are serialized: a new
// pass waits until the previous one has finished.
func (e *Executor) Stream(ctx context.Context, in hitl.Input) (hitl.EventStream, error) {
	e.mu.Lock()

	var plan *resumePlan
	if in.IsResume() {
		var err error
		if plan, err = e.planResume(in.Resume); err != nil {
			e.mu.Unlock()
			return nil, err
		}
	} else if err := e.startTask(ctx, in.Task); err != nil {
		e.mu.Unlock()
		return nil, err
	}

	sr, sw := schema.Pipe[hitl.Event](32)
	go func() {
		defer e.mu.Unlock()
		defer sw.Close()

		em := &emitter{sw: sw}
		if err := e.pass(ctx, em, plan); err != nil && !errors.Is(err, errStreamClosed) {
			e.log.Debug().Err(err).Msg("pass failed")
			sw.Send(hitl.Event{}, err)
		}
	}()
	return &eventReader{sr: sr}, nil
}

// FinalText returns the content of the last assistant message.
func (e *Executor) FinalText() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.history) - 1; i >= 0; i-- {
		if m := e.history[i]; m.Role == schema.Assistant {
			return m.Content
		}
	}
	return ""
}

// History returns a copy of the conversation so far.
func (e *Executor) History() []*schema.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*schema.Message(nil), e.history...)
}

func (e *Executor) startTask(ctx context.Context, task string) error {
	if e.pending != nil {
		return fmt.Errorf("%w: interrupt %s", ErrPaused, e.pending.interruptID)
	}
	if strings.TrimSpace(task) == "" {
		return errors.New("task is empty")
	}
	if len(e.history) == 0 && e.prompt != nil {
		sys, err := e.prompt(ctx)
		if err != nil {
			return fmt.Errorf("build system prompt: %w", err)
		}
		if sys != "" {
			e.history = append(e.history, schema.SystemMessage(sys))
		}
	}
	e.history = append(e.history, schema.UserMessage(task))
	return nil
}

func (e *Executor) planResume(batch hitl.DecisionBatch) (*resumePlan, error) {
	if e.pending == nil {
		return nil, ErrNotPaused
	}
	id := e.pending.interruptID
	for got := range batch {
		if got != id {
			return nil, fmt.Errorf("%w: %s", ErrUnknownInterrupt, got)
		}
	}
	list, ok := batch[id]
	if !ok {
		return nil, fmt.Errorf("missing decisions for interrupt %s", id)
	}

	plan := &resumePlan{calls: e.pending.calls, decisions: make(map[string]hitl.Decision)}
	i := 0
	for _, call := range e.pending.calls {
		if !e.gated[call.Function.Name] {
			continue
		}
		if i >= len(list.Decisions) {
			return nil, fmt.Errorf("%w: interrupt %s", hitl.ErrDecisionMismatch, id)
		}
		plan.decisions[call.ID] = list.Decisions[i]
		i++
	}
	if i != len(list.Decisions) {
		return nil, fmt.Errorf("%w: interrupt %s", hitl.ErrDecisionMismatch, id)
	}
	e.pending = nil
	return plan, nil
}

func (e *Executor) pass(ctx context.Context, em *emitter, plan *resumePlan) error {
	if plan != nil {
		results, err := e.execute(ctx, em, plan.calls, plan.decisions)
		if err != nil {
			return err
		}
		e.history = append(e.history, results...)
	}

	for step := 0; step < e.maxSteps; step++ {
		msg, err := e.generate(ctx, em)
		if err != nil {
			return err
		}
		e.history = append(e.history, msg)
		if len(msg.ToolCalls) == 0 {
			return nil
		}

		if actions := e.gatedActions(msg.ToolCalls); len(actions) > 0 {
			id := uuid.NewString()
			e.pending = &pendingCalls{interruptID: id, calls: msg.ToolCalls}
			e.log.Debug().Str("interrupt_id", id).Int("actions", len(actions)).Msg("pausing for approval")
			return em.emit(hitl.Event{
				Kind: hitl.EventInterrupt,
				Interrupts: []hitl.Interrupt{{
					ID:    id,
					Value: hitl.ApprovalRequest{ActionRequests: actions},
				}},
			})
		}

		results, err := e.execute(ctx, em, msg.ToolCalls, nil)
		if err != nil {
			return err
		}
		e.history = append(e.history, results...)
	}
	return fmt.Errorf("%w: %d", ErrMaxStepsExceeded, e.maxSteps)
}

func (e *Executor) generate(ctx context.Context, em *emitter) (*schema.Message, error) {
	sr, err := e.model.Stream(ctx, e.history)
	if err != nil {
		return nil, fmt.Errorf("open model stream: %w", err)
	}
	defer sr.Close()

	var chunks []*schema.Message
	for {
		chunk, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("recv model stream: %w", err)
		}
		if chunk == nil {
			continue
		}
		chunks = append(chunks, chunk)

		if chunk.Content != "" {
			if err := em.emit(hitl.Event{Kind: hitl.EventText, Text: chunk.Content}); err != nil {
				return nil, err
			}
		}
		for _, tc := range chunk.ToolCalls {
			ev := hitl.Event{Kind: hitl.EventToolCall, ToolCall: &hitl.ToolCallChunk{
				Index:     tc.Index,
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			}}
			if err := em.emit(ev); err != nil {
				return nil, err
			}
		}
	}
	if len(chunks) == 0 {
		return nil, ErrEmptyResponse
	}

	msg, err := schema.ConcatMessages(chunks)
	if err != nil {
		return nil, fmt.Errorf("concat model stream: %w", err)
	}
	msg.Role = schema.Assistant
	return msg, nil
}

func (e *Executor) gatedActions(calls []schema.ToolCall) []hitl.ActionRequest {
	var actions []hitl.ActionRequest
	for _, call := range calls {
		if !e.gated[call.Function.Name] {
			continue
		}
		actions = append(actions, hitl.ActionRequest{
			Name:        call.Function.Name,
			Args:        decodeArgs(call.Function.Arguments),
			Description: fmt.Sprintf("Tool execution requires approval\n\nTool: %s\nArgs: %s", call.Function.Name, call.Function.Arguments),
		})
	}
	return actions
}

func decodeArgs(raw string) map[string]any {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{"raw": raw}
	}
	return args
}

// execute runs calls in order and returns one tool message per call.
// Calls with a reject decision are answered without running the tool.
func (e *Executor) execute(ctx context.Context, em *emitter, calls []schema.ToolCall, decisions map[string]hitl.Decision) ([]*schema.Message, error) {
	results := make(map[string]*schema.Message, len(calls))
	var run []schema.ToolCall
	for _, call := range calls {
		name := call.Function.Name
		if d, ok := decisions[call.ID]; ok && d.Type != hitl.DecisionApprove {
			text := fmt.Sprintf("User rejected %s", name)
			if d.Message != "" {
				text += ": " + d.Message
			}
			results[call.ID] = schema.ToolMessage(text, call.ID)
			continue
		}
		if !e.known[name] {
			results[call.ID] = schema.ToolMessage(fmt.Sprintf("Error: unknown tool %q", name), call.ID)
			continue
		}
		run = append(run, call)
	}

	if len(run) > 0 {
		input := &schema.Message{Role: schema.Assistant, ToolCalls: run}
		out, err := e.toolsNode.Invoke(withEmitter(ctx, em), input)
		if err != nil {
			return nil, fmt.Errorf("run tools: %w", err)
		}
		for i, msg := range out {
			id := msg.ToolCallID
			if id == "" && i < len(run) {
				id = run[i].ID
			}
			results[id] = msg
		}
	}

	ordered := make([]*schema.Message, 0, len(calls))
	for _, call := range calls {
		msg, ok := results[call.ID]
		if !ok {
			return nil, fmt.Errorf("no result for tool call %s (%s)", call.ID, call.Function.Name)
		}
		ordered = append(ordered, msg)
	}
	return ordered, nil
}

// errorAsResult hands tool failures back to the model as text so it can
// correct its arguments. Cancellation still aborts the pass.
type errorAsResult struct {
	tool.InvokableTool
}

func (t errorAsResult) InvokableRun(ctx context.Context, args string, opts ...tool.Option) (string, error) {
	out, err := t.InvokableTool.InvokableRun(ctx, args, opts...)
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil || errors.Is(err, errStreamClosed) {
		return "", err
	}
	return "Error: " + err.Error(), nil
}

type emitter struct {
	mu     sync.Mutex
	sw     *schema.StreamWriter[hitl.Event]
	closed bool
}

func (em *emitter) emit(ev hitl.Event) error {
	em.mu.Lock()
	defer em.mu.Unlock()
	if em.closed {
		return errStreamClosed
	}
	if em.sw.Send(ev, nil) {
		em.closed = true
		return errStreamClosed
	}
	return nil
}

type emitterKey struct{}

func withEmitter(ctx context.Context, em *emitter) context.Context {
	return context.WithValue(ctx, emitterKey{}, em)
}

func emitterFrom(ctx context.Context) *emitter {
	em, _ := ctx.Value(emitterKey{}).(*emitter)
	return em
}

type eventReader struct {
	sr *schema.StreamReader[hitl.Event]
}

func (r *eventReader) Recv() (hitl.Event, error) {
	return r.sr.Recv()
}

func (r *eventReader) Close() error {
	r.sr.Close()
	return nil
}
