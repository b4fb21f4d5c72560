package agent

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/CortexDesk/internal/hitl"
)

type step struct {
	chunks []*schema.Message
	err    error
}

// scriptedModel answers each Stream call with the next scripted step.
type scriptedModel struct {
	mu     sync.Mutex
	steps  []step
	calls  int
	inputs [][]*schema.Message
	tools  []*schema.ToolInfo
}

func (m *scriptedModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	sr, err := m.Stream(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	defer sr.Close()
	var chunks []*schema.Message
	for {
		c, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return schema.ConcatMessages(chunks)
}

func (m *scriptedModel) Stream(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.calls
	m.calls++
	m.inputs = append(m.inputs, append([]*schema.Message(nil), input...))
	if idx >= len(m.steps) {
		return nil, errors.New("no scripted response")
	}
	if m.steps[idx].err != nil {
		return nil, m.steps[idx].err
	}
	return schema.StreamReaderFromArray(m.steps[idx].chunks), nil
}

func (m *scriptedModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tools = tools
	return m, nil
}

func (m *scriptedModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *scriptedModel) input(i int) []*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inputs[i]
}

func textStep(parts ...string) step {
	chunks := make([]*schema.Message, 0, len(parts))
	for _, p := range parts {
		chunks = append(chunks, &schema.Message{Role: schema.Assistant, Content: p})
	}
	return step{chunks: chunks}
}

func callStep(calls ...schema.ToolCall) step {
	for i := range calls {
		idx := i
		calls[i].Index = &idx
		calls[i].Type = "function"
	}
	return step{chunks: []*schema.Message{{Role: schema.Assistant, ToolCalls: calls}}}
}

func call(id, name, args string) schema.ToolCall {
	return schema.ToolCall{ID: id, Function: schema.FunctionCall{Name: name, Arguments: args}}
}

type recordingTool struct {
	name string
	fail error

	mu   sync.Mutex
	args []string
}

func (t *recordingTool) Info(context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{Name: t.name, Desc: "records its arguments"}, nil
}

func (t *recordingTool) InvokableRun(_ context.Context, args string, _ ...tool.Option) (string, error) {
	t.mu.Lock()
	t.args = append(t.args, args)
	t.mu.Unlock()
	if t.fail != nil {
		return "", t.fail
	}
	return "ok:" + t.name, nil
}

func (t *recordingTool) runs() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.args)
}

func drain(t *testing.T, stream hitl.EventStream) ([]hitl.Event, error) {
	t.Helper()
	defer stream.Close()
	var events []hitl.Event
	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
}

func staticPrompt(text string) PromptFunc {
	return func(context.Context) (string, error) { return text, nil }
}

func newExecutor(t *testing.T, m *scriptedModel, tools []tool.BaseTool, opts Options) *Executor {
	t.Helper()
	exec, err := New(context.Background(), m, tools, opts)
	require.NoError(t, err)
	return exec
}

func interruptOf(t *testing.T, events []hitl.Event) hitl.Interrupt {
	t.Helper()
	for _, ev := range events {
		if ev.Kind == hitl.EventInterrupt {
			require.Len(t, ev.Interrupts, 1)
			return ev.Interrupts[0]
		}
	}
	t.Fatal("no interrupt event")
	return hitl.Interrupt{}
}

func TestExecutorStreamsText(t *testing.T) {
	m := &scriptedModel{steps: []step{textStep("Hello", " world")}}
	exec := newExecutor(t, m, nil, Options{ThreadID: "thread-1", SystemPrompt: staticPrompt("be brief")})

	stream, err := exec.Stream(context.Background(), hitl.TaskInput("hi"))
	require.NoError(t, err)
	events, err := drain(t, stream)
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, hitl.EventText, events[0].Kind)
	assert.Equal(t, "Hello", events[0].Text)
	assert.Equal(t, " world", events[1].Text)
	assert.Equal(t, "Hello world", exec.FinalText())
	assert.Equal(t, "thread-1", exec.ThreadID())

	history := exec.History()
	require.Len(t, history, 3)
	assert.Equal(t, schema.System, history[0].Role)
	assert.Equal(t, "be brief", history[0].Content)
	assert.Equal(t, schema.User, history[1].Role)
	assert.Equal(t, schema.Assistant, history[2].Role)
}

func TestExecutorAddsSystemPromptOnce(t *testing.T) {
	m := &scriptedModel{steps: []step{textStep("one"), textStep("two")}}
	exec := newExecutor(t, m, nil, Options{SystemPrompt: staticPrompt("sys")})

	for _, task := range []string{"first", "second"} {
		stream, err := exec.Stream(context.Background(), hitl.TaskInput(task))
		require.NoError(t, err)
		_, err = drain(t, stream)
		require.NoError(t, err)
	}

	history := exec.History()
	require.Len(t, history, 5)
	assert.Equal(t, schema.System, history[0].Role)
	assert.Equal(t, "second", history[3].Content)
	assert.NotEmpty(t, exec.ThreadID())
}

func TestExecutorRunsToolsUntilAnswer(t *testing.T) {
	echo := &recordingTool{name: "echo"}
	m := &scriptedModel{steps: []step{
		callStep(call("c1", "echo", `{"x":1}`)),
		textStep("done"),
	}}
	exec := newExecutor(t, m, []tool.BaseTool{echo}, Options{})

	stream, err := exec.Stream(context.Background(), hitl.TaskInput("go"))
	require.NoError(t, err)
	events, err := drain(t, stream)
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, hitl.EventToolCall, events[0].Kind)
	assert.Equal(t, "echo", events[0].ToolCall.Name)
	assert.Equal(t, "c1", events[0].ToolCall.ID)
	assert.Equal(t, "done", events[1].Text)

	assert.Equal(t, 1, echo.runs())
	require.Len(t, m.tools, 1)
	assert.Equal(t, "echo", m.tools[0].Name)

	second := m.input(1)
	last := second[len(second)-1]
	assert.Equal(t, schema.Tool, last.Role)
	assert.Equal(t, "c1", last.ToolCallID)
	assert.Equal(t, "ok:echo", last.Content)
}

func TestExecutorReturnsToolErrorsToModel(t *testing.T) {
	broken := &recordingTool{name: "broken", fail: errors.New("boom")}
	m := &scriptedModel{steps: []step{
		callStep(call("c1", "broken", `{}`), call("c2", "missing", `{}`)),
		textStep("recovered"),
	}}
	exec := newExecutor(t, m, []tool.BaseTool{broken}, Options{})

	stream, err := exec.Stream(context.Background(), hitl.TaskInput("go"))
	require.NoError(t, err)
	_, err = drain(t, stream)
	require.NoError(t, err)

	second := m.input(1)
	require.GreaterOrEqual(t, len(second), 2)
	results := second[len(second)-2:]
	assert.Equal(t, "c1", results[0].ToolCallID)
	assert.Contains(t, results[0].Content, "Error:")
	assert.Contains(t, results[0].Content, "boom")
	assert.Equal(t, "c2", results[1].ToolCallID)
	assert.Contains(t, results[1].Content, "unknown tool")
	assert.Equal(t, "recovered", exec.FinalText())
}

func TestExecutorPausesBeforeGatedCall(t *testing.T) {
	echo := &recordingTool{name: "echo"}
	save := &recordingTool{name: "save"}
	m := &scriptedModel{steps: []step{
		callStep(call("c1", "echo", `{}`), call("c2", "save", `{"name":"risk"}`)),
		textStep("saved"),
	}}
	exec := newExecutor(t, m, []tool.BaseTool{echo, save}, Options{InterruptOn: []string{"save"}})

	stream, err := exec.Stream(context.Background(), hitl.TaskInput("remember"))
	require.NoError(t, err)
	events, err := drain(t, stream)
	require.NoError(t, err)

	intr := interruptOf(t, events)
	req, ok := intr.Value.(hitl.ApprovalRequest)
	require.True(t, ok)
	require.Len(t, req.ActionRequests, 1)
	assert.Equal(t, "save", req.ActionRequests[0].Name)
	assert.Equal(t, "risk", req.ActionRequests[0].Args["name"])
	assert.Contains(t, req.ActionRequests[0].Description, "Tool: save")
	assert.Zero(t, echo.runs(), "nothing runs while paused")
	assert.Zero(t, save.runs())

	_, err = exec.Stream(context.Background(), hitl.TaskInput("another"))
	assert.ErrorIs(t, err, ErrPaused)

	stream, err = exec.Stream(context.Background(), hitl.ResumeInput(hitl.DecisionBatch{
		intr.ID: {Decisions: []hitl.Decision{{Type: hitl.DecisionApprove}}},
	}))
	require.NoError(t, err)
	_, err = drain(t, stream)
	require.NoError(t, err)

	assert.Equal(t, 1, echo.runs())
	assert.Equal(t, 1, save.runs())
	assert.Equal(t, "saved", exec.FinalText())
}

func TestExecutorRejectedCallIsNotRun(t *testing.T) {
	save := &recordingTool{name: "save"}
	m := &scriptedModel{steps: []step{
		callStep(call("c1", "save", `{}`)),
		textStep("understood"),
	}}
	exec := newExecutor(t, m, []tool.BaseTool{save}, Options{InterruptOn: []string{"save"}})

	stream, err := exec.Stream(context.Background(), hitl.TaskInput("remember"))
	require.NoError(t, err)
	events, err := drain(t, stream)
	require.NoError(t, err)
	intr := interruptOf(t, events)

	stream, err = exec.Stream(context.Background(), hitl.ResumeInput(hitl.DecisionBatch{
		intr.ID: {Decisions: []hitl.Decision{{Type: hitl.DecisionReject, Message: "not now"}}},
	}))
	require.NoError(t, err)
	_, err = drain(t, stream)
	require.NoError(t, err)

	assert.Zero(t, save.runs())
	second := m.input(1)
	last := second[len(second)-1]
	assert.Equal(t, schema.Tool, last.Role)
	assert.Equal(t, "User rejected save: not now", last.Content)
}

func TestExecutorResumeValidation(t *testing.T) {
	save := &recordingTool{name: "save"}
	m := &scriptedModel{steps: []step{
		callStep(call("c1", "save", `{}`)),
		textStep("done"),
	}}
	exec := newExecutor(t, m, []tool.BaseTool{save}, Options{InterruptOn: []string{"save"}})

	_, err := exec.Stream(context.Background(), hitl.ResumeInput(hitl.DecisionBatch{}))
	assert.ErrorIs(t, err, ErrNotPaused)

	stream, err := exec.Stream(context.Background(), hitl.TaskInput("remember"))
	require.NoError(t, err)
	events, err := drain(t, stream)
	require.NoError(t, err)
	intr := interruptOf(t, events)

	_, err = exec.Stream(context.Background(), hitl.ResumeInput(hitl.DecisionBatch{
		"other": {Decisions: []hitl.Decision{{Type: hitl.DecisionApprove}}},
	}))
	assert.ErrorIs(t, err, ErrUnknownInterrupt)

	_, err = exec.Stream(context.Background(), hitl.ResumeInput(hitl.DecisionBatch{
		intr.ID: {Decisions: []hitl.Decision{{Type: hitl.DecisionApprove}, {Type: hitl.DecisionApprove}}},
	}))
	assert.ErrorIs(t, err, hitl.ErrDecisionMismatch)

	// still paused after invalid resumes
	stream, err = exec.Stream(context.Background(), hitl.ResumeInput(hitl.DecisionBatch{
		intr.ID: {Decisions: []hitl.Decision{{Type: hitl.DecisionApprove}}},
	}))
	require.NoError(t, err)
	_, err = drain(t, stream)
	require.NoError(t, err)
	assert.Equal(t, 1, save.runs())
}

func TestExecutorMaxSteps(t *testing.T) {
	echo := &recordingTool{name: "echo"}
	m := &scriptedModel{steps: []step{
		callStep(call("c1", "echo", `{}`)),
		callStep(call("c2", "echo", `{}`)),
		textStep("never reached"),
	}}
	exec := newExecutor(t, m, []tool.BaseTool{echo}, Options{MaxSteps: 2})

	stream, err := exec.Stream(context.Background(), hitl.TaskInput("loop"))
	require.NoError(t, err)
	_, err = drain(t, stream)
	assert.ErrorIs(t, err, ErrMaxStepsExceeded)
	assert.Equal(t, 2, m.callCount())
}

func TestExecutorEmptyResponse(t *testing.T) {
	m := &scriptedModel{steps: []step{{chunks: nil}}}
	exec := newExecutor(t, m, nil, Options{})

	stream, err := exec.Stream(context.Background(), hitl.TaskInput("hi"))
	require.NoError(t, err)
	_, err = drain(t, stream)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestExecutorRetriesModelErrors(t *testing.T) {
	m := &scriptedModel{steps: []step{
		{err: errors.New("rate limited")},
		textStep("after retry"),
	}}
	exec := newExecutor(t, m, nil, Options{Retry: RetryConfig{MaxAttempts: 3}})

	stream, err := exec.Stream(context.Background(), hitl.TaskInput("hi"))
	require.NoError(t, err)
	_, err = drain(t, stream)
	require.NoError(t, err)
	assert.Equal(t, "after retry", exec.FinalText())
	assert.Equal(t, 2, m.callCount())
}

func TestExecutorRejectsEmptyTask(t *testing.T) {
	exec := newExecutor(t, &scriptedModel{}, nil, Options{})
	_, err := exec.Stream(context.Background(), hitl.TaskInput("  "))
	assert.Error(t, err)
}

func TestNewRequiresModel(t *testing.T) {
	_, err := New(context.Background(), nil, nil, Options{})
	assert.Error(t, err)
}

func TestDecodeArgs(t *testing.T) {
	assert.Equal(t, map[string]any{}, decodeArgs(""))
	assert.Equal(t, map[string]any{"a": "b"}, decodeArgs(`{"a":"b"}`))
	assert.Equal(t, map[string]any{"raw": "not json"}, decodeArgs("not json"))
}

func TestErrorAsResult(t *testing.T) {
	wrapped := errorAsResult{&recordingTool{name: "x", fail: errors.New("bad input")}}

	out, err := wrapped.InvokableRun(context.Background(), "{}")
	require.NoError(t, err)
	assert.Equal(t, "Error: bad input", out)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = wrapped.InvokableRun(ctx, "{}")
	assert.Error(t, err)
}
